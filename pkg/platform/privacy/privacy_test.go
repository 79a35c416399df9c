package privacy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnonymizeIP(t *testing.T) {
	assert.Equal(t, "192.168.12.0/24", AnonymizeIP("192.168.12.77"))
	assert.Equal(t, "2001:db8:1::/48", AnonymizeIP("2001:db8:1:2:3:4:5:6"))
	assert.Equal(t, "redacted", AnonymizeIP("not-an-ip"))
	assert.Equal(t, "redacted", AnonymizeIP(""))
}

func TestRedactFields(t *testing.T) {
	in := map[string]any{"email": "a@b.example", "status": "ACTIVE"}
	out := RedactFields(in, "email", "phone")

	assert.Equal(t, "***REDACTED***", out["email"])
	assert.Equal(t, "ACTIVE", out["status"])
	assert.Equal(t, "a@b.example", in["email"], "input map must not be mutated")
}
