package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCode_ChainTraversal(t *testing.T) {
	base := errors.New("connection refused")
	wrapped := Wrap(base, CodeInternal, "query failed")
	outer := Wrap(wrapped, CodeBudgetExceeded, "epsilon cap reached")

	assert.True(t, HasCode(outer, CodeBudgetExceeded))
	assert.True(t, HasCode(outer, CodeInternal))
	assert.False(t, HasCode(outer, CodeInvalidRange))
	assert.True(t, errors.Is(outer, base))
}

func TestHasCode_StdlibWrapping(t *testing.T) {
	inner := New(CodeInvalidRange, "end before start")
	outer := fmt.Errorf("validating request: %w", inner)

	assert.True(t, HasCode(outer, CodeInvalidRange))
}

func TestWrap_Nil(t *testing.T) {
	require.NoError(t, Wrap(nil, CodeInternal, "should stay nil"))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeInsufficientData, CodeOf(New(CodeInsufficientData, "too few points")))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
}
