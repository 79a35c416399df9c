package alerts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	dErrors "veristat/pkg/domain-errors"
)

func TestNewKafkaSinkRequiresBrokers(t *testing.T) {
	_, err := NewKafkaSink(context.Background(), nil)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = NewKafkaSink(context.Background(), []string{})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestPublishRejectsNilEvent(t *testing.T) {
	s := &KafkaSink{topic: DefaultTopic}
	err := s.Publish(context.Background(), nil)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}
