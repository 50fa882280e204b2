package streamhaus

import (
	"context"
	"errors"
	"testing"

	"github.com/alecthomas/assert/v2"
)

func TestSinkFlushClearsProduceErrors(t *testing.T) {
	ctx := context.Background()
	s := &SinkNode[string, string]{topic: "out"}
	s.produceErrs = append(s.produceErrs, errors.New("broker unreachable"))

	err := s.Flush(ctx)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "broker unreachable")

	// The error was already reported; a later flush starts clean.
	assert.NoError(t, s.Flush(ctx))
}
