package streamhaus

import (
	"bytes"
	"context"
	"testing"

	"github.com/alecthomas/assert/v2"
)

type closeRecorder struct {
	bytes.Buffer
	closed bool
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}

type flushRecorder struct {
	bytes.Buffer
	flushed bool
}

func (f *flushRecorder) Flush() error {
	f.flushed = true
	return nil
}

func newPrintContext[K, V any](t *testing.T) *internalProcessorContext[K, V] {
	t.Helper()
	return &internalProcessorContext[K, V]{
		nodeName: "printer",
		outputs:  map[string]InputProcessor[K, V]{},
		config:   NewConfig(),
	}
}

func TestPrintFormat(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrintProcessor[string, string](&buf, false)()
	assert.NoError(t, p.Init(newPrintContext[string, string](t)))

	ctx := context.Background()
	assert.NoError(t, p.Process(ctx, "key", "value"))
	assert.NoError(t, p.Process(ctx, "", "only-value"))

	assert.Equal(t, "key , value\n , only-value\n", buf.String())
}

func TestPrintRawBytes(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrintProcessor[[]byte, []byte](&buf, false)()
	assert.NoError(t, p.Init(newPrintContext[[]byte, []byte](t)))

	assert.NoError(t, p.Process(context.Background(), []byte("k"), []byte("v")))
	assert.Equal(t, "k , v\n", buf.String())
}

func TestPrintExplicitFormatters(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrintProcessorWithFormatters(&buf, false,
		func(k string) string { return "key=" + k },
		func(v string) string { return "value=" + v },
	)()
	assert.NoError(t, p.Init(newPrintContext[string, string](t)))

	assert.NoError(t, p.Process(context.Background(), "k", "v"))
	assert.Equal(t, "key=k , value=v\n", buf.String())
}

func TestPrintForwardsDownstream(t *testing.T) {
	var buf bytes.Buffer
	capture := &captureProcessor[string, string]{}

	pctx := newPrintContext[string, string](t)
	pctx.outputs["next"] = capture

	p := NewPrintProcessor[string, string](&buf, false)()
	assert.NoError(t, p.Init(pctx))

	assert.NoError(t, p.Process(context.Background(), "k", "v"))
	assert.Equal(t, []capturedRecord[string, string]{{key: "k", value: "v"}}, capture.records)
}

func TestPrintClose(t *testing.T) {
	t.Run("owned writer is closed", func(t *testing.T) {
		w := &closeRecorder{}
		p := NewPrintProcessor[string, string](w, true)()
		assert.NoError(t, p.Init(newPrintContext[string, string](t)))
		assert.NoError(t, p.Close())
		assert.True(t, w.closed)
	})

	t.Run("borrowed writer is only flushed", func(t *testing.T) {
		w := &flushRecorder{}
		p := NewPrintProcessor[string, string](w, false)()
		assert.NoError(t, p.Init(newPrintContext[string, string](t)))
		assert.NoError(t, p.Close())
		assert.True(t, w.flushed)
	})

	t.Run("plain borrowed writer needs nothing", func(t *testing.T) {
		var buf bytes.Buffer
		p := NewPrintProcessor[string, string](&buf, false)()
		assert.NoError(t, p.Init(newPrintContext[string, string](t)))
		assert.NoError(t, p.Close())
	})
}
