package streamhaus

import (
	"context"
	"fmt"
	"io"

	"github.com/streamhaus/streamhaus/serde"
)

type flushable interface {
	Flush() error
}

// PrintProcessor writes one "<key> , <value>" line per record and forwards
// the record unchanged. Whether the writer is closed or merely flushed when
// the node closes is decided by the ownership flag given at construction,
// never inferred from the writer itself.
type PrintProcessor[K, V any] struct {
	w     io.Writer
	owned bool

	formatKey   func(K) string
	formatValue func(V) string

	pctx ProcessorContext[K, V]
}

// NewPrintProcessor returns a supplier for print nodes on w. owned declares
// that the node exclusively opened w and must close it.
func NewPrintProcessor[K, V any](w io.Writer, owned bool) ProcessorSupplier[K, V, K, V] {
	return func() Processor[K, V, K, V] {
		return &PrintProcessor[K, V]{w: w, owned: owned}
	}
}

// NewPrintProcessorWithFormatters is NewPrintProcessor with explicit key and
// value formatters. Explicit formatters win over the process-wide defaults.
func NewPrintProcessorWithFormatters[K, V any](w io.Writer, owned bool, formatKey func(K) string, formatValue func(V) string) ProcessorSupplier[K, V, K, V] {
	return func() Processor[K, V, K, V] {
		return &PrintProcessor[K, V]{
			w:           w,
			owned:       owned,
			formatKey:   formatKey,
			formatValue: formatValue,
		}
	}
}

// Init resolves the formatters once. Raw byte keys and values are run
// through the process-wide default serdes before printing; everything else
// is printed with its natural formatting.
func (p *PrintProcessor[K, V]) Init(pctx ProcessorContext[K, V]) error {
	p.pctx = pctx
	if p.formatKey == nil {
		p.formatKey = byteAwareFormatter[K](pctx.Config().DefaultKeySerde.Deserializer)
	}
	if p.formatValue == nil {
		p.formatValue = byteAwareFormatter[V](pctx.Config().DefaultValueSerde.Deserializer)
	}
	return nil
}

func (p *PrintProcessor[K, V]) Process(ctx context.Context, k K, v V) error {
	if _, err := fmt.Fprintf(p.w, "%s , %s\n", p.formatKey(k), p.formatValue(v)); err != nil {
		return err
	}
	return p.pctx.Forward(ctx, k, v)
}

func (p *PrintProcessor[K, V]) Close() error {
	if p.owned {
		if closer, ok := p.w.(io.Closer); ok {
			return closer.Close()
		}
		return nil
	}
	if f, ok := p.w.(flushable); ok {
		return f.Flush()
	}
	return nil
}

func byteAwareFormatter[T any](raw serde.Deserializer[[]byte]) func(T) string {
	return func(v T) string {
		if b, ok := any(v).([]byte); ok {
			decoded, err := raw(b)
			if err != nil {
				return string(b)
			}
			return string(decoded)
		}
		return fmt.Sprint(v)
	}
}
