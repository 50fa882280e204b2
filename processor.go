package streamhaus

import (
	"context"
	"time"
)

// Processor is a unit of processing logic with a lifecycle: Init runs
// exactly once before the first record, Process handles one record at a
// time, Close is terminal. A processor may read and write the state stores
// it was connected to and forward records downstream through its context.
type Processor[Kin, Vin, Kout, Vout any] interface {
	Init(ctx ProcessorContext[Kout, Vout]) error
	Process(ctx context.Context, k Kin, v Vin) error
	Close() error
}

// ProcessorSupplier creates one processor instance per task (partition).
type ProcessorSupplier[Kin, Vin, Kout, Vout any] func() Processor[Kin, Vin, Kout, Vout]

// Punctuator is implemented by processors that want a periodic callback in
// addition to per-record processing.
type Punctuator interface {
	Punctuate(ctx context.Context, now time.Time) error
}

// InputProcessor is a partial interface covering only the generic input K/V,
// so upstream nodes can forward without knowing the output types.
type InputProcessor[K, V any] interface {
	Process(ctx context.Context, k K, v V) error
}

// Flusher is implemented by nodes holding buffered output.
type Flusher interface {
	Flush(ctx context.Context) error
}
