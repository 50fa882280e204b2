package streamhaus

import (
	"context"
	"time"

	"github.com/streamhaus/streamhaus/stores"
)

type nodeState uint8

const (
	nodeUninitialized nodeState = iota
	nodeInitialized
	nodeClosed
)

func (s nodeState) guard() error {
	switch s {
	case nodeUninitialized:
		return ErrNotInitialized
	case nodeClosed:
		return ErrNodeClosed
	}
	return nil
}

// processorNode hosts one user processor inside a task. It enforces the
// Uninitialized -> Initialized -> Closed lifecycle and owns the processor's
// context.
type processorNode[Kin, Vin, Kout, Vout any] struct {
	name          string
	userProcessor Processor[Kin, Vin, Kout, Vout]
	outputs       map[string]InputProcessor[Kout, Vout]
	stores        map[string]stores.StateStore
	config        *Config

	state nodeState
}

func newProcessorNode[Kin, Vin, Kout, Vout any](name string, supplier ProcessorSupplier[Kin, Vin, Kout, Vout]) *processorNode[Kin, Vin, Kout, Vout] {
	return &processorNode[Kin, Vin, Kout, Vout]{
		name:          name,
		userProcessor: supplier(),
		outputs:       map[string]InputProcessor[Kout, Vout]{},
	}
}

func (p *processorNode[Kin, Vin, Kout, Vout]) init() error {
	if p.state == nodeClosed {
		return ErrNodeClosed
	}
	if p.state == nodeInitialized {
		return ErrAlreadyInitialized
	}

	err := p.userProcessor.Init(&internalProcessorContext[Kout, Vout]{
		nodeName: p.name,
		outputs:  p.outputs,
		stores:   p.stores,
		config:   p.config,
	})
	if err != nil {
		return err
	}
	p.state = nodeInitialized
	return nil
}

func (p *processorNode[Kin, Vin, Kout, Vout]) Process(ctx context.Context, k Kin, v Vin) error {
	if err := p.state.guard(); err != nil {
		return err
	}
	return p.userProcessor.Process(ctx, k, v)
}

func (p *processorNode[Kin, Vin, Kout, Vout]) punctuate(ctx context.Context, now time.Time) error {
	if err := p.state.guard(); err != nil {
		return err
	}
	if punctuator, ok := p.userProcessor.(Punctuator); ok {
		return punctuator.Punctuate(ctx, now)
	}
	return nil
}

func (p *processorNode[Kin, Vin, Kout, Vout]) close() error {
	if p.state == nodeClosed {
		return nil
	}
	p.state = nodeClosed
	return p.userProcessor.Close()
}

var _ InputProcessor[any, any] = (*processorNode[any, any, any, any])(nil)

// initializable and closeable are implemented by runtime nodes with a
// lifecycle; CreateTask drives them without knowing generic types.
type initializable interface {
	init() error
}

type closeable interface {
	close() error
}

type punctuable interface {
	punctuate(ctx context.Context, now time.Time) error
}
