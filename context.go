package streamhaus

import (
	"context"
	"fmt"

	"github.com/streamhaus/streamhaus/stores"
	"go.uber.org/multierr"
)

// ProcessorContext is handed to a processor at Init and provides forwarding
// to downstream nodes, access to connected state stores and the process-wide
// defaults.
type ProcessorContext[Kout, Vout any] interface {
	// Forward sends a record to all child nodes.
	Forward(ctx context.Context, k Kout, v Vout) error
	// ForwardTo sends a record to one child node by name.
	ForwardTo(ctx context.Context, childName string, k Kout, v Vout) error
	// GetStore returns a state store connected to this processor.
	GetStore(name string) (stores.StateStore, error)
	// Config returns the process-wide defaults.
	Config() *Config
}

type internalProcessorContext[Kout, Vout any] struct {
	nodeName string
	outputs  map[string]InputProcessor[Kout, Vout]
	stores   map[string]stores.StateStore
	config   *Config
}

func (c *internalProcessorContext[Kout, Vout]) Forward(ctx context.Context, k Kout, v Vout) error {
	var errs error
	for name, p := range c.outputs {
		if err := p.Process(ctx, k, v); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("failed to forward record to node %s: %w", name, err))
		}
	}
	return errs
}

func (c *internalProcessorContext[Kout, Vout]) ForwardTo(ctx context.Context, childName string, k Kout, v Vout) error {
	p, ok := c.outputs[childName]
	if !ok {
		return fmt.Errorf("%w: %s is not a child of %s", ErrNodeNotFound, childName, c.nodeName)
	}
	return p.Process(ctx, k, v)
}

func (c *internalProcessorContext[Kout, Vout]) GetStore(name string) (stores.StateStore, error) {
	store, ok := c.stores[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s is not connected to %s", ErrStoreNotFound, name, c.nodeName)
	}
	return store, nil
}

func (c *internalProcessorContext[Kout, Vout]) Config() *Config {
	return c.config
}
