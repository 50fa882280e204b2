// Package windowing provides the time-window value types used to qualify
// record keys in windowed state stores.
package windowing

import "math"

// UnlimitedEnd is the end instant of an unlimited window.
const UnlimitedEnd int64 = math.MaxInt64

// Window is a time interval qualifying a key, in milliseconds since epoch.
// It is immutable once constructed. Two unlimited windows are equal iff
// their start instants are equal.
type Window struct {
	StartMs int64
	EndMs   int64
}

// NewUnlimitedWindow returns a window open-ended from start.
func NewUnlimitedWindow(startMs int64) Window {
	return Window{StartMs: startMs, EndMs: UnlimitedEnd}
}

// NewTimeWindow returns a bounded window [startMs, endMs).
func NewTimeWindow(startMs, endMs int64) Window {
	return Window{StartMs: startMs, EndMs: endMs}
}

// Unlimited reports whether the window is open-ended.
func (w Window) Unlimited() bool {
	return w.EndMs == UnlimitedEnd
}

// WindowedKey is a record key qualified by the window it falls into.
type WindowedKey[K any] struct {
	Key    K
	Window Window
}
