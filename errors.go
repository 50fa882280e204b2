package streamhaus

import "errors"

// Structural graph errors. Both are detected while the topology is being
// assembled, never deferred to execution time.
var (
	ErrNodeAlreadyExists      = errors.New("streamhaus: node name already exists")
	ErrNodeNotFound           = errors.New("streamhaus: node not found")
	ErrStoreNotFound          = errors.New("streamhaus: store not found")
	ErrStoreAlreadyExists     = errors.New("streamhaus: store name already exists")
	ErrNoTopics               = errors.New("streamhaus: at least one topic is required")
	ErrNoParents              = errors.New("streamhaus: at least one parent is required")
	ErrInvalidParent          = errors.New("streamhaus: sinks cannot be parents")
	ErrTopicAlreadyRegistered = errors.New("streamhaus: topic already registered by another source")
)

// Lifecycle-usage errors, returned when a processing node is driven outside
// its Uninitialized -> Initialized -> Closed lifecycle.
var (
	ErrNotInitialized     = errors.New("streamhaus: node not initialized")
	ErrAlreadyInitialized = errors.New("streamhaus: node already initialized")
	ErrNodeClosed         = errors.New("streamhaus: node closed")
)

var ErrUnknownTopic = errors.New("streamhaus: no source node for topic")
