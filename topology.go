package streamhaus

import (
	"errors"
	"fmt"
	"slices"

	"github.com/streamhaus/streamhaus/stores"
	"github.com/twmb/franz-go/pkg/kgo"
)

type nodeKind int

const (
	kindSource nodeKind = iota
	kindProcessor
	kindSink
)

// graphNode is the build-time representation of a node in the topology DAG.
// The generic types of the runtime node are captured in the build and wire
// closures at registration time, so the graph itself is type-erased.
type graphNode struct {
	name string
	kind nodeKind

	// Consumed topics; only set for source nodes.
	topics []string

	parents  []string
	children []string

	storeNames []string

	// build instantiates the runtime node for one partition.
	build func(bc *buildContext) (any, error)

	// wire connects this node's runtime instance to one child instance.
	wire func(parent any, childName string, child any) error
}

type buildContext struct {
	partition int32
	client    *kgo.Client
	stores    map[string]stores.StateStore
	config    *Config
}

// Topology is a validated DAG ready to be instantiated into tasks.
type Topology struct {
	nodes map[string]*graphNode

	// Topic -> source node name.
	sources map[string]string

	storeBuilders map[string]StoreBuilder

	// Deterministic topological ordering, computed during Build.
	nodeOrder []string

	partitionGroups []*PartitionGroup

	config *Config
}

// PartitionGroup is a sub-graph of sources, processors and stores that must
// be co-partitioned because they depend on each other.
type PartitionGroup struct {
	sourceTopics   []string
	processorNames []string
	storeNames     []string
}

// GetTopics returns all source topics in deterministic order.
func (t *Topology) GetTopics() []string {
	topics := make([]string, 0, len(t.sources))
	for topic := range t.sources {
		topics = append(topics, topic)
	}
	slices.Sort(topics)
	return topics
}

func (t *Topology) getPartitionGroups() []*PartitionGroup {
	return t.partitionGroups
}

// CreateTask instantiates the topology for one partition. Stores are built
// first, then all nodes in topological order, then the captured wire
// functions connect parents to children. Stores and processors are
// initialized before the task is returned.
func (t *Topology) CreateTask(topics []string, partition int32, client *kgo.Client) (*Task, error) {
	builtStores := make(map[string]stores.StateStore, len(t.storeBuilders))
	for name, build := range t.storeBuilders {
		store, err := build(name, partition)
		if err != nil {
			return nil, fmt.Errorf("failed to build store %s: %w", name, err)
		}
		builtStores[name] = store
	}

	bc := &buildContext{
		partition: partition,
		client:    client,
		stores:    builtStores,
		config:    t.config,
	}

	builtNodes := make(map[string]any, len(t.nodeOrder))
	builtSources := map[string]RawRecordProcessor{}
	var lifecycleNodes []initializable
	var sinks []Flusher

	for _, name := range t.nodeOrder {
		node := t.nodes[name]
		runtimeNode, err := node.build(bc)
		if err != nil {
			return nil, fmt.Errorf("failed to build node %s: %w", name, err)
		}
		builtNodes[name] = runtimeNode

		switch node.kind {
		case kindSource:
			for _, topic := range node.topics {
				builtSources[topic] = runtimeNode.(RawRecordProcessor)
			}
		case kindProcessor:
			lifecycleNodes = append(lifecycleNodes, runtimeNode.(initializable))
		case kindSink:
			sinks = append(sinks, runtimeNode.(Flusher))
		}
	}

	for _, name := range t.nodeOrder {
		node := t.nodes[name]
		parent := builtNodes[name]
		for _, childName := range node.children {
			if err := node.wire(parent, childName, builtNodes[childName]); err != nil {
				return nil, fmt.Errorf("failed to wire %s -> %s: %w", name, childName, err)
			}
		}
	}

	for name, store := range builtStores {
		if err := store.Init(); err != nil {
			return nil, fmt.Errorf("failed to initialize store %s: %w", name, err)
		}
	}
	for _, node := range lifecycleNodes {
		if err := node.init(); err != nil {
			return nil, err
		}
	}

	return newTask(topics, partition, builtSources, builtStores, builtNodes, sinks), nil
}

func (t *Topology) validate() error {
	var errs []error

	if len(t.sources) == 0 {
		errs = append(errs, ErrNoTopics)
	}
	if err := t.detectCycles(); err != nil {
		errs = append(errs, err)
	}
	if err := t.validateNoOrphans(); err != nil {
		errs = append(errs, err)
	}
	for _, name := range sortedKeys(t.nodes) {
		node := t.nodes[name]
		if node.kind == kindSink && len(node.children) > 0 {
			errs = append(errs, fmt.Errorf("sink node %s has children: %v", name, node.children))
		}
		for _, storeName := range node.storeNames {
			if _, ok := t.storeBuilders[storeName]; !ok {
				errs = append(errs, fmt.Errorf("%w: node %s references store %s", ErrStoreNotFound, name, storeName))
			}
		}
	}

	return errors.Join(errs...)
}

func (t *Topology) detectCycles() error {
	visited := map[string]bool{}
	onStack := map[string]bool{}

	var dfs func(name string, path []string) error
	dfs = func(name string, path []string) error {
		visited[name] = true
		onStack[name] = true
		path = append(path, name)

		for _, child := range t.nodes[name].children {
			if !visited[child] {
				if err := dfs(child, path); err != nil {
					return err
				}
			} else if onStack[child] {
				return fmt.Errorf("cycle detected: %v", append(path, child))
			}
		}

		onStack[name] = false
		return nil
	}

	for _, name := range sortedKeys(t.nodes) {
		if !visited[name] {
			if err := dfs(name, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

func (t *Topology) validateNoOrphans() error {
	reachable := map[string]bool{}
	var mark func(name string)
	mark = func(name string) {
		if reachable[name] {
			return
		}
		reachable[name] = true
		for _, child := range t.nodes[name].children {
			mark(child)
		}
	}
	for _, sourceName := range t.sources {
		mark(sourceName)
	}

	var orphans []string
	for name := range t.nodes {
		if !reachable[name] {
			orphans = append(orphans, name)
		}
	}
	if len(orphans) > 0 {
		slices.Sort(orphans)
		return fmt.Errorf("orphaned nodes, unreachable from any source: %v", orphans)
	}
	return nil
}

// topologicalSort orders nodes with Kahn's algorithm, keeping ties sorted by
// name so the ordering is deterministic.
func (t *Topology) topologicalSort() ([]string, error) {
	inDegree := make(map[string]int, len(t.nodes))
	for name := range t.nodes {
		inDegree[name] = 0
	}
	for _, node := range t.nodes {
		for _, child := range node.children {
			inDegree[child]++
		}
	}

	var queue []string
	for name, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, name)
		}
	}
	slices.Sort(queue)

	result := make([]string, 0, len(t.nodes))
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		result = append(result, name)

		children := slices.Clone(t.nodes[name].children)
		slices.Sort(children)
		for _, child := range children {
			inDegree[child]--
			if inDegree[child] == 0 {
				queue = append(queue, child)
				slices.Sort(queue)
			}
		}
	}

	if len(result) != len(t.nodes) {
		return nil, errors.New("topological sort failed, graph has a cycle")
	}
	return result, nil
}

// computePartitionGroups builds one group per source topic from its
// descendant processors and their stores, then merges overlapping groups.
func (t *Topology) computePartitionGroups() []*PartitionGroup {
	var groups []*PartitionGroup
	for _, topic := range t.GetTopics() {
		sourceName := t.sources[topic]

		var processors []string
		seen := map[string]bool{}
		var walk func(name string)
		walk = func(name string) {
			for _, child := range t.nodes[name].children {
				if seen[child] || t.nodes[child].kind == kindSink {
					continue
				}
				seen[child] = true
				processors = append(processors, child)
				walk(child)
			}
		}
		walk(sourceName)
		slices.Sort(processors)

		storeSet := map[string]bool{}
		for _, processor := range processors {
			for _, storeName := range t.nodes[processor].storeNames {
				storeSet[storeName] = true
			}
		}
		storeNames := sortedKeys(storeSet)

		groups = append(groups, &PartitionGroup{
			sourceTopics:   []string{topic},
			processorNames: processors,
			storeNames:     storeNames,
		})
	}

	return mergePartitionGroups(groups)
}

// mergePartitionGroups repeatedly merges any two groups that share a topic,
// processor or store until no overlap remains.
func mergePartitionGroups(pgs []*PartitionGroup) []*PartitionGroup {
	for {
		merged := false
		for i := 0; i < len(pgs) && !merged; i++ {
			for j := i + 1; j < len(pgs); j++ {
				if !groupsOverlap(pgs[i], pgs[j]) {
					continue
				}
				pgs[i].sourceTopics = sortedCompact(append(pgs[i].sourceTopics, pgs[j].sourceTopics...))
				pgs[i].processorNames = sortedCompact(append(pgs[i].processorNames, pgs[j].processorNames...))
				pgs[i].storeNames = sortedCompact(append(pgs[i].storeNames, pgs[j].storeNames...))
				pgs = slices.Delete(pgs, j, j+1)
				merged = true
				break
			}
		}
		if !merged {
			return pgs
		}
	}
}

func groupsOverlap(a, b *PartitionGroup) bool {
	return containsAny(a.sourceTopics, b.sourceTopics) ||
		containsAny(a.processorNames, b.processorNames) ||
		containsAny(a.storeNames, b.storeNames)
}

func containsAny[E comparable](s []E, v []E) bool {
	for _, item := range v {
		if slices.Contains(s, item) {
			return true
		}
	}
	return false
}

func sortedCompact(s []string) []string {
	slices.Sort(s)
	return slices.Compact(s)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
