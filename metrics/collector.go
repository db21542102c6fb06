// Package metrics provides per-run counters for message building and
// delivery.
//
// The Collector is a leaf package with no internal dependencies. Policy
// delivery counters are absorbed from policy.Stats at the end of a run
// rather than recorded live, avoiding double-counting.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all metrics.
type Snapshot struct {
	// Building
	MessagesBuilt  int64
	BuiltByType    map[string]int64
	BuildFailures  int64
	FailuresByKind map[string]int64

	// Delivery (absorbed from policy.Stats)
	MessagesReceived  int64
	MessagesPersisted int64
	Flushes           int64

	// Sink
	SinkWriteFailures int64

	// Dimensions (informational, set at construction)
	Policy string
	Sink   string
	RunID  string
}

// Collector accumulates metrics during a single run.
// Thread-safe via sync.Mutex. All methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	builtByType    map[string]int64
	failuresByKind map[string]int64

	sinkWriteFailures int64

	messagesReceived  int64
	messagesPersisted int64
	flushes           int64

	policy string
	sink   string
	runID  string
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(policy, sink, runID string) *Collector {
	return &Collector{
		builtByType:    make(map[string]int64),
		failuresByKind: make(map[string]int64),
		policy:         policy,
		sink:           sink,
		runID:          runID,
	}
}

// IncBuilt records a successfully built message of the given type.
func (c *Collector) IncBuilt(messageType string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.builtByType[messageType]++
	c.mu.Unlock()
}

// IncBuildFailure records a rejected build of the given failure kind.
func (c *Collector) IncBuildFailure(kind string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.failuresByKind[kind]++
	c.mu.Unlock()
}

// IncSinkWriteFailure records a failed policy ingest or flush.
func (c *Collector) IncSinkWriteFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.sinkWriteFailures++
	c.mu.Unlock()
}

// AbsorbPolicyStats copies delivery counters from policy.Stats.
// Called with the final policy snapshot; later calls overwrite earlier ones.
func (c *Collector) AbsorbPolicyStats(received, persisted, flushes int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.messagesReceived = received
	c.messagesPersisted = persisted
	c.flushes = flushes
	c.mu.Unlock()
}

// Snapshot returns an immutable point-in-time view of all metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		BuiltByType:    make(map[string]int64, len(c.builtByType)),
		FailuresByKind: make(map[string]int64, len(c.failuresByKind)),

		MessagesReceived:  c.messagesReceived,
		MessagesPersisted: c.messagesPersisted,
		Flushes:           c.flushes,

		SinkWriteFailures: c.sinkWriteFailures,

		Policy: c.policy,
		Sink:   c.sink,
		RunID:  c.runID,
	}
	for k, v := range c.builtByType {
		s.BuiltByType[k] = v
		s.MessagesBuilt += v
	}
	for k, v := range c.failuresByKind {
		s.FailuresByKind[k] = v
		s.BuildFailures += v
	}
	return s
}
