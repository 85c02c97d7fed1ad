// Package distributed implements the distributed coordinator: the
// asynchronous counterpart to the orchestrator that interprets one CFSM per
// role, routing messages between them instead of walking a single shared
// CFG. One global Step call advances exactly one role by exactly one
// transition.
package distributed

import "math/rand"

// SchedulingStrategy controls which enabled role is chosen to step next.
type SchedulingStrategy string

const (
	SchedulingRoundRobin SchedulingStrategy = "round-robin"
	SchedulingFair       SchedulingStrategy = "fair"
	SchedulingRandom     SchedulingStrategy = "random"
	SchedulingManual     SchedulingStrategy = "manual"
)

// DeliveryModel controls the relative order in which messages drained from
// a single Step are handed to recipient buffers.
type DeliveryModel string

const (
	DeliveryFIFO      DeliveryModel = "fifo"
	DeliveryUnordered DeliveryModel = "unordered"
)

// Config holds every Coordinator construction-time setting.
type Config struct {
	MaxSteps           int
	MaxBufferSize      int
	DeliveryModel      DeliveryModel
	RecordTrace        bool
	SchedulingStrategy SchedulingStrategy
	RNG                *rand.Rand

	// ExploreAllInterleavings, when set, annotates every event the
	// coordinator emits (Meta["enabled_roles"]) with the full set of roles that were enabled at that step (not just
	// the one chosen), so a caller can reconstruct the interleaving space
	// this run explored without the coordinator itself performing a branch
	// search over alternate schedules.
	ExploreAllInterleavings bool
}

func (c Config) normalized() Config {
	if c.MaxSteps <= 0 {
		c.MaxSteps = 10000
	}
	if c.DeliveryModel == "" {
		c.DeliveryModel = DeliveryFIFO
	}
	if c.SchedulingStrategy == "" {
		c.SchedulingStrategy = SchedulingRoundRobin
	}
	if c.RNG == nil {
		c.RNG = rand.New(rand.NewSource(1))
	}
	return c
}

// Option configures a Coordinator at construction time.
type Option func(*Config)

func WithMaxSteps(n int) Option { return func(c *Config) { c.MaxSteps = n } }
func WithMaxBufferSize(n int) Option { return func(c *Config) { c.MaxBufferSize = n } }
func WithDeliveryModel(m DeliveryModel) Option { return func(c *Config) { c.DeliveryModel = m } }
func WithRecordTrace(on bool) Option { return func(c *Config) { c.RecordTrace = on } }
func WithSchedulingStrategy(s SchedulingStrategy) Option { return func(c *Config) { c.SchedulingStrategy = s } }
func WithRNG(r *rand.Rand) Option { return func(c *Config) { c.RNG = r } }
func WithExploreAllInterleavings(on bool) Option {
	return func(c *Config) { c.ExploreAllInterleavings = on }
}
