package cfsm

import (
	"math/rand"

	"github.com/mpst-workbench/core/callstack"
)

// TransitionStrategy controls how step selects among several enabled
// transitions when more than one is available.
type TransitionStrategy string

const (
	TransitionFirst  TransitionStrategy = "first"
	TransitionRandom TransitionStrategy = "random"
	TransitionManual TransitionStrategy = "manual"
)

// Config holds every Simulator construction-time setting.
type Config struct {
	MaxSteps           int
	MaxBufferSize      int // 0 = unbounded
	RecordTrace        bool
	TransitionStrategy TransitionStrategy
	VerifyFIFO         bool
	Registry           *Registry
	CallStack          *callstack.Manager
	RNG                *rand.Rand
	MaxSnapshots       int
}

func (c Config) normalized() Config {
	if c.MaxSteps <= 0 {
		c.MaxSteps = 1000
	}
	if c.MaxSnapshots <= 0 {
		c.MaxSnapshots = 1000
	}
	if c.TransitionStrategy == "" {
		c.TransitionStrategy = TransitionFirst
	}
	if c.RNG == nil {
		c.RNG = rand.New(rand.NewSource(1))
	}
	return c
}

// Option configures a Simulator at construction time.
type Option func(*Config)

func WithMaxSteps(n int) Option { return func(c *Config) { c.MaxSteps = n } }
func WithMaxBufferSize(n int) Option { return func(c *Config) { c.MaxBufferSize = n } }
func WithRecordTrace(on bool) Option { return func(c *Config) { c.RecordTrace = on } }
func WithTransitionStrategy(s TransitionStrategy) Option { return func(c *Config) { c.TransitionStrategy = s } }
func WithVerifyFIFO(on bool) Option { return func(c *Config) { c.VerifyFIFO = on } }
func WithRegistry(r *Registry) Option { return func(c *Config) { c.Registry = r } }
func WithCallStack(m *callstack.Manager) Option { return func(c *Config) { c.CallStack = m } }
func WithRNG(r *rand.Rand) Option { return func(c *Config) { c.RNG = r } }
func WithMaxSnapshots(n int) Option { return func(c *Config) { c.MaxSnapshots = n } }
