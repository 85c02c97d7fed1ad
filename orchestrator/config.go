// Package orchestrator implements the orchestrated CFG simulator: a
// step-wise interpreter of the operational semantics of a global protocol,
// one externally visible event (or error) per Step call.
package orchestrator

import (
	"math/rand"

	"github.com/mpst-workbench/core/callstack"
	"github.com/mpst-workbench/core/registry"
)

// ChoiceStrategy controls how a branch node's pending choice is resolved
// when the caller does not explicitly invoke Choose.
type ChoiceStrategy string

const (
	ChoiceManual ChoiceStrategy = "manual"
	ChoiceFirst  ChoiceStrategy = "first"
	ChoiceRandom ChoiceStrategy = "random"
)

// Config holds every Simulator construction-time setting.
type Config struct {
	MaxSteps       int
	RecordTrace    bool
	ChoiceStrategy ChoiceStrategy
	PreviewLimit   int
	Registry       *registry.Registry
	CallStack      *callstack.Manager
	RNG            *rand.Rand
	MaxSnapshots   int
}

func (c Config) normalized() Config {
	if c.MaxSteps <= 0 {
		c.MaxSteps = 1000
	}
	if c.PreviewLimit <= 0 {
		c.PreviewLimit = 5
	}
	if c.MaxSnapshots <= 0 {
		c.MaxSnapshots = 1000
	}
	if c.ChoiceStrategy == "" {
		c.ChoiceStrategy = ChoiceManual
	}
	if c.RNG == nil {
		c.RNG = rand.New(rand.NewSource(1))
	}
	return c
}

// Option configures a Simulator at construction time, following the same
// functional-options shape used across this module's constructors.
type Option func(*Config)

func WithMaxSteps(n int) Option { return func(c *Config) { c.MaxSteps = n } }
func WithRecordTrace(on bool) Option { return func(c *Config) { c.RecordTrace = on } }
func WithChoiceStrategy(s ChoiceStrategy) Option { return func(c *Config) { c.ChoiceStrategy = s } }
func WithPreviewLimit(n int) Option { return func(c *Config) { c.PreviewLimit = n } }
func WithRegistry(r *registry.Registry) Option { return func(c *Config) { c.Registry = r } }
func WithCallStack(m *callstack.Manager) Option { return func(c *Config) { c.CallStack = m } }
func WithRNG(r *rand.Rand) Option { return func(c *Config) { c.RNG = r } }
func WithMaxSnapshots(n int) Option { return func(c *Config) { c.MaxSnapshots = n } }
