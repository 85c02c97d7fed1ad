// Package verify implements the static well-formedness verifier over a
// control-flow graph: structural graph checks (deadlock, liveness,
// progress, fork/join balance) plus session-type checks (choice
// determinism, mergeability, connectedness, race freedom).
package verify

import (
	"github.com/mpst-workbench/core/cfg"
	"github.com/mpst-workbench/core/trace"
)

// Severity distinguishes a hard well-formedness violation from an
// advisory finding.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Finding is one verifier observation, the common shape every check
// catalogue entry produces.
type Finding struct {
	Check    string
	Severity Severity
	Message  string
	NodeID   cfg.NodeID
	Role     trace.Role
	Label    trace.Label
	Branches []string
}

// Report holds the findings of every check, named and ordered the same
// way across runs so callers can diff two reports field by field.
type Report struct {
	Structural          []Finding
	Deadlock            []Finding
	Liveness            []Finding
	Progress            []Finding
	ParallelDeadlock    []Finding
	RaceConditions      []Finding
	ChoiceDeterminism   []Finding
	ChoiceMergeability  []Finding
	Connectedness       []Finding
	NestedRecursion     []Finding
	RecursionInParallel []Finding
	ForkJoinStructure   []Finding
	Multicast           []Finding
	SelfCommunication   []Finding
	EmptyChoiceBranch   []Finding
	MergeReachability   []Finding
}

// all returns every finding across every category, in field-declaration
// order, for Flatten to consume.
func (r *Report) all() []Finding {
	var out []Finding
	for _, group := range [][]Finding{
		r.Structural, r.Deadlock, r.Liveness, r.Progress, r.ParallelDeadlock,
		r.RaceConditions, r.ChoiceDeterminism, r.ChoiceMergeability,
		r.Connectedness, r.NestedRecursion, r.RecursionInParallel,
		r.ForkJoinStructure, r.Multicast, r.SelfCommunication,
		r.EmptyChoiceBranch, r.MergeReachability,
	} {
		out = append(out, group...)
	}
	return out
}

// Flat is the {valid, errors[], warnings[]} view over a Report.
type Flat struct {
	Valid    bool
	Errors   []Finding
	Warnings []Finding
}

// Flatten collapses r into Errors/Warnings, promoting warnings to errors
// when strict is true.
func (r *Report) Flatten(strict bool) Flat {
	var f Flat
	for _, finding := range r.all() {
		if finding.Severity == SeverityError || strict {
			f.Errors = append(f.Errors, finding)
			continue
		}
		f.Warnings = append(f.Warnings, finding)
	}
	f.Valid = len(f.Errors) == 0
	return f
}
