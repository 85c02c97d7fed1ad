package main

import (
	"errors"
	"flag"
	"io"
)

// Args holds every parsed command-line flag. Err is non-nil when parsing
// failed; Help is true when -help was passed explicitly (not an error).
type Args struct {
	Scenario       string
	Mode           string
	ChoiceStrategy string
	Scheduler      string
	DeliveryModel  string
	MaxSteps       int
	Strict         bool
	SkipVerify     bool
	RecordTrace    bool
	JSON           bool
	MetricsAddr    string
	Help           bool
	Err            error
}

func newFlagSet() (*flag.FlagSet, *Args) {
	fs := flag.NewFlagSet("workbench", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	a := &Args{}

	fs.StringVar(&a.Scenario, "scenario", "request-response", "named scenario to run: "+scenarioList())
	fs.StringVar(&a.Mode, "mode", "orchestrated", "simulation mode: orchestrated | distributed")
	fs.StringVar(&a.ChoiceStrategy, "choice", "first", "orchestrated choice strategy: manual | first | random")
	fs.StringVar(&a.Scheduler, "scheduler", "round-robin", "distributed scheduling strategy: round-robin | fair | random")
	fs.StringVar(&a.DeliveryModel, "delivery", "fifo", "distributed delivery model: fifo | unordered")
	fs.IntVar(&a.MaxSteps, "max-steps", 1000, "step budget before aborting the run")
	fs.BoolVar(&a.Strict, "strict", false, "promote verifier warnings to errors and abort before simulating")
	fs.BoolVar(&a.SkipVerify, "skip-verify", false, "skip static verification and simulate unconditionally")
	fs.BoolVar(&a.RecordTrace, "record-trace", false, "print the full execution trace after the run completes")
	fs.BoolVar(&a.JSON, "json", false, "emit events as JSON lines instead of text")
	fs.StringVar(&a.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090); empty disables")
	fs.BoolVar(&a.Help, "help", false, "print usage and exit")

	return fs, a
}

// parseArgs parses osArgs (typically os.Args[1:]) into an Args value.
func parseArgs(osArgs []string) Args {
	fs, a := newFlagSet()
	if err := fs.Parse(osArgs); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return Args{Help: true}
		}
		return Args{Err: err}
	}
	return *a
}

func printUsage(w io.Writer) {
	_, _ = io.WriteString(w, "workbench drives one multiparty session-type protocol scenario end to end:\n"+
		"verify its control-flow graph, then run it to completion under the\n"+
		"orchestrated or distributed simulator.\n\n"+
		"Usage: workbench [flags]\n\n")
	fs, _ := newFlagSet()
	fs.SetOutput(w)
	fs.PrintDefaults()
}
