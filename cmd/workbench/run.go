package main

import (
	"fmt"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mpst-workbench/core/cfsm"
	"github.com/mpst-workbench/core/distributed"
	"github.com/mpst-workbench/core/orchestrator"
	"github.com/mpst-workbench/core/telemetry"
	"github.com/mpst-workbench/core/trace"
	"github.com/mpst-workbench/core/verify"
)

// run drives one scenario end to end: verify (unless skipped), simulate to
// completion, report the outcome. stdout carries the event stream and
// summary; stderr carries only fatal errors (those are returned, not
// printed, so main decides the exit code).
func run(args Args, stdout, stderr io.Writer) error {
	runID := args.Scenario + "-" + args.Mode

	registry := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(registry)
	metrics.Enable()
	if args.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		server := &http.Server{Addr: args.MetricsAddr, Handler: mux}
		go func() {
			_ = server.ListenAndServe()
		}()
		fmt.Fprintf(stdout, "metrics listening on %s\n", args.MetricsAddr)
	}

	sink := telemetry.NewLogSink(stdout, args.JSON)
	subscriber := telemetry.NewSubscriber(runID, metrics, nil)

	if !args.SkipVerify {
		g, err := resolveCFG(args.Scenario)
		if err != nil {
			if args.Mode != "distributed" {
				return err
			}
			// mutual-wait-deadlock and similar CFSM-only scenarios have no
			// CFG to verify; fall through to simulation.
		} else {
			report := verify.Verify(g, verify.DefaultOptions())
			flat := report.Flatten(args.Strict)
			telemetry.RecordReport(metrics, runID, flat)
			printReport(stdout, flat)
			if !flat.Valid {
				return fmt.Errorf("scenario %q failed verification with %d error(s)", args.Scenario, len(flat.Errors))
			}
		}
	}

	switch args.Mode {
	case "orchestrated":
		return runOrchestrated(args, runID, sink, subscriber, stdout)
	case "distributed":
		return runDistributed(args, runID, sink, subscriber, stdout)
	default:
		return fmt.Errorf("unknown mode %q (want orchestrated | distributed)", args.Mode)
	}
}

func printReport(w io.Writer, flat verify.Flat) {
	fmt.Fprintf(w, "verification: valid=%v errors=%d warnings=%d\n", flat.Valid, len(flat.Errors), len(flat.Warnings))
	for _, f := range flat.Errors {
		fmt.Fprintf(w, "  [error] %s: %s (node=%s)\n", f.Check, f.Message, f.NodeID)
	}
	for _, f := range flat.Warnings {
		fmt.Fprintf(w, "  [warning] %s: %s (node=%s)\n", f.Check, f.Message, f.NodeID)
	}
}

func runOrchestrated(args Args, runID string, sink *telemetry.LogSink, subscriber *telemetry.Subscriber, stdout io.Writer) error {
	g, err := resolveCFG(args.Scenario)
	if err != nil {
		return err
	}

	strategy := orchestrator.ChoiceFirst
	switch args.ChoiceStrategy {
	case "manual":
		strategy = orchestrator.ChoiceManual
	case "random":
		strategy = orchestrator.ChoiceRandom
	case "first":
		strategy = orchestrator.ChoiceFirst
	default:
		return fmt.Errorf("unknown choice strategy %q (want manual | first | random)", args.ChoiceStrategy)
	}

	sim, err := orchestrator.New(g,
		orchestrator.WithMaxSteps(args.MaxSteps),
		orchestrator.WithChoiceStrategy(strategy),
		orchestrator.WithRecordTrace(args.RecordTrace),
	)
	if err != nil {
		return fmt.Errorf("constructing orchestrated simulator: %w", err)
	}

	detachLog := sink.Attach(sim)
	defer detachLog()
	detachMetrics := subscriber.Attach(sim)
	defer detachMetrics()

	for {
		_, err := sim.Step()
		if err != nil {
			if sim.Completed() || sim.ReachedMaxSteps() {
				break
			}
			return fmt.Errorf("orchestrated step: %w", err)
		}
		if sim.Completed() {
			break
		}
	}

	fmt.Fprintf(stdout, "\nrun complete: completed=%v reached_max_steps=%v step_count=%d visited_nodes=%d\n",
		sim.Completed(), sim.ReachedMaxSteps(), sim.StepCount(), len(sim.VisitedNodes()))

	if args.RecordTrace {
		printTrace(stdout, sim.Trace())
	}
	return nil
}

func runDistributed(args Args, runID string, sink *telemetry.LogSink, subscriber *telemetry.Subscriber, stdout io.Writer) error {
	roles, cfsms, err := resolveCFSMs(args.Scenario)
	if err != nil {
		return err
	}

	sims := make(map[trace.Role]*cfsm.Simulator, len(cfsms))
	for role, m := range cfsms {
		sims[role] = cfsm.New(m, cfsm.WithRecordTrace(args.RecordTrace))
	}

	scheduler := distributed.SchedulingRoundRobin
	switch args.Scheduler {
	case "round-robin":
		scheduler = distributed.SchedulingRoundRobin
	case "fair":
		scheduler = distributed.SchedulingFair
	case "random":
		scheduler = distributed.SchedulingRandom
	default:
		return fmt.Errorf("unknown scheduler %q (want round-robin | fair | random)", args.Scheduler)
	}

	delivery := distributed.DeliveryFIFO
	if args.DeliveryModel == "unordered" {
		delivery = distributed.DeliveryUnordered
	}

	coord, err := distributed.New(roles, sims,
		distributed.WithMaxSteps(args.MaxSteps),
		distributed.WithSchedulingStrategy(scheduler),
		distributed.WithDeliveryModel(delivery),
		distributed.WithRecordTrace(args.RecordTrace),
	)
	if err != nil {
		return fmt.Errorf("constructing coordinator: %w", err)
	}

	detachLog := sink.Attach(coord)
	defer detachLog()
	detachMetrics := subscriber.Attach(coord)
	defer detachMetrics()

	runErr := coord.RunToCompletion()

	fmt.Fprintf(stdout, "\nrun complete: completed=%v deadlocked=%v reached_max_steps=%v global_steps=%d\n",
		coord.Completed(), coord.Deadlocked(), coord.ReachedMaxSteps(), coord.GlobalSteps())
	if coord.Deadlocked() {
		fmt.Fprintf(stdout, "blocked roles: %v\n", coord.BlockedRoles())
	}

	if args.RecordTrace {
		printTrace(stdout, coord.GlobalTrace())
	}

	if runErr != nil {
		return fmt.Errorf("distributed run: %w", runErr)
	}
	return nil
}

func printTrace(w io.Writer, tr *trace.ExecutionTrace) {
	if tr == nil {
		return
	}
	fmt.Fprintln(w, "\nexecution trace:")
	for _, evt := range tr.Snapshot() {
		fmt.Fprintf(w, "  [%4d] %-18s role=%-12s node=%s\n", evt.Timestamp, evt.Kind, evt.Role, evt.NodeID)
	}
}
