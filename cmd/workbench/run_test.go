package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestRun_OrchestratedRequestResponse(t *testing.T) {
	args := parseArgs([]string{"-scenario", "request-response", "-mode", "orchestrated"})
	if args.Err != nil {
		t.Fatalf("parseArgs: %v", args.Err)
	}
	var stdout, stderr bytes.Buffer
	if err := run(args, &stdout, &stderr); err != nil {
		t.Fatalf("run returned error: %v\nstdout:\n%s", err, stdout.String())
	}
	if !strings.Contains(stdout.String(), "completed=true") {
		t.Errorf("expected completed=true in output, got:\n%s", stdout.String())
	}
}

func TestRun_DistributedThreePartyLinear(t *testing.T) {
	args := parseArgs([]string{"-scenario", "three-party-linear", "-mode", "distributed"})
	if args.Err != nil {
		t.Fatalf("parseArgs: %v", args.Err)
	}
	var stdout, stderr bytes.Buffer
	if err := run(args, &stdout, &stderr); err != nil {
		t.Fatalf("run returned error: %v\nstdout:\n%s", err, stdout.String())
	}
	if !strings.Contains(stdout.String(), "completed=true") {
		t.Errorf("expected completed=true in output, got:\n%s", stdout.String())
	}
}

func TestRun_DistributedMutualWaitDeadlock(t *testing.T) {
	args := parseArgs([]string{
		"-scenario", "mutual-wait-deadlock",
		"-mode", "distributed",
		"-skip-verify",
	})
	if args.Err != nil {
		t.Fatalf("parseArgs: %v", args.Err)
	}
	var stdout, stderr bytes.Buffer
	err := run(args, &stdout, &stderr)
	if err == nil {
		t.Fatalf("expected a deadlock error, got nil\nstdout:\n%s", stdout.String())
	}
	if !strings.Contains(stdout.String(), "deadlocked=true") {
		t.Errorf("expected deadlocked=true in output, got:\n%s", stdout.String())
	}
	if !strings.Contains(stdout.String(), "blocked roles: [A B]") {
		t.Errorf("expected both roles reported blocked, got:\n%s", stdout.String())
	}
}

func TestRun_OrchestratedBoundedRecursionReachesMaxSteps(t *testing.T) {
	args := parseArgs([]string{
		"-scenario", "bounded-recursion",
		"-mode", "orchestrated",
		"-skip-verify",
		"-max-steps", "5",
	})
	if args.Err != nil {
		t.Fatalf("parseArgs: %v", args.Err)
	}
	var stdout, stderr bytes.Buffer
	if err := run(args, &stdout, &stderr); err != nil {
		t.Fatalf("run returned error: %v\nstdout:\n%s", err, stdout.String())
	}
	if !strings.Contains(stdout.String(), "reached_max_steps=true") {
		t.Errorf("expected reached_max_steps=true, got:\n%s", stdout.String())
	}
	if !strings.Contains(stdout.String(), "completed=false") {
		t.Errorf("expected completed=false, got:\n%s", stdout.String())
	}
}

func TestRun_UnknownScenarioIsError(t *testing.T) {
	args := parseArgs([]string{"-scenario", "not-a-real-scenario"})
	if args.Err != nil {
		t.Fatalf("parseArgs: %v", args.Err)
	}
	var stdout, stderr bytes.Buffer
	if err := run(args, &stdout, &stderr); err == nil {
		t.Fatalf("expected an error for an unknown scenario")
	}
}
