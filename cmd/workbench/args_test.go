package main

import "testing"

func TestParseArgs_Defaults(t *testing.T) {
	a := parseArgs(nil)
	if a.Err != nil {
		t.Fatalf("unexpected error: %v", a.Err)
	}
	if a.Scenario != "request-response" {
		t.Errorf("Scenario = %q, want request-response", a.Scenario)
	}
	if a.Mode != "orchestrated" {
		t.Errorf("Mode = %q, want orchestrated", a.Mode)
	}
	if a.MaxSteps != 1000 {
		t.Errorf("MaxSteps = %d, want 1000", a.MaxSteps)
	}
	if a.Strict || a.SkipVerify || a.JSON || a.RecordTrace {
		t.Errorf("boolean flags should default false, got %+v", a)
	}
}

func TestParseArgs_Overrides(t *testing.T) {
	a := parseArgs([]string{
		"-scenario", "two-phase-commit-votes",
		"-mode", "distributed",
		"-scheduler", "fair",
		"-max-steps", "42",
		"-strict",
		"-json",
	})
	if a.Err != nil {
		t.Fatalf("unexpected error: %v", a.Err)
	}
	if a.Scenario != "two-phase-commit-votes" {
		t.Errorf("Scenario = %q", a.Scenario)
	}
	if a.Mode != "distributed" {
		t.Errorf("Mode = %q", a.Mode)
	}
	if a.Scheduler != "fair" {
		t.Errorf("Scheduler = %q", a.Scheduler)
	}
	if a.MaxSteps != 42 {
		t.Errorf("MaxSteps = %d", a.MaxSteps)
	}
	if !a.Strict || !a.JSON {
		t.Errorf("expected Strict and JSON set, got %+v", a)
	}
}

func TestParseArgs_Help(t *testing.T) {
	a := parseArgs([]string{"-help"})
	if !a.Help {
		t.Errorf("expected Help to be true")
	}
	if a.Err != nil {
		t.Errorf("-help should not be an error, got %v", a.Err)
	}
}

func TestParseArgs_UnknownFlagIsError(t *testing.T) {
	a := parseArgs([]string{"-not-a-flag"})
	if a.Err == nil {
		t.Fatalf("expected an error for an unknown flag")
	}
}
