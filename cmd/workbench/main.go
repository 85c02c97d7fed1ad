// Command workbench drives a multiparty session-type protocol scenario end
// to end: it verifies the scenario's control-flow graph, then simulates it
// to completion under either the orchestrated or the distributed
// simulator, reporting events, metrics, and a final summary.
package main

import (
	"fmt"
	"os"
)

func main() {
	args := parseArgs(os.Args[1:])
	if args.Err != nil {
		fmt.Fprintln(os.Stderr, args.Err)
		os.Exit(2)
	}
	if args.Help {
		printUsage(os.Stdout)
		return
	}

	if err := run(args, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "workbench:", err)
		os.Exit(1)
	}
}
