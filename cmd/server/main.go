/*
main.go - Application entry point

PURPOSE:
  Runs the compliance engine: the HTTP API with the scheduled
  reconciliation sweep, or a one-shot sweep from the command line.

COMMANDS:
  compliance-engine serve            HTTP API + sweep scheduler
  compliance-engine sweep            One sweep, print counts, exit

GLOBAL FLAGS:
  --config   Config file (TOML/YAML/JSON). Env vars with COMPLIANCE_ prefix
             override it, e.g. COMPLIANCE_DATABASE_PATH=":memory:"

EXAMPLES:
  # Run with file database
  ./compliance-engine serve --config=./compliance.toml

  # Run with in-memory database
  COMPLIANCE_DATABASE_PATH=":memory:" ./compliance-engine serve

  # Nightly sweep from cron instead of the built-in scheduler
  COMPLIANCE_SWEEP_ENABLED=false ./compliance-engine serve
  ./compliance-engine sweep

SEE ALSO:
  - config/config.go: Configuration keys and defaults
  - api/server.go: Router configuration
  - api/scheduler.go: Sweep scheduler
*/
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
