package app

import (
	"fmt"
	"os"
	"strings"
)

// Run executes the CLI command and returns a process exit code.
func Run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "--help", "-h":
		printUsage()
		return 0
	case "health":
		return runHealth(args[1:])
	case "cycle", "run-once":
		return runCycle(args[1:])
	case "daemon":
		return runDaemon(args[1:])
	case "serve":
		return runServe(args[1:])
	case "report":
		return runReport(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "digest CLI")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  digest <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  health    Verify database connectivity")
	fmt.Fprintln(os.Stderr, "  cycle     Run one crawl + translate + embed + cluster cycle")
	fmt.Fprintln(os.Stderr, "  run-once  Alias for cycle")
	fmt.Fprintln(os.Stderr, "  daemon    Run cycles continuously on an interval")
	fmt.Fprintln(os.Stderr, "  serve     Start the Echo read API")
	fmt.Fprintln(os.Stderr, "  report    Print a day's report")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Use \"digest <command> -h\" for command-specific flags.")
}
