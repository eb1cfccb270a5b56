// Command lineecho-trace views and analyzes lineecho trace files.
//
// Trace files are written by lineecho-server and lineecho-client when run
// with the -trace flag.
//
// Usage:
//
//	lineecho-trace <command> [flags] <file.ltrace>
//
// Commands:
//
//	view     View trace file in human-readable format
//	export   Export trace file to JSON lines or CSV
//	filter   Filter trace file and write to new file
//	stats    Show statistics about the trace file
//
// Examples:
//
//	# View only received lines
//	lineecho-trace view -category line -direction in server.ltrace
//
//	# Export to CSV
//	lineecho-trace export -format csv -o server.csv server.ltrace
//
//	# Keep one session
//	lineecho-trace filter -session 3f2a9c1e-... -o one.ltrace server.ltrace
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/lineecho/lineecho-go/cmd/lineecho-trace/commands"
)

const usage = `lineecho-trace - lineecho trace file analyzer

Usage:
  lineecho-trace <command> [flags] <file.ltrace>

Commands:
  view     View trace file in human-readable format
  export   Export trace file to JSON lines or CSV
  filter   Filter trace file and write to new file
  stats    Show statistics about the trace file

Use "lineecho-trace <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "view":
		runView(args)
	case "export":
		runExport(args)
	case "filter":
		runFilter(args)
	case "stats":
		runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// newFlagSet creates a subcommand flag set whose usage text starts with
// the given summary line.
func newFlagSet(name, summary string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "lineecho-trace %s - %s\n\nUsage:\n  lineecho-trace %s [flags] <file.ltrace>\n\nFlags:\n", name, summary, name)
		fs.PrintDefaults()
	}
	return fs
}

// parseArgs parses args and returns the trace file path.
func parseArgs(fs *flag.FlagSet, args []string) string {
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: trace file path required")
		fs.Usage()
		os.Exit(1)
	}
	return fs.Arg(0)
}

// criteriaFlags registers the event selection flags shared by view and
// filter.
func criteriaFlags(fs *flag.FlagSet) *commands.Criteria {
	c := &commands.Criteria{}
	fs.StringVar(&c.SessionID, "session", "", "Filter by session ID")
	fs.StringVar(&c.Peer, "peer", "", "Filter by peer address (host:port)")
	fs.StringVar(&c.TimeStart, "time-start", "", "Filter by start time (RFC3339)")
	fs.StringVar(&c.TimeEnd, "time-end", "", "Filter by end time (RFC3339)")
	fs.StringVar(&c.Layer, "layer", "", "Filter by layer (transport, protocol)")
	fs.StringVar(&c.Direction, "direction", "", "Filter by direction (in, out)")
	fs.StringVar(&c.Category, "category", "", "Filter by category (line, state, handshake, error)")
	return c
}

func runView(args []string) {
	fs := newFlagSet("view", "View trace file in human-readable format")
	criteria := criteriaFlags(fs)
	path := parseArgs(fs, args)

	if err := commands.RunView(path, *criteria, os.Stdout); err != nil {
		fatal(err)
	}
}

func runExport(args []string) {
	fs := newFlagSet("export", "Export trace file to JSON lines or CSV")
	format := fs.String("format", "jsonl", "Output format (jsonl, csv)")
	output := fs.String("o", "", "Output file (default: stdout)")
	path := parseArgs(fs, args)

	w := os.Stdout
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			fatal(fmt.Errorf("failed to create output file: %w", err))
		}
		defer f.Close()
		w = f
	}

	if err := commands.RunExport(path, *format, w); err != nil {
		fatal(err)
	}
}

func runFilter(args []string) {
	fs := newFlagSet("filter", "Filter trace file and write to new file")
	output := fs.String("o", "", "Output file (required)")
	criteria := criteriaFlags(fs)
	path := parseArgs(fs, args)

	if *output == "" {
		fmt.Fprintln(os.Stderr, "Error: output file (-o) required")
		fs.Usage()
		os.Exit(1)
	}

	n, err := commands.RunFilter(path, *output, *criteria)
	if err != nil {
		fatal(err)
	}
	fmt.Fprintf(os.Stderr, "Wrote %d events to %s\n", n, *output)
}

func runStats(args []string) {
	fs := newFlagSet("stats", "Show statistics about the trace file")
	path := parseArgs(fs, args)

	if err := commands.RunStats(path, os.Stdout); err != nil {
		fatal(err)
	}
}
