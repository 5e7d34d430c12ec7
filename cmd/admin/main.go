package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"bistro.ai/internal/persistence/journal"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "state":
			stateCmd(os.Args[2:])
			return
		case "merchant":
			merchantCmd(os.Args[2:])
			return
		case "tickets":
			ticketsCmd(os.Args[2:])
			return
		}
	}
	fmt.Fprintln(os.Stderr, "usage: admin state|merchant|tickets [flags]")
	os.Exit(2)
}

// ticketsCmd reads the journal directly: open tickets by default, or the
// transitions of one ticket with -id.
func ticketsCmd(args []string) {
	fs := flag.NewFlagSet("tickets", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "journal path (default: <data>/journal.sqlite)")
	id := fs.String("id", "", "print the history of one ticket")
	_ = fs.Parse(args)

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "journal.sqlite")
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(os.Stderr, "journal:", err)
		os.Exit(1)
	}
	j, err := journal.Open(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer j.Close()

	ctx := context.Background()
	var out any
	if *id != "" {
		out, err = j.History(ctx, *id)
	} else {
		out, err = j.LoadOpen(ctx)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
}
