package main

import (
	"flag"
	"fmt"
	"os"

	persistlog "bistro.ai/internal/persistence/log"
)

func main() {
	var (
		dataDir = flag.String("data", "./data", "runtime data directory holding events/")
		quiet   = flag.Bool("quiet", false, "only print violations and the totals line")
	)
	flag.Parse()

	files, err := persistlog.Files(*dataDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list events:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no events files found under", *dataDir)
		os.Exit(1)
	}

	v := newVerifier()
	for _, path := range files {
		if err := persistlog.ReadFile(path, v.Observe); err != nil {
			fmt.Fprintln(os.Stderr, "read:", err)
			os.Exit(1)
		}
	}

	if !*quiet {
		for _, s := range v.Summaries() {
			fmt.Println(s)
		}
	}
	for _, viol := range v.Violations() {
		fmt.Println("VIOLATION", viol)
	}
	t := v.Totals()
	fmt.Printf("tickets=%d queued=%d active=%d complete=%d partial=%d events=%d violations=%d\n",
		t.Tickets, t.Queued, t.Active, t.Complete, t.Partial, t.Events, len(v.Violations()))
	if len(v.Violations()) > 0 {
		os.Exit(1)
	}
}
