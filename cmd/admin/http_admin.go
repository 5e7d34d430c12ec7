package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/admin/v1/state"
	cl := &http.Client{Timeout: 5 * time.Second}
	resp, err := cl.Get(u)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	printResponse(resp)
}

func merchantCmd(args []string) {
	fs := flag.NewFlagSet("merchant", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	stall := fs.String("stall", "", "stall id (required)")
	release := fs.Bool("release", false, "send the merchant home instead of requesting one")
	_ = fs.Parse(args)

	if strings.TrimSpace(*stall) == "" {
		fmt.Fprintln(os.Stderr, "missing -stall")
		os.Exit(2)
	}
	body, _ := json.Marshal(map[string]any{"stall": *stall, "release": *release})
	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/admin/v1/merchant"
	cl := &http.Client{Timeout: 10 * time.Second}
	resp, err := cl.Post(u, "application/json", bytes.NewReader(body))
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	printResponse(resp)
}

func printResponse(resp *http.Response) {
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(string(b))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}
