package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/ManuGH/xl2wh/internal/platform/httpx"
)

// healthcheckPaths maps the -mode flag onto the probe endpoints the API
// serves unauthenticated.
var healthcheckPaths = map[string]string{
	"ready": "/readyz",
	"live":  "/healthz",
}

// runHealthcheckCLI probes the local daemon, for container HEALTHCHECK and
// operator use. Exit 0 means the probe returned 200.
func runHealthcheckCLI(args []string) int {
	fs := flag.NewFlagSet("healthcheck", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	mode := fs.String("mode", "ready", "probe to run: ready or live")
	port := fs.Int("port", 8080, "API port to probe")
	timeout := fs.Duration("timeout", 5*time.Second, "probe timeout")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	path, ok := healthcheckPaths[*mode]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown mode %q, use ready or live\n", *mode)
		return 2
	}

	client := httpx.NewClient(*timeout)
	resp, err := client.Get(fmt.Sprintf("http://localhost:%d%s", *port, path))
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s probe failed: %v\n", *mode, err)
		return 1
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "%s probe returned %s\n", *mode, resp.Status)
		return 1
	}

	fmt.Printf("%s probe ok\n", *mode)
	return 0
}
