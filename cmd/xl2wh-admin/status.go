// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ManuGH/xl2wh/internal/platform/httpx"
)

// Status reports pipeline health from a running daemon.
func Status() cli.Command {
	return cli.Command{
		Name:  "status",
		Usage: "query a running daemon for batch, queue and warehouse counters",
		Flags: hostFlags(),
		Action: func(c *cli.Context) error {
			body, err := fetchJSON(c, "/api/status")
			if err != nil {
				return err
			}
			fmt.Println(string(body))
			return nil
		},
	}
}

// fetchJSON GETs one daemon endpoint and returns the indented response body.
func fetchJSON(c *cli.Context, endpoint string) ([]byte, error) {
	url := strings.TrimRight(c.String(hostFlagName), "/") + endpoint
	client := httpx.NewClient(10 * time.Second)
	client.Transport = otelhttp.NewTransport(client.Transport)

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	if token := c.String(tokenFlagName); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "GET %s", url)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, "read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("GET %s: %s: %s", url, resp.Status, strings.TrimSpace(string(body)))
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "  "); err != nil {
		// Not JSON; hand the raw body through.
		return body, nil
	}
	return pretty.Bytes(), nil
}
