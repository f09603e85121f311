// Command healthcheck probes /healthz on the local server; it is the container HEALTHCHECK.
// HEALTHCHECK_URL overrides the target, otherwise HTTP_PORT (default 8080) on localhost is used.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"
)

func main() {
	url := os.Getenv("HEALTHCHECK_URL")
	if url == "" {
		port := os.Getenv("HTTP_PORT")
		if port == "" {
			port = "8080"
		}
		url = "http://localhost:" + port + "/healthz"
	}

	client := &http.Client{Timeout: 3 * time.Second}
	ctx := context.Background()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		os.Exit(1)
	}
	resp, err := client.Do(req)
	if err != nil {
		os.Exit(1)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("failed to close response body: %v", err)
		}
	}()
	if resp.StatusCode != http.StatusOK {
		os.Exit(1)
	}
}
