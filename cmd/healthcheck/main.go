// Package main provides the container probe for the lifecycle server.
// It GETs the readiness endpoint and exits 0 when the server reports
// status "ok", 1 otherwise.
// Usage: healthcheck [url]   (default $KATELLO_HEALTHCHECK_URL or http://localhost:8080/readyz)
package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"
)

const defaultURL = "http://localhost:8080/readyz"

func main() {
	url := defaultURL
	if env := os.Getenv("KATELLO_HEALTHCHECK_URL"); env != "" {
		url = env
	}
	if len(os.Args) > 1 {
		url = os.Args[1]
	}

	if err := check(&http.Client{Timeout: 5 * time.Second}, url); err != nil {
		fmt.Fprintf(os.Stderr, "healthcheck failed: %v\n", err)
		os.Exit(1)
	}
}

// check succeeds on a 2xx response whose body, if JSON, reports status ok.
func check(client *http.Client, url string) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil
	}
	if body.Status != "" && body.Status != "ok" {
		return fmt.Errorf("server reports %q", body.Status)
	}
	return nil
}
