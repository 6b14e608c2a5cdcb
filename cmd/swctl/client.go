package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

const controlPrefix = "/_sw"

// apiError is returned for non-2xx answers from the proxy.
type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("proxy answered %d: %s", e.Status, strings.TrimSpace(e.Body))
}

type proxyClient struct {
	baseURL string
	http    *http.Client
}

// newClient resolves the base URL from --url, then the profile, then the default.
func newClient(opts *globalOptions) (*proxyClient, error) {
	path, err := configPath(opts.configPath)
	if err != nil {
		return nil, err
	}
	cfg, err := loadConfig(path)
	if err != nil {
		return nil, err
	}

	base := cfg.Proxy.BaseURL
	if opts.baseURL != "" {
		base = opts.baseURL
	}
	if base == "" {
		base = defaultBaseURL
	}

	timeout := 30 * time.Second
	if cfg.Proxy.Timeout != "" {
		d, err := time.ParseDuration(cfg.Proxy.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy.timeout %q: %w", cfg.Proxy.Timeout, err)
		}
		timeout = d
	}

	return &proxyClient{
		baseURL: strings.TrimRight(base, "/"),
		http:    &http.Client{Timeout: timeout},
	}, nil
}

func (c *proxyClient) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+controlPrefix+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return data, &apiError{Status: resp.StatusCode, Body: string(data)}
	}
	return data, nil
}

// printJSON pretty-prints data when it is JSON, otherwise writes it unchanged.
func printJSON(cmd *cobra.Command, data []byte) {
	out := cmd.OutOrStdout()
	if len(bytes.TrimSpace(data)) == 0 {
		return
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		fmt.Fprintln(out, string(data))
		return
	}
	fmt.Fprintln(out, buf.String())
}
