// Package main provides a webhook hook. It forwards every request it
// receives as a JSON POST to the configured URL.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// Response represents the output to the hook executor.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Config holds the target URL and optional headers.
type Config struct {
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers"`
}

func main() {
	raw, err := io.ReadAll(os.Stdin)
	if err != nil {
		writeErrorResponse(fmt.Sprintf("failed to read request: %v", err))
		return
	}

	var req struct {
		Config Config `json:"config"`
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to decode request: %v", err))
		return
	}
	if req.Config.URL == "" {
		writeErrorResponse("config.url is required")
		return
	}

	// Forward the request without its config, which may hold secrets.
	var payload map[string]json.RawMessage
	json.Unmarshal(raw, &payload)
	delete(payload, "config")
	body, _ := json.Marshal(payload)

	if err := post(req.Config, body); err != nil {
		writeErrorResponse(err.Error())
		return
	}

	writeSuccessResponse()
}

func post(cfg Config, body []byte) error {
	httpReq, err := http.NewRequest(http.MethodPost, cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range cfg.Headers {
		httpReq.Header.Set(k, v)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %s", resp.Status)
	}
	return nil
}

// writeErrorResponse writes an error response to stdout.
func writeErrorResponse(errMsg string) {
	resp := Response{
		Success: false,
		Error:   errMsg,
	}
	json.NewEncoder(os.Stdout).Encode(resp)
}

// writeSuccessResponse writes a success response to stdout.
func writeSuccessResponse() {
	resp := Response{
		Success: true,
	}
	json.NewEncoder(os.Stdout).Encode(resp)
}
