package plugin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// Executor runs hooks with a timeout.
type Executor struct {
	timeout time.Duration
}

// NewExecutor creates a new Executor with the given per-run timeout.
func NewExecutor(timeout time.Duration) *Executor {
	return &Executor{
		timeout: timeout,
	}
}

// Execute runs a hook with the given request and returns its response.
// The request is written to the hook's stdin as JSON and stdout is parsed as
// a Response. The hook is killed when ctx ends or the timeout elapses.
func (e *Executor) Execute(ctx context.Context, plugin *Plugin, req *Request) (*Response, error) {
	// Create context with timeout
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	// Create command with context
	cmd := exec.CommandContext(ctx, plugin.Executable)

	// Set working directory to hook path
	cmd.Dir = plugin.Path

	// Marshal request to JSON, filling in the manifest config
	if req.Config == nil && len(plugin.Manifest.Config) > 0 {
		req.Config = plugin.Manifest.Config
	}
	reqJSON, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	// Set up stdin with the request JSON
	cmd.Stdin = bytes.NewReader(reqJSON)

	// Capture stdout and stderr
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	// Run the command
	err = cmd.Run()

	// Check for context deadline exceeded (timeout)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("hook %s timeout after %v", plugin.Manifest.Name, e.timeout)
	}

	// Check for execution error
	if err != nil {
		stderrStr := stderr.String()
		if stderrStr != "" {
			return nil, fmt.Errorf("hook execution failed: %w, stderr: %s", err, stderrStr)
		}
		return nil, fmt.Errorf("hook execution failed: %w", err)
	}

	// Parse the response from stdout
	var response Response
	if err := json.Unmarshal(stdout.Bytes(), &response); err != nil {
		return nil, fmt.Errorf("failed to parse hook response: %w, stdout: %s", err, stdout.String())
	}

	return &response, nil
}
