//go:build linux

// Package main provides a relay hook for Linux single-board computers.
// It drives a GPIO line through the character device: "alert" pulses the
// line, "state" holds it at the detected value.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// Request represents the input from the hook executor.
type Request struct {
	Event    string          `json:"event"`
	DeviceID string          `json:"device_id"`
	Detected *bool           `json:"detected,omitempty"`
	Config   json.RawMessage `json:"config"`
}

// Response represents the output to the hook executor.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Config selects the line and pulse length.
type Config struct {
	Chip      string  `json:"chip"`
	Line      int     `json:"line"`
	ActiveLow bool    `json:"active_low"`
	Seconds   float64 `json:"seconds"`
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to decode request: %v", err))
		return
	}

	cfg := Config{Chip: "gpiochip0", Line: 17, Seconds: 3}
	if len(req.Config) > 0 {
		if err := json.Unmarshal(req.Config, &cfg); err != nil {
			writeErrorResponse(fmt.Sprintf("failed to parse config: %v", err))
			return
		}
	}

	var err error
	switch req.Event {
	case "alert":
		err = pulse(cfg)
	case "state":
		if req.Detected == nil {
			err = fmt.Errorf("state event without detected flag")
			break
		}
		err = hold(cfg, *req.Detected)
	default:
		err = fmt.Errorf("unknown event: %s", req.Event)
	}
	if err != nil {
		writeErrorResponse(fmt.Sprintf("event %s failed: %v", req.Event, err))
		return
	}

	writeSuccessResponse()
}

func requestLine(cfg Config, value int) (*gpiocdev.Line, error) {
	opts := []gpiocdev.LineReqOption{gpiocdev.AsOutput(value)}
	if cfg.ActiveLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}
	line, err := gpiocdev.RequestLine(cfg.Chip, cfg.Line, opts...)
	if err != nil {
		return nil, fmt.Errorf("request %s line %d: %w", cfg.Chip, cfg.Line, err)
	}
	return line, nil
}

// pulse energises the relay for cfg.Seconds and releases it.
func pulse(cfg Config) error {
	line, err := requestLine(cfg, 1)
	if err != nil {
		return err
	}
	defer line.Close()

	time.Sleep(time.Duration(cfg.Seconds * float64(time.Second)))
	return line.SetValue(0)
}

// hold sets the relay and leaves it. The kernel keeps the last value after
// the line is released on most drivers.
func hold(cfg Config, on bool) error {
	v := 0
	if on {
		v = 1
	}
	line, err := requestLine(cfg, v)
	if err != nil {
		return err
	}
	return line.Close()
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
