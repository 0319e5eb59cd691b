// Package statestore defines the hierarchical key/value store that mirrors
// device state to the cloud backend.
//
// Paths are slash-separated, like "devices/CAM_001/detect". A value is a JSON
// scalar (bool, number, string) or a map[string]any subtree. Setting a subtree
// replaces everything below the path; getting a prefix returns the assembled
// subtree.
package statestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when nothing is stored at or below a path.
	ErrNotFound = errors.New("statestore: not found")
	// ErrUnavailable wraps connectivity failures.
	ErrUnavailable = errors.New("statestore: unavailable")
	// ErrInvalidPath is returned for malformed paths.
	ErrInvalidPath = errors.New("statestore: invalid path")
)

// Store is a hierarchical key/value store.
type Store interface {
	Get(ctx context.Context, path string) (any, error)
	Set(ctx context.Context, path string, value any) error
}

const forbidden = "/.$#[]*?"

// ValidatePath checks that path is non-empty, has no empty segments and no
// reserved characters.
func ValidatePath(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty", ErrInvalidPath)
	}
	for _, seg := range strings.Split(path, "/") {
		if err := ValidateSegment(seg); err != nil {
			return fmt.Errorf("%w in %q", err, path)
		}
	}
	return nil
}

// ValidateSegment checks a single path segment.
func ValidateSegment(seg string) error {
	if seg == "" {
		return fmt.Errorf("%w: empty segment", ErrInvalidPath)
	}
	if i := strings.IndexAny(seg, forbidden); i >= 0 {
		return fmt.Errorf("%w: segment %q contains %q", ErrInvalidPath, seg, seg[i])
	}
	for _, r := range seg {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("%w: segment %q contains a control character", ErrInvalidPath, seg)
		}
	}
	return nil
}

// Join builds a path from segments.
func Join(segments ...string) string {
	return strings.Join(segments, "/")
}

// Unavailable wraps err so that errors.Is(err, ErrUnavailable) holds.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}
