package store

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/ayusman/agni/internal/statestore"
)

func TestStateRepository_SetGet(t *testing.T) {
	s := newTestStore(t)
	repo := s.State()
	ctx := context.Background()

	if _, err := repo.Get(ctx, "devices/CAM_001"); !errors.Is(err, statestore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on empty table, got: %v", err)
	}

	err := repo.Set(ctx, "devices/CAM_001", map[string]any{
		"name":   "Kitchen",
		"detect": false,
		"online": true,
		"users":  map[string]any{"uid-1": true},
	})
	if err != nil {
		t.Fatalf("failed to set device: %v", err)
	}

	// Leaf read
	v, err := repo.Get(ctx, "devices/CAM_001/name")
	if err != nil || v != "Kitchen" {
		t.Errorf("Get(name) = %v, %v", v, err)
	}

	// Subtree read
	users, err := repo.Get(ctx, "devices/CAM_001/users")
	if err != nil {
		t.Fatalf("failed to get users: %v", err)
	}
	if !reflect.DeepEqual(users, map[string]any{"uid-1": true}) {
		t.Errorf("Get(users) = %v", users)
	}

	// Underscore is a LIKE wildcard; the range query must not treat it as one
	if err := repo.Set(ctx, "devices/CAMX001/name", "Other"); err != nil {
		t.Fatalf("failed to set sibling: %v", err)
	}
	whole, err := repo.Get(ctx, "devices/CAM_001")
	if err != nil {
		t.Fatalf("failed to get device: %v", err)
	}
	if len(whole.(map[string]any)) != 4 {
		t.Errorf("Get(device) = %v, want 4 children", whole)
	}
}

func TestStateRepository_ReplaceSubtree(t *testing.T) {
	s := newTestStore(t)
	repo := s.State()
	ctx := context.Background()

	if err := repo.Set(ctx, "devices/a", map[string]any{"name": "A", "detect": true}); err != nil {
		t.Fatalf("failed to set: %v", err)
	}
	if err := repo.Set(ctx, "devices/a", map[string]any{"name": "B"}); err != nil {
		t.Fatalf("failed to replace: %v", err)
	}
	if _, err := repo.Get(ctx, "devices/a/detect"); !errors.Is(err, statestore.ErrNotFound) {
		t.Errorf("stale child should be gone, got: %v", err)
	}

	// A subtree below an existing leaf replaces the leaf
	if err := repo.Set(ctx, "devices/a/name/first", "C"); err != nil {
		t.Fatalf("failed to set below leaf: %v", err)
	}
	v, err := repo.Get(ctx, "devices/a/name")
	if err != nil {
		t.Fatalf("failed to get: %v", err)
	}
	if !reflect.DeepEqual(v, map[string]any{"first": "C"}) {
		t.Errorf("Get(name) = %v", v)
	}
}

func TestStateRepository_Values(t *testing.T) {
	s := newTestStore(t)
	repo := s.State()
	ctx := context.Background()

	tests := []struct {
		path  string
		value any
		want  any
	}{
		{"devices/a/detect", true, true},
		{"devices/a/name", "Porch", "Porch"},
		{"devices/a/count", 3, float64(3)},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if err := repo.Set(ctx, tt.path, tt.value); err != nil {
				t.Fatalf("failed to set: %v", err)
			}
			got, err := repo.Get(ctx, tt.path)
			if err != nil {
				t.Fatalf("failed to get: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestStateRepository_InvalidPath(t *testing.T) {
	s := newTestStore(t)
	repo := s.State()
	ctx := context.Background()

	if err := repo.Set(ctx, "devices/a.b", true); !errors.Is(err, statestore.ErrInvalidPath) {
		t.Errorf("expected ErrInvalidPath, got: %v", err)
	}
	if _, err := repo.Get(ctx, ""); !errors.Is(err, statestore.ErrInvalidPath) {
		t.Errorf("expected ErrInvalidPath, got: %v", err)
	}
}
