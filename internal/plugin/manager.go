package plugin

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/ayusman/agni/internal/log"
)

// ErrPluginNotFound is returned when a requested hook cannot be found.
var ErrPluginNotFound = errors.New("plugin not found")

// ManifestFile is the manifest name looked up in each hook directory.
const ManifestFile = "plugin.json"

// Manager discovers hooks under a directory and indexes them by name.
type Manager struct {
	dir   string
	hooks map[string]*Plugin
	mu    sync.RWMutex
}

// NewManager creates a Manager for the given hooks directory.
func NewManager(dir string) *Manager {
	return &Manager{
		dir:   dir,
		hooks: make(map[string]*Plugin),
	}
}

// Discover rescans the hooks directory. Each subdirectory carrying a
// manifest is a hook; unreadable or invalid manifests are logged and
// skipped. A missing directory yields no hooks.
func (m *Manager) Discover() error {
	found := make(map[string]*Plugin)

	entries, err := os.ReadDir(m.dir)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return fmt.Errorf("read hooks dir: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		p, err := loadHook(filepath.Join(m.dir, entry.Name()))
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				log.Warn(log.Fields{"hook": entry.Name(), "error": err}, "skipping hook")
			}
			continue
		}
		if _, dup := found[p.Manifest.Name]; dup {
			log.Warn(log.Fields{"hook": p.Manifest.Name, "path": p.Path}, "skipping duplicate hook name")
			continue
		}
		found[p.Manifest.Name] = p
		log.Debug(log.Fields{"hook": p.Manifest.Name, "events": p.Manifest.Events}, "hook discovered")
	}

	m.mu.Lock()
	m.hooks = found
	m.mu.Unlock()
	return nil
}

func loadHook(path string) (*Plugin, error) {
	data, err := os.ReadFile(filepath.Join(path, ManifestFile))
	if err != nil {
		return nil, err
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if manifest.Name == "" || manifest.Executable == "" {
		return nil, errors.New("manifest needs name and executable")
	}

	return &Plugin{
		Manifest:   manifest,
		Path:       path,
		Executable: filepath.Join(path, manifest.Executable),
	}, nil
}

// Get returns a hook by name or ErrPluginNotFound.
func (m *Manager) Get(name string) (*Plugin, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.hooks[name]
	if !ok {
		return nil, ErrPluginNotFound
	}
	return p, nil
}

// List returns all discovered hooks sorted by name.
func (m *Manager) List() []*Plugin {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Plugin, 0, len(m.hooks))
	for _, p := range m.hooks {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Manifest.Name < out[j].Manifest.Name
	})
	return out
}

// Subscribers returns the hooks subscribed to event, sorted by name.
func (m *Manager) Subscribers(event string) []*Plugin {
	var out []*Plugin
	for _, p := range m.List() {
		if p.Manifest.Subscribes(event) {
			out = append(out, p)
		}
	}
	return out
}

// Dir returns the hooks directory.
func (m *Manager) Dir() string {
	return m.dir
}
