// Package device owns this appliance's record in the state store: its
// bootstrap defaults, the detect and online flags, the owner lookup for push
// notifications and the capture URL tree.
//
// Layout under the store root:
//
//	devices/<id>/name                          display name
//	devices/<id>/detect                        confirmed hazard state
//	devices/<id>/online                        presence
//	devices/<id>/users/<uid>                   true for owners
//	devices/<id>/captured/<date>/<time>/<n>    public capture URL
//	users/<uid>/token                          push registration token
package device

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/ayusman/agni/internal/log"
	"github.com/ayusman/agni/internal/statestore"
)

// DefaultName is written for a device seen for the first time.
const DefaultName = "CAMERA DEVICE"

// Notification text.
const (
	TitleFormat = "NOTIFICATION OF %s"
	AlertBody   = "HAZARD DETECTED"
)

// ErrNoOwner is returned when no owner with a registration token exists.
var ErrNoOwner = errors.New("device has no owner token")

// Config identifies the device.
type Config struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// Registry reads and writes the device record.
type Registry struct {
	store statestore.Store
	id    string

	mu   sync.RWMutex
	name string
}

// New validates the device id and returns a Registry. It performs no I/O.
func New(store statestore.Store, cfg Config) (*Registry, error) {
	if store == nil {
		return nil, errors.New("device: nil state store")
	}
	if err := statestore.ValidateSegment(cfg.ID); err != nil {
		return nil, fmt.Errorf("device id: %w", err)
	}
	name := cfg.Name
	if name == "" {
		name = DefaultName
	}
	return &Registry{store: store, id: cfg.ID, name: name}, nil
}

// ID returns the device id.
func (r *Registry) ID() string {
	return r.id
}

// Name returns the display name, as adopted from the store by Bootstrap.
func (r *Registry) Name() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.name
}

// Title returns the push notification title.
func (r *Registry) Title() string {
	return fmt.Sprintf(TitleFormat, r.Name())
}

// Path returns the store path of a field below this device.
func (r *Registry) Path(components ...string) string {
	return statestore.Join(append([]string{"devices", r.id}, components...)...)
}

// Bootstrap writes the default record for a new device, or adopts the
// stored name of a known one.
func (r *Registry) Bootstrap(ctx context.Context) error {
	v, err := r.store.Get(ctx, r.Path())
	if errors.Is(err, statestore.ErrNotFound) {
		log.Info(log.Fields{"device": r.id, "name": r.Name()}, "registering new device")
		return r.store.Set(ctx, r.Path(), map[string]any{
			"name":   r.Name(),
			"detect": false,
			"online": false,
		})
	}
	if err != nil {
		return fmt.Errorf("read device %s: %w", r.id, err)
	}

	record, _ := v.(map[string]any)
	if name, ok := record["name"].(string); ok && name != "" {
		r.mu.Lock()
		r.name = name
		r.mu.Unlock()
	}
	log.Info(log.Fields{"device": r.id, "name": r.Name()}, "device record loaded")
	return nil
}

// InitialDetect reads the stored detect flag. A missing flag is false.
func (r *Registry) InitialDetect(ctx context.Context) (bool, error) {
	v, err := r.store.Get(ctx, r.Path("detect"))
	if errors.Is(err, statestore.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("device %s: detect is %T, want bool", r.id, v)
	}
	return b, nil
}

// PublishDetect writes the detect flag.
func (r *Registry) PublishDetect(ctx context.Context, detected bool) error {
	return r.store.Set(ctx, r.Path("detect"), detected)
}

// SetOnline writes the presence flag.
func (r *Registry) SetOnline(ctx context.Context, online bool) error {
	return r.store.Set(ctx, r.Path("online"), online)
}

// OwnerToken returns the registration token of the first owner, in uid
// order, that has one.
func (r *Registry) OwnerToken(ctx context.Context) (string, error) {
	v, err := r.store.Get(ctx, r.Path("users"))
	if errors.Is(err, statestore.ErrNotFound) {
		return "", ErrNoOwner
	}
	if err != nil {
		return "", err
	}
	users, ok := v.(map[string]any)
	if !ok {
		return "", fmt.Errorf("device %s: users is %T, want map", r.id, v)
	}

	uids := make([]string, 0, len(users))
	for uid, owner := range users {
		if b, _ := owner.(bool); b {
			uids = append(uids, uid)
		}
	}
	sort.Strings(uids)

	for _, uid := range uids {
		tok, err := r.store.Get(ctx, statestore.Join("users", uid, "token"))
		if errors.Is(err, statestore.ErrNotFound) {
			continue
		}
		if err != nil {
			return "", err
		}
		if s, ok := tok.(string); ok && s != "" {
			return s, nil
		}
	}
	return "", ErrNoOwner
}

// CapturePath returns where the URL of an episode's nth capture is recorded.
func (r *Registry) CapturePath(episode string, index int) string {
	return r.Path("captured", episode, strconv.Itoa(index))
}

// ObjectKey returns the object store key of an episode's nth capture.
func (r *Registry) ObjectKey(episode string, index int) string {
	return fmt.Sprintf("captured/%s/%s_%d", r.id, episode, index)
}

// RecordCapture stores the public URL of an uploaded capture.
func (r *Registry) RecordCapture(ctx context.Context, episode string, index int, url string) error {
	return r.store.Set(ctx, r.CapturePath(episode, index), url)
}
