// Package redisstore implements statestore.Store on Redis. Each leaf is one
// string key holding the JSON encoding of its value.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ayusman/agni/internal/log"
	"github.com/ayusman/agni/internal/statestore"
)

// Config holds the connection settings.
type Config struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	// Prefix is prepended to every key, e.g. "agni:".
	Prefix string `yaml:"prefix"`
}

// Store is a statestore.Store backed by Redis.
type Store struct {
	client *redis.Client
	prefix string
}

var _ statestore.Store = (*Store)(nil)

// New connects to Redis. An unreachable server is logged, not fatal; calls
// report statestore.ErrUnavailable until it comes back.
func New(cfg Config) *Store {
	log.Info(log.Fields{"addr": cfg.Addr, "db": cfg.DB}, "connecting to redis")

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Error(log.Fields{"addr": cfg.Addr, "error": err}, "failed to connect to redis")
	} else {
		log.Info(log.Fields{"addr": cfg.Addr}, "connected to redis")
	}

	return NewWithClient(client, cfg.Prefix)
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) key(path string) string {
	return s.prefix + path
}

func (s *Store) path(key string) string {
	return strings.TrimPrefix(key, s.prefix)
}

// escapeGlob escapes glob metacharacters that may legally appear in keys.
func escapeGlob(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
	return r.Replace(s)
}

func (s *Store) scanBelow(ctx context.Context, path string) ([]string, error) {
	pattern := escapeGlob(s.key(path)) + "/*"
	var keys []string
	iter := s.client.Scan(ctx, 0, pattern, 256).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *Store) Get(ctx context.Context, path string) (any, error) {
	if err := statestore.ValidatePath(path); err != nil {
		return nil, err
	}

	raw, err := s.client.Get(ctx, s.key(path)).Result()
	switch {
	case err == nil:
		return decode(path, raw)
	case !errors.Is(err, redis.Nil):
		return nil, statestore.Unavailable("get "+path, err)
	}

	keys, err := s.scanBelow(ctx, path)
	if err != nil {
		return nil, statestore.Unavailable("scan "+path, err)
	}
	if len(keys) == 0 {
		return nil, statestore.ErrNotFound
	}

	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, statestore.Unavailable("mget "+path, err)
	}

	leaves := make(map[string]any, len(keys))
	for i, k := range keys {
		str, ok := vals[i].(string)
		if !ok {
			// deleted between SCAN and MGET
			continue
		}
		v, err := decode(k, str)
		if err != nil {
			return nil, err
		}
		leaves[s.path(k)] = v
	}

	v, ok := statestore.Assemble(path, leaves)
	if !ok {
		return nil, statestore.ErrNotFound
	}
	return v, nil
}

func (s *Store) Set(ctx context.Context, path string, value any) error {
	if err := statestore.ValidatePath(path); err != nil {
		return err
	}
	leaves, err := statestore.Flatten(path, value)
	if err != nil {
		return err
	}

	stale, err := s.scanBelow(ctx, path)
	if err != nil {
		return statestore.Unavailable("scan "+path, err)
	}
	stale = append(stale, s.key(path))
	segs := strings.Split(path, "/")
	for i := 1; i < len(segs); i++ {
		stale = append(stale, s.key(strings.Join(segs[:i], "/")))
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, stale...)
		for p, v := range leaves {
			data, err := json.Marshal(v)
			if err != nil {
				return fmt.Errorf("encode %s: %w", p, err)
			}
			pipe.Set(ctx, s.key(p), data, 0)
		}
		return nil
	})
	if err != nil {
		return statestore.Unavailable("set "+path, err)
	}
	return nil
}

func decode(key, raw string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return v, nil
}
