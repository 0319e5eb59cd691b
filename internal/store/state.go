package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ayusman/agni/internal/statestore"
)

// StateRepository keeps the device state tree in the state table. It
// implements statestore.Store so the appliance can run without a remote
// backend or keep a local mirror next to one.
type StateRepository struct {
	db *sql.DB
}

var _ statestore.Store = (*StateRepository)(nil)

// State returns the state repository for this store.
func (s *Store) State() *StateRepository {
	return &StateRepository{db: s.db}
}

// Get returns the leaf at path or the assembled subtree below it.
func (r *StateRepository) Get(ctx context.Context, path string) (any, error) {
	if err := statestore.ValidatePath(path); err != nil {
		return nil, err
	}

	var raw string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM state WHERE path = ?`, path).Scan(&raw)
	if err == nil {
		return decodeValue(path, raw)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	// '0' sorts right after '/', so this range is exactly the descendants.
	rows, err := r.db.QueryContext(ctx,
		`SELECT path, value FROM state WHERE path >= ? AND path < ?`,
		path+"/", path+"0",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	leaves := make(map[string]any)
	for rows.Next() {
		var p string
		if err := rows.Scan(&p, &raw); err != nil {
			return nil, err
		}
		v, err := decodeValue(p, raw)
		if err != nil {
			return nil, err
		}
		leaves[p] = v
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	v, ok := statestore.Assemble(path, leaves)
	if !ok {
		return nil, statestore.ErrNotFound
	}
	return v, nil
}

// Set replaces whatever is stored at path with value.
func (r *StateRepository) Set(ctx context.Context, path string, value any) error {
	if err := statestore.ValidatePath(path); err != nil {
		return err
	}
	leaves, err := statestore.Flatten(path, value)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM state WHERE path = ? OR (path >= ? AND path < ?)`,
		path, path+"/", path+"0",
	); err != nil {
		return err
	}

	// A leaf above path would shadow the new subtree.
	segs := strings.Split(path, "/")
	for i := 1; i < len(segs); i++ {
		if _, err := tx.ExecContext(ctx, `DELETE FROM state WHERE path = ?`, strings.Join(segs[:i], "/")); err != nil {
			return err
		}
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO state (path, value, updated_at) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for p, v := range leaves {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s: %w", p, err)
		}
		if _, err := stmt.ExecContext(ctx, p, string(data), now); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func decodeValue(path, raw string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return v, nil
}
