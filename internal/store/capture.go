package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Capture is one uploaded evidence frame.
type Capture struct {
	ID          string    `json:"id"`
	DeviceID    string    `json:"device_id"`
	Episode     string    `json:"episode"`
	UploadIndex int       `json:"upload_index"`
	ObjectKey   string    `json:"object_key"`
	URL         string    `json:"url"`
	SizeBytes   int       `json:"size_bytes"`
	CreatedAt   time.Time `json:"created_at"`
}

// CaptureRepository provides access to the capture log.
type CaptureRepository struct {
	db *sql.DB
}

// Captures returns the capture repository for this store.
func (s *Store) Captures() *CaptureRepository {
	return &CaptureRepository{db: s.db}
}

// Create inserts a capture, assigning ID and CreatedAt when empty.
func (r *CaptureRepository) Create(c *Capture) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}

	_, err := r.db.Exec(
		`INSERT INTO captures (id, device_id, episode, upload_index, object_key, url, size_bytes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.DeviceID, c.Episode, c.UploadIndex, c.ObjectKey, c.URL, c.SizeBytes, c.CreatedAt,
	)
	return err
}

// Recent returns up to limit captures for a device, newest first.
func (r *CaptureRepository) Recent(deviceID string, limit int) ([]*Capture, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(
		`SELECT id, device_id, episode, upload_index, object_key, url, size_bytes, created_at
		 FROM captures WHERE device_id = ? ORDER BY created_at DESC, upload_index DESC LIMIT ?`,
		deviceID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var captures []*Capture
	for rows.Next() {
		c := &Capture{}
		if err := rows.Scan(&c.ID, &c.DeviceID, &c.Episode, &c.UploadIndex, &c.ObjectKey, &c.URL, &c.SizeBytes, &c.CreatedAt); err != nil {
			return nil, err
		}
		captures = append(captures, c)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return captures, nil
}

// ByEpisode returns the captures of one episode in upload order.
func (r *CaptureRepository) ByEpisode(deviceID, episode string) ([]*Capture, error) {
	rows, err := r.db.Query(
		`SELECT id, device_id, episode, upload_index, object_key, url, size_bytes, created_at
		 FROM captures WHERE device_id = ? AND episode = ? ORDER BY upload_index`,
		deviceID, episode,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var captures []*Capture
	for rows.Next() {
		c := &Capture{}
		if err := rows.Scan(&c.ID, &c.DeviceID, &c.Episode, &c.UploadIndex, &c.ObjectKey, &c.URL, &c.SizeBytes, &c.CreatedAt); err != nil {
			return nil, err
		}
		captures = append(captures, c)
	}

	return captures, rows.Err()
}

// Count returns the number of captures stored for a device.
func (r *CaptureRepository) Count(deviceID string) (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM captures WHERE device_id = ?`, deviceID).Scan(&n)
	return n, err
}
