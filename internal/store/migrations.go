package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// State table - one row per leaf of the device state tree
		`CREATE TABLE IF NOT EXISTS state (
			path TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Captures table - evidence uploads per detection episode
		`CREATE TABLE IF NOT EXISTS captures (
			id TEXT PRIMARY KEY,
			device_id TEXT NOT NULL,
			episode TEXT NOT NULL,
			upload_index INTEGER NOT NULL CHECK(upload_index > 0),
			object_key TEXT NOT NULL,
			url TEXT NOT NULL,
			size_bytes INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(device_id, episode, upload_index)
		)`,

		// Settings table - stores application settings as key-value pairs
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_captures_device_created ON captures(device_id, created_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
