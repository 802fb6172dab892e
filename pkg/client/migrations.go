package client

import (
	"database/sql"
	"fmt"
)

type migration struct {
	version int
	name    string
	sql     string
}

// migrations are applied in order; the schema version lives in PRAGMA user_version
var migrations = []migration{
	{
		version: 1,
		name:    "config",
		sql: `
CREATE TABLE IF NOT EXISTS Config (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);`,
	},
	{
		version: 2,
		name:    "servers",
		sql: `
CREATE TABLE IF NOT EXISTS servers (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	current_server_address_id TEXT,
	current_user_id TEXT
);

CREATE TABLE IF NOT EXISTS server_addresses (
	id TEXT PRIMARY KEY,
	server_id TEXT NOT NULL,
	address TEXT NOT NULL,
	FOREIGN KEY (server_id) REFERENCES servers(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	server_id TEXT NOT NULL,
	name TEXT NOT NULL,
	access_token TEXT,
	FOREIGN KEY (server_id) REFERENCES servers(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_server_addresses_server ON server_addresses(server_id);
CREATE INDEX IF NOT EXISTS idx_users_server ON users(server_id);`,
	},
}

// schemaVersion returns the newest known migration version
func schemaVersion() int {
	return migrations[len(migrations)-1].version
}

// runMigrations brings the database up to the newest schema
func runMigrations(db *sql.DB) error {
	var current int
	if err := db.QueryRow("PRAGMA user_version").Scan(&current); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if current > schemaVersion() {
		return fmt.Errorf("database schema version %d is newer than supported version %d", current, schemaVersion())
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
		// PRAGMA does not accept bound parameters
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.version)); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): failed to record version: %w", m.version, m.name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
	}

	return nil
}
