package cache

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Cache wraps the SQLite connection backing the position and address
// caches. All readers and writers go through its methods; serialization
// of single-row upserts is left to SQLite.
type Cache struct {
	conn *sql.DB
}

// New opens (or creates) the cache database at dbPath.
func New(dbPath string) (*Cache, error) {
	// Enable WAL mode and other optimizations via connection string
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=10000", dbPath)

	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(1) // SQLite works best with single writer
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(time.Hour)

	c := &Cache{conn: conn}

	if err := c.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return c, nil
}

// initialize creates tables and indexes
func (c *Cache) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS vehicle_positions (
		vehicle_id TEXT PRIMARY KEY,
		latitude REAL NOT NULL,
		longitude REAL NOT NULL,
		timestamp INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS geocoded_addresses (
		coordinates TEXT PRIMARY KEY,
		address TEXT NOT NULL,
		timestamp INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_positions_timestamp ON vehicle_positions(timestamp);
	CREATE INDEX IF NOT EXISTS idx_addresses_timestamp ON geocoded_addresses(timestamp);
	`

	_, err := c.conn.Exec(schema)
	return err
}

// Close closes the database connection
func (c *Cache) Close() error {
	return c.conn.Close()
}
