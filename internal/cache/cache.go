package cache

import (
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/five82/crfscan/internal/errors"
)

// schemaVersion is the value schema byte. Readers treat entries with an
// unknown schema as absent; writers always produce the current schema.
const schemaVersion byte = 1

// EnvVar disables caching for the run when set to "false" or "0".
const EnvVar = "AB_AV1_CACHE"

const schema = `
CREATE TABLE IF NOT EXISTS sample_results (
	key BLOB PRIMARY KEY,
	value BLOB NOT NULL,
	created_at TEXT DEFAULT CURRENT_TIMESTAMP
);
`

// Store is the on-disk result cache. Safe for concurrent use within a
// process; cross-process safety comes from sqlite's own locking. A nil
// *Store is a valid no-op cache.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// Enabled reports whether caching is on given the flag and environment.
func Enabled(flag bool) bool {
	switch strings.ToLower(os.Getenv(EnvVar)) {
	case "false", "0":
		return false
	}
	return flag
}

// DefaultPath returns the cache database location under the user cache dir.
func DefaultPath() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "crfscan", "cache.sqlite"), nil
}

// Open opens (creating if needed) the cache at dbPath.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, errors.NewCacheError("create cache directory", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, errors.NewCacheError("open cache database", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.NewCacheError("create cache schema", err)
	}

	return &Store{db: db}, nil
}

// Get returns the cached payload for key, or (nil, false) when absent,
// corrupt, or of a different schema. Store errors read as misses; the cache
// never fails a run.
func (s *Store) Get(key Key) ([]byte, bool) {
	if s == nil {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var value []byte
	err := s.db.QueryRow("SELECT value FROM sample_results WHERE key = ?", key[:]).Scan(&value)
	if err != nil || len(value) < 2 {
		return nil, false
	}
	if value[0] != schemaVersion {
		return nil, false
	}
	return value[1:], true
}

// Put stores payload under key, overwriting any existing entry.
func (s *Store) Put(key Key, payload []byte) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	value := make([]byte, 0, len(payload)+1)
	value = append(value, schemaVersion)
	value = append(value, payload...)

	_, err := s.db.Exec(
		"INSERT INTO sample_results (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value, created_at = CURRENT_TIMESTAMP",
		key[:], value)
	if err != nil {
		return errors.NewCacheError("write cache entry", err)
	}
	return nil
}

// Close closes the store. Safe on nil.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
