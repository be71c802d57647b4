// Package store owns the sqlite-backed persistence used by both the auth
// and audit services: the Users table and the AuditLogs table. It mirrors
// the connection-pool role the reference design gives r2d2 with a plain
// *sql.DB, which already pools and serialises connections for
// github.com/mattn/go-sqlite3.
package store

import (
	"database/sql"
	"fmt"
	"os"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/bcrypt"
)

// DefaultDatabasePath is used when the DATABASE_PATH environment variable
// is unset, matching the reference server's fallback.
const DefaultDatabasePath = "my_database.db"

// SeedAdminUsername and SeedAdminPassword are the credentials installed
// for the first user created alongside a fresh schema.
const (
	SeedAdminUsername = "admin"
	SeedAdminPassword = "admin_password"
)

// Action is the closed set of audit actions the AuditLogs table accepts.
type Action string

const (
	ActionOpen      Action = "Open"
	ActionClose     Action = "Close"
	ActionRead      Action = "Read"
	ActionWrite     Action = "Write"
	ActionRemove    Action = "Remove"
	ActionOpenDir   Action = "OpenDir"
	ActionReadDir   Action = "ReadDir"
	ActionMakeDir   Action = "MakeDir"
	ActionRemoveDir Action = "RemoveDir"
	ActionRealPath  Action = "RealPath"
	ActionRename    Action = "Rename"
)

// Store wraps the database handle shared by the auth and audit services.
type Store struct {
	db *sql.DB
}

// PathFromEnv resolves the database path the same way the reference server
// does: DATABASE_PATH if set, else DefaultDatabasePath.
func PathFromEnv() string {
	if p := os.Getenv("DATABASE_PATH"); p != "" {
		return p
	}
	return DefaultDatabasePath
}

// Open opens (creating if necessary) the sqlite database at path and
// ensures the schema and seed admin user exist.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite3 serialises writers; avoid SQLITE_BUSY under concurrent sessions

	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// OpenMemory opens an in-memory database for tests, with schema and seed
// data already applied.
func OpenMemory() (*Store, error) {
	db, err := sql.Open("sqlite3", "file::memory:?cache=shared")
	if err != nil {
		return nil, fmt.Errorf("open in-memory database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// DB returns the underlying handle for components that need raw access.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) init() error {
	var name string
	err := s.db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name='Users'`).Scan(&name)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("check Users table: %w", err)
	}
	if err == nil {
		return nil // schema already present; do not re-seed
	}

	if _, err := s.db.Exec(`
		CREATE TABLE Users (
			user_id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT UNIQUE NOT NULL,
			password TEXT NOT NULL,
			role TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`); err != nil {
		return fmt.Errorf("create Users table: %w", err)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(SeedAdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash seed admin password: %w", err)
	}
	if _, err := s.db.Exec(`INSERT INTO Users (username, password, role) VALUES (?, ?, ?)`,
		SeedAdminUsername, string(hashed), "admin"); err != nil {
		return fmt.Errorf("seed admin user: %w", err)
	}

	if _, err := s.db.Exec(`
		CREATE TABLE AuditLogs (
			log_id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT NOT NULL REFERENCES Users(username),
			action TEXT NOT NULL CHECK(action IN (
				'Open','Close','Read','Write','Remove',
				'OpenDir','ReadDir','MakeDir','RemoveDir','RealPath','Rename'
			)),
			target TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`); err != nil {
		return fmt.Errorf("create AuditLogs table: %w", err)
	}

	return nil
}

// InsertAuditLog appends one audit record. Target is a free-form string,
// in practice a real path (for a rename, the old path); action must be one
// of the Action constants or the CHECK constraint rejects the insert.
func (s *Store) InsertAuditLog(username string, action Action, target string) error {
	_, err := s.db.Exec(`INSERT INTO AuditLogs (username, action, target) VALUES (?, ?, ?)`,
		username, string(action), target)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

// AuditLog is a row read back from AuditLogs, used by tests and any future
// inspection tooling.
type AuditLog struct {
	LogID     int64
	Username  string
	Action    Action
	Target    string
	CreatedAt string
}

// RecentAuditLogs returns up to limit most recent audit rows, newest first.
func (s *Store) RecentAuditLogs(limit int) ([]AuditLog, error) {
	rows, err := s.db.Query(`SELECT log_id, username, action, target, created_at FROM AuditLogs ORDER BY log_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit logs: %w", err)
	}
	defer rows.Close()

	var out []AuditLog
	for rows.Next() {
		var l AuditLog
		var action string
		if err := rows.Scan(&l.LogID, &l.Username, &action, &l.Target, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit log row: %w", err)
		}
		l.Action = Action(action)
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit log rows: %w", err)
	}
	return out, nil
}
