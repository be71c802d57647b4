// Package authsvc implements the Auther surface: user registration,
// password authentication, role checks and password updates, all backed by
// internal/store and golang.org/x/crypto/bcrypt. It is a direct port of the
// reference server's Auth<P: DatabasePool>, minus the pool-generic type
// parameter — internal/store already serialises access the way the pool
// did.
package authsvc

import (
	"database/sql"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"sftpbridge/internal/store"
)

// ErrInvalidCredentials is returned by Authenticate and UpdatePassword when
// the supplied password does not match the stored hash, and by lookups
// against a username that doesn't exist. Callers must not distinguish the
// two cases in any externally observable way (timing or message), since
// doing so leaks which usernames are registered.
var ErrInvalidCredentials = errors.New("invalid username or password")

// Auther is the interface the SFTP session dispatcher authenticates
// against. Implementations must not block the caller's goroutine
// indefinitely; Service satisfies this using the store's *sql.DB pool.
type Auther interface {
	Register(username, password string) error
	Authenticate(username, password string) error
	CheckPermission(username, role string) (bool, error)
	UpdatePassword(username, newPassword, oldPassword string) error
}

// Service implements Auther against a *store.Store.
type Service struct {
	store *store.Store
}

// New returns an auth service backed by s.
func New(s *store.Store) *Service {
	return &Service{store: s}
}

// Register creates a new user with role "user" and a bcrypt-hashed
// password. Username collisions surface as the underlying UNIQUE
// constraint error, wrapped.
func (a *Service) Register(username, password string) error {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	_, err = a.store.DB().Exec(`INSERT INTO Users (username, password, role) VALUES (?, ?, ?)`,
		username, string(hashed), "user")
	if err != nil {
		return fmt.Errorf("register %q: %w", username, err)
	}
	return nil
}

// Authenticate verifies password against the stored hash for username.
func (a *Service) Authenticate(username, password string) error {
	hash, err := a.lookupPassword(username)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// CheckPermission reports whether username's stored role equals role
// exactly (the reference design has no role hierarchy: "admin" does not
// imply "user").
func (a *Service) CheckPermission(username, role string) (bool, error) {
	var actual string
	err := a.store.DB().QueryRow(`SELECT role FROM Users WHERE username = ?`, username).Scan(&actual)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrInvalidCredentials
	}
	if err != nil {
		return false, fmt.Errorf("check permission for %q: %w", username, err)
	}
	return actual == role, nil
}

// UpdatePassword replaces username's password, but only after verifying
// oldPassword against the current hash.
func (a *Service) UpdatePassword(username, newPassword, oldPassword string) error {
	hash, err := a.lookupPassword(username)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(oldPassword)) != nil {
		return ErrInvalidCredentials
	}

	newHash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash new password: %w", err)
	}
	_, err = a.store.DB().Exec(`UPDATE Users SET password = ? WHERE username = ?`, string(newHash), username)
	if err != nil {
		return fmt.Errorf("update password for %q: %w", username, err)
	}
	return nil
}

func (a *Service) lookupPassword(username string) (string, error) {
	var hash string
	err := a.store.DB().QueryRow(`SELECT password FROM Users WHERE username = ?`, username).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", fmt.Errorf("look up %q: %w", username, err)
	}
	return hash, nil
}
