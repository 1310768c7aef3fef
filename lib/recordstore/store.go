// Copyright 2026 The Fenceline Authors
// SPDX-License-Identifier: Apache-2.0

package recordstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/fenceline-dev/fenceline/lib/clock"
	"github.com/fenceline-dev/fenceline/lib/identity"
	"github.com/fenceline-dev/fenceline/lib/sqlitepool"
)

// Errors returned by store operations.
var (
	// ErrNotFound covers both "does not exist" and "not yours".
	// The two are deliberately indistinguishable.
	ErrNotFound = errors.New("recordstore: not found")

	// ErrDuplicateCode means the record code is already taken.
	// Codes are a global namespace across all principals.
	ErrDuplicateCode = errors.New("recordstore: record code already exists")

	// ErrDuplicateLogin means the principal login is already taken.
	ErrDuplicateLogin = errors.New("recordstore: login already exists")

	// ErrInvalidCode means a record code failed syntactic validation.
	ErrInvalidCode = errors.New("recordstore: invalid record code")

	// ErrUnscopedQuery means a list operation was attempted without
	// a policy-issued scope. This is a programming error, not a
	// request error.
	ErrUnscopedQuery = errors.New("recordstore: list without owner scope")
)

// Config holds the parameters for opening a store.
type Config struct {
	// Path is the SQLite database file path. Required.
	Path string

	// PoolSize is the connection pool size. Defaults to 4.
	PoolSize int

	// Clock provides timestamps for new rows. Required.
	Clock clock.Clock

	// Logger receives operational messages. Required.
	Logger *slog.Logger
}

// Store is the SQLite-backed persistence layer for principals,
// records, and entries. Safe for concurrent use.
type Store struct {
	pool   *sqlitepool.Pool
	clock  clock.Clock
	logger *slog.Logger
}

// Open creates a store, applying the schema to each pool connection.
func Open(cfg Config) (*Store, error) {
	if cfg.Clock == nil {
		return nil, fmt.Errorf("recordstore: Clock is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("recordstore: Logger is required")
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 4
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:      cfg.Path,
		PoolSize:  poolSize,
		Logger:    cfg.Logger,
		OnConnect: applySchema,
	})
	if err != nil {
		return nil, err
	}

	return &Store{pool: pool, clock: cfg.Clock, logger: cfg.Logger}, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

// --- Principals ---

// CreatePrincipal provisions a new principal. The secret is hashed
// before storage; the cleartext never touches the database. This is
// an operator-side operation with no owner predicate; it is not
// reachable from any API session.
func (s *Store) CreatePrincipal(ctx context.Context, login, secret string, role identity.Role) (identity.Principal, error) {
	if login == "" || secret == "" {
		return identity.Principal{}, fmt.Errorf("recordstore: login and secret are required")
	}
	if !role.Valid() {
		return identity.Principal{}, fmt.Errorf("recordstore: invalid role %q", role)
	}

	id, err := identity.NewID()
	if err != nil {
		return identity.Principal{}, fmt.Errorf("recordstore: generating principal ID: %w", err)
	}
	secretHash, err := identity.HashSecret(secret)
	if err != nil {
		return identity.Principal{}, fmt.Errorf("recordstore: hashing secret: %w", err)
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return identity.Principal{}, err
	}
	defer s.pool.Put(conn)

	now := s.clock.Now()
	err = sqlitex.Execute(conn,
		`INSERT INTO principals (id, login, secret, role, active, created_at) VALUES (?, ?, ?, ?, 1, ?)`,
		&sqlitex.ExecOptions{Args: []any{id, login, secretHash, string(role), now.Unix()}})
	if err != nil {
		if sqlite.ErrCode(err) == sqlite.ResultConstraintUnique {
			return identity.Principal{}, ErrDuplicateLogin
		}
		return identity.Principal{}, fmt.Errorf("recordstore: inserting principal: %w", err)
	}

	s.logger.Info("principal provisioned", "principal", id, "login", login, "role", string(role))

	return identity.Principal{
		ID:        id,
		Login:     login,
		Role:      role,
		Active:    true,
		CreatedAt: now,
	}, nil
}

// Authenticate resolves a login/secret pair to an active principal.
// Unknown login, wrong secret, and deactivated principal all return
// identity.ErrInvalidCredentials: one failure mode, no probing.
func (s *Store) Authenticate(ctx context.Context, login, secret string) (identity.Principal, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return identity.Principal{}, err
	}
	defer s.pool.Put(conn)

	var (
		principal  identity.Principal
		secretHash string
		found      bool
	)
	err = sqlitex.Execute(conn,
		`SELECT id, login, secret, role, active, created_at FROM principals WHERE login = ?`,
		&sqlitex.ExecOptions{
			Args: []any{login},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				principal = identity.Principal{
					ID:        stmt.ColumnText(0),
					Login:     stmt.ColumnText(1),
					Role:      identity.Role(stmt.ColumnText(3)),
					Active:    stmt.ColumnInt(4) != 0,
					CreatedAt: time.Unix(stmt.ColumnInt64(5), 0),
				}
				secretHash = stmt.ColumnText(2)
				return nil
			},
		})
	if err != nil {
		return identity.Principal{}, fmt.Errorf("recordstore: looking up principal: %w", err)
	}

	if !found {
		// Burn a hash anyway so response time does not reveal
		// whether the login exists.
		_, _ = identity.HashSecret(secret)
		return identity.Principal{}, identity.ErrInvalidCredentials
	}

	ok, err := identity.VerifySecret(secretHash, secret)
	if err != nil {
		return identity.Principal{}, fmt.Errorf("recordstore: verifying secret: %w", err)
	}
	if !ok || !principal.Active {
		return identity.Principal{}, identity.ErrInvalidCredentials
	}
	return principal, nil
}

// PrincipalByID fetches a principal by ID. Used by request handling
// to confirm the token subject still exists and is active.
func (s *Store) PrincipalByID(ctx context.Context, id string) (identity.Principal, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return identity.Principal{}, err
	}
	defer s.pool.Put(conn)

	var (
		principal identity.Principal
		found     bool
	)
	err = sqlitex.Execute(conn,
		`SELECT id, login, role, active, created_at FROM principals WHERE id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{id},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				principal = identity.Principal{
					ID:        stmt.ColumnText(0),
					Login:     stmt.ColumnText(1),
					Role:      identity.Role(stmt.ColumnText(2)),
					Active:    stmt.ColumnInt(3) != 0,
					CreatedAt: time.Unix(stmt.ColumnInt64(4), 0),
				}
				return nil
			},
		})
	if err != nil {
		return identity.Principal{}, fmt.Errorf("recordstore: looking up principal by ID: %w", err)
	}
	if !found {
		return identity.Principal{}, ErrNotFound
	}
	return principal, nil
}

// DeactivatePrincipal clears the active flag. The principal's rows
// and blobs are retained; only authentication dies. Idempotent.
func (s *Store) DeactivatePrincipal(ctx context.Context, login string) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`UPDATE principals SET active = 0 WHERE login = ?`,
		&sqlitex.ExecOptions{Args: []any{login}})
	if err != nil {
		return fmt.Errorf("recordstore: deactivating principal: %w", err)
	}
	if conn.Changes() == 0 {
		return ErrNotFound
	}
	s.logger.Info("principal deactivated", "login", login)
	return nil
}
