// Copyright 2026 The Fenceline Authors
// SPDX-License-Identifier: Apache-2.0

package recordstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/fenceline-dev/fenceline/lib/identity"
	"github.com/fenceline-dev/fenceline/lib/policy"
)

// Record is an owned resource: a top-level row tied to exactly one
// principal. Ownership is fixed at creation; there is no reassignment
// path.
type Record struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Label     string    `json:"label"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
}

// ListFilter restricts a record listing. Both fields are optional.
// Filters are applied UNDER the scope's owner predicate: they can
// narrow the caller's own rows but can never widen the result set.
// In particular CodeNot, crafted to mean "everything except mine",
// still yields only the caller's rows.
type ListFilter struct {
	// Code keeps only the record with this exact code.
	Code string

	// CodeNot drops the record with this exact code.
	CodeNot string
}

// CreateRecord creates an owned resource. The owner is the scope's
// principal, full stop; callers have no way to pass a different
// owner, and the HTTP layer strips any owner field from input before
// it gets here.
func (s *Store) CreateRecord(ctx context.Context, scope policy.Scope, code, label string) (Record, error) {
	if scope.OwnerID() == "" {
		return Record{}, ErrUnscopedQuery
	}
	if !policy.ValidCode(code) {
		return Record{}, fmt.Errorf("%w: %q", ErrInvalidCode, code)
	}

	id, err := identity.NewID()
	if err != nil {
		return Record{}, fmt.Errorf("recordstore: generating record ID: %w", err)
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Record{}, err
	}
	defer s.pool.Put(conn)

	now := s.clock.Now()
	err = sqlitex.Execute(conn,
		`INSERT INTO records (id, code, label, owner_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{id, code, label, scope.OwnerID(), now.Unix()}})
	if err != nil {
		if sqlite.ErrCode(err) == sqlite.ResultConstraintUnique {
			return Record{}, ErrDuplicateCode
		}
		return Record{}, fmt.Errorf("recordstore: inserting record: %w", err)
	}

	return Record{
		ID:        id,
		Code:      code,
		Label:     label,
		OwnerID:   scope.OwnerID(),
		CreatedAt: now,
	}, nil
}

// RecordByID fetches one record within the scope. The owner predicate
// is part of the SQL; a foreign ID misses the WHERE clause and comes
// back ErrNotFound, identical to a nonexistent one.
func (s *Store) RecordByID(ctx context.Context, scope policy.Scope, recordID string) (Record, error) {
	if scope.OwnerID() == "" {
		return Record{}, ErrUnscopedQuery
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Record{}, err
	}
	defer s.pool.Put(conn)

	var (
		record Record
		found  bool
	)
	err = sqlitex.Execute(conn,
		`SELECT id, code, label, owner_id, created_at FROM records WHERE id = ? AND owner_id = ?`,
		&sqlitex.ExecOptions{
			Args:       []any{recordID, scope.OwnerID()},
			ResultFunc: scanRecord(&record, &found),
		})
	if err != nil {
		return Record{}, fmt.Errorf("recordstore: fetching record: %w", err)
	}
	if !found {
		return Record{}, ErrNotFound
	}
	return record, nil
}

// ListRecords returns the scope owner's records, optionally narrowed
// by filter, ordered by code. The owner predicate is unconditional.
func (s *Store) ListRecords(ctx context.Context, scope policy.Scope, filter ListFilter) ([]Record, error) {
	if scope.OwnerID() == "" {
		return nil, ErrUnscopedQuery
	}

	query := strings.Builder{}
	query.WriteString(`SELECT id, code, label, owner_id, created_at FROM records WHERE owner_id = ?`)
	args := []any{scope.OwnerID()}

	if filter.Code != "" {
		query.WriteString(` AND code = ?`)
		args = append(args, filter.Code)
	}
	if filter.CodeNot != "" {
		query.WriteString(` AND code != ?`)
		args = append(args, filter.CodeNot)
	}
	query.WriteString(` ORDER BY code`)

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	records := []Record{}
	err = sqlitex.Execute(conn, query.String(), &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			records = append(records, Record{
				ID:        stmt.ColumnText(0),
				Code:      stmt.ColumnText(1),
				Label:     stmt.ColumnText(2),
				OwnerID:   stmt.ColumnText(3),
				CreatedAt: time.Unix(stmt.ColumnInt64(4), 0),
			})
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("recordstore: listing records: %w", err)
	}
	return records, nil
}

// CodesOwnedBy returns the scope owner's record codes, sorted. The
// blob listing intersects storage keys against this set.
func (s *Store) CodesOwnedBy(ctx context.Context, scope policy.Scope) ([]string, error) {
	if scope.OwnerID() == "" {
		return nil, ErrUnscopedQuery
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	codes := []string{}
	err = sqlitex.Execute(conn,
		`SELECT code FROM records WHERE owner_id = ? ORDER BY code`,
		&sqlitex.ExecOptions{
			Args: []any{scope.OwnerID()},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				codes = append(codes, stmt.ColumnText(0))
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("recordstore: listing codes: %w", err)
	}
	return codes, nil
}

func scanRecord(record *Record, found *bool) func(*sqlite.Stmt) error {
	return func(stmt *sqlite.Stmt) error {
		*found = true
		*record = Record{
			ID:        stmt.ColumnText(0),
			Code:      stmt.ColumnText(1),
			Label:     stmt.ColumnText(2),
			OwnerID:   stmt.ColumnText(3),
			CreatedAt: time.Unix(stmt.ColumnInt64(4), 0),
		}
		return nil
	}
}
