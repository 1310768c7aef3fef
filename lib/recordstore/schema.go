// Copyright 2026 The Fenceline Authors
// SPDX-License-Identifier: Apache-2.0

package recordstore

import (
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// schema is applied to every pool connection. CREATE IF NOT EXISTS
// keeps it idempotent; there is no migration machinery because the
// schema has a single version.
//
// records.code is globally UNIQUE, not unique-per-owner, because
// blob ownership is derived from the code prefix of a key. A
// per-owner namespace would let two principals hold the same code
// and make prefix-derived ownership ambiguous.
const schema = `
CREATE TABLE IF NOT EXISTS principals (
	id         TEXT PRIMARY KEY,
	login      TEXT NOT NULL UNIQUE,
	secret     TEXT NOT NULL,
	role       TEXT NOT NULL,
	active     INTEGER NOT NULL DEFAULT 1,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS records (
	id         TEXT PRIMARY KEY,
	code       TEXT NOT NULL UNIQUE,
	label      TEXT NOT NULL,
	owner_id   TEXT NOT NULL REFERENCES principals(id),
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS records_owner ON records(owner_id);

CREATE TABLE IF NOT EXISTS entries (
	id         TEXT PRIMARY KEY,
	record_id  TEXT NOT NULL REFERENCES records(id),
	blob_key   TEXT NOT NULL DEFAULT '',
	note       TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS entries_record ON entries(record_id);
`

// applySchema runs the schema script on a fresh connection.
func applySchema(conn *sqlite.Conn) error {
	return sqlitex.ExecuteScript(conn, schema, nil)
}
