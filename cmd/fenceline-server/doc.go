// Copyright 2026 The Fenceline Authors
// SPDX-License-Identifier: Apache-2.0

// fenceline-server is the Fenceline API server: a multi-tenant
// record and blob service where every request is evaluated against
// resource ownership before any data moves.
//
// The server exposes the /v1 HTTP API: session sign-in and sign-out,
// record and entry CRUD, and blob upload/download/listing. All
// resource routes require a bearer session token; denied and missing
// resources are indistinguishable on the wire.
//
// Principal provisioning is out of band. Running with --provision
// creates a principal directly against the database, prompting for
// the secret on the terminal, and never touches the HTTP surface.
// --deactivate clears a principal's active flag; in-flight sessions
// stop working at their next request.
package main
