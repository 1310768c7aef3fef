// Copyright 2026 The Fenceline Authors
// SPDX-License-Identifier: Apache-2.0

// Package service provides the shared runtime pieces of Fenceline
// servers: the HTTP listener lifecycle, the standard structured
// logger, and bearer credential extraction.
package service
