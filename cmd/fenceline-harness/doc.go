// Copyright 2026 The Fenceline Authors
// SPDX-License-Identifier: Apache-2.0

// fenceline-harness runs the adversarial validation suite against a
// running fenceline-server. It signs in as the fixture tenants, seeds
// their records and blobs through the public API, then probes every
// isolation boundary from the wrong side.
//
// The exit code is the verdict: 0 when every scenario held, 1 when
// any probe breached the fence. The fixture principals must be
// provisioned on the target first (fenceline-server --provision).
package main
