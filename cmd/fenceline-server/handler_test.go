// Copyright 2026 The Fenceline Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fenceline-dev/fenceline/lib/blobstore"
	"github.com/fenceline-dev/fenceline/lib/clock"
	"github.com/fenceline-dev/fenceline/lib/identity"
	"github.com/fenceline-dev/fenceline/lib/policy"
	"github.com/fenceline-dev/fenceline/lib/recordstore"
	"github.com/fenceline-dev/fenceline/lib/sessiontoken"
)

type testEnv struct {
	t       *testing.T
	handler http.Handler
	records *recordstore.Store
	clk     *clock.FakeClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	clk := clock.Fake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))

	records, err := recordstore.Open(recordstore.Config{
		Path:     filepath.Join(t.TempDir(), "records.db"),
		PoolSize: 2,
		Clock:    clk,
		Logger:   logger,
	})
	if err != nil {
		t.Fatalf("opening record store: %v", err)
	}
	t.Cleanup(func() { records.Close() })

	blobs, err := blobstore.Open(blobstore.Config{
		Root:   t.TempDir(),
		Clock:  clk,
		Logger: logger,
	})
	if err != nil {
		t.Fatalf("opening blob store: %v", err)
	}

	publicKey, privateKey, err := sessiontoken.GenerateKeypair()
	if err != nil {
		t.Fatalf("generating keypair: %v", err)
	}

	handler := newAPIHandler(apiHandlerConfig{
		Records:      records,
		Blobs:        blobs,
		Gate:         policy.NewGate(policy.GateConfig{Resolver: records, Logger: logger}),
		PublicKey:    publicKey,
		PrivateKey:   privateKey,
		Revoked:      sessiontoken.NewBlacklist(),
		Clock:        clk,
		Logger:       logger,
		SessionTTL:   time.Hour,
		MaxBlobBytes: 1 << 20,
	})

	return &testEnv{t: t, handler: handler, records: records, clk: clk}
}

func (e *testEnv) provision(login string) identity.Principal {
	e.t.Helper()
	principal, err := e.records.CreatePrincipal(e.t.Context(), login, login+"-secret", identity.RoleTenant)
	if err != nil {
		e.t.Fatalf("provisioning %s: %v", login, err)
	}
	return principal
}

// do issues a request against the handler. A non-empty token is sent
// as a bearer credential; body may be nil, a raw []byte, or a value
// to JSON-encode.
func (e *testEnv) do(method, path, token string, body any) *httptest.ResponseRecorder {
	e.t.Helper()

	var reader *bytes.Reader
	switch payload := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case []byte:
		reader = bytes.NewReader(payload)
	default:
		encoded, err := json.Marshal(payload)
		if err != nil {
			e.t.Fatalf("encoding request body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}

	request := httptest.NewRequest(method, path, reader)
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	e.handler.ServeHTTP(recorder, request)
	return recorder
}

func (e *testEnv) signIn(login string) string {
	e.t.Helper()
	resp := e.do(http.MethodPost, "/v1/sessions", "", map[string]string{
		"identifier": login,
		"secret":     login + "-secret",
	})
	if resp.Code != http.StatusOK {
		e.t.Fatalf("sign-in for %s: status %d: %s", login, resp.Code, resp.Body)
	}
	var body struct {
		SessionToken string `json:"session_token"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		e.t.Fatalf("decoding sign-in response: %v", err)
	}
	return body.SessionToken
}

func decodeBody[T any](t *testing.T, resp *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(resp.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding response %q: %v", resp.Body, err)
	}
	return v
}

func TestSignInRejectsBadCredentials(t *testing.T) {
	env := newTestEnv(t)
	env.provision("alice")

	for _, attempt := range []map[string]string{
		{"identifier": "alice", "secret": "wrong"},
		{"identifier": "nobody", "secret": "whatever"},
	} {
		resp := env.do(http.MethodPost, "/v1/sessions", "", attempt)
		if resp.Code != http.StatusUnauthorized {
			t.Errorf("sign-in %v: status %d, want 401", attempt, resp.Code)
		}
	}
}

func TestSignOutRevokesImmediately(t *testing.T) {
	env := newTestEnv(t)
	env.provision("alice")
	token := env.signIn("alice")

	if resp := env.do(http.MethodGet, "/v1/records", token, nil); resp.Code != http.StatusOK {
		t.Fatalf("pre-sign-out list: status %d", resp.Code)
	}

	if resp := env.do(http.MethodDelete, "/v1/sessions/current", token, nil); resp.Code != http.StatusNoContent {
		t.Fatalf("sign-out: status %d, want 204", resp.Code)
	}

	// The token is dead for resource routes even though its expiry
	// is still in the future.
	if resp := env.do(http.MethodGet, "/v1/records", token, nil); resp.Code != http.StatusUnauthorized {
		t.Errorf("post-sign-out list: status %d, want 401", resp.Code)
	}

	// Repeating sign-out is a no-op, not an error.
	if resp := env.do(http.MethodDelete, "/v1/sessions/current", token, nil); resp.Code != http.StatusNoContent {
		t.Errorf("repeated sign-out: status %d, want 204", resp.Code)
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	env := newTestEnv(t)
	env.provision("alice")
	token := env.signIn("alice")

	env.clk.Advance(2 * time.Hour)

	if resp := env.do(http.MethodGet, "/v1/records", token, nil); resp.Code != http.StatusUnauthorized {
		t.Errorf("expired token: status %d, want 401", resp.Code)
	}
}

func TestDeactivationCutsOffLiveSessions(t *testing.T) {
	env := newTestEnv(t)
	env.provision("alice")
	token := env.signIn("alice")

	if err := env.records.DeactivatePrincipal(t.Context(), "alice"); err != nil {
		t.Fatalf("DeactivatePrincipal: %v", err)
	}

	if resp := env.do(http.MethodGet, "/v1/records", token, nil); resp.Code != http.StatusUnauthorized {
		t.Errorf("deactivated principal: status %d, want 401", resp.Code)
	}
}

func TestMissingTokenRejectedEverywhere(t *testing.T) {
	env := newTestEnv(t)

	routes := []struct{ method, path string }{
		{http.MethodGet, "/v1/records"},
		{http.MethodPost, "/v1/records"},
		{http.MethodGet, "/v1/records/some-id"},
		{http.MethodGet, "/v1/records/some-id/entries"},
		{http.MethodGet, "/v1/blobs"},
		{http.MethodGet, "/v1/blobs/P001/x"},
		{http.MethodPut, "/v1/blobs/P001/x"},
		{http.MethodPost, "/v1/principals"},
		{http.MethodDelete, "/v1/sessions/current"},
	}
	for _, route := range routes {
		if resp := env.do(route.method, route.path, "", nil); resp.Code != http.StatusUnauthorized {
			t.Errorf("%s %s without token: status %d, want 401", route.method, route.path, resp.Code)
		}
	}
}

func TestCrossTenantRecordAccessIsNotFound(t *testing.T) {
	env := newTestEnv(t)
	env.provision("alice")
	env.provision("bob")
	aliceToken := env.signIn("alice")
	bobToken := env.signIn("bob")

	created := decodeBody[recordstore.Record](t, env.do(
		http.MethodPost, "/v1/records", aliceToken,
		map[string]string{"code": "P001", "label": "alice's"}))

	// Bob probing Alice's record ID and a nonexistent ID must get
	// byte-identical responses.
	foreign := env.do(http.MethodGet, "/v1/records/"+created.ID, bobToken, nil)
	missing := env.do(http.MethodGet, "/v1/records/no-such-id", bobToken, nil)
	if foreign.Code != http.StatusNotFound || missing.Code != http.StatusNotFound {
		t.Fatalf("statuses = %d, %d, want 404, 404", foreign.Code, missing.Code)
	}
	if foreign.Body.String() != missing.Body.String() {
		t.Errorf("foreign and missing responses differ: %q vs %q", foreign.Body, missing.Body)
	}
}

func TestListFilterCannotWidenScope(t *testing.T) {
	env := newTestEnv(t)
	env.provision("alice")
	env.provision("bob")
	aliceToken := env.signIn("alice")
	bobToken := env.signIn("bob")

	for _, code := range []string{"P001", "P003"} {
		if resp := env.do(http.MethodPost, "/v1/records", aliceToken,
			map[string]string{"code": code}); resp.Code != http.StatusCreated {
			t.Fatalf("creating %s: status %d", code, resp.Code)
		}
	}
	if resp := env.do(http.MethodPost, "/v1/records", bobToken,
		map[string]string{"code": "P002"}); resp.Code != http.StatusCreated {
		t.Fatalf("creating P002: status %d", resp.Code)
	}

	// "Everything except my own code" yields nothing, not other
	// tenants' rows.
	inverted := decodeBody[[]recordstore.Record](t, env.do(
		http.MethodGet, "/v1/records?code_ne=P002", bobToken, nil))
	if len(inverted) != 0 {
		t.Errorf("inverted filter returned %d records: %+v", len(inverted), inverted)
	}

	narrowed := decodeBody[[]recordstore.Record](t, env.do(
		http.MethodGet, "/v1/records?code_ne=P001", aliceToken, nil))
	if len(narrowed) != 1 || narrowed[0].Code != "P003" {
		t.Errorf("narrowed filter = %+v, want only P003", narrowed)
	}
}

func TestClientSuppliedOwnerIgnored(t *testing.T) {
	env := newTestEnv(t)
	alice := env.provision("alice")
	env.provision("bob")
	aliceToken := env.signIn("alice")

	// The owner_id field is not part of the request schema; smuggling
	// one in changes nothing.
	body := []byte(`{"code":"P001","label":"x","owner_id":"someone-else"}`)
	created := decodeBody[recordstore.Record](t, env.do(
		http.MethodPost, "/v1/records", aliceToken, body))
	if created.OwnerID != alice.ID {
		t.Errorf("OwnerID = %q, want authenticated principal %q", created.OwnerID, alice.ID)
	}
}

func TestDuplicateCodeConflicts(t *testing.T) {
	env := newTestEnv(t)
	env.provision("alice")
	env.provision("bob")
	aliceToken := env.signIn("alice")
	bobToken := env.signIn("bob")

	if resp := env.do(http.MethodPost, "/v1/records", aliceToken,
		map[string]string{"code": "P001"}); resp.Code != http.StatusCreated {
		t.Fatalf("create: status %d", resp.Code)
	}
	if resp := env.do(http.MethodPost, "/v1/records", bobToken,
		map[string]string{"code": "P001"}); resp.Code != http.StatusConflict {
		t.Errorf("cross-tenant duplicate code: status %d, want 409", resp.Code)
	}
	if resp := env.do(http.MethodPost, "/v1/records", aliceToken,
		map[string]string{"code": "b@d code"}); resp.Code != http.StatusBadRequest {
		t.Errorf("invalid code: status %d, want 400", resp.Code)
	}
}

func TestEntriesFollowRecordOwnership(t *testing.T) {
	env := newTestEnv(t)
	env.provision("alice")
	env.provision("bob")
	aliceToken := env.signIn("alice")
	bobToken := env.signIn("bob")

	record := decodeBody[recordstore.Record](t, env.do(
		http.MethodPost, "/v1/records", aliceToken,
		map[string]string{"code": "P001"}))

	entriesPath := "/v1/records/" + record.ID + "/entries"

	if resp := env.do(http.MethodPost, entriesPath, aliceToken,
		map[string]string{"note": "first visit"}); resp.Code != http.StatusCreated {
		t.Fatalf("creating entry: status %d: %s", resp.Code, resp.Body)
	}

	// Bob can neither attach to nor list Alice's record.
	if resp := env.do(http.MethodPost, entriesPath, bobToken,
		map[string]string{"note": "injected"}); resp.Code != http.StatusNotFound {
		t.Errorf("foreign entry create: status %d, want 404", resp.Code)
	}
	if resp := env.do(http.MethodGet, entriesPath, bobToken, nil); resp.Code != http.StatusNotFound {
		t.Errorf("foreign entry list: status %d, want 404", resp.Code)
	}

	entries := decodeBody[[]recordstore.Entry](t, env.do(http.MethodGet, entriesPath, aliceToken, nil))
	if len(entries) != 1 || entries[0].Note != "first visit" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestBlobRoundtripOverAPI(t *testing.T) {
	env := newTestEnv(t)
	env.provision("alice")
	token := env.signIn("alice")

	if resp := env.do(http.MethodPost, "/v1/records", token,
		map[string]string{"code": "P001"}); resp.Code != http.StatusCreated {
		t.Fatalf("create record: status %d", resp.Code)
	}

	content := []byte(strings.Repeat("audio frame ", 500))
	put := env.do(http.MethodPut, "/v1/blobs/P001/session-1.wav", token, content)
	if put.Code != http.StatusCreated {
		t.Fatalf("PUT blob: status %d: %s", put.Code, put.Body)
	}

	get := env.do(http.MethodGet, "/v1/blobs/P001/session-1.wav", token, nil)
	if get.Code != http.StatusOK {
		t.Fatalf("GET blob: status %d", get.Code)
	}
	if !bytes.Equal(get.Body.Bytes(), content) {
		t.Error("blob content mismatch")
	}
	if get.Header().Get("X-Content-Hash") == "" {
		t.Error("missing content hash header")
	}

	// Immutability on the wire: a second PUT conflicts.
	if resp := env.do(http.MethodPut, "/v1/blobs/P001/session-1.wav", token, []byte("other")); resp.Code != http.StatusConflict {
		t.Errorf("second PUT: status %d, want 409", resp.Code)
	}
}

func TestDeniedBlobUploadPersistsNothing(t *testing.T) {
	env := newTestEnv(t)
	env.provision("alice")
	env.provision("bob")
	aliceToken := env.signIn("alice")
	bobToken := env.signIn("bob")

	if resp := env.do(http.MethodPost, "/v1/records", aliceToken,
		map[string]string{"code": "P001"}); resp.Code != http.StatusCreated {
		t.Fatalf("create record: status %d", resp.Code)
	}

	// Bob writes into Alice's namespace and into an unclaimed
	// namespace. Both deny as 404.
	for _, key := range []string{"P001/evil.bin", "P999/evil.bin"} {
		if resp := env.do(http.MethodPut, "/v1/blobs/"+key, bobToken, []byte("payload")); resp.Code != http.StatusNotFound {
			t.Errorf("PUT %s: status %d, want 404", key, resp.Code)
		}
	}

	// Nothing materialized for the owner.
	blobs := decodeBody[[]map[string]any](t, env.do(http.MethodGet, "/v1/blobs?prefix=P001/", aliceToken, nil))
	if len(blobs) != 0 {
		t.Errorf("denied uploads persisted %d blobs: %+v", len(blobs), blobs)
	}
	if resp := env.do(http.MethodGet, "/v1/blobs/P001/evil.bin", aliceToken, nil); resp.Code != http.StatusNotFound {
		t.Errorf("GET denied upload: status %d, want 404", resp.Code)
	}
}

func TestBlobListingScopedToOwnedCodes(t *testing.T) {
	env := newTestEnv(t)
	env.provision("alice")
	env.provision("bob")
	aliceToken := env.signIn("alice")
	bobToken := env.signIn("bob")

	for token, code := range map[string]string{aliceToken: "P001", bobToken: "P002"} {
		if resp := env.do(http.MethodPost, "/v1/records", token,
			map[string]string{"code": code}); resp.Code != http.StatusCreated {
			t.Fatalf("create %s: status %d", code, resp.Code)
		}
		key := fmt.Sprintf("/v1/blobs/%s/data.txt", code)
		if resp := env.do(http.MethodPut, key, token, []byte("content")); resp.Code != http.StatusCreated {
			t.Fatalf("PUT %s: status %d", key, resp.Code)
		}
	}

	// An empty prefix lists only the caller's blobs.
	listed := decodeBody[[]map[string]any](t, env.do(http.MethodGet, "/v1/blobs", aliceToken, nil))
	if len(listed) != 1 || listed[0]["key"] != "P001/data.txt" {
		t.Errorf("alice's listing = %+v", listed)
	}

	// A prefix aimed at a foreign code yields an empty list, the
	// same as a prefix over empty space.
	foreign := decodeBody[[]map[string]any](t, env.do(http.MethodGet, "/v1/blobs?prefix=P001/", bobToken, nil))
	if len(foreign) != 0 {
		t.Errorf("bob's foreign-prefix listing = %+v", foreign)
	}

	// Bob cannot fetch Alice's blob directly either.
	if resp := env.do(http.MethodGet, "/v1/blobs/P001/data.txt", bobToken, nil); resp.Code != http.StatusNotFound {
		t.Errorf("foreign blob GET: status %d, want 404", resp.Code)
	}
}

func TestBlobSizeCap(t *testing.T) {
	env := newTestEnv(t)
	env.provision("alice")
	token := env.signIn("alice")

	if resp := env.do(http.MethodPost, "/v1/records", token,
		map[string]string{"code": "P001"}); resp.Code != http.StatusCreated {
		t.Fatalf("create record: status %d", resp.Code)
	}

	oversized := make([]byte, (1<<20)+1)
	if resp := env.do(http.MethodPut, "/v1/blobs/P001/big.bin", token, oversized); resp.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("oversized PUT: status %d, want 413", resp.Code)
	}
}

func TestPrincipalRouteIsInvisible(t *testing.T) {
	env := newTestEnv(t)
	env.provision("alice")
	token := env.signIn("alice")

	probe := env.do(http.MethodPost, "/v1/principals", token,
		map[string]string{"login": "mallory", "secret": "x", "role": "operator"})
	missing := env.do(http.MethodGet, "/v1/records/no-such-id", token, nil)

	if probe.Code != http.StatusNotFound {
		t.Fatalf("principal probe: status %d, want 404", probe.Code)
	}
	// The response is indistinguishable from any other not-found.
	if probe.Body.String() != missing.Body.String() {
		t.Errorf("probe response %q differs from uniform not-found %q", probe.Body, missing.Body)
	}

	// And nothing was created.
	if _, err := env.records.Authenticate(t.Context(), "mallory", "x"); err == nil {
		t.Error("probe created a working principal")
	}
}
