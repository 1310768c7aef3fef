// Copyright 2026 The Fenceline Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fenceline-dev/fenceline/lib/blobstore"
	"github.com/fenceline-dev/fenceline/lib/clock"
	"github.com/fenceline-dev/fenceline/lib/identity"
	"github.com/fenceline-dev/fenceline/lib/policy"
	"github.com/fenceline-dev/fenceline/lib/recordstore"
	"github.com/fenceline-dev/fenceline/lib/service"
	"github.com/fenceline-dev/fenceline/lib/sessiontoken"
)

// maxJSONBody caps JSON request bodies. Record and entry payloads are
// tiny; anything near this size is malformed or hostile.
const maxJSONBody = 1 << 20

// apiHandlerConfig carries the dependencies for the /v1 API handler.
type apiHandlerConfig struct {
	Records      *recordstore.Store
	Blobs        *blobstore.Store
	Gate         *policy.Gate
	PublicKey    ed25519.PublicKey
	PrivateKey   ed25519.PrivateKey
	Revoked      *sessiontoken.Blacklist
	Clock        clock.Clock
	Logger       *slog.Logger
	SessionTTL   time.Duration
	MaxBlobBytes int64
}

type apiHandler struct {
	records      *recordstore.Store
	blobs        *blobstore.Store
	gate         *policy.Gate
	publicKey    ed25519.PublicKey
	privateKey   ed25519.PrivateKey
	revoked      *sessiontoken.Blacklist
	clock        clock.Clock
	logger       *slog.Logger
	sessionTTL   time.Duration
	maxBlobBytes int64
}

// session is the authenticated request context: the verified token
// and the principal it was issued to, freshly loaded so deactivation
// cuts off live sessions.
type session struct {
	token     *sessiontoken.Token
	principal identity.Principal
}

// newAPIHandler builds the /v1 route table.
func newAPIHandler(cfg apiHandlerConfig) http.Handler {
	h := &apiHandler{
		records:      cfg.Records,
		blobs:        cfg.Blobs,
		gate:         cfg.Gate,
		publicKey:    cfg.PublicKey,
		privateKey:   cfg.PrivateKey,
		revoked:      cfg.Revoked,
		clock:        cfg.Clock,
		logger:       cfg.Logger,
		sessionTTL:   cfg.SessionTTL,
		maxBlobBytes: cfg.MaxBlobBytes,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/sessions", h.handleSignIn)
	// Sign-out tolerates an already-revoked token so repeating it is
	// a no-op, not an error.
	mux.HandleFunc("DELETE /v1/sessions/current", h.withSessionRevocable(h.handleSignOut, true))

	mux.HandleFunc("GET /v1/records", h.withSession(h.handleListRecords))
	mux.HandleFunc("POST /v1/records", h.withSession(h.handleCreateRecord))
	mux.HandleFunc("GET /v1/records/{id}", h.withSession(h.handleGetRecord))
	mux.HandleFunc("GET /v1/records/{id}/entries", h.withSession(h.handleListEntries))
	mux.HandleFunc("POST /v1/records/{id}/entries", h.withSession(h.handleCreateEntry))

	mux.HandleFunc("GET /v1/blobs", h.withSession(h.handleListBlobs))
	mux.HandleFunc("PUT /v1/blobs/{key...}", h.withSession(h.handlePutBlob))
	mux.HandleFunc("GET /v1/blobs/{key...}", h.withSession(h.handleGetBlob))

	mux.HandleFunc("POST /v1/principals", h.withSession(h.handleCreatePrincipal))
	return mux
}

// withSession verifies the bearer token and resolves its principal
// before invoking next. Every failure mode is the same 401; the log
// carries the distinction.
func (h *apiHandler) withSession(next func(http.ResponseWriter, *http.Request, session)) http.HandlerFunc {
	return h.withSessionRevocable(next, false)
}

func (h *apiHandler) withSessionRevocable(next func(http.ResponseWriter, *http.Request, session), allowRevoked bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bearer, err := service.BearerToken(r)
		if err != nil {
			h.unauthorized(w, r, "missing bearer token")
			return
		}

		token, err := sessiontoken.VerifyAt(h.publicKey, bearer, h.clock.Now())
		if err != nil {
			h.unauthorized(w, r, err.Error())
			return
		}
		if !allowRevoked && h.revoked.IsRevoked(token.ID) {
			h.unauthorized(w, r, sessiontoken.ErrTokenRevoked.Error())
			return
		}

		principal, err := h.records.PrincipalByID(r.Context(), token.Subject)
		if err != nil {
			if errors.Is(err, recordstore.ErrNotFound) {
				h.unauthorized(w, r, "token subject no longer exists")
				return
			}
			h.internalError(w, r, err)
			return
		}
		if !principal.Active {
			h.unauthorized(w, r, "principal deactivated")
			return
		}

		next(w, r, session{token: token, principal: principal})
	}
}

// --- Sessions ---

type signInRequest struct {
	Identifier string `json:"identifier"`
	Secret     string `json:"secret"`
}

type signInResponse struct {
	SessionToken string    `json:"session_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func (h *apiHandler) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var request signInRequest
	if !h.decodeJSON(w, r, &request) {
		return
	}

	principal, err := h.records.Authenticate(r.Context(), request.Identifier, request.Secret)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			h.writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		h.internalError(w, r, err)
		return
	}

	tokenID, err := sessiontoken.NewTokenID()
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	now := h.clock.Now()
	expiresAt := now.Add(h.sessionTTL)
	bearer, err := sessiontoken.Mint(h.privateKey, &sessiontoken.Token{
		Subject:   principal.ID,
		Role:      principal.Role,
		ID:        tokenID,
		IssuedAt:  now.Unix(),
		ExpiresAt: expiresAt.Unix(),
	})
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	h.logger.Info("session opened", "principal", principal.ID, "token_id", tokenID)
	h.writeJSON(w, http.StatusOK, signInResponse{
		SessionToken: bearer,
		ExpiresAt:    expiresAt.UTC(),
	})
}

func (h *apiHandler) handleSignOut(w http.ResponseWriter, r *http.Request, s session) {
	// Revoking an already-revoked ID is a no-op, which makes repeated
	// sign-out idempotent. The revocation outlives the token itself.
	h.revoked.Revoke(s.token.ID, time.Unix(s.token.ExpiresAt, 0))
	h.logger.Info("session closed", "principal", s.principal.ID, "token_id", s.token.ID)
	w.WriteHeader(http.StatusNoContent)
}

// --- Records ---

type createRecordRequest struct {
	Code  string `json:"code"`
	Label string `json:"label"`
	// No owner field exists here. Anything owner-shaped a client
	// smuggles into the JSON is dropped by decoding into this struct.
}

func (h *apiHandler) handleListRecords(w http.ResponseWriter, r *http.Request, s session) {
	scope := h.gate.ListScope(s.principal.ID)
	filter := recordstore.ListFilter{
		Code:    r.URL.Query().Get("code"),
		CodeNot: r.URL.Query().Get("code_ne"),
	}

	records, err := h.records.ListRecords(r.Context(), scope, filter)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	if records == nil {
		records = []recordstore.Record{}
	}
	h.writeJSON(w, http.StatusOK, records)
}

func (h *apiHandler) handleCreateRecord(w http.ResponseWriter, r *http.Request, s session) {
	var request createRecordRequest
	if !h.decodeJSON(w, r, &request) {
		return
	}

	scope := h.gate.ListScope(s.principal.ID)
	record, err := h.records.CreateRecord(r.Context(), scope, request.Code, request.Label)
	if err != nil {
		switch {
		case errors.Is(err, recordstore.ErrInvalidCode):
			h.writeError(w, http.StatusBadRequest, "invalid record code")
		case errors.Is(err, recordstore.ErrDuplicateCode):
			h.writeError(w, http.StatusConflict, "record code already exists")
		default:
			h.internalError(w, r, err)
		}
		return
	}
	h.writeJSON(w, http.StatusCreated, record)
}

func (h *apiHandler) handleGetRecord(w http.ResponseWriter, r *http.Request, s session) {
	scope := h.gate.ListScope(s.principal.ID)
	record, err := h.records.RecordByID(r.Context(), scope, r.PathValue("id"))
	if err != nil {
		if errors.Is(err, recordstore.ErrNotFound) {
			h.notFound(w)
			return
		}
		h.internalError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, record)
}

// --- Entries ---

type createEntryRequest struct {
	BlobKey string `json:"blob_key"`
	Note    string `json:"note"`
}

func (h *apiHandler) handleListEntries(w http.ResponseWriter, r *http.Request, s session) {
	scope := h.gate.ListScope(s.principal.ID)
	entries, err := h.records.ListEntries(r.Context(), scope, r.PathValue("id"))
	if err != nil {
		if errors.Is(err, recordstore.ErrNotFound) {
			h.notFound(w)
			return
		}
		h.internalError(w, r, err)
		return
	}
	if entries == nil {
		entries = []recordstore.Entry{}
	}
	h.writeJSON(w, http.StatusOK, entries)
}

func (h *apiHandler) handleCreateEntry(w http.ResponseWriter, r *http.Request, s session) {
	var request createEntryRequest
	if !h.decodeJSON(w, r, &request) {
		return
	}

	if request.BlobKey != "" {
		if _, _, err := policy.SplitKey(request.BlobKey); err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid blob key")
			return
		}
	}

	scope := h.gate.ListScope(s.principal.ID)
	entry, err := h.records.CreateEntry(r.Context(), scope, r.PathValue("id"), request.BlobKey, request.Note)
	if err != nil {
		if errors.Is(err, recordstore.ErrNotFound) {
			// Foreign record and missing record are the same outcome.
			h.notFound(w)
			return
		}
		h.internalError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, entry)
}

// --- Blobs ---

// blobInfo is the wire shape of blob metadata.
type blobInfo struct {
	Key         string    `json:"key"`
	Size        int64     `json:"size"`
	ContentHash string    `json:"content_hash"`
	Compression string    `json:"compression"`
	CreatedAt   time.Time `json:"created_at"`
}

func toBlobInfo(meta blobstore.Metadata) blobInfo {
	return blobInfo{
		Key:         meta.Key,
		Size:        meta.Size,
		ContentHash: meta.ContentHash.Hex(),
		Compression: meta.Compression.String(),
		CreatedAt:   meta.CreatedAt,
	}
}

func (h *apiHandler) handlePutBlob(w http.ResponseWriter, r *http.Request, s session) {
	key := r.PathValue("key")

	// Authorization comes before the body is read. On deny the body
	// is discarded unread and nothing touches disk.
	result, err := h.gate.AuthorizeBlobKey(r.Context(), s.principal.ID, policy.OpUpload, key)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	if !result.Allowed() {
		h.notFound(w)
		return
	}

	content, err := io.ReadAll(io.LimitReader(r.Body, h.maxBlobBytes+1))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "reading request body")
		return
	}
	if int64(len(content)) > h.maxBlobBytes {
		h.writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("blob exceeds %d bytes", h.maxBlobBytes))
		return
	}

	meta, err := h.blobs.Put(key, content)
	if err != nil {
		switch {
		case errors.Is(err, blobstore.ErrBlobExists):
			h.writeError(w, http.StatusConflict, "blob already exists")
		case errors.Is(err, policy.ErrInvalidKey):
			h.notFound(w)
		default:
			h.internalError(w, r, err)
		}
		return
	}
	h.writeJSON(w, http.StatusCreated, toBlobInfo(meta))
}

func (h *apiHandler) handleGetBlob(w http.ResponseWriter, r *http.Request, s session) {
	key := r.PathValue("key")

	result, err := h.gate.AuthorizeBlobKey(r.Context(), s.principal.ID, policy.OpDownload, key)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	if !result.Allowed() {
		h.notFound(w)
		return
	}

	content, meta, err := h.blobs.Get(key)
	if err != nil {
		if errors.Is(err, blobstore.ErrBlobNotFound) {
			h.notFound(w)
			return
		}
		h.internalError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("X-Content-Hash", meta.ContentHash.Hex())
	w.Header().Set("Content-Length", fmt.Sprint(meta.Size))
	w.Write(content)
}

func (h *apiHandler) handleListBlobs(w http.ResponseWriter, r *http.Request, s session) {
	prefix := r.URL.Query().Get("prefix")

	// The listing universe is the caller's own record codes. The
	// prefix narrows within that; it never reaches into codes the
	// scope does not own.
	scope := h.gate.ListScope(s.principal.ID)
	codes, err := h.records.CodesOwnedBy(r.Context(), scope)
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	infos := []blobInfo{}
	for _, code := range codes {
		if prefix != "" && !codeMatchesPrefix(code, prefix) {
			continue
		}
		metas, err := h.blobs.ListCode(code)
		if err != nil {
			h.internalError(w, r, err)
			return
		}
		for _, meta := range metas {
			if prefix == "" || strings.HasPrefix(meta.Key, prefix) {
				infos = append(infos, toBlobInfo(meta))
			}
		}
	}
	h.writeJSON(w, http.StatusOK, infos)
}

// codeMatchesPrefix reports whether blobs under code can match a key
// prefix: either the prefix is within the code's namespace, or the
// prefix is still shorter than the code and a prefix of it.
func codeMatchesPrefix(code, prefix string) bool {
	return strings.HasPrefix(prefix, code+"/") ||
		strings.HasPrefix(code, prefix) ||
		prefix == code
}

// --- Principals ---

func (h *apiHandler) handleCreatePrincipal(w http.ResponseWriter, r *http.Request, s session) {
	// Provisioning is not an API capability. The gate denies every
	// session role, and the deny surfaces as the same 404 a missing
	// route would give, so the endpoint's existence is not probeable.
	// The gate call exists for the audit trail.
	h.gate.AuthorizePrivileged(s.principal.ID, s.principal.Role, policy.OpProvision)
	h.notFound(w)
}

// --- Response helpers ---

type errorResponse struct {
	Error string `json:"error"`
}

func (h *apiHandler) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := decoder.Decode(v); err != nil {
		h.writeError(w, http.StatusBadRequest, "malformed JSON body")
		return false
	}
	return true
}

func (h *apiHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("writing response", "error", err)
	}
}

func (h *apiHandler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, errorResponse{Error: message})
}

// notFound is the uniform denial: missing, foreign, and invalid all
// produce this exact response.
func (h *apiHandler) notFound(w http.ResponseWriter) {
	h.writeError(w, http.StatusNotFound, "not found")
}

func (h *apiHandler) unauthorized(w http.ResponseWriter, r *http.Request, reason string) {
	h.logger.Warn("unauthorized request",
		"method", r.Method,
		"path", r.URL.Path,
		"reason", reason)
	h.writeError(w, http.StatusUnauthorized, "unauthorized")
}

func (h *apiHandler) internalError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error("request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"error", err)
	h.writeError(w, http.StatusInternalServerError, "internal error")
}
