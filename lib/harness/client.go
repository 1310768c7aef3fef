// Copyright 2026 The Fenceline Authors
// SPDX-License-Identifier: Apache-2.0

package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/fenceline-dev/fenceline/lib/httpx"
)

// Record is the wire shape of a record resource.
type Record struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Label     string    `json:"label"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Entry is the wire shape of an entry resource.
type Entry struct {
	ID        string    `json:"id"`
	RecordID  string    `json:"record_id"`
	BlobKey   string    `json:"blob_key,omitempty"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// BlobInfo is the wire shape of blob metadata.
type BlobInfo struct {
	Key         string    `json:"key"`
	Size        int64     `json:"size"`
	ContentHash string    `json:"content_hash"`
	Compression string    `json:"compression"`
	CreatedAt   time.Time `json:"created_at"`
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status %d: %s", e.Status, e.Message)
}

// IsStatus reports whether err is an APIError with the given HTTP
// status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// Client is a typed client for the /v1 API, holding at most one
// session. The zero session (no sign-in) sends no credential at all.
type Client struct {
	baseURL string
	http    *http.Client
	token   string
}

// NewClient creates a client for the server at baseURL. httpClient
// may be nil for http.DefaultClient.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: baseURL, http: httpClient}
}

// Token returns the raw bearer token of the current session, empty
// if signed out.
func (c *Client) Token() string {
	return c.token
}

// SetToken overrides the session credential with an arbitrary string.
// Token-misuse scenarios use this to present tampered or stale
// bearers.
func (c *Client) SetToken(token string) {
	c.token = token
}

// SignIn authenticates and stores the session token on the client.
func (c *Client) SignIn(ctx context.Context, identifier, secret string) error {
	var response struct {
		SessionToken string `json:"session_token"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/v1/sessions",
		map[string]string{"identifier": identifier, "secret": secret}, &response)
	if err != nil {
		return err
	}
	c.token = response.SessionToken
	return nil
}

// SignOut revokes the current session and clears the stored token.
func (c *Client) SignOut(ctx context.Context) error {
	if err := c.doJSON(ctx, http.MethodDelete, "/v1/sessions/current", nil, nil); err != nil {
		return err
	}
	c.token = ""
	return nil
}

// CreateRecord creates a record owned by the session principal.
func (c *Client) CreateRecord(ctx context.Context, code, label string) (Record, error) {
	var record Record
	err := c.doJSON(ctx, http.MethodPost, "/v1/records",
		map[string]string{"code": code, "label": label}, &record)
	return record, err
}

// CreateRecordRaw posts an arbitrary JSON body to the record-create
// route. Owner-spoofing scenarios use this to smuggle fields the
// schema does not define.
func (c *Client) CreateRecordRaw(ctx context.Context, body []byte) (Record, error) {
	var record Record
	err := c.do(ctx, http.MethodPost, "/v1/records", "application/json", bytes.NewReader(body), &record)
	return record, err
}

// Record fetches one record by ID.
func (c *Client) Record(ctx context.Context, id string) (Record, error) {
	var record Record
	err := c.doJSON(ctx, http.MethodGet, "/v1/records/"+url.PathEscape(id), nil, &record)
	return record, err
}

// ListRecords lists the caller's records. code and codeNot are
// optional filters.
func (c *Client) ListRecords(ctx context.Context, code, codeNot string) ([]Record, error) {
	query := url.Values{}
	if code != "" {
		query.Set("code", code)
	}
	if codeNot != "" {
		query.Set("code_ne", codeNot)
	}
	path := "/v1/records"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var records []Record
	err := c.doJSON(ctx, http.MethodGet, path, nil, &records)
	return records, err
}

// CreateEntry adds an entry under a record.
func (c *Client) CreateEntry(ctx context.Context, recordID, blobKey, note string) (Entry, error) {
	var entry Entry
	err := c.doJSON(ctx, http.MethodPost, "/v1/records/"+url.PathEscape(recordID)+"/entries",
		map[string]string{"blob_key": blobKey, "note": note}, &entry)
	return entry, err
}

// ListEntries lists the entries of a record.
func (c *Client) ListEntries(ctx context.Context, recordID string) ([]Entry, error) {
	var entries []Entry
	err := c.doJSON(ctx, http.MethodGet, "/v1/records/"+url.PathEscape(recordID)+"/entries", nil, &entries)
	return entries, err
}

// PutBlob uploads content at key.
func (c *Client) PutBlob(ctx context.Context, key string, content []byte) (BlobInfo, error) {
	var info BlobInfo
	err := c.do(ctx, http.MethodPut, "/v1/blobs/"+key, "application/octet-stream",
		bytes.NewReader(content), &info)
	return info, err
}

// GetBlob downloads the blob at key.
func (c *Client) GetBlob(ctx context.Context, key string) ([]byte, error) {
	request, err := c.newRequest(ctx, http.MethodGet, "/v1/blobs/"+key, "", nil)
	if err != nil {
		return nil, err
	}
	response, err := c.http.Do(request)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, decodeAPIError(response)
	}
	return httpx.ReadResponse(response.Body)
}

// ListBlobs lists blob metadata under an optional key prefix.
func (c *Client) ListBlobs(ctx context.Context, prefix string) ([]BlobInfo, error) {
	path := "/v1/blobs"
	if prefix != "" {
		path += "?prefix=" + url.QueryEscape(prefix)
	}
	var infos []BlobInfo
	err := c.doJSON(ctx, http.MethodGet, path, nil, &infos)
	return infos, err
}

// CreatePrincipal attempts the provisioning route. On a conforming
// server this always fails with the uniform not-found.
func (c *Client) CreatePrincipal(ctx context.Context, login, secret, role string) error {
	return c.doJSON(ctx, http.MethodPost, "/v1/principals",
		map[string]string{"login": login, "secret": secret, "role": role}, nil)
}

// doJSON marshals body (if non-nil) and decodes a JSON response (if
// out is non-nil).
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	contentType := ""
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(encoded)
		contentType = "application/json"
	}
	return c.do(ctx, method, path, contentType, reader, out)
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	request, err := c.newRequest(ctx, method, path, contentType, body)
	if err != nil {
		return err
	}

	response, err := c.http.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return decodeAPIError(response)
	}
	if out == nil {
		io.Copy(io.Discard, response.Body)
		return nil
	}
	if err := httpx.DecodeResponse(response.Body, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path, contentType string, body io.Reader) (*http.Request, error) {
	request, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		request.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		request.Header.Set("Authorization", "Bearer "+c.token)
	}
	return request, nil
}

func decodeAPIError(response *http.Response) error {
	apiErr := &APIError{Status: response.StatusCode}
	var body struct {
		Error string `json:"error"`
	}
	if err := httpx.DecodeResponse(response.Body, &body); err == nil {
		apiErr.Message = body.Error
	}
	return apiErr
}
