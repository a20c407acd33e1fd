// Jellysage - Personalized Discovery Libraries for Jellyfin and Emby
// Copyright 2026 Jellysage Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jellysage/jellysage

/*
client.go - Jellyfin/Emby REST API Client

This file implements the retrying REST client every other component talks
to the media server through. Transient 429/5xx responses and network
errors are retried with exponential backoff; all other statuses surface
immediately. An optional token-bucket rate limiter throttles bulk
operations (stale cleanup, policy rewrites) so they do not starve the
server.

API Reference: https://api.jellyfin.org/
*/

package mediaserver

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/jellysage/jellysage/internal/logging"
)

// Client defines the media server operations the engine and cleaner use.
// Both HTTPClient and BreakerClient implement this interface.
type Client interface {
	Ping(ctx context.Context) error
	ListUsers(ctx context.Context) ([]User, error)
	GetUser(ctx context.Context, userID string) (*User, error)
	SetUserPolicy(ctx context.Context, userID string, policy Policy) error
	QueryUserItems(ctx context.Context, userID string, q ItemQuery) ([]Item, error)
	QueryItems(ctx context.Context, q ItemQuery) ([]Item, error)
	ListVirtualFolders(ctx context.Context) ([]VirtualFolder, error)
	CreateVirtualFolder(ctx context.Context, name, collectionType string, paths []string, refresh bool) error
	DeleteVirtualFolder(ctx context.Context, name string, refresh bool) error
	DeleteItem(ctx context.Context, itemID string) error
	SetLibraryOptions(ctx context.Context, libraryID string, opts LibraryOptions) error
	RefreshLibrary(ctx context.Context, libraryID string) error
}

// Ensure HTTPClient implements Client
var _ Client = (*HTTPClient)(nil)

// RetryPolicy bounds the retry loop for transient failures.
type RetryPolicy struct {
	// Attempts is the total number of tries, including the first.
	Attempts int

	// Delay is the initial backoff; it doubles after each failed try.
	Delay time.Duration
}

// DefaultRetryPolicy matches the behavior the rest of the system assumes:
// a handful of quick retries, not minutes of stalling.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 4, Delay: 500 * time.Millisecond}
}

// HTTPClient provides access to the Jellyfin/Emby REST API.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	retry      RetryPolicy
	limiter    *rate.Limiter
}

// Options configures an HTTPClient.
type Options struct {
	// Timeout bounds each individual HTTP request. Default 60s.
	Timeout time.Duration

	// Retry is the transient-failure retry policy.
	Retry RetryPolicy

	// RateLimit caps requests per second. 0 disables throttling.
	RateLimit float64
}

// NewHTTPClient creates a new API client.
//
// Parameters:
//   - baseURL: server URL (e.g. http://localhost:8096)
//   - apiKey: API key from Admin Dashboard > API Keys
func NewHTTPClient(baseURL, apiKey string, opts Options) *HTTPClient {
	baseURL = strings.TrimSuffix(baseURL, "/")
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.Retry.Attempts <= 0 {
		opts.Retry = DefaultRetryPolicy()
	}

	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}

	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		retry:   opts.Retry,
		limiter: limiter,
	}
}

// Ping tests connectivity to the server.
func (c *HTTPClient) Ping(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/System/Ping", nil, nil)
	if err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ping returned status %d", resp.StatusCode)
	}
	return nil
}

// ListUsers retrieves all users. The returned policies are summaries and
// must not be written back; use GetUser for the full policy.
func (c *HTTPClient) ListUsers(ctx context.Context) ([]User, error) {
	var users []User
	if err := c.getJSON(ctx, "/Users", nil, &users); err != nil {
		return nil, fmt.Errorf("list users failed: %w", err)
	}
	return users, nil
}

// GetUser retrieves a single user including the complete policy.
func (c *HTTPClient) GetUser(ctx context.Context, userID string) (*User, error) {
	var user User
	if err := c.getJSON(ctx, "/Users/"+url.PathEscape(userID), nil, &user); err != nil {
		return nil, fmt.Errorf("get user %s failed: %w", userID, err)
	}
	return &user, nil
}

// SetUserPolicy replaces a user's policy. Callers must pass a policy
// obtained from GetUser with only the intended fields modified.
func (c *HTTPClient) SetUserPolicy(ctx context.Context, userID string, policy Policy) error {
	resp, err := c.do(ctx, http.MethodPost, "/Users/"+url.PathEscape(userID)+"/Policy", nil, policy)
	if err != nil {
		return fmt.Errorf("set policy for user %s failed: %w", userID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("set policy for user %s returned status %d: %s", userID, resp.StatusCode, readBodyForError(resp.Body))
	}
	return nil
}

// QueryUserItems queries the catalog as seen by one user.
func (c *HTTPClient) QueryUserItems(ctx context.Context, userID string, q ItemQuery) ([]Item, error) {
	var result itemsResult
	if err := c.getJSON(ctx, "/Users/"+url.PathEscape(userID)+"/Items", itemQueryParams(q), &result); err != nil {
		return nil, fmt.Errorf("query items for user %s failed: %w", userID, err)
	}
	return result.Items, nil
}

// QueryItems queries the catalog server-wide, without a user scope.
// Needed to reach item types that never appear in user views, such as
// orphaned collection folders.
func (c *HTTPClient) QueryItems(ctx context.Context, q ItemQuery) ([]Item, error) {
	var result itemsResult
	if err := c.getJSON(ctx, "/Items", itemQueryParams(q), &result); err != nil {
		return nil, fmt.Errorf("query items failed: %w", err)
	}
	return result.Items, nil
}

// itemQueryParams converts an ItemQuery into URL parameters.
func itemQueryParams(q ItemQuery) url.Values {
	params := url.Values{}
	if len(q.ParentIDs) > 0 {
		params.Set("ParentIds", strings.Join(q.ParentIDs, ","))
	}
	if q.IncludeItemTypes != "" {
		params.Set("IncludeItemTypes", q.IncludeItemTypes)
	}
	if q.Recursive {
		params.Set("Recursive", "true")
	}
	if q.Filters != "" {
		params.Set("Filters", q.Filters)
	}
	if len(q.Fields) > 0 {
		params.Set("Fields", strings.Join(q.Fields, ","))
	}
	if q.Limit > 0 {
		params.Set("Limit", strconv.Itoa(q.Limit))
	}
	return params
}

// ListVirtualFolders retrieves all registered virtual libraries.
func (c *HTTPClient) ListVirtualFolders(ctx context.Context) ([]VirtualFolder, error) {
	var folders []VirtualFolder
	if err := c.getJSON(ctx, "/Library/VirtualFolders", nil, &folders); err != nil {
		return nil, fmt.Errorf("list virtual folders failed: %w", err)
	}
	return folders, nil
}

// CreateVirtualFolder registers a new virtual library backed by paths.
func (c *HTTPClient) CreateVirtualFolder(ctx context.Context, name, collectionType string, paths []string, refresh bool) error {
	params := url.Values{}
	params.Set("name", name)
	params.Set("collectionType", collectionType)
	for _, p := range paths {
		params.Add("paths", p)
	}
	params.Set("refreshLibrary", strconv.FormatBool(refresh))

	resp, err := c.do(ctx, http.MethodPost, "/Library/VirtualFolders", params, map[string]any{})
	if err != nil {
		return fmt.Errorf("create virtual folder %q failed: %w", name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("create virtual folder %q returned status %d: %s", name, resp.StatusCode, readBodyForError(resp.Body))
	}
	return nil
}

// DeleteVirtualFolder removes a virtual library by name. A 404 is not an
// error: the delete-before-create pattern relies on deletion being
// idempotent.
func (c *HTTPClient) DeleteVirtualFolder(ctx context.Context, name string, refresh bool) error {
	params := url.Values{}
	params.Set("name", name)
	params.Set("refreshLibrary", strconv.FormatBool(refresh))

	resp, err := c.do(ctx, http.MethodDelete, "/Library/VirtualFolders", params, nil)
	if err != nil {
		return fmt.Errorf("delete virtual folder %q failed: %w", name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		return nil
	default:
		return fmt.Errorf("delete virtual folder %q returned status %d: %s", name, resp.StatusCode, readBodyForError(resp.Body))
	}
}

// DeleteItem removes a catalog item (collection folder, view) by id.
// Used by the cleaner to purge orphaned database rows that the plain
// library delete does not reach.
func (c *HTTPClient) DeleteItem(ctx context.Context, itemID string) error {
	resp, err := c.do(ctx, http.MethodDelete, "/Items/"+url.PathEscape(itemID), nil, nil)
	if err != nil {
		return fmt.Errorf("delete item %s failed: %w", itemID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		return nil
	default:
		return fmt.Errorf("delete item %s returned status %d: %s", itemID, resp.StatusCode, readBodyForError(resp.Body))
	}
}

// SetLibraryOptions applies library options to a registered library.
func (c *HTTPClient) SetLibraryOptions(ctx context.Context, libraryID string, opts LibraryOptions) error {
	body := map[string]any{
		"Id":             libraryID,
		"LibraryOptions": opts,
	}

	resp, err := c.do(ctx, http.MethodPost, "/Library/VirtualFolders/LibraryOptions", nil, body)
	if err != nil {
		return fmt.Errorf("set library options for %s failed: %w", libraryID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("set library options for %s returned status %d: %s", libraryID, resp.StatusCode, readBodyForError(resp.Body))
	}
	return nil
}

// RefreshLibrary triggers a metadata refresh scan for a library.
func (c *HTTPClient) RefreshLibrary(ctx context.Context, libraryID string) error {
	params := url.Values{}
	params.Set("Recursive", "true")

	resp, err := c.do(ctx, http.MethodPost, "/Items/"+url.PathEscape(libraryID)+"/Refresh", params, nil)
	if err != nil {
		return fmt.Errorf("refresh library %s failed: %w", libraryID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("refresh library %s returned status %d: %s", libraryID, resp.StatusCode, readBodyForError(resp.Body))
	}
	return nil
}

// getJSON performs a GET request and decodes the 200 response into out.
func (c *HTTPClient) getJSON(ctx context.Context, endpoint string, params url.Values, out any) error {
	resp, err := c.do(ctx, http.MethodGet, endpoint, params, nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d: %s", resp.StatusCode, readBodyForError(resp.Body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// retryableStatus reports whether a status code indicates a transient
// condition worth retrying.
func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// do performs an HTTP request with authentication, rate limiting, and
// bounded exponential backoff on transient failures. The caller owns the
// returned response body.
func (c *HTTPClient) do(ctx context.Context, method, endpoint string, params url.Values, body any) (*http.Response, error) {
	fullURL := c.baseURL + endpoint
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	var lastErr error
	delay := c.retry.Delay

	for attempt := 0; attempt < c.retry.Attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			delay *= 2
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		resp, err := c.attempt(ctx, method, fullURL, payload)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			logging.Warn().Err(err).Int("attempt", attempt+1).Int("max_attempts", c.retry.Attempts).Str("endpoint", endpoint).Msg("Request failed, will retry")
			continue
		}

		if retryableStatus(resp.StatusCode) && attempt < c.retry.Attempts-1 {
			lastErr = fmt.Errorf("transient status %d", resp.StatusCode)
			_ = resp.Body.Close()
			logging.Warn().Int("status", resp.StatusCode).Int("attempt", attempt+1).Str("endpoint", endpoint).Msg("Transient server response, will retry")
			continue
		}

		return resp, nil
	}

	return nil, fmt.Errorf("max retry attempts reached: %w", lastErr)
}

// attempt issues a single HTTP request.
func (c *HTTPClient) attempt(ctx context.Context, method, fullURL string, payload []byte) (*http.Response, error) {
	var bodyReader io.Reader = http.NoBody
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("X-Emby-Token", c.apiKey)
	req.Header.Set("X-Emby-Client", "Jellysage")
	req.Header.Set("X-Emby-Device-Name", "Jellysage")
	req.Header.Set("X-Emby-Device-Id", "jellysage")
	req.Header.Set("X-Emby-Client-Version", "1.0.0")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	return c.httpClient.Do(req)
}

// readBodyForError reads a bounded amount of an error response body.
func readBodyForError(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil {
		return "(failed to read body)"
	}
	return string(body)
}
