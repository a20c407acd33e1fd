// Jellysage - Personalized Discovery Libraries for Jellyfin and Emby
// Copyright 2026 Jellysage Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jellysage/jellysage

package mediaserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func verifyAuthHeaders(t *testing.T, r *http.Request) {
	t.Helper()
	checkStringEqual(t, "X-Emby-Token", r.Header.Get("X-Emby-Token"), "test-api-key")
	checkStringEqual(t, "X-Emby-Client", r.Header.Get("X-Emby-Client"), "Jellysage")
}

func fastRetryOptions() Options {
	return Options{
		Timeout: 5 * time.Second,
		Retry:   RetryPolicy{Attempts: 3, Delay: time.Millisecond},
	}
}

func TestNewHTTPClientTrimsTrailingSlash(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		wantURL string
	}{
		{"basic URL", "http://localhost:8096", "http://localhost:8096"},
		{"trailing slash", "http://localhost:8096/", "http://localhost:8096"},
		{"HTTPS", "https://jellyfin.example.com/", "https://jellyfin.example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewHTTPClient(tt.baseURL, "key", Options{})
			checkStringEqual(t, "baseURL", client.baseURL, tt.wantURL)
			checkTrue(t, "httpClient not nil", client.httpClient != nil)
		})
	}
}

func TestListUsers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		checkStringEqual(t, "path", r.URL.Path, "/Users")
		checkStringEqual(t, "method", r.Method, "GET")
		verifyAuthHeaders(t, r)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"Id":"u1","Name":"alice"},{"Id":"u2","Name":"bob"}]`))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "test-api-key", fastRetryOptions())
	users, err := client.ListUsers(context.Background())

	checkNoError(t, err)
	checkSliceLen(t, "users", len(users), 2)
	checkStringEqual(t, "users[0].ID", users[0].ID, "u1")
	checkStringEqual(t, "users[1].Name", users[1].Name, "bob")
}

func TestQueryUserItemsParams(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		checkStringEqual(t, "path", r.URL.Path, "/Users/u1/Items")
		q := r.URL.Query()
		checkStringEqual(t, "IncludeItemTypes", q.Get("IncludeItemTypes"), "Movie")
		checkStringEqual(t, "Recursive", q.Get("Recursive"), "true")
		checkStringEqual(t, "Filters", q.Get("Filters"), "IsPlayed")
		checkStringEqual(t, "Limit", q.Get("Limit"), "100")
		checkStringEqual(t, "Fields", q.Get("Fields"), "Genres,UserData")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"Items":[{"Id":"m1","Name":"Alien","Type":"Movie"}],"TotalRecordCount":1}`))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "test-api-key", fastRetryOptions())
	items, err := client.QueryUserItems(context.Background(), "u1", ItemQuery{
		IncludeItemTypes: "Movie",
		Recursive:        true,
		Filters:          "IsPlayed",
		Fields:           []string{"Genres", "UserData"},
		Limit:            100,
	})

	checkNoError(t, err)
	checkSliceLen(t, "items", len(items), 1)
	checkStringEqual(t, "items[0].Name", items[0].Name, "Alien")
}

func TestQueryItemsServerWide(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		checkStringEqual(t, "path", r.URL.Path, "/Items")
		checkStringEqual(t, "IncludeItemTypes", r.URL.Query().Get("IncludeItemTypes"), "CollectionFolder,UserView")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"Items":[{"Id":"c1","Name":"Discover Movies [ab12cd]","Type":"CollectionFolder"}],"TotalRecordCount":1}`))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "test-api-key", fastRetryOptions())
	items, err := client.QueryItems(context.Background(), ItemQuery{
		IncludeItemTypes: "CollectionFolder,UserView",
		Recursive:        true,
	})

	checkNoError(t, err)
	checkSliceLen(t, "items", len(items), 1)
	checkStringEqual(t, "items[0].Type", items[0].Type, "CollectionFolder")
}

func TestSetUserPolicyPreservesUnknownFields(t *testing.T) {
	var received map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		checkStringEqual(t, "path", r.URL.Path, "/Users/u1/Policy")
		checkStringEqual(t, "method", r.Method, "POST")
		checkNoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	policy := Policy{
		"IsAdministrator":  true,
		"MaxParentalAge":   float64(13),
		"EnableAllFolders": true,
	}
	policy.SetEnableAllFolders(false)
	policy.SetEnabledFolders([]string{"lib1", "lib2"})

	client := NewHTTPClient(server.URL, "test-api-key", fastRetryOptions())
	checkNoError(t, client.SetUserPolicy(context.Background(), "u1", policy))

	checkTrue(t, "IsAdministrator preserved", received["IsAdministrator"] == true)
	checkTrue(t, "MaxParentalAge preserved", received["MaxParentalAge"] == float64(13))
	checkTrue(t, "EnableAllFolders overwritten", received["EnableAllFolders"] == false)
	folders, ok := received["EnabledFolders"].([]any)
	checkTrue(t, "EnabledFolders is a list", ok)
	checkSliceLen(t, "EnabledFolders", len(folders), 2)
}

func TestDeleteVirtualFolderTreats404AsSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		checkStringEqual(t, "method", r.Method, "DELETE")
		checkStringEqual(t, "name", r.URL.Query().Get("name"), "Discover Movies [ab12cd]")
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "test-api-key", fastRetryOptions())
	checkNoError(t, client.DeleteVirtualFolder(context.Background(), "Discover Movies [ab12cd]", false))
}

func TestDeleteItemTreats404AsSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "test-api-key", fastRetryOptions())
	checkNoError(t, client.DeleteItem(context.Background(), "item-1"))
}

func TestRetryOnTransientStatus(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "test-api-key", fastRetryOptions())
	_, err := client.ListUsers(context.Background())

	checkNoError(t, err)
	checkIntEqual(t, "calls", int(calls.Load()), 3)
}

func TestNoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "bad-key", fastRetryOptions())
	_, err := client.ListUsers(context.Background())

	checkError(t, err)
	checkIntEqual(t, "calls", int(calls.Load()), 1)
}

func TestRetryExhaustion(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "test-api-key", fastRetryOptions())
	_, err := client.ListUsers(context.Background())

	// The final attempt returns the 500 response itself; only its body
	// decode path decides the error text, so just require an error and
	// the full attempt count.
	checkError(t, err)
	checkIntEqual(t, "calls", int(calls.Load()), 3)
}

func TestCreateVirtualFolderParams(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		checkStringEqual(t, "path", r.URL.Path, "/Library/VirtualFolders")
		q := r.URL.Query()
		checkStringEqual(t, "name", q.Get("name"), "Discover Movies [ab12cd]")
		checkStringEqual(t, "collectionType", q.Get("collectionType"), "movies")
		checkStringEqual(t, "refreshLibrary", q.Get("refreshLibrary"), "false")
		checkSliceLen(t, "paths", len(q["paths"]), 1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "test-api-key", fastRetryOptions())
	err := client.CreateVirtualFolder(context.Background(), "Discover Movies [ab12cd]", "movies", []string{"/data/libraries/alice/Discover Movies"}, false)
	checkNoError(t, err)
}
