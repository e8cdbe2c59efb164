package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/trc20watch/service/ingest"
)

func TestHealth_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GET", r.Method)
		assert.Equal(t, "/health", r.URL.Path)
		w.Write([]byte("OK"))
	}))
	defer server.Close()

	client := NewClient(server.URL+"/", nil, nil)
	assert.NoError(t, client.Health(context.Background()))
}

func TestHealth_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := NewClient(url, nil, nil)
	err := client.Health(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request failed")
}

func TestStatus_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/status", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ingest.Status{
			WatchAddress:  "TCKV8GCJcEzQWYi8c3yFGPvMa1UkUDYZ57",
			Ready:         true,
			SeenCount:     7,
			CyclesRun:     2,
			NotifiedTotal: 1,
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	status, err := client.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "TCKV8GCJcEzQWYi8c3yFGPvMa1UkUDYZ57", status.WatchAddress)
	assert.Equal(t, 7, status.SeenCount)
	assert.Equal(t, int64(2), status.CyclesRun)
	assert.Equal(t, int64(1), status.NotifiedTotal)
}

func TestStatus_NotReady(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(ingest.Status{WatchAddress: "TCKV8GCJcEzQWYi8c3yFGPvMa1UkUDYZ57"})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	status, err := client.Status(context.Background())
	assert.ErrorIs(t, err, ErrNotReady)
	require.NotNil(t, status)
	assert.Equal(t, "TCKV8GCJcEzQWYi8c3yFGPvMa1UkUDYZ57", status.WatchAddress)
}

func TestStatus_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "boom"})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	_, err := client.Status(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestStatus_PlainTextError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	_, err := client.Status(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}
