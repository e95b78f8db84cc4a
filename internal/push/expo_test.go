package push

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpoSendSuccess(t *testing.T) {
	var got expoRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewExpoClient(server.URL)
	err := client.Send(context.Background(), "ExponentPushToken[x]", "alice", "hello", map[string]interface{}{"chat_id": 10})
	require.NoError(t, err)

	assert.Equal(t, "ExponentPushToken[x]", got.To)
	assert.Equal(t, "default", got.Sound)
	assert.Equal(t, "alice", got.Title)
	assert.Equal(t, "hello", got.Body)
}

func TestExpoSendRetriesOnce(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewExpoClient(server.URL)
	err := client.Send(context.Background(), "tok", "t", "b", nil)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestExpoSendGivesUpAfterRetry(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewExpoClient(server.URL)
	err := client.Send(context.Background(), "tok", "t", "b", nil)
	require.Error(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestExpoDefaultEndpoint(t *testing.T) {
	client := NewExpoClient("")
	assert.Equal(t, DefaultEndpoint, client.endpoint)
}
