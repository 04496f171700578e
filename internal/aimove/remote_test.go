package aimove

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/park285/chess-duet/pkg/chessdto"
)

func TestRemoteSuggestMove(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/move", r.URL.Path)
		var req MoveRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, afterE4, req.Position)
		assert.Equal(t, chessdto.DifficultyHard, req.Difficulty)
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		_ = json.NewEncoder(w).Encode(MoveResponse{Move: "e7e5"})
	}))
	defer srv.Close()

	r := NewRemote(srv.URL+"/", WithRemoteHeader("X-Api-Key", "secret"))
	resp, err := r.SuggestMove(context.Background(), MoveRequest{Position: afterE4, Difficulty: chessdto.DifficultyHard})
	require.NoError(t, err)
	assert.Equal(t, "e7e5", resp.Move)
}

func TestRemoteErrorMapping(t *testing.T) {
	var calls atomic.Int32
	var status atomic.Int32
	status.Store(http.StatusTooManyRequests)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		code := int(status.Load())
		if code == http.StatusOK {
			_, _ = w.Write([]byte("not json"))
			return
		}
		w.WriteHeader(code)
	}))
	defer srv.Close()

	r := NewRemote(srv.URL, WithRemoteRetry(3))
	_, err := r.SuggestMove(context.Background(), MoveRequest{Position: afterE4})
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.EqualValues(t, 1, calls.Load(), "429 is not retried")

	calls.Store(0)
	status.Store(http.StatusServiceUnavailable)
	_, err = r.SuggestMove(context.Background(), MoveRequest{Position: afterE4})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.EqualValues(t, 3, calls.Load())

	calls.Store(0)
	status.Store(http.StatusBadRequest)
	_, err = r.SuggestMove(context.Background(), MoveRequest{Position: afterE4})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.EqualValues(t, 1, calls.Load())

	status.Store(http.StatusOK)
	_, err = r.SuggestMove(context.Background(), MoveRequest{Position: afterE4})
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestBackoffDuration(t *testing.T) {
	assert.Equal(t, int64(100), backoffDuration(0).Milliseconds())
	assert.Equal(t, int64(400), backoffDuration(3).Milliseconds())
	assert.Equal(t, int64(3200), backoffDuration(10).Milliseconds())
}

func TestClassifyGemini(t *testing.T) {
	assert.ErrorIs(t, classifyGemini(&googleapi.Error{Code: 429}), ErrRateLimited)
	assert.ErrorIs(t, classifyGemini(&googleapi.Error{Code: 503}), ErrUnavailable)
	assert.ErrorIs(t, classifyGemini(assert.AnError), ErrUnavailable)
}

func TestMovePrompt(t *testing.T) {
	p := MovePrompt(afterE4, chessdto.DifficultyEasy)
	assert.Contains(t, p, "Current FEN: "+afterE4)
	assert.Contains(t, p, "Difficulty Level: easy")
	assert.NotContains(t, p, "\t")
	assert.Equal(t, float32(0.9), moveTemperature(chessdto.DifficultyEasy))
}
