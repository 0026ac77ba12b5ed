package speech

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"
	"vidscribe/internal/media"
	"vidscribe/pkg/resilience"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "secret-key"

func newTestClient(srv *httptest.Server, retry *resilience.RetryConfig) *Client {
	return NewClient(Config{
		APIKey:        testKey,
		RecognizeURL:  srv.URL + "/v1p1beta1/speech:longrunningrecognize",
		OperationsURL: srv.URL + "/v1",
		Timeout:       2 * time.Second,
		Retry:         retry,
	})
}

func testAsset() *media.AudioAsset {
	return media.NewAudioAsset([]byte{0x01, 0x02, 0x03, 0x04}, media.DefaultFormat(), "audio.pcm")
}

func TestClient_Submit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1p1beta1/speech:longrunningrecognize", r.URL.Path)
		assert.Equal(t, testKey, r.URL.Query().Get("key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req recognizeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, EncodingLinear16, req.Config.Encoding)
		assert.Equal(t, 16000, req.Config.SampleRateHertz)
		assert.Equal(t, 1, req.Config.AudioChannelCount)
		assert.Equal(t, "en-US", req.Config.LanguageCode)
		audio, err := base64.StdEncoding.DecodeString(req.Audio.Content)
		require.NoError(t, err)
		assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, audio)

		_, _ = io.WriteString(w, `{"name":"operations/123"}`)
	}))
	defer srv.Close()

	handle, err := newTestClient(srv, nil).Submit(context.Background(), testAsset(), RecognitionConfig{LanguageCode: "en-US"})

	require.NoError(t, err)
	assert.Equal(t, "operations/123", handle.Name())
	assert.False(t, handle.IsZero())
}

func TestClient_SubmitFailures(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
	}{
		{name: "missing name", status: http.StatusOK, body: `{}`},
		{name: "empty name", status: http.StatusOK, body: `{"name":""}`},
		{name: "malformed json", status: http.StatusOK, body: `{"name":`},
		{name: "forbidden", status: http.StatusForbidden, body: `{"error":{"code":403}}`, wantStatus: http.StatusForbidden},
		{name: "server error", status: http.StatusInternalServerError, body: `oops`, wantStatus: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			handle, err := newTestClient(srv, nil).Submit(context.Background(), testAsset(), RecognitionConfig{LanguageCode: "en-US"})

			var se *SubmissionError
			require.True(t, errors.As(err, &se), "got %v", err)
			assert.Equal(t, tt.wantStatus, se.StatusCode)
			assert.True(t, handle.IsZero())
		})
	}
}

func TestClient_LargeErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, "x"+strings.Repeat("é", 1<<20))
	}))
	defer srv.Close()

	_, err := newTestClient(srv, nil).Submit(context.Background(), testAsset(), RecognitionConfig{LanguageCode: "en-US"})

	var se *SubmissionError
	require.True(t, errors.As(err, &se), "got %v", err)
	assert.Equal(t, http.StatusInternalServerError, se.StatusCode)
	assert.LessOrEqual(t, len(se.Body), errorBodyLen+len("..."))
	assert.True(t, utf8.ValidString(se.Body))
	assert.True(t, strings.HasSuffix(se.Body, "..."))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abc...", truncate("abcdef", 3))
	// "é" is two bytes; cutting after one of them must back off to the rune start
	assert.Equal(t, "a...", truncate("aéb", 2))
	assert.Equal(t, "...", truncate("日本", 2))
}

func TestClient_SubmitTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	c := newTestClient(srv, nil)
	srv.Close()

	_, err := c.Submit(context.Background(), testAsset(), RecognitionConfig{LanguageCode: "en-US"})

	var se *SubmissionError
	require.True(t, errors.As(err, &se))
	assert.NotContains(t, err.Error(), testKey)
}

func TestClient_SubmitRejectsBeforeNetwork(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()
	c := newTestClient(srv, nil)

	badFormat := media.Format{SampleRateHz: 16000, Channels: 1, SampleFormat: "f32le"}
	cases := []struct {
		asset *media.AudioAsset
		lang  string
	}{
		{asset: media.NewAudioAsset([]byte{1}, badFormat, ""), lang: "en-US"},
		{asset: media.NewAudioAsset(nil, media.DefaultFormat(), ""), lang: "en-US"},
		{asset: testAsset(), lang: ""},
	}
	for _, tc := range cases {
		_, err := c.Submit(context.Background(), tc.asset, RecognitionConfig{LanguageCode: tc.lang})
		var se *SubmissionError
		assert.True(t, errors.As(err, &se))
	}
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestClient_GetStatus(t *testing.T) {
	tests := []struct {
		name       string
		handle     string
		body       string
		wantPath   string
		wantDone   bool
		wantResult *TranscriptResult
		wantErr    *OperationError
		progress   int
	}{
		{
			name:     "running",
			handle:   "operations/123",
			body:     `{"name":"operations/123","metadata":{"progressPercent":40}}`,
			wantPath: "/v1/operations/123",
			progress: 40,
		},
		{
			name:     "running with stray response",
			handle:   "456",
			body:     `{"name":"456","done":false,"response":{"results":[{"alternatives":[{"transcript":"partial"}]}]}}`,
			wantPath: "/v1/operations/456",
		},
		{
			name:     "done",
			handle:   "operations/123",
			body:     `{"name":"operations/123","done":true,"response":{"results":[{"alternatives":[{"transcript":"hello world","confidence":0.93}]}]}}`,
			wantPath: "/v1/operations/123",
			wantDone: true,
			wantResult: &TranscriptResult{Results: []ResultGroup{
				{Alternatives: []Alternative{{Transcript: "hello world", Confidence: 0.93}}},
			}},
		},
		{
			name:     "done without response",
			handle:   "operations/123",
			body:     `{"name":"operations/123","done":true}`,
			wantPath: "/v1/operations/123",
			wantDone: true,
		},
		{
			name:     "done with error",
			handle:   "operations/123",
			body:     `{"name":"operations/123","done":true,"error":{"code":3,"message":"bad audio"}}`,
			wantPath: "/v1/operations/123",
			wantDone: true,
			wantErr:  &OperationError{Code: 3, Message: "bad audio"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				assert.Equal(t, tt.wantPath, r.URL.Path)
				assert.Equal(t, testKey, r.URL.Query().Get("key"))
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			handle, err := NewJobHandle(tt.handle)
			require.NoError(t, err)

			status, err := newTestClient(srv, nil).GetStatus(context.Background(), handle)

			require.NoError(t, err)
			assert.Equal(t, tt.wantDone, status.Done)
			assert.Equal(t, tt.wantResult, status.Result)
			assert.Equal(t, tt.wantErr, status.Error)
			assert.Equal(t, tt.progress, status.ProgressPercent)
		})
	}
}

func TestClient_GetStatusFailures(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
	}{
		{name: "malformed json", status: http.StatusOK, body: `not json`},
		{name: "not found", status: http.StatusNotFound, body: `{}`, wantStatus: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			handle, _ := NewJobHandle("operations/9")
			status, err := newTestClient(srv, nil).GetStatus(context.Background(), handle)

			var pe *PollError
			require.True(t, errors.As(err, &pe))
			assert.Nil(t, status)
			assert.Equal(t, "operations/9", pe.Operation)
			assert.Equal(t, tt.wantStatus, pe.StatusCode)
		})
	}
}

func TestClient_GetStatusZeroHandle(t *testing.T) {
	c := NewClient(Config{APIKey: testKey})

	_, err := c.GetStatus(context.Background(), JobHandle{})

	var pe *PollError
	assert.True(t, errors.As(err, &pe))
}

func TestClient_NoRetryByDefault(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	handle, _ := NewJobHandle("operations/1")
	_, err := newTestClient(srv, nil).GetStatus(context.Background(), handle)

	assert.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClient_RetryPolicy(t *testing.T) {
	retry := &resilience.RetryConfig{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}

	t.Run("retries server errors", func(t *testing.T) {
		var calls int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&calls, 1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_, _ = io.WriteString(w, `{"name":"operations/7"}`)
		}))
		defer srv.Close()

		handle, err := newTestClient(srv, retry).Submit(context.Background(), testAsset(), RecognitionConfig{LanguageCode: "en-US"})

		require.NoError(t, err)
		assert.Equal(t, "operations/7", handle.Name())
		assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	})

	t.Run("does not retry client errors", func(t *testing.T) {
		var calls int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusBadRequest)
		}))
		defer srv.Close()

		_, err := newTestClient(srv, retry).Submit(context.Background(), testAsset(), RecognitionConfig{LanguageCode: "en-US"})

		var se *SubmissionError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, http.StatusBadRequest, se.StatusCode)
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})
}

func TestClient_CancelledRequest(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	handle, _ := NewJobHandle("operations/1")
	_, err := newTestClient(srv, nil).GetStatus(ctx, handle)

	var pe *PollError
	require.True(t, errors.As(err, &pe))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestNewJobHandle(t *testing.T) {
	_, err := NewJobHandle("")
	assert.Error(t, err)

	h, err := NewJobHandle("operations/abc")
	require.NoError(t, err)
	assert.Equal(t, "operations/abc", h.String())
}
