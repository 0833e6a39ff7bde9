package recognizer

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sinevox/internal/waveform"
)

type closeCounter struct {
	*FuncRecognizer
	closed *atomic.Int32
}

func (c closeCounter) Close() error {
	c.closed.Add(1)
	return c.FuncRecognizer.Close()
}

func TestBestOf(t *testing.T) {
	res := BestOf("fallback", []Alternative{{Text: " hello ", Confidence: 0.5}, {Text: "yellow", Confidence: 0.2}})
	assert.Equal(t, "hello", res.Text)
	assert.True(t, res.Found)

	// a silent top guess is not replaced by the runner-up or by text
	res = BestOf("fallback", []Alternative{{Text: "", Confidence: 0.9}, {Text: "hello", Confidence: 0.1}})
	assert.Empty(t, res.Text)
	assert.False(t, res.Found)
	assert.Len(t, res.Alternatives, 2)

	res = BestOf("  hi ", nil)
	assert.Equal(t, "hi", res.Text)
	assert.True(t, res.Found)

	res = BestOf("", []Alternative{{Text: ""}})
	assert.False(t, res.Found)
}

func TestFuncRecognizerProtocol(t *testing.T) {
	rec := NewFunc(4, func(samples []int16) (Result, error) {
		if len(samples) != 4 {
			return Result{}, errors.New("utterances interleaved")
		}
		return Result{Text: "hello", Found: true}, nil
	})

	require.ErrorIs(t, rec.AcceptWaveform([]int16{1, 2}), ErrBufferLength)

	require.NoError(t, rec.AcceptWaveform([]int16{1, 2, 3, 4}))
	res, err := rec.FinalResult()
	require.NoError(t, err)
	assert.Equal(t, "hello", res.Text)
	require.NoError(t, rec.Reset())

	require.NoError(t, rec.AcceptWaveform([]int16{1, 2, 3, 4}))
	require.NoError(t, rec.AcceptWaveform([]int16{1, 2, 3, 4}))
	_, err = rec.FinalResult()
	require.Error(t, err, "missing reset must be visible to the transcriber")
	assert.Equal(t, 2, rec.Calls())

	require.NoError(t, rec.Close())
	require.ErrorIs(t, rec.AcceptWaveform([]int16{1, 2, 3, 4}), ErrClosed)
}

func TestPoolAcquireRelease(t *testing.T) {
	var closed atomic.Int32
	pool, err := NewPool(2, func(int) (Recognizer, error) {
		return &closeCounter{FuncRecognizer: NewFunc(0, Silent), closed: &closed}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, pool.Size())

	ctx := context.Background()
	a, err := pool.Acquire(ctx)
	require.NoError(t, err)
	b, err := pool.Acquire(ctx)
	require.NoError(t, err)
	assert.NotSame(t, a, b)

	timeout, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = pool.Acquire(timeout)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	pool.Release(a)
	again, err := pool.Acquire(ctx)
	require.NoError(t, err)
	assert.Same(t, a, again)
	pool.Release(again)
	pool.Release(b)

	var shared atomic.Int32
	pool.OnClose(func() error {
		shared.Add(1)
		return nil
	})
	require.NoError(t, pool.Close())
	require.NoError(t, pool.Close())
	assert.Equal(t, int32(2), closed.Load())
	assert.Equal(t, int32(1), shared.Load())

	_, err = pool.Acquire(ctx)
	require.ErrorIs(t, err, ErrClosed)
}

func TestPoolFactoryFailureClosesCreated(t *testing.T) {
	var closed atomic.Int32
	_, err := NewPool(3, func(slot int) (Recognizer, error) {
		if slot == 2 {
			return nil, errors.New("boom")
		}
		return &closeCounter{FuncRecognizer: NewFunc(0, Silent), closed: &closed}, nil
	})
	require.Error(t, err)
	assert.Equal(t, int32(2), closed.Load())
}

func TestPoolValidation(t *testing.T) {
	_, err := NewPool(0, func(int) (Recognizer, error) { return NewFunc(0, Silent), nil })
	require.Error(t, err)
	_, err = NewPool(1, nil)
	require.Error(t, err)
}

func TestNewBackendValidation(t *testing.T) {
	_, err := New(BackendConfig{Backend: BackendVosk, SampleRate: 16000}, 1)
	require.Error(t, err, "model path required")

	_, err = New(BackendConfig{Backend: BackendVosk, ModelPath: filepath.Join(t.TempDir(), "missing"), SampleRate: 16000}, 1)
	require.Error(t, err, "unreadable model path")

	_, err = New(BackendConfig{Backend: BackendHTTP, SampleRate: 16000}, 1)
	require.Error(t, err, "endpoint required")

	_, err = New(BackendConfig{Backend: "whisper", SampleRate: 16000}, 1)
	require.Error(t, err)

	_, err = New(BackendConfig{Backend: BackendHTTP, Endpoint: "http://localhost"}, 1)
	require.Error(t, err, "sample rate required")
}

func TestHTTPRecognizer(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if r.Header.Get("Authorization") != "Bearer secret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(file)
		samples, rate, err := waveform.DecodeWAV(data)
		if err != nil || rate != 8000 || len(samples) != 8 {
			http.Error(w, "bad audio", http.StatusBadRequest)
			return
		}
		if samples[0] == 0 {
			_, _ = w.Write([]byte(`{"text": ""}`))
			return
		}
		_, _ = w.Write([]byte(`{"alternatives": [{"text": "hello", "confidence": 0.9}, {"text": "yellow"}]}`))
	}))
	defer srv.Close()

	pool, err := New(BackendConfig{
		Backend:    BackendHTTP,
		Endpoint:   srv.URL,
		APIKey:     "secret",
		SampleRate: 8000,
		Samples:    8,
	}, 1)
	require.NoError(t, err)
	defer pool.Close()

	rec, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	defer pool.Release(rec)

	require.NoError(t, rec.AcceptWaveform([]int16{5, 1, 1, 1, 1, 1, 1, 1}))
	res, err := rec.FinalResult()
	require.NoError(t, err)
	assert.Equal(t, "hello", res.Text)
	assert.True(t, res.Found)
	require.NoError(t, rec.Reset())

	require.NoError(t, rec.AcceptWaveform(make([]int16, 8)))
	res, err = rec.FinalResult()
	require.NoError(t, err)
	assert.False(t, res.Found)
	require.NoError(t, rec.Reset())

	require.ErrorIs(t, rec.AcceptWaveform(make([]int16, 7)), ErrBufferLength)
	assert.Equal(t, int32(2), requests.Load())
}

func TestHTTPRecognizerServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	rec := NewHTTP(BackendConfig{Endpoint: srv.URL, SampleRate: 8000, Samples: 2})
	require.NoError(t, rec.AcceptWaveform([]int16{1, 2}))
	_, err := rec.FinalResult()
	require.Error(t, err)
	require.NoError(t, rec.Close())
}
