package recognizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"sync"
	"time"

	"sinevox/internal/waveform"
)

const defaultHTTPTimeout = 30 * time.Second

// HTTP sends each utterance as a WAV upload to a transcription service and
// expects {"text": ..., "alternatives": [{"text": ..., "confidence": ...}]}.
type HTTP struct {
	cfg    BackendConfig
	client *http.Client

	mu      sync.Mutex
	pending []int16
	closed  bool
}

func NewHTTP(cfg BackendConfig) *HTTP {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &HTTP{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (h *HTTP) AcceptWaveform(samples []int16) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	if err := checkLength(samples, h.cfg.Samples); err != nil {
		return err
	}
	h.pending = append(h.pending[:0], samples...)
	return nil
}

type httpTranscription struct {
	Text         string        `json:"text"`
	Alternatives []Alternative `json:"alternatives"`
}

func (h *HTTP) FinalResult() (Result, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return Result{}, ErrClosed
	}
	if len(h.pending) == 0 {
		return Result{}, nil
	}

	body, contentType, err := h.multipartBody()
	if err != nil {
		return Result{}, err
	}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, h.cfg.Endpoint, body)
	if err != nil {
		return Result{}, fmt.Errorf("create transcription request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if h.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.cfg.APIKey)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("transcription request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("read transcription response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, fmt.Errorf("transcription HTTP error %d: %s", resp.StatusCode, string(payload))
	}

	var out httpTranscription
	if err := json.Unmarshal(payload, &out); err != nil {
		return Result{}, fmt.Errorf("decode transcription response: %w", err)
	}
	return BestOf(out.Text, out.Alternatives), nil
}

func (h *HTTP) multipartBody() (io.Reader, string, error) {
	audio, err := waveform.EncodeWAV(h.pending, h.cfg.SampleRate)
	if err != nil {
		return nil, "", err
	}
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	fileWriter, err := writer.CreateFormFile("file", "utterance.wav")
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := fileWriter.Write(audio); err != nil {
		return nil, "", fmt.Errorf("write form file: %w", err)
	}
	if err := writer.WriteField("sample_rate", strconv.Itoa(h.cfg.SampleRate)); err != nil {
		return nil, "", err
	}
	if err := writer.WriteField("max_alternatives", strconv.Itoa(h.cfg.MaxAlternatives)); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return &buf, writer.FormDataContentType(), nil
}

func (h *HTTP) Reset() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pending = h.pending[:0]
	return nil
}

func (h *HTTP) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	h.client.CloseIdleConnections()
	return nil
}
