package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"sinevox/internal/waveform"
)

// transcriptionServer hears "hello" in every upload.
func transcriptionServer(t *testing.T) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"hello"}`))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestRunAndInspectCommands(t *testing.T) {
	srv, calls := transcriptionServer(t)
	base := t.TempDir()
	runsDir := filepath.Join(base, "runs")
	output := filepath.Join(base, "result.wav")
	ctx := context.Background()

	var out bytes.Buffer
	err := run(ctx, []string{
		"run",
		"--run-id", "cli-run",
		"--backend", "http",
		"--endpoint", srv.URL,
		"--pop", "4",
		"--maxgen", "2",
		"--mutation", "0.5",
		"--sample-rate", "1000",
		"--workers", "2",
		"--store", "memory",
		"--artifacts-dir", runsDir,
		"--out", output,
		"--log-level", "warn",
		"--log-output", filepath.Join(base, "run.log"),
	}, &out)
	if err != nil {
		t.Fatalf("run command: %v", err)
	}
	if calls.Load() == 0 {
		t.Fatal("expected transcription requests")
	}
	text := out.String()
	for _, want := range []string{"generation=1", "generation=2", "run_id=cli-run", "final_best_fitness=0.000000", "output=" + output} {
		if !strings.Contains(text, want) {
			t.Fatalf("run output missing %q:\n%s", want, text)
		}
	}

	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	buf, rate, err := waveform.DecodeWAV(data)
	if err != nil || rate != 1000 || len(buf) != 1000 {
		t.Fatalf("unexpected output wav: rate=%d samples=%d err=%v", rate, len(buf), err)
	}

	out.Reset()
	if err := run(ctx, []string{"runs", "--artifacts-dir", runsDir}, &out); err != nil {
		t.Fatalf("runs command: %v", err)
	}
	if !strings.Contains(out.String(), "run_id=cli-run") {
		t.Fatalf("unexpected runs output: %s", out.String())
	}

	out.Reset()
	if err := run(ctx, []string{"fitness", "--latest", "--store", "memory", "--artifacts-dir", runsDir, "--json"}, &out); err != nil {
		t.Fatalf("fitness command: %v", err)
	}
	var history []float64
	if err := json.Unmarshal(out.Bytes(), &history); err != nil || len(history) != 2 {
		t.Fatalf("unexpected fitness output %q: %v", out.String(), err)
	}

	out.Reset()
	if err := run(ctx, []string{"diagnostics", "--run-id", "cli-run", "--store", "memory", "--artifacts-dir", runsDir}, &out); err != nil {
		t.Fatalf("diagnostics command: %v", err)
	}
	if !strings.Contains(out.String(), "merged=8") {
		t.Fatalf("unexpected diagnostics output: %s", out.String())
	}

	out.Reset()
	if err := run(ctx, []string{"top", "--latest", "--store", "memory", "--artifacts-dir", runsDir, "--limit", "2"}, &out); err != nil {
		t.Fatalf("top command: %v", err)
	}
	if got := strings.Count(out.String(), "rank="); got != 2 {
		t.Fatalf("expected 2 top genomes, got %d:\n%s", got, out.String())
	}

	rendered := filepath.Join(base, "again.wav")
	out.Reset()
	if err := run(ctx, []string{"render", "--latest", "--store", "memory", "--artifacts-dir", runsDir, "--out", rendered}, &out); err != nil {
		t.Fatalf("render command: %v", err)
	}
	again, err := os.ReadFile(rendered)
	if err != nil || !bytes.Equal(again, data) {
		t.Fatalf("rendered best genome differs from run output: err=%v", err)
	}

	out.Reset()
	exportDir := filepath.Join(base, "exports")
	if err := run(ctx, []string{"export", "--latest", "--store", "memory", "--artifacts-dir", runsDir, "--out", exportDir}, &out); err != nil {
		t.Fatalf("export command: %v", err)
	}
	if _, err := os.Stat(filepath.Join(exportDir, "cli-run", "best.wav")); err != nil {
		t.Fatalf("expected exported wav: %v", err)
	}
}

func TestRunCommandRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	var out bytes.Buffer
	base := t.TempDir()

	cases := map[string][]string{
		"odd population":   {"run", "--backend", "http", "--endpoint", "http://unused", "--pop", "5", "--maxgen", "1", "--mutation", "0.1"},
		"no generations":   {"run", "--backend", "http", "--endpoint", "http://unused", "--pop", "4", "--maxgen", "0", "--mutation", "0.1"},
		"bad rate":         {"run", "--backend", "http", "--endpoint", "http://unused", "--pop", "4", "--maxgen", "1", "--mutation", "2"},
		"missing model":    {"run", "--pop", "4", "--maxgen", "1", "--mutation", "0.1"},
		"missing config":   {"run", "--config", filepath.Join(base, "missing.yaml")},
		"missing mutation": {"run", "--backend", "http", "--endpoint", "http://unused", "--pop", "4", "--maxgen", "1"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			args := append(args, "--artifacts-dir", filepath.Join(base, "runs"), "--store", "memory")
			if err := run(ctx, args, &out); err == nil {
				t.Fatalf("expected error for %v", args)
			}
		})
	}

	err := run(ctx, []string{"run", "--backend", "http", "--endpoint", "http://127.0.0.1:1", "--pop", "4", "--maxgen", "1", "--artifacts-dir", filepath.Join(base, "runs")}, &out)
	if err == nil || !strings.Contains(err.Error(), "mutation_rate is required") {
		t.Fatalf("expected startup rejection for missing mutation rate, got %v", err)
	}

	if err := run(ctx, nil, &out); err == nil {
		t.Fatal("expected missing command error")
	}
	if err := run(ctx, []string{"bogus"}, &out); err == nil {
		t.Fatal("expected unknown command error")
	}
	if err := run(ctx, []string{"fitness"}, &out); err == nil {
		t.Fatal("expected selector error")
	}
	if err := run(ctx, []string{"top", "--run-id", "x", "--latest"}, &out); err == nil {
		t.Fatal("expected conflicting selector error")
	}
}

func TestInitAndEmptyRuns(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), []string{"init", "--store", "memory"}, &out); err != nil {
		t.Fatalf("init: %v", err)
	}
	if !strings.Contains(out.String(), "initialized store=memory") {
		t.Fatalf("unexpected init output: %s", out.String())
	}

	out.Reset()
	if err := run(context.Background(), []string{"runs", "--artifacts-dir", t.TempDir()}, &out); err != nil {
		t.Fatalf("runs: %v", err)
	}
	if !strings.Contains(out.String(), "no runs found") {
		t.Fatalf("unexpected runs output: %s", out.String())
	}
}
