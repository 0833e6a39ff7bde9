package stats

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"sinevox/internal/model"
	"sinevox/internal/waveform"
)

const (
	runIndexFile        = "run_index.json"
	configFile          = "config.json"
	fitnessHistoryFile  = "fitness_history.json"
	diagnosticsFile     = "diagnostics.json"
	diagnosticsCSVFile  = "diagnostics.csv"
	topGenomesFile      = "top_genomes.json"
	bestWAVFile         = "best.wav"
	diagnosticsCSVWidth = 15
)

type RunArtifacts struct {
	Run              model.RunRecord
	BestByGeneration []float64
	Diagnostics      []model.GenerationDiagnostics
	TopGenomes       []model.TopGenomeRecord
	// Best is the rendered champion; best.wav is skipped when it is empty.
	Best waveform.Buffer
}

type FitnessHistory struct {
	BestByGeneration []float64 `json:"best_by_generation"`
	FinalBestFitness float64   `json:"final_best_fitness"`
}

type RunIndexEntry struct {
	RunID            string  `json:"run_id"`
	Target           string  `json:"target"`
	Backend          string  `json:"backend"`
	PopulationSize   int     `json:"population_size"`
	Generations      int     `json:"generations"`
	Seed             int64   `json:"seed"`
	Workers          int     `json:"workers"`
	FinalBestFitness float64 `json:"final_best_fitness"`
	BestTranscript   string  `json:"best_transcript,omitempty"`
	CreatedAtUTC     string  `json:"created_at_utc"`
}

func IndexEntry(run model.RunRecord) RunIndexEntry {
	return RunIndexEntry{
		RunID:            run.ID,
		Target:           run.Target,
		Backend:          run.Backend,
		PopulationSize:   run.PopulationSize,
		Generations:      run.CompletedGens,
		Seed:             run.Seed,
		Workers:          run.Workers,
		FinalBestFitness: run.FinalBestFitness,
		BestTranscript:   run.BestTranscript,
		CreatedAtUTC:     run.CreatedAtUTC,
	}
}

// WriteRunArtifacts writes one directory per run under baseDir and records
// the run in baseDir's run index. It returns the run directory.
func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Run.ID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.Run.ID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, configFile), artifacts.Run); err != nil {
		return "", err
	}
	history := FitnessHistory{
		BestByGeneration: nonNil(artifacts.BestByGeneration),
		FinalBestFitness: artifacts.Run.FinalBestFitness,
	}
	if err := writeJSON(filepath.Join(runDir, fitnessHistoryFile), history); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, diagnosticsFile), nonNil(artifacts.Diagnostics)); err != nil {
		return "", err
	}
	if err := WriteDiagnosticsCSV(filepath.Join(runDir, diagnosticsCSVFile), artifacts.Diagnostics); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, topGenomesFile), nonNil(artifacts.TopGenomes)); err != nil {
		return "", err
	}
	if len(artifacts.Best) > 0 {
		if err := waveform.WriteWAVFile(filepath.Join(runDir, bestWAVFile), artifacts.Best, artifacts.Run.SampleRate); err != nil {
			return "", err
		}
	}

	if err := AppendRunIndex(baseDir, IndexEntry(artifacts.Run)); err != nil {
		return "", err
	}
	return runDir, nil
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := readIndexFile(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ReadRunIndex returns the indexed runs, newest first. Entries with equal
// timestamps keep the later-appended one first.
func ReadRunIndex(baseDir string) ([]RunIndexEntry, error) {
	entries, err := readIndexFile(baseDir)
	if err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

func readIndexFile(baseDir string) ([]RunIndexEntry, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, runIndexFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}
	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse run index: %w", err)
	}
	return entries, nil
}

func ReadRun(baseDir, runID string) (model.RunRecord, bool, error) {
	var run model.RunRecord
	ok, err := readJSON(filepath.Join(baseDir, runID, configFile), &run)
	return run, ok, err
}

func ReadFitnessHistory(baseDir, runID string) (FitnessHistory, bool, error) {
	var history FitnessHistory
	ok, err := readJSON(filepath.Join(baseDir, runID, fitnessHistoryFile), &history)
	return history, ok, err
}

func ReadTopGenomes(baseDir, runID string) ([]model.TopGenomeRecord, bool, error) {
	var top []model.TopGenomeRecord
	ok, err := readJSON(filepath.Join(baseDir, runID, topGenomesFile), &top)
	return top, ok, err
}

func ReadDiagnostics(baseDir, runID string) ([]model.GenerationDiagnostics, bool, error) {
	var diagnostics []model.GenerationDiagnostics
	ok, err := readJSON(filepath.Join(baseDir, runID, diagnosticsFile), &diagnostics)
	return diagnostics, ok, err
}

// ReadBestWAV decodes a run's best.wav.
func ReadBestWAV(baseDir, runID string) (waveform.Buffer, int, bool, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, runID, bestWAVFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, false, nil
		}
		return nil, 0, false, err
	}
	samples, rate, err := waveform.DecodeWAV(data)
	if err != nil {
		return nil, 0, false, fmt.Errorf("run %s: %w", runID, err)
	}
	return samples, rate, true, nil
}

// ExportRunArtifacts copies a run directory's files into outDir/<runID>.
func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}

	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	for _, file := range []string{configFile, fitnessHistoryFile, diagnosticsFile, diagnosticsCSVFile, topGenomesFile} {
		if err := copyFile(filepath.Join(src, file), filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}
	wavPath := filepath.Join(src, bestWAVFile)
	if _, err := os.Stat(wavPath); err == nil {
		if err := copyFile(wavPath, filepath.Join(dst, bestWAVFile)); err != nil {
			return "", err
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}
	return dst, nil
}

var diagnosticsHeader = []string{
	"generation", "best_fitness", "worst_fitness", "mean_fitness", "mean_genome_size",
	"diversity", "pairs", "offspring", "merged_size", "survivors",
	"mutations", "reverted", "substitutions", "evaluations", "best_transcript",
}

func WriteDiagnosticsCSV(path string, diagnostics []model.GenerationDiagnostics) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(diagnosticsHeader); err != nil {
		return err
	}
	for _, d := range diagnostics {
		if err := writer.Write([]string{
			strconv.Itoa(d.Generation),
			formatFloat(d.BestFitness),
			formatFloat(d.WorstFitness),
			formatFloat(d.MeanFitness),
			formatFloat(d.MeanGenomeSize),
			strconv.Itoa(d.Diversity),
			strconv.Itoa(d.Pairs),
			strconv.Itoa(d.Offspring),
			strconv.Itoa(d.MergedSize),
			strconv.Itoa(d.Survivors),
			strconv.Itoa(d.Mutations),
			strconv.Itoa(d.Reverted),
			strconv.Itoa(d.Substitutions),
			strconv.Itoa(d.Evaluations),
			d.BestTranscript,
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadBestSeries reads the best_fitness column of a run's diagnostics.csv.
func ReadBestSeries(baseDir, runID string) ([]float64, bool, error) {
	file, err := os.Open(filepath.Join(baseDir, runID, diagnosticsCSVFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = diagnosticsCSVWidth
	if _, err := reader.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return []float64{}, true, nil
		}
		return nil, false, err
	}

	series := make([]float64, 0, 128)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, false, err
		}
		value, err := strconv.ParseFloat(record[1], 64)
		if err != nil {
			return nil, false, err
		}
		series = append(series, value)
	}
	return series, true, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func readJSON(path string, out any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, err
	}
	return true, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
