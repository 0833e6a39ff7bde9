package sinevox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"sinevox/internal/evo"
	"sinevox/internal/fitness"
	"sinevox/internal/genotype"
	"sinevox/internal/metrics"
	"sinevox/internal/model"
	"sinevox/internal/recognizer"
	"sinevox/internal/stats"
	"sinevox/internal/storage"
	"sinevox/internal/waveform"
)

const (
	defaultArtifactsDir = "runs"
	defaultExportsDir   = "exports"
	defaultDBPath       = "sinevox.db"
	defaultTopN         = 5
	defaultWorkers      = 4
)

// RecognizerFactory builds the recognizer pool for one run.
type RecognizerFactory func(cfg recognizer.BackendConfig, workers int) (*recognizer.Pool, error)

type Options struct {
	StoreKind    string
	DBPath       string
	ArtifactsDir string
	ExportsDir   string
	Logger       *slog.Logger
	// Registerer receives the search metrics. Metrics are disabled when nil.
	Registerer  prometheus.Registerer
	Recognizers RecognizerFactory
}

type Client struct {
	store       storage.Store
	initialized bool

	logger      *slog.Logger
	metrics     *metrics.Metrics
	recognizers RecognizerFactory

	artifactsDir string
	exportsDir   string
}

type GenerationDiagnostics = model.GenerationDiagnostics

type RunRequest struct {
	RunID  string
	Target string

	Backend         string
	ModelPath       string
	Endpoint        string
	APIKey          string
	Timeout         time.Duration
	MaxAlternatives int

	SampleRate      int
	DurationSeconds int
	MinWaves        int
	MaxWaves        int
	MinFreq         int
	MaxFreq         int
	MinLength       int
	MaxLength       int

	PopulationSize int
	Generations    int
	MutationRate   float64
	MutationPolicy string
	Seed           int64
	Workers        int
	StopOnMatch    bool

	MaxDistance      int
	Parsimony        bool
	GenomePenaltyCap int

	// Output receives the best individual as a WAV file when set.
	Output       string
	TopN         int
	OnGeneration func(GenerationDiagnostics)
}

type RunSummary struct {
	RunID             string
	ArtifactsDir      string
	Output            string
	BestByGeneration  []float64
	FinalBestFitness  float64
	BestDistance      int
	BestTranscript    string
	Found             bool
	Genome            genotype.GenomeSummary
	DominantFrequency float64
	Evaluations       int
	StoppedEarly      bool
	Trend             stats.RunSummary
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID            string
	CreatedAtUTC     string
	Target           string
	Backend          string
	Seed             int64
	Population       int
	Generations      int
	FinalBestFitness float64
	BestTranscript   string
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

type FitnessHistoryRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

type DiagnosticsRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

type TopGenomesRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

type RenderRequest struct {
	RunID  string
	Latest bool
	// Rank selects a stored top genome, 1 being the best.
	Rank   int
	Output string
}

type RenderSummary struct {
	RunID             string
	Rank              int
	Output            string
	Genes             int
	Silent            bool
	DominantFrequency float64
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	artifactsDir := opts.ArtifactsDir
	if artifactsDir == "" {
		artifactsDir = defaultArtifactsDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	factory := opts.Recognizers
	if factory == nil {
		factory = recognizer.New
	}

	var m *metrics.Metrics
	if opts.Registerer != nil {
		m = metrics.NewMetrics(opts.Registerer)
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:        store,
		logger:       logger,
		metrics:      m,
		recognizers:  factory,
		artifactsDir: artifactsDir,
		exportsDir:   exportsDir,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	return c.ensureInit(ctx)
}

func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	applyRunDefaults(&req)
	format := waveform.Format{SampleRate: req.SampleRate, DurationSeconds: req.DurationSeconds}
	if err := format.Validate(); err != nil {
		return RunSummary{}, err
	}
	bounds := requestBounds(req, format)
	operator, err := evo.ResolveOperator(req.MutationPolicy, bounds)
	if err != nil {
		return RunSummary{}, err
	}
	evaluator := fitness.NewEvaluator(req.Target, format)
	evaluator.MaxDistance = req.MaxDistance
	evaluator.Parsimony = req.Parsimony
	evaluator.GenomePenaltyCap = req.GenomePenaltyCap

	if err := c.ensureInit(ctx); err != nil {
		return RunSummary{}, err
	}

	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	logger := c.logger.With(slog.String("run_id", runID))

	var output *waveform.WAVFile
	if req.Output != "" {
		output, err = waveform.OpenWAVFile(req.Output)
		if err != nil {
			return RunSummary{}, fmt.Errorf("output: %w", err)
		}
		defer func() {
			if output != nil {
				output.Discard()
			}
		}()
	}

	pool, err := c.recognizers(recognizer.BackendConfig{
		Backend:         req.Backend,
		ModelPath:       req.ModelPath,
		Endpoint:        req.Endpoint,
		APIKey:          req.APIKey,
		Timeout:         req.Timeout,
		SampleRate:      format.SampleRate,
		Samples:         format.Samples(),
		MaxAlternatives: req.MaxAlternatives,
	}, req.Workers)
	if err != nil {
		return RunSummary{}, fmt.Errorf("recognizer: %w", err)
	}
	defer func() {
		if err := pool.Close(); err != nil {
			logger.Warn("close recognizers", slog.Any("error", err))
		}
	}()

	monitor, err := evo.NewPopulationMonitor(evo.MonitorConfig{
		PopulationSize: req.PopulationSize,
		Generations:    req.Generations,
		MutationRate:   req.MutationRate,
		Mutator:        operator,
		Bounds:         bounds,
		Evaluator:      evaluator,
		Recognizers:    pool,
		Seed:           req.Seed,
		StopOnMatch:    req.StopOnMatch,
		Logger:         logger,
		Metrics:        c.metrics,
		OnGeneration:   req.OnGeneration,
	})
	if err != nil {
		return RunSummary{}, err
	}

	logger.Info("search started",
		slog.String("target", req.Target),
		slog.Int("population", req.PopulationSize),
		slog.Int("generations", req.Generations),
		slog.String("mutation_policy", operator.Name()),
	)
	result, err := monitor.Run(ctx)
	if err != nil {
		return RunSummary{}, err
	}
	best, ok := result.Best()
	if !ok {
		return RunSummary{}, errors.New("search produced an empty population")
	}
	buf, err := best.Individual.Render(format.Samples())
	if err != nil {
		return RunSummary{}, fmt.Errorf("render best individual: %w", err)
	}
	if output != nil {
		err := output.Write(buf, format.SampleRate)
		output = nil
		if err != nil {
			return RunSummary{}, fmt.Errorf("write output: %w", err)
		}
	}

	run := model.RunRecord{
		VersionedRecord:  model.VersionedRecord{SchemaVersion: storage.CurrentSchemaVersion, CodecVersion: storage.CurrentCodecVersion},
		ID:               runID,
		Target:           req.Target,
		Backend:          req.Backend,
		SampleRate:       format.SampleRate,
		DurationSeconds:  format.DurationSeconds,
		PopulationSize:   req.PopulationSize,
		Generations:      req.Generations,
		CompletedGens:    len(result.Diagnostics),
		MutationRate:     req.MutationRate,
		MutationPolicy:   operator.Name(),
		Parsimony:        req.Parsimony,
		Seed:             req.Seed,
		Workers:          req.Workers,
		FinalBestFitness: best.Fitness,
		BestTranscript:   best.Transcript,
		Evaluations:      result.Evaluations,
		CreatedAtUTC:     time.Now().UTC().Format(time.RFC3339Nano),
	}
	top := topGenomes(runID, result.FinalPopulation, req.TopN)

	if err := c.persist(ctx, run, result, top); err != nil {
		return RunSummary{}, err
	}
	runDir, err := stats.WriteRunArtifacts(c.artifactsDir, stats.RunArtifacts{
		Run:              run,
		BestByGeneration: result.BestByGeneration,
		Diagnostics:      result.Diagnostics,
		TopGenomes:       top,
		Best:             buf,
	})
	if err != nil {
		return RunSummary{}, err
	}

	summary := RunSummary{
		RunID:             runID,
		ArtifactsDir:      filepath.Clean(runDir),
		Output:            req.Output,
		BestByGeneration:  append([]float64(nil), result.BestByGeneration...),
		FinalBestFitness:  best.Fitness,
		BestDistance:      best.Distance,
		BestTranscript:    best.Transcript,
		Found:             best.Found,
		Genome:            best.Individual.Summarize(format.Samples()),
		DominantFrequency: waveform.DominantFrequency(buf, format.SampleRate),
		Evaluations:       result.Evaluations,
		StoppedEarly:      result.StoppedEarly,
		Trend:             stats.Summarize(result.BestByGeneration),
	}
	logger.Info("search finished",
		slog.Float64("best_fitness", summary.FinalBestFitness),
		slog.String("best_transcript", summary.BestTranscript),
		slog.Int("evaluations", summary.Evaluations),
	)
	return summary, nil
}

func (c *Client) persist(ctx context.Context, run model.RunRecord, result evo.RunResult, top []model.TopGenomeRecord) error {
	if err := c.store.SaveRun(ctx, run); err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	for _, item := range top {
		if err := c.store.SaveGenome(ctx, item.Genome); err != nil {
			return fmt.Errorf("save genome %s: %w", item.Genome.ID, err)
		}
	}
	if err := c.store.SaveFitnessHistory(ctx, run.ID, result.BestByGeneration); err != nil {
		return fmt.Errorf("save fitness history: %w", err)
	}
	if err := c.store.SaveGenerationDiagnostics(ctx, run.ID, result.Diagnostics); err != nil {
		return fmt.Errorf("save diagnostics: %w", err)
	}
	if err := c.store.SaveTopGenomes(ctx, run.ID, top); err != nil {
		return fmt.Errorf("save top genomes: %w", err)
	}
	return nil
}

func (c *Client) Runs(_ context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	entries, err := stats.ReadRunIndex(c.artifactsDir)
	if err != nil {
		return nil, err
	}
	if len(entries) > req.Limit {
		entries = entries[:req.Limit]
	}

	out := make([]RunItem, 0, len(entries))
	for _, e := range entries {
		out = append(out, RunItem{
			RunID:            e.RunID,
			CreatedAtUTC:     e.CreatedAtUTC,
			Target:           e.Target,
			Backend:          e.Backend,
			Seed:             e.Seed,
			Population:       e.PopulationSize,
			Generations:      e.Generations,
			FinalBestFitness: e.FinalBestFitness,
			BestTranscript:   e.BestTranscript,
		})
	}
	return out, nil
}

func (c *Client) Export(_ context.Context, req ExportRequest) (ExportSummary, error) {
	runID, err := c.resolveRunID(req.RunID, req.Latest, "export")
	if err != nil {
		return ExportSummary{}, err
	}
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}
	exportedDir, err := stats.ExportRunArtifacts(c.artifactsDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}, nil
}

// FitnessHistory reads the best fitness per generation from the store,
// falling back to the run's artifacts for runs recorded by another process.
func (c *Client) FitnessHistory(ctx context.Context, req FitnessHistoryRequest) ([]float64, error) {
	if req.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	runID, err := c.resolveRunID(req.RunID, req.Latest, "fitness history")
	if err != nil {
		return nil, err
	}
	if err := c.ensureInit(ctx); err != nil {
		return nil, err
	}

	history, ok, err := c.store.GetFitnessHistory(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		history, err = c.readFitnessHistory(runID)
		if err != nil {
			return nil, err
		}
	}
	if req.Limit > 0 && len(history) > req.Limit {
		history = history[:req.Limit]
	}
	return append([]float64(nil), history...), nil
}

// readFitnessHistory prefers fitness_history.json and falls back to the
// best_fitness column of diagnostics.csv.
func (c *Client) readFitnessHistory(runID string) ([]float64, error) {
	stored, found, err := stats.ReadFitnessHistory(c.artifactsDir, runID)
	if err != nil {
		return nil, err
	}
	if found {
		return stored.BestByGeneration, nil
	}
	series, found, err := stats.ReadBestSeries(c.artifactsDir, runID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("fitness history not found for run id: %s", runID)
	}
	return series, nil
}

func (c *Client) Diagnostics(ctx context.Context, req DiagnosticsRequest) ([]GenerationDiagnostics, error) {
	if req.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	runID, err := c.resolveRunID(req.RunID, req.Latest, "diagnostics")
	if err != nil {
		return nil, err
	}
	if err := c.ensureInit(ctx); err != nil {
		return nil, err
	}

	diagnostics, ok, err := c.store.GetGenerationDiagnostics(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		diagnostics, ok, err = stats.ReadDiagnostics(c.artifactsDir, runID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("diagnostics not found for run id: %s", runID)
		}
	}
	if req.Limit > 0 && len(diagnostics) > req.Limit {
		diagnostics = diagnostics[:req.Limit]
	}
	out := make([]GenerationDiagnostics, len(diagnostics))
	copy(out, diagnostics)
	return out, nil
}

func (c *Client) TopGenomes(ctx context.Context, req TopGenomesRequest) ([]model.TopGenomeRecord, error) {
	if req.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	runID, err := c.resolveRunID(req.RunID, req.Latest, "top genomes")
	if err != nil {
		return nil, err
	}
	if err := c.ensureInit(ctx); err != nil {
		return nil, err
	}

	top, ok, err := c.loadTopGenomes(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("top genomes not found for run id: %s", runID)
	}
	if req.Limit > 0 && len(top) > req.Limit {
		top = top[:req.Limit]
	}
	out := make([]model.TopGenomeRecord, len(top))
	copy(out, top)
	return out, nil
}

// Render writes a stored top genome of a finished run as a WAV file.
func (c *Client) Render(ctx context.Context, req RenderRequest) (RenderSummary, error) {
	if req.Output == "" {
		return RenderSummary{}, errors.New("render requires an output path")
	}
	if req.Rank <= 0 {
		req.Rank = 1
	}
	runID, err := c.resolveRunID(req.RunID, req.Latest, "render")
	if err != nil {
		return RenderSummary{}, err
	}
	if err := c.ensureInit(ctx); err != nil {
		return RenderSummary{}, err
	}

	run, ok, err := c.store.GetRun(ctx, runID)
	if err != nil {
		return RenderSummary{}, err
	}
	if !ok {
		run, ok, err = stats.ReadRun(c.artifactsDir, runID)
		if err != nil {
			return RenderSummary{}, err
		}
		if !ok {
			return RenderSummary{}, fmt.Errorf("run not found: %s", runID)
		}
	}
	top, ok, err := c.loadTopGenomes(ctx, runID)
	if err != nil {
		return RenderSummary{}, err
	}
	if !ok || req.Rank > len(top) {
		if req.Rank == 1 {
			return c.renderBestWAV(runID, req.Output)
		}
		return RenderSummary{}, fmt.Errorf("run %s has no genome at rank %d", runID, req.Rank)
	}

	format := waveform.Format{SampleRate: run.SampleRate, DurationSeconds: run.DurationSeconds}
	if err := format.Validate(); err != nil {
		return RenderSummary{}, fmt.Errorf("run %s: %w", runID, err)
	}
	ind := genotype.FromRecord(top[req.Rank-1].Genome)
	buf, err := ind.Render(format.Samples())
	if err != nil {
		return RenderSummary{}, err
	}
	if err := waveform.WriteWAVFile(req.Output, buf, format.SampleRate); err != nil {
		return RenderSummary{}, err
	}
	return RenderSummary{
		RunID:             runID,
		Rank:              req.Rank,
		Output:            req.Output,
		Genes:             ind.Len(),
		Silent:            buf.IsSilent(),
		DominantFrequency: waveform.DominantFrequency(buf, format.SampleRate),
	}, nil
}

// renderBestWAV copies the champion from the run's best.wav when its genome
// records are gone. Genes stays 0 because the genome is unknown.
func (c *Client) renderBestWAV(runID, output string) (RenderSummary, error) {
	buf, rate, ok, err := stats.ReadBestWAV(c.artifactsDir, runID)
	if err != nil {
		return RenderSummary{}, err
	}
	if !ok {
		return RenderSummary{}, fmt.Errorf("run %s has no genome at rank 1", runID)
	}
	if err := waveform.WriteWAVFile(output, buf, rate); err != nil {
		return RenderSummary{}, err
	}
	return RenderSummary{
		RunID:             runID,
		Rank:              1,
		Output:            output,
		Silent:            buf.IsSilent(),
		DominantFrequency: waveform.DominantFrequency(buf, rate),
	}, nil
}

func (c *Client) loadTopGenomes(ctx context.Context, runID string) ([]model.TopGenomeRecord, bool, error) {
	top, ok, err := c.store.GetTopGenomes(ctx, runID)
	if err != nil || ok {
		return top, ok, err
	}
	return stats.ReadTopGenomes(c.artifactsDir, runID)
}

func (c *Client) resolveRunID(runID string, latest bool, what string) (string, error) {
	if runID != "" && latest {
		return "", errors.New("use either run id or latest")
	}
	if !latest {
		if runID == "" {
			return "", fmt.Errorf("%s requires run id or latest", what)
		}
		return runID, nil
	}
	entries, err := stats.ReadRunIndex(c.artifactsDir)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", errors.New("no runs available")
	}
	return entries[0].RunID, nil
}

func (c *Client) ensureInit(ctx context.Context) error {
	if c.initialized {
		return nil
	}
	if err := c.store.Init(ctx); err != nil {
		return err
	}
	c.initialized = true
	return nil
}

func applyRunDefaults(req *RunRequest) {
	if req.Target == "" {
		req.Target = fitness.DefaultTarget
	}
	if req.Backend == "" {
		req.Backend = recognizer.BackendVosk
	}
	if req.SampleRate <= 0 {
		req.SampleRate = waveform.DefaultSampleRate
	}
	if req.DurationSeconds <= 0 {
		req.DurationSeconds = waveform.DefaultDurationSeconds
	}
	if req.MinWaves <= 0 {
		req.MinWaves = genotype.DefaultMinWaves
	}
	if req.MaxWaves <= 0 {
		req.MaxWaves = genotype.DefaultMaxWaves
	}
	if req.MinFreq <= 0 {
		req.MinFreq = genotype.DefaultMinFreq
	}
	if req.MaxFreq <= 0 {
		req.MaxFreq = genotype.DefaultMaxFreq
	}
	if req.MutationPolicy == "" {
		req.MutationPolicy = evo.OperatorAddGene
	}
	if req.Workers <= 0 {
		req.Workers = defaultWorkers
	}
	if req.MaxDistance <= 0 {
		req.MaxDistance = fitness.DefaultMaxDistance
	}
	if req.GenomePenaltyCap <= 0 {
		req.GenomePenaltyCap = req.MaxWaves
	}
	if req.TopN <= 0 {
		req.TopN = defaultTopN
	}
}

func requestBounds(req RunRequest, format waveform.Format) genotype.Bounds {
	b := genotype.DefaultBounds(format)
	b.MinWaves, b.MaxWaves = req.MinWaves, req.MaxWaves
	b.MinFreq, b.MaxFreq = req.MinFreq, req.MaxFreq
	if req.MinLength > 0 {
		b.MinLength = req.MinLength
	}
	if req.MaxLength > 0 {
		b.MaxLength = req.MaxLength
	}
	return b
}

func topGenomes(runID string, ranked []evo.ScoredIndividual, n int) []model.TopGenomeRecord {
	if n > len(ranked) {
		n = len(ranked)
	}
	top := make([]model.TopGenomeRecord, 0, n)
	for i := 0; i < n; i++ {
		item := ranked[i]
		top = append(top, model.TopGenomeRecord{
			Rank:       i + 1,
			Fitness:    item.Fitness,
			Distance:   item.Distance,
			Transcript: item.Transcript,
			Genome:     item.Individual.Record(fmt.Sprintf("%s-%d", runID, i+1)),
		})
	}
	return top
}
