package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"

	"sinevox/internal/config"
	"sinevox/internal/storage"
	"sinevox/pkg/sinevox"
)

const (
	artifactsDir = "runs"
	exportsDir   = "exports"
	defaultDB    = "sinevox.db"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "run":
		return runRun(ctx, args[1:], out)
	case "init":
		return runInit(ctx, args[1:], out)
	case "runs":
		return runRuns(ctx, args[1:], out)
	case "fitness":
		return runFitness(ctx, args[1:], out)
	case "diagnostics":
		return runDiagnostics(ctx, args[1:], out)
	case "top":
		return runTop(ctx, args[1:], out)
	case "render":
		return runRender(ctx, args[1:], out)
	case "export":
		return runExport(ctx, args[1:], out)
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func runInit(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", defaultDB, "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := sinevox.New(sinevox.Options{StoreKind: *storeKind, DBPath: *dbPath, ArtifactsDir: artifactsDir})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	if err := client.Init(ctx); err != nil {
		return err
	}

	fmt.Fprintf(out, "initialized store=%s\n", *storeKind)
	return nil
}

func runRun(ctx context.Context, args []string, out io.Writer) error {
	defaults := config.Default()
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional YAML config path")
	runID := fs.String("run-id", "", "explicit run id (optional)")
	modelPath := fs.String("model", defaults.Recognizer.ModelPath, "path to the vosk model directory")
	backend := fs.String("backend", defaults.Recognizer.Backend, "recognizer backend: vosk|http")
	endpoint := fs.String("endpoint", defaults.Recognizer.Endpoint, "transcription endpoint for the http backend")
	target := fs.String("target", defaults.Fitness.Target, "phrase the search should make the recognizer hear")
	population := fs.Int("pop", defaults.Search.PopulationSize, "population size (even, > 0)")
	mutation := fs.Float64("mutation", defaults.Search.Rate(), "mutation rate in [0, 1] (required)")
	mutationPolicy := fs.String("mutation-policy", defaults.Search.MutationPolicy, "mutation operator: add_gene|perturb_frequency")
	generations := fs.Int("maxgen", defaults.Search.Generations, "maximum generation count")
	seed := fs.Int64("seed", defaults.Search.Seed, "rng seed")
	workers := fs.Int("workers", defaults.Search.Workers, "concurrent recognizer instances")
	stopOnMatch := fs.Bool("stop-on-match", defaults.Search.StopOnMatch, "stop once the target is heard exactly")
	parsimony := fs.Bool("parsimony", defaults.Fitness.Parsimony, "penalize large genomes")
	sampleRate := fs.Int("sample-rate", defaults.Audio.SampleRate, "sample rate in Hz")
	duration := fs.Int("duration", defaults.Audio.DurationSeconds, "buffer duration in seconds")
	output := fs.String("out", defaults.Search.Output, "WAV file receiving the best individual")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", defaults.Storage.DBPath, "sqlite database path")
	runsDir := fs.String("artifacts-dir", defaults.Storage.ArtifactsDir, "run artifacts directory")
	metricsAddr := fs.String("metrics-addr", defaults.Metrics.Address, "serve Prometheus metrics on this address while running")
	logLevel := fs.String("log-level", defaults.Logging.Level, "log level: debug|info|warn|error")
	logFormat := fs.String("log-format", defaults.Logging.Format, "log format: text|json|auto")
	logOutput := fs.String("log-output", defaults.Logging.Output, "log output: stdout|stderr|file path")
	quiet := fs.Bool("quiet", false, "do not print per-generation progress")
	if err := fs.Parse(args); err != nil {
		return err
	}
	setFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})

	cfg, err := loadOrDefaultConfig(*configPath)
	if err != nil {
		return err
	}
	if *configPath == "" {
		// flag defaults are config defaults, so only the store needs adjusting
		cfg.Storage.Kind = *storeKind
	}
	if err := overrideFromFlags(&cfg, setFlags, map[string]any{
		"model":           *modelPath,
		"backend":         *backend,
		"endpoint":        *endpoint,
		"target":          *target,
		"pop":             *population,
		"mutation":        *mutation,
		"mutation-policy": *mutationPolicy,
		"maxgen":          *generations,
		"seed":            *seed,
		"workers":         *workers,
		"stop-on-match":   *stopOnMatch,
		"parsimony":       *parsimony,
		"sample-rate":     *sampleRate,
		"duration":        *duration,
		"out":             *output,
		"store":           *storeKind,
		"db-path":         *dbPath,
		"artifacts-dir":   *runsDir,
		"metrics-addr":    *metricsAddr,
		"log-level":       *logLevel,
		"log-format":      *logFormat,
		"log-output":      *logOutput,
	}); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, closeLog, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() {
		_ = closeLog()
	}()

	var registerer prometheus.Registerer
	if cfg.Metrics.Address != "" {
		reg := prometheus.NewRegistry()
		registerer = reg
		srv := startMetricsServer(cfg.Metrics.Address, reg, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	client, err := sinevox.New(sinevox.Options{
		StoreKind:    cfg.Storage.Kind,
		DBPath:       cfg.Storage.DBPath,
		ArtifactsDir: cfg.Storage.ArtifactsDir,
		ExportsDir:   exportsDir,
		Logger:       logger,
		Registerer:   registerer,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	req := requestFromConfig(cfg)
	req.RunID = *runID
	if !*quiet {
		req.OnGeneration = func(d sinevox.GenerationDiagnostics) {
			fmt.Fprintf(out, "generation=%d best_fitness=%.6f worst_fitness=%.6f diversity=%d best_transcript=%q\n",
				d.Generation, d.BestFitness, d.WorstFitness, d.Diversity, d.BestTranscript)
		}
	}

	summary, err := client.Run(ctx, req)
	if err != nil {
		return err
	}
	printRunSummary(out, cfg, summary)
	return nil
}

func printRunSummary(out io.Writer, cfg config.Config, s sinevox.RunSummary) {
	heading := color.New(color.FgCyan, color.Bold)
	good := color.New(color.FgGreen, color.Bold)
	bad := color.New(color.FgYellow)

	heading.Fprintf(out, "run completed run_id=%s target=%q pop=%d gens=%d seed=%d\n",
		s.RunID, cfg.Fitness.Target, cfg.Search.PopulationSize, len(s.BestByGeneration), cfg.Search.Seed)
	verdict := bad
	if s.FinalBestFitness == 0 {
		verdict = good
	}
	verdict.Fprintf(out, "final_best_fitness=%.6f distance=%d transcript=%q\n", s.FinalBestFitness, s.BestDistance, s.BestTranscript)
	fmt.Fprintf(out, "genes=%d frequency_range=%s-%s coverage=%.1f%% dominant_frequency=%s\n",
		s.Genome.Genes,
		humanize.SIWithDigits(float64(s.Genome.MinFrequency), 1, "Hz"),
		humanize.SIWithDigits(float64(s.Genome.MaxFrequency), 1, "Hz"),
		100*s.Genome.Coverage,
		humanize.SIWithDigits(s.DominantFrequency, 1, "Hz"),
	)
	fmt.Fprintf(out, "evaluations=%s improvement=%.6f stopped_early=%t\n", humanize.Comma(int64(s.Evaluations)), s.Trend.Improvement, s.StoppedEarly)
	if s.Output != "" {
		size := "?"
		if info, err := os.Stat(s.Output); err == nil {
			size = humanize.Bytes(uint64(info.Size()))
		}
		fmt.Fprintf(out, "output=%s size=%s\n", s.Output, size)
	}
	fmt.Fprintf(out, "artifacts_dir=%s\n", filepath.Clean(s.ArtifactsDir))
}

func runRuns(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "max runs to list")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	runsDir := fs.String("artifacts-dir", artifactsDir, "run artifacts directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	client, err := sinevox.New(sinevox.Options{StoreKind: "memory", ArtifactsDir: *runsDir})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	runs, err := client.Runs(ctx, sinevox.RunsRequest{Limit: *limit})
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "no runs found")
		return nil
	}
	if *jsonOut {
		return writeJSON(out, runs)
	}

	for _, r := range runs {
		created := r.CreatedAtUTC
		if ts, err := time.Parse(time.RFC3339Nano, r.CreatedAtUTC); err == nil {
			created = humanize.Time(ts)
		}
		fmt.Fprintf(out, "run_id=%s created=%s target=%q backend=%s seed=%d pop=%d gens=%d final_best_fitness=%.6f best_transcript=%q\n",
			r.RunID,
			created,
			r.Target,
			r.Backend,
			r.Seed,
			r.Population,
			r.Generations,
			r.FinalBestFitness,
			r.BestTranscript,
		)
	}
	return nil
}

func runFitness(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("fitness", flag.ContinueOnError)
	sel := bindRunSelector(fs, 50)
	jsonOut := fs.Bool("json", false, "emit fitness history as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := sel.validate("fitness"); err != nil {
		return err
	}

	client, err := sel.client()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	history, err := client.FitnessHistory(ctx, sinevox.FitnessHistoryRequest{
		RunID:  *sel.runID,
		Latest: *sel.latest,
		Limit:  sel.limitOrAll(),
	})
	if err != nil {
		return err
	}
	if len(history) == 0 {
		fmt.Fprintln(out, "no fitness history")
		return nil
	}
	if *jsonOut {
		return writeJSON(out, history)
	}

	for i, best := range history {
		fmt.Fprintf(out, "generation=%d best_fitness=%.6f\n", i+1, best)
	}
	return nil
}

func runDiagnostics(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("diagnostics", flag.ContinueOnError)
	sel := bindRunSelector(fs, 50)
	jsonOut := fs.Bool("json", false, "emit diagnostics as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := sel.validate("diagnostics"); err != nil {
		return err
	}

	client, err := sel.client()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	diagnostics, err := client.Diagnostics(ctx, sinevox.DiagnosticsRequest{
		RunID:  *sel.runID,
		Latest: *sel.latest,
		Limit:  sel.limitOrAll(),
	})
	if err != nil {
		return err
	}
	if len(diagnostics) == 0 {
		fmt.Fprintln(out, "no diagnostics")
		return nil
	}
	if *jsonOut {
		return writeJSON(out, diagnostics)
	}

	for _, d := range diagnostics {
		fmt.Fprintf(out, "generation=%d best=%.6f worst=%.6f mean=%.6f mean_genes=%.1f diversity=%d pairs=%d offspring=%d merged=%d survivors=%d mutations=%d reverted=%d substitutions=%d evaluations=%d best_transcript=%q\n",
			d.Generation,
			d.BestFitness,
			d.WorstFitness,
			d.MeanFitness,
			d.MeanGenomeSize,
			d.Diversity,
			d.Pairs,
			d.Offspring,
			d.MergedSize,
			d.Survivors,
			d.Mutations,
			d.Reverted,
			d.Substitutions,
			d.Evaluations,
			d.BestTranscript,
		)
	}
	return nil
}

func runTop(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("top", flag.ContinueOnError)
	sel := bindRunSelector(fs, 5)
	jsonOut := fs.Bool("json", false, "emit top genomes as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := sel.validate("top"); err != nil {
		return err
	}

	client, err := sel.client()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	top, err := client.TopGenomes(ctx, sinevox.TopGenomesRequest{
		RunID:  *sel.runID,
		Latest: *sel.latest,
		Limit:  sel.limitOrAll(),
	})
	if err != nil {
		return err
	}
	if len(top) == 0 {
		fmt.Fprintln(out, "no top genomes")
		return nil
	}
	if *jsonOut {
		return writeJSON(out, top)
	}

	for _, item := range top {
		fmt.Fprintf(out, "rank=%d fitness=%.6f distance=%d genes=%d genome_id=%s fingerprint=%s transcript=%q\n",
			item.Rank,
			item.Fitness,
			item.Distance,
			len(item.Genome.Genes),
			item.Genome.ID,
			item.Genome.Fingerprint,
			item.Transcript,
		)
	}
	return nil
}

func runRender(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	sel := bindRunSelector(fs, 0)
	rank := fs.Int("rank", 1, "top genome rank to render")
	output := fs.String("out", "result.wav", "WAV file to write")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := sel.validate("render"); err != nil {
		return err
	}

	client, err := sel.client()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Render(ctx, sinevox.RenderRequest{
		RunID:  *sel.runID,
		Latest: *sel.latest,
		Rank:   *rank,
		Output: *output,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "rendered run_id=%s rank=%d genes=%d silent=%t dominant_frequency=%s out=%s\n",
		summary.RunID,
		summary.Rank,
		summary.Genes,
		summary.Silent,
		humanize.SIWithDigits(summary.DominantFrequency, 1, "Hz"),
		summary.Output,
	)
	return nil
}

func runExport(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	sel := bindRunSelector(fs, 0)
	outDir := fs.String("out", exportsDir, "export output directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := sel.validate("export"); err != nil {
		return err
	}

	client, err := sel.client()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	exported, err := client.Export(ctx, sinevox.ExportRequest{
		RunID:  *sel.runID,
		Latest: *sel.latest,
		OutDir: *outDir,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "exported run_id=%s dir=%s\n", exported.RunID, exported.Directory)
	return nil
}

// runSelector holds the flags shared by commands that read one stored run.
type runSelector struct {
	runID     *string
	latest    *bool
	limit     *int
	storeKind *string
	dbPath    *string
	runsDir   *string
}

func bindRunSelector(fs *flag.FlagSet, defaultLimit int) runSelector {
	sel := runSelector{
		runID:     fs.String("run-id", "", "run id"),
		latest:    fs.Bool("latest", false, "use the most recent run from the run index"),
		storeKind: fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite"),
		dbPath:    fs.String("db-path", defaultDB, "sqlite database path"),
		runsDir:   fs.String("artifacts-dir", artifactsDir, "run artifacts directory"),
	}
	if defaultLimit > 0 {
		sel.limit = fs.Int("limit", defaultLimit, "max rows to print (<=0 for all)")
	}
	return sel
}

func (s runSelector) validate(command string) error {
	if *s.runID != "" && *s.latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *s.runID == "" && !*s.latest {
		return fmt.Errorf("%s requires --run-id or --latest", command)
	}
	return nil
}

func (s runSelector) limitOrAll() int {
	if s.limit == nil || *s.limit < 0 {
		return 0
	}
	return *s.limit
}

func (s runSelector) client() (*sinevox.Client, error) {
	return sinevox.New(sinevox.Options{
		StoreKind:    *s.storeKind,
		DBPath:       *s.dbPath,
		ArtifactsDir: *s.runsDir,
		ExportsDir:   exportsDir,
	})
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: sinevoxctl <run|init|runs|fitness|diagnostics|top|render|export> [flags]", msg)
}
