package model

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// Gene is a time-windowed sine tone. Start and Length are sample indices,
// Frequency is in Hz. Genes are compared structurally, so a genome holding
// them in a set collapses duplicates.
type Gene struct {
	Start     uint32 `json:"start"`
	Length    uint32 `json:"length"`
	Frequency uint32 `json:"frequency"`
}

func (g Gene) End() uint32 {
	return g.Start + g.Length
}

type GenomeRecord struct {
	VersionedRecord
	ID          string `json:"id"`
	Fingerprint string `json:"fingerprint"`
	Genes       []Gene `json:"genes"`
}

type RunRecord struct {
	VersionedRecord
	ID               string  `json:"id"`
	Target           string  `json:"target"`
	Backend          string  `json:"backend"`
	SampleRate       int     `json:"sample_rate"`
	DurationSeconds  int     `json:"duration_seconds"`
	PopulationSize   int     `json:"population_size"`
	Generations      int     `json:"generations"`
	CompletedGens    int     `json:"completed_generations"`
	MutationRate     float64 `json:"mutation_rate"`
	MutationPolicy   string  `json:"mutation_policy"`
	Parsimony        bool    `json:"parsimony"`
	Seed             int64   `json:"seed"`
	Workers          int     `json:"workers"`
	FinalBestFitness float64 `json:"final_best_fitness"`
	BestTranscript   string  `json:"best_transcript,omitempty"`
	Evaluations      int     `json:"evaluations"`
	CreatedAtUTC     string  `json:"created_at_utc"`
}

type GenerationDiagnostics struct {
	Generation     int     `json:"generation"`
	BestFitness    float64 `json:"best_fitness"`
	WorstFitness   float64 `json:"worst_fitness"`
	MeanFitness    float64 `json:"mean_fitness"`
	MeanGenomeSize float64 `json:"mean_genome_size"`
	Diversity      int     `json:"diversity"`
	Pairs          int     `json:"pairs"`
	Offspring      int     `json:"offspring"`
	MergedSize     int     `json:"merged_size"`
	Survivors      int     `json:"survivors"`
	Mutations      int     `json:"mutations"`
	Reverted       int     `json:"reverted"`
	Substitutions  int     `json:"substitutions"`
	Evaluations    int     `json:"evaluations"`
	BestTranscript string  `json:"best_transcript,omitempty"`
}

type TopGenomeRecord struct {
	Rank       int          `json:"rank"`
	Fitness    float64      `json:"fitness"`
	Distance   int          `json:"distance"`
	Transcript string       `json:"transcript,omitempty"`
	Genome     GenomeRecord `json:"genome"`
}
