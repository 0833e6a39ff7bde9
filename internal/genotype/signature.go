package genotype

import (
	"crypto/sha1"
	"encoding/binary"
	"encoding/hex"
)

// Fingerprint hashes the sorted gene list. Structurally equal genomes share
// a fingerprint.
func (ind *Individual) Fingerprint() string {
	h := sha1.New()
	var buf [12]byte
	for _, g := range ind.Genes() {
		binary.LittleEndian.PutUint32(buf[0:4], g.Start)
		binary.LittleEndian.PutUint32(buf[4:8], g.Length)
		binary.LittleEndian.PutUint32(buf[8:12], g.Frequency)
		_, _ = h.Write(buf[:])
	}
	return hex.EncodeToString(h.Sum(nil)[:8])
}

// GenomeSummary is a compact description of a genome for logs and reports.
type GenomeSummary struct {
	Genes        int     `json:"genes"`
	MinFrequency uint32  `json:"min_frequency"`
	MaxFrequency uint32  `json:"max_frequency"`
	Coverage     float64 `json:"coverage"`
}

// Summarize reports gene count, frequency range and the fraction of the
// n-sample buffer covered by at least one tone.
func (ind *Individual) Summarize(n int) GenomeSummary {
	summary := GenomeSummary{Genes: ind.Len()}
	if ind.Empty() || n <= 0 {
		return summary
	}
	covered := make([]bool, n)
	first := true
	for g := range ind.genes {
		if first || g.Frequency < summary.MinFrequency {
			summary.MinFrequency = g.Frequency
		}
		if first || g.Frequency > summary.MaxFrequency {
			summary.MaxFrequency = g.Frequency
		}
		first = false
		end := int64(g.Start) + int64(g.Length)
		if end > int64(n) {
			end = int64(n)
		}
		for t := int64(g.Start); t < end; t++ {
			covered[t] = true
		}
	}
	count := 0
	for _, c := range covered {
		if c {
			count++
		}
	}
	summary.Coverage = float64(count) / float64(n)
	return summary
}
