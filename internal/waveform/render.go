package waveform

import (
	"fmt"
	"math"

	"sinevox/internal/model"
)

// RenderGene draws a single tone into a fresh buffer of n samples. The sine
// argument is 2·frequency·t with t the raw sample index; the tone character
// depends on that and it must not be rescaled by the sample rate.
func RenderGene(gene model.Gene, n int) Buffer {
	buf := Zero(n)
	start, end := window(gene, n)
	freq := float64(gene.Frequency)
	for t := start; t < end; t++ {
		buf[t] = tone(freq, t)
	}
	return buf
}

// Combine mixes buffers by averaging: the sum of each sample is
// divided (truncating toward zero) by the number of buffers and clamped to
// the int16 range.
func Combine(buffers []Buffer) (Buffer, error) {
	if len(buffers) == 0 {
		return nil, ErrNoBuffers
	}
	n := len(buffers[0])
	sums := make([]int64, n)
	for i, buf := range buffers {
		if len(buf) != n {
			return nil, fmt.Errorf("%w: buffer %d has %d samples, want %d", ErrLengthMismatch, i, len(buf), n)
		}
		for j, s := range buf {
			sums[j] += int64(s)
		}
	}
	count := int64(len(buffers))
	out := Zero(n)
	for j, sum := range sums {
		out[j] = clamp(sum / count)
	}
	return out, nil
}

// Render renders every gene independently and combines the results. It
// accumulates directly instead of materializing one buffer per gene; the
// output is identical to Combine over RenderGene. An empty gene list renders
// as silence.
func Render(genes []model.Gene, n int) (Buffer, error) {
	if len(genes) == 0 {
		return Zero(n), nil
	}
	sums := make([]int64, n)
	for _, gene := range genes {
		start, end := window(gene, n)
		freq := float64(gene.Frequency)
		for t := start; t < end; t++ {
			sums[t] += int64(tone(freq, t))
		}
	}
	count := int64(len(genes))
	out := Zero(n)
	for j, sum := range sums {
		out[j] = clamp(sum / count)
	}
	return out, nil
}

func window(gene model.Gene, n int) (int, int) {
	start := int64(gene.Start)
	end := start + int64(gene.Length)
	if start > int64(n) {
		start = int64(n)
	}
	if end > int64(n) {
		end = int64(n)
	}
	return int(start), int(end)
}

func tone(freq float64, t int) int16 {
	return int16(math.Round(math.Sin(2*freq*float64(t)) * Amplitude))
}

func clamp(v int64) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
