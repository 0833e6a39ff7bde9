package waveform

import (
	"errors"
	"fmt"
)

const (
	DefaultSampleRate      = 16000
	DefaultDurationSeconds = 1

	// Amplitude is the peak value of a rendered tone, 2^15 - 1.
	Amplitude = 1<<15 - 1
)

var (
	ErrNoBuffers      = errors.New("no buffers to combine")
	ErrLengthMismatch = errors.New("buffer length mismatch")
)

// Format fixes the sample rate and duration of every buffer in a run.
type Format struct {
	SampleRate      int `json:"sample_rate" yaml:"sample_rate"`
	DurationSeconds int `json:"duration_seconds" yaml:"duration_seconds"`
}

func DefaultFormat() Format {
	return Format{SampleRate: DefaultSampleRate, DurationSeconds: DefaultDurationSeconds}
}

func (f Format) Samples() int {
	return f.SampleRate * f.DurationSeconds
}

func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be > 0, got %d", f.SampleRate)
	}
	if f.DurationSeconds <= 0 {
		return fmt.Errorf("duration must be > 0 seconds, got %d", f.DurationSeconds)
	}
	return nil
}

// Buffer is a mono block of signed 16-bit samples.
type Buffer []int16

func Zero(n int) Buffer {
	return make(Buffer, n)
}

func (b Buffer) IsSilent() bool {
	for _, s := range b {
		if s != 0 {
			return false
		}
	}
	return true
}
