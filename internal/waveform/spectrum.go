package waveform

import (
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

// DominantFrequency returns the frequency in Hz of the strongest non-DC bin
// of the buffer's spectrum. Silence yields 0.
func DominantFrequency(buf Buffer, sampleRate int) float64 {
	if len(buf) < 2 || sampleRate <= 0 || buf.IsSilent() {
		return 0
	}
	frame := make([]float64, len(buf))
	for i, s := range buf {
		frame[i] = float64(s)
	}
	spectrum := fft.FFTReal(frame)

	bestBin := 0
	bestMag := 0.0
	for bin := 1; bin <= len(spectrum)/2; bin++ {
		mag := cmplx.Abs(spectrum[bin])
		if mag > bestMag {
			bestMag = mag
			bestBin = bin
		}
	}
	return float64(bestBin) * float64(sampleRate) / float64(len(buf))
}
