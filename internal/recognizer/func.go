package recognizer

import "sync"

// TranscribeFunc maps a complete utterance to a result.
type TranscribeFunc func(samples []int16) (Result, error)

// FuncRecognizer adapts a plain function to the Recognizer session protocol.
// It keeps the accept/final/reset discipline so misuse surfaces as errors.
type FuncRecognizer struct {
	Samples int
	Fn      TranscribeFunc

	mu      sync.Mutex
	pending []int16
	closed  bool
	calls   int
}

func NewFunc(samples int, fn TranscribeFunc) *FuncRecognizer {
	return &FuncRecognizer{Samples: samples, Fn: fn}
}

func (r *FuncRecognizer) AcceptWaveform(samples []int16) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if err := checkLength(samples, r.Samples); err != nil {
		return err
	}
	r.pending = append(r.pending, samples...)
	return nil
}

func (r *FuncRecognizer) FinalResult() (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return Result{}, ErrClosed
	}
	r.calls++
	return r.Fn(r.pending)
}

func (r *FuncRecognizer) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = r.pending[:0]
	return nil
}

func (r *FuncRecognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// Calls reports how many final results were produced.
func (r *FuncRecognizer) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// Silent never recognizes anything.
func Silent(_ []int16) (Result, error) {
	return Result{}, nil
}
