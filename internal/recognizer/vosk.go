//go:build vosk

package recognizer

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"

	vosk "github.com/alphacep/vosk-api/go"
)

func newVoskPool(cfg BackendConfig, workers int) (*Pool, error) {
	vosk.SetLogLevel(-1)
	model, err := vosk.NewModel(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("load vosk model %s: %w", cfg.ModelPath, err)
	}

	pool, err := NewPool(workers, func(int) (Recognizer, error) {
		return newVosk(model, cfg)
	})
	if err != nil {
		model.Free()
		return nil, err
	}
	pool.OnClose(func() error {
		model.Free()
		return nil
	})
	return pool, nil
}

// Vosk wraps one Kaldi recognizer session.
type Vosk struct {
	samples int

	mu     sync.Mutex
	rec    *vosk.VoskRecognizer
	closed bool
}

func newVosk(model *vosk.VoskModel, cfg BackendConfig) (*Vosk, error) {
	rec, err := vosk.NewRecognizer(model, float64(cfg.SampleRate))
	if err != nil {
		return nil, fmt.Errorf("create vosk recognizer: %w", err)
	}
	rec.SetMaxAlternatives(cfg.MaxAlternatives)
	rec.SetWords(0)
	return &Vosk{samples: cfg.Samples, rec: rec}, nil
}

func (v *Vosk) AcceptWaveform(samples []int16) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return ErrClosed
	}
	if err := checkLength(samples, v.samples); err != nil {
		return err
	}
	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(s))
	}
	if v.rec.AcceptWaveform(pcm) < 0 {
		return fmt.Errorf("vosk rejected waveform of %d samples", len(samples))
	}
	return nil
}

type voskFinal struct {
	Text         string        `json:"text"`
	Alternatives []Alternative `json:"alternatives"`
}

func (v *Vosk) FinalResult() (Result, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return Result{}, ErrClosed
	}
	var final voskFinal
	if err := json.Unmarshal(v.rec.FinalResult(), &final); err != nil {
		return Result{}, fmt.Errorf("decode vosk result: %w", err)
	}
	return BestOf(final.Text, final.Alternatives), nil
}

func (v *Vosk) Reset() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return ErrClosed
	}
	v.rec.Reset()
	return nil
}

func (v *Vosk) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil
	}
	v.closed = true
	v.rec.Free()
	return nil
}
