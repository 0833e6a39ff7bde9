package recognizer

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Factory creates one recognizer instance; slot is its index in the pool.
type Factory func(slot int) (Recognizer, error)

// Pool owns one recognizer per worker. Acquire hands an instance to exactly
// one caller at a time.
type Pool struct {
	mu      sync.Mutex
	all     []Recognizer
	idle    chan Recognizer
	closers []func() error
	closed  bool
}

func NewPool(size int, factory Factory) (*Pool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("pool size must be > 0, got %d", size)
	}
	if factory == nil {
		return nil, errors.New("recognizer factory is required")
	}

	p := &Pool{
		all:  make([]Recognizer, 0, size),
		idle: make(chan Recognizer, size),
	}
	for slot := 0; slot < size; slot++ {
		rec, err := factory(slot)
		if err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("create recognizer %d: %w", slot, err)
		}
		p.all = append(p.all, rec)
		p.idle <- rec
	}
	return p, nil
}

func (p *Pool) Size() int {
	return cap(p.idle)
}

func (p *Pool) Acquire(ctx context.Context) (Recognizer, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case rec, ok := <-p.idle:
		if !ok {
			return nil, ErrClosed
		}
		return rec, nil
	}
}

func (p *Pool) Release(rec Recognizer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.idle <- rec
}

// OnClose registers fn to run after every instance has been closed. Backends
// use it to free resources shared by all instances, such as a loaded model.
func (p *Pool) OnClose(fn func() error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closers = append(p.closers, fn)
}

// Close releases every instance. Instances still checked out are closed too,
// so Close must only run after all work has finished.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.idle)

	var errs []error
	for _, rec := range p.all {
		if err := rec.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, fn := range p.closers {
		if err := fn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
