package ocr

import (
	"context"
	"fmt"
	"image"
	"runtime"
	"sync"
	"time"

	"github.com/foxxcyber/dyslexia-ar/internal/logger"
	"github.com/sirupsen/logrus"
)

// Pool runs recognition on a fixed set of worker goroutines so slow engine
// calls never run on request or connection goroutines. Each worker owns one
// engine for its whole lifetime.
type Pool struct {
	workers int
	jobs    chan job
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	log *logrus.Entry
}

type job struct {
	ctx    context.Context
	img    *image.Gray
	result chan<- result
}

type result struct {
	text string
	err  error
}

// NewPool starts workers goroutines, each building its engine with factory.
// A worker whose engine cannot be built still consumes jobs and fails them
// with ErrEngineUnavailable.
func NewPool(workers int, factory Factory) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	p := &Pool{
		workers: workers,
		jobs:    make(chan job, workers*2),
		log:     logger.Component("ocr"),
	}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker(i, factory)
	}
	return p
}

// Workers returns the number of worker goroutines.
func (p *Pool) Workers() int {
	return p.workers
}

func (p *Pool) worker(id int, factory Factory) {
	defer p.wg.Done()

	engine, err := factory()
	if err != nil {
		p.log.WithError(err).WithField("worker", id).Warn("OCR engine could not be created")
		engine = nil
	}
	defer func() {
		if engine == nil {
			return
		}
		if err := engine.Close(); err != nil {
			p.log.WithError(err).WithField("worker", id).Warn("Failed to close OCR engine")
		}
	}()

	for j := range p.jobs {
		if err := j.ctx.Err(); err != nil {
			j.result <- result{err: err}
			continue
		}
		if engine == nil {
			j.result <- result{err: fmt.Errorf("%w: worker %d has no engine", ErrEngineUnavailable, id)}
			continue
		}
		text, err := engine.Recognize(j.ctx, j.img)
		j.result <- result{text: text, err: err}
	}
}

// Do submits img and waits for the engine result or ctx expiry.
func (p *Pool) Do(ctx context.Context, img *image.Gray) (string, error) {
	res := make(chan result, 1)

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return "", ErrPoolClosed
	}
	select {
	case p.jobs <- job{ctx: ctx, img: img, result: res}:
		p.mu.RUnlock()
	case <-ctx.Done():
		p.mu.RUnlock()
		return "", ctx.Err()
	}

	select {
	case r := <-res:
		return r.text, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Recognize is Do with every failure absorbed: a failed recognition logs a
// warning and yields empty text.
func (p *Pool) Recognize(ctx context.Context, img *image.Gray) string {
	start := time.Now()
	text, err := p.Do(ctx, img)
	if err != nil {
		p.log.WithError(err).WithField("duration_ms", time.Since(start).Milliseconds()).
			Warn("Text recognition failed, returning empty text")
		return ""
	}
	p.log.WithFields(logrus.Fields{
		"duration_ms": time.Since(start).Milliseconds(),
		"chars":       len(text),
	}).Debug("Text recognition finished")
	return text
}

// Close stops accepting work, lets queued jobs finish and closes every
// engine. It is safe to call more than once.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
}
