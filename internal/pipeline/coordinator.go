// Package pipeline sequences the capture-to-text flow and its side effects.
package pipeline

import (
	"context"
	"image"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/foxxcyber/dyslexia-ar/internal/analytics"
	"github.com/foxxcyber/dyslexia-ar/internal/logger"
	"github.com/foxxcyber/dyslexia-ar/internal/models"
	"github.com/foxxcyber/dyslexia-ar/internal/preprocess"
	"github.com/foxxcyber/dyslexia-ar/internal/textnorm"
	"github.com/sirupsen/logrus"
)

// UsageCounter persists the analyses counter.
type UsageCounter interface {
	IncrementUsage(ctx context.Context) (int64, error)
}

// Recognizer extracts text and never fails; an unusable engine yields "".
type Recognizer interface {
	Recognize(ctx context.Context, img *image.Gray) string
}

// Notifier receives completed analyses and the resulting service health.
type Notifier interface {
	RecordAnalysis(textLength, wordCount int, persistedTotal int64) analytics.AnalysisCompleteEvent
	SetHealth(health analytics.Health)
}

// Archiver stores raw capture bytes and returns the object key.
type Archiver interface {
	Archive(ctx context.Context, data []byte, format string) (string, error)
}

// Options holds the optional parts of a Coordinator.
type Options struct {
	// SideEffectTimeout bounds the usage increment and archive upload.
	SideEffectTimeout time.Duration
	// Archiver is nil when capture archiving is disabled.
	Archiver Archiver
	// MaxPixels caps decoded image size; <= 0 uses preprocess.DefaultMaxPixels.
	MaxPixels int
	Now       func() time.Time
}

// Coordinator runs decode, preprocess, recognize and normalize for each
// capture, then records usage and notifies observers.
type Coordinator struct {
	usage      UsageCounter
	recognizer Recognizer
	notifier   Notifier
	archiver   Archiver
	maxPixels  int
	timeout    time.Duration
	now        func() time.Time
	log        *logrus.Entry

	mu      sync.Mutex
	closed  bool
	uploads sync.WaitGroup
}

// New creates a coordinator.
func New(usage UsageCounter, recognizer Recognizer, notifier Notifier, opts Options) *Coordinator {
	if opts.SideEffectTimeout <= 0 {
		opts.SideEffectTimeout = 5 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Coordinator{
		usage:      usage,
		recognizer: recognizer,
		notifier:   notifier,
		archiver:   opts.Archiver,
		maxPixels:  opts.MaxPixels,
		timeout:    opts.SideEffectTimeout,
		now:        opts.Now,
		log:        logger.Component("pipeline"),
	}
}

// ProcessCapture turns raw upload bytes into normalized text. Only decode
// (preprocess.ErrDecode) and preprocessing (preprocess.ErrInvalidImage)
// failures are returned; recognition, usage and notification problems are
// logged and degrade the result instead.
func (c *Coordinator) ProcessCapture(ctx context.Context, raw []byte) (*models.CaptureResult, error) {
	start := time.Now()

	img, format, err := preprocess.DecodeLimit(raw, c.maxPixels)
	if err != nil {
		return nil, err
	}

	binary, err := preprocess.Preprocess(img)
	if err != nil {
		return nil, err
	}
	c.archive(raw, format)

	text := textnorm.Normalize(c.recognizer.Recognize(ctx, binary))
	words := textnorm.WordCount(text)

	c.record(ctx, text, words)

	c.log.WithFields(logrus.Fields{
		"format":      format,
		"width":       binary.Bounds().Dx(),
		"height":      binary.Bounds().Dy(),
		"words":       words,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Capture processed")

	return &models.CaptureResult{
		TransformedText: text,
		WordCount:       words,
		Timestamp:       c.now().UTC(),
	}, nil
}

// record increments the durable counter and notifies observers. It runs
// detached from ctx cancellation so a client hanging up does not lose the
// count, bounded by the side effect timeout.
func (c *Coordinator) record(ctx context.Context, text string, words int) {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	total, err := c.usage.IncrementUsage(sctx)
	if err != nil {
		c.log.WithError(err).Warn("Failed to record usage")
		c.notifier.SetHealth(analytics.HealthDegraded)
		total = 0
	} else {
		c.notifier.SetHealth(analytics.HealthHealthy)
	}

	c.notifier.RecordAnalysis(utf8.RuneCountInString(text), words, total)
}

// archive uploads a copy of raw in the background.
func (c *Coordinator) archive(raw []byte, format string) {
	if c.archiver == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	// the request buffer is reused once the handler returns
	data := append([]byte(nil), raw...)

	c.uploads.Add(1)
	go func() {
		defer c.uploads.Done()

		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()

		key, err := c.archiver.Archive(ctx, data, format)
		if err != nil {
			c.log.WithError(err).Warn("Failed to archive capture")
			return
		}
		c.log.WithField("key", key).Debug("Capture archived")
	}()
}

// Close waits for background archive uploads. Captures processed after
// Close are not archived.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.uploads.Wait()
}
