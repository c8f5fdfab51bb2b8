// Package analytics tracks live observers of the service and pushes metrics
// and pipeline events to them.
//
// The Hub owns the connection registry and the metrics snapshot. All mutation
// of either goes through Hub methods, which serialize on a single mutex. Each
// connection is driven by exactly one Serve call, which is the only writer to
// that connection's transport.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/foxxcyber/dyslexia-ar/internal/logger"
	"github.com/foxxcyber/dyslexia-ar/internal/models"
	"github.com/sirupsen/logrus"
)

var (
	// ErrHubClosed is returned by Serve once the hub has been shut down.
	ErrHubClosed = errors.New("analytics hub closed")
	// ErrEvicted is returned by Serve when the connection fell too far behind
	// and was dropped.
	ErrEvicted = errors.New("analytics connection evicted")
)

// Conn is the transport of a single observer. A websocket connection from
// fasthttp/websocket or gofiber/contrib/websocket satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteJSON(v interface{}) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// HubConfig tunes connection handling.
type HubConfig struct {
	// IdleWindow is how long a connection may stay silent before it gets a heartbeat.
	IdleWindow time.Duration
	// SendBuffer is the per-connection queue of pending broadcast events.
	SendBuffer int
	// WriteTimeout bounds a single write to a transport.
	WriteTimeout time.Duration
	// Now is the clock used for heartbeats and day rollover.
	Now func() time.Time
}

func (c HubConfig) withDefaults() HubConfig {
	if c.IdleWindow <= 0 {
		c.IdleWindow = 30 * time.Second
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 16
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

type client struct {
	id   uint64
	conn Conn
	send chan Event
	done chan struct{}
	err  error // why done was closed; guarded by Hub.mu
}

// Hub is the registry of live observers plus the shared metrics snapshot.
type Hub struct {
	cfg HubConfig
	log *logrus.Entry

	mu      sync.Mutex
	clients map[uint64]*client
	nextID  uint64
	snap    Snapshot
	day     string
	closed  bool
}

// NewHub creates an empty hub reporting healthy.
func NewHub(cfg HubConfig) *Hub {
	cfg = cfg.withDefaults()
	return &Hub{
		cfg:     cfg,
		log:     logger.Component("analytics"),
		clients: make(map[uint64]*client),
		snap:    Snapshot{SystemHealth: HealthHealthy},
		day:     dayKey(cfg.Now()),
	}
}

func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// rolloverLocked resets the daily counter when the UTC date has changed.
func (h *Hub) rolloverLocked() {
	if today := dayKey(h.cfg.Now()); today != h.day {
		h.day = today
		h.snap.AnalysesToday = 0
	}
}

// Snapshot returns a copy of the current metrics.
func (h *Hub) Snapshot() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rolloverLocked()
	return h.snap
}

// ActiveConnections returns the number of registered observers.
func (h *Hub) ActiveConnections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snap.ActiveConnections
}

// Seed raises total_analyses to the durable total loaded at startup.
func (h *Hub) Seed(total int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if total > h.snap.TotalAnalyses {
		h.snap.TotalAnalyses = total
	}
}

// SetHealth records the service health shown to observers.
func (h *Hub) SetHealth(health Health) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.snap.SystemHealth != health {
		h.log.WithFields(logrus.Fields{
			"from": h.snap.SystemHealth,
			"to":   health,
		}).Info("System health changed")
	}
	h.snap.SystemHealth = health
}

// RecordAnalysis counts one finished capture and broadcasts analysis_complete.
// persistedTotal is the durable counter after this capture's increment, or 0
// when the increment failed; the event then reports the hub's own running total.
func (h *Hub) RecordAnalysis(textLength, wordCount int, persistedTotal int64) AnalysisCompleteEvent {
	h.mu.Lock()
	h.rolloverLocked()
	h.snap.AnalysesToday++

	total := persistedTotal
	if total <= 0 {
		total = h.snap.TotalAnalyses + 1
	}
	if total > h.snap.TotalAnalyses {
		h.snap.TotalAnalyses = total
	}

	ev := AnalysisCompleteEvent{
		TextLength:    textLength,
		WordCount:     wordCount,
		AnalysesToday: h.snap.AnalysesToday,
		TotalAnalyses: total,
	}
	evicted := h.broadcastLocked(ev)
	h.mu.Unlock()

	h.closeAll(evicted)
	return ev
}

// RecordFeedback broadcasts feedback_received for a stored record.
func (h *Hub) RecordFeedback(fb models.Feedback) {
	h.Notify(FeedbackReceivedEvent{Feedback: fb})
}

// Notify queues ev for every registered connection without blocking. A
// connection whose queue is full is evicted; the others are unaffected.
func (h *Hub) Notify(ev Event) {
	h.mu.Lock()
	evicted := h.broadcastLocked(ev)
	h.mu.Unlock()

	h.closeAll(evicted)
}

func (h *Hub) broadcastLocked(ev Event) []*client {
	var evicted []*client
	for _, c := range h.clients {
		select {
		case c.send <- ev:
		default:
			h.removeLocked(c, ErrEvicted)
			evicted = append(evicted, c)
			h.log.WithFields(logrus.Fields{
				"connection_id": c.id,
				"event":         ev.EventType(),
			}).Warn("Analytics connection send queue full, dropping connection")
		}
	}
	return evicted
}

// removeLocked deregisters c and wakes its Serve loop. It is a no-op for a
// connection that is already gone.
func (h *Hub) removeLocked(c *client, reason error) {
	if _, ok := h.clients[c.id]; !ok {
		return
	}
	delete(h.clients, c.id)
	h.snap.ActiveConnections = len(h.clients)
	c.err = reason
	close(c.done)
}

// closeAll closes transports outside the lock so a stuck writer is released.
func (h *Hub) closeAll(clients []*client) {
	for _, c := range clients {
		_ = c.conn.Close()
	}
}

func (h *Hub) register(conn Conn) (*client, Snapshot, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, Snapshot{}, ErrHubClosed
	}

	h.nextID++
	c := &client{
		id:   h.nextID,
		conn: conn,
		send: make(chan Event, h.cfg.SendBuffer),
		done: make(chan struct{}),
	}
	h.clients[c.id] = c
	h.snap.ActiveConnections = len(h.clients)
	h.rolloverLocked()
	return c, h.snap, nil
}

func (h *Hub) unregister(c *client) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c, nil)
	return c.err
}

// Serve registers conn and drives it until the observer disconnects, a write
// fails, the connection is evicted, the hub closes or ctx is done. The
// current snapshot is sent immediately. After that every inbound message is
// answered with a fresh snapshot, every idle window without inbound traffic
// produces one heartbeat, and queued broadcast events are written in order.
//
// Serve closes conn before returning. A clean client disconnect returns nil.
func (h *Hub) Serve(ctx context.Context, conn Conn) error {
	c, snap, err := h.register(conn)
	if err != nil {
		return err
	}
	log := h.log.WithField("connection_id", c.id)
	log.WithField("active_connections", snap.ActiveConnections).Info("Analytics connection registered")

	err = h.run(ctx, c, snap, log)

	if reason := h.unregister(c); reason != nil {
		err = reason
	}
	_ = conn.Close()

	log.WithField("active_connections", h.ActiveConnections()).Info("Analytics connection closed")
	return err
}

func (h *Hub) run(ctx context.Context, c *client, snap Snapshot, log *logrus.Entry) error {
	inbound := make(chan struct{})
	readErr := make(chan error, 1)
	go func() {
		for {
			if _, _, err := c.conn.ReadMessage(); err != nil {
				readErr <- err
				return
			}
			select {
			case inbound <- struct{}{}:
			case <-c.done:
				return
			}
		}
	}()

	if err := h.write(c, MetricsEvent{Snapshot: snap}, log); err != nil {
		return err
	}

	idle := time.NewTimer(h.cfg.IdleWindow)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-c.done:
			return nil

		case err := <-readErr:
			log.WithError(err).Debug("Analytics connection read ended")
			return nil

		case <-inbound:
			if err := h.write(c, MetricsEvent{Snapshot: h.Snapshot()}, log); err != nil {
				return err
			}
			idle.Reset(h.cfg.IdleWindow)

		case <-idle.C:
			if err := h.write(c, HeartbeatEvent{Timestamp: h.cfg.Now().UTC()}, log); err != nil {
				return err
			}
			idle.Reset(h.cfg.IdleWindow)

		case ev := <-c.send:
			if err := h.write(c, ev, log); err != nil {
				return err
			}
		}
	}
}

func (h *Hub) write(c *client, ev Event, log *logrus.Entry) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout)); err != nil {
		log.WithError(err).Warn("Failed to set analytics write deadline")
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := c.conn.WriteJSON(ev); err != nil {
		log.WithError(err).WithField("event", ev.EventType()).Warn("Failed to deliver analytics event, dropping connection")
		return fmt.Errorf("write %s: %w", ev.EventType(), err)
	}
	return nil
}

// Close deregisters and disconnects every observer. Later Serve calls fail
// with ErrHubClosed.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		h.removeLocked(c, ErrHubClosed)
		clients = append(clients, c)
	}
	h.mu.Unlock()

	h.closeAll(clients)
	h.log.WithField("connections", len(clients)).Info("Analytics hub closed")
}
