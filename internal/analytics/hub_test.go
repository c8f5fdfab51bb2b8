package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/foxxcyber/dyslexia-ar/internal/models"
)

var errConnClosed = errors.New("use of closed connection")

// fakeConn records every JSON message written to it. Writes fail once
// failAfter successful writes have happened (0 disables), and block until
// Close when block is set.
type fakeConn struct {
	inbound chan []byte
	writes  chan map[string]interface{}

	mu        sync.Mutex
	written   int
	failAfter int
	block     bool

	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan []byte, 8),
		writes:  make(chan map[string]interface{}, 64),
		closed:  make(chan struct{}),
	}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case msg := <-f.inbound:
		return 1, msg, nil
	case <-f.closed:
		return 0, nil, errConnClosed
	}
}

func (f *fakeConn) WriteJSON(v interface{}) error {
	f.mu.Lock()
	block := f.block
	fail := f.failAfter > 0 && f.written >= f.failAfter
	f.written++
	f.mu.Unlock()

	if block {
		<-f.closed
		return errConnClosed
	}
	if fail {
		return errors.New("broken pipe")
	}

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var msg map[string]interface{}
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}
	f.writes <- msg
	return nil
}

func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeConn) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

func (f *fakeConn) next(t *testing.T) map[string]interface{} {
	t.Helper()
	select {
	case msg := <-f.writes:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func (f *fakeConn) expectNone(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case msg := <-f.writes:
		t.Fatalf("unexpected message: %v", msg)
	case <-time.After(d):
	}
}

func data(t *testing.T, msg map[string]interface{}) map[string]interface{} {
	t.Helper()
	d, ok := msg["data"].(map[string]interface{})
	if !ok {
		t.Fatalf("message has no data object: %v", msg)
	}
	return d
}

type served struct {
	conn *fakeConn
	err  chan error
}

// connect starts Serve for a fresh fake connection and consumes the initial
// metrics message.
func connect(t *testing.T, ctx context.Context, hub *Hub) (*served, map[string]interface{}) {
	t.Helper()
	s := &served{conn: newFakeConn(), err: make(chan error, 1)}
	go func() { s.err <- hub.Serve(ctx, s.conn) }()

	msg := s.conn.next(t)
	if msg["type"] != string(EventMetrics) {
		t.Fatalf("first message type = %v, want metrics", msg["type"])
	}
	return s, msg
}

func (s *served) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-s.err:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
		return nil
	}
}

func newTestHub(idle time.Duration) *Hub {
	return NewHub(HubConfig{IdleWindow: idle, SendBuffer: 4, WriteTimeout: time.Second})
}

func TestHub_ConnectSendsMetrics(t *testing.T) {
	hub := newTestHub(time.Minute)
	defer hub.Close()
	hub.Seed(41)

	s, msg := connect(t, context.Background(), hub)
	d := data(t, msg)
	if d["active_connections"] != float64(1) {
		t.Errorf("active_connections = %v, want 1", d["active_connections"])
	}
	if d["total_analyses"] != float64(41) {
		t.Errorf("total_analyses = %v, want 41", d["total_analyses"])
	}
	if d["system_health"] != "healthy" {
		t.Errorf("system_health = %v, want healthy", d["system_health"])
	}

	s.conn.Close()
	if err := s.wait(t); err != nil {
		t.Errorf("Serve() error = %v, want nil on client disconnect", err)
	}
	if n := hub.ActiveConnections(); n != 0 {
		t.Errorf("ActiveConnections() = %d, want 0", n)
	}
}

func TestHub_InboundMessageResendsMetrics(t *testing.T) {
	hub := newTestHub(time.Minute)
	defer hub.Close()

	s, _ := connect(t, context.Background(), hub)
	hub.RecordAnalysis(5, 1, 0)
	if msg := s.conn.next(t); msg["type"] != string(EventAnalysisComplete) {
		t.Fatalf("type = %v, want analysis_complete", msg["type"])
	}

	s.conn.inbound <- []byte("ping")
	msg := s.conn.next(t)
	if msg["type"] != string(EventMetrics) {
		t.Fatalf("type = %v, want metrics", msg["type"])
	}
	if d := data(t, msg); d["analyses_today"] != float64(1) {
		t.Errorf("analyses_today = %v, want 1", d["analyses_today"])
	}
}

func TestHub_HeartbeatOncePerIdleWindow(t *testing.T) {
	const window = 80 * time.Millisecond
	hub := newTestHub(window)
	defer hub.Close()

	s, _ := connect(t, context.Background(), hub)
	start := time.Now()

	msg := s.conn.next(t)
	if msg["type"] != string(EventHeartbeat) {
		t.Fatalf("type = %v, want heartbeat", msg["type"])
	}
	if _, ok := msg["timestamp"].(string); !ok {
		t.Errorf("heartbeat has no timestamp: %v", msg)
	}
	if _, ok := msg["data"]; ok {
		t.Errorf("heartbeat should not carry data: %v", msg)
	}
	if elapsed := time.Since(start); elapsed < window/2 {
		t.Errorf("heartbeat after %v, before the idle window", elapsed)
	}

	// nothing else until the next window
	s.conn.expectNone(t, window/2)
	if msg := s.conn.next(t); msg["type"] != string(EventHeartbeat) {
		t.Fatalf("type = %v, want second heartbeat", msg["type"])
	}
}

func TestHub_InboundResetsIdleWindow(t *testing.T) {
	const window = 150 * time.Millisecond
	hub := newTestHub(window)
	defer hub.Close()

	s, _ := connect(t, context.Background(), hub)
	for i := 0; i < 3; i++ {
		time.Sleep(window / 3)
		s.conn.inbound <- []byte("ping")
		if msg := s.conn.next(t); msg["type"] != string(EventMetrics) {
			t.Fatalf("type = %v, want metrics", msg["type"])
		}
	}
}

func TestHub_AnalysisCompleteToAllConnections(t *testing.T) {
	hub := newTestHub(time.Minute)
	defer hub.Close()
	hub.Seed(9)

	var conns []*served
	for i := 0; i < 3; i++ {
		s, _ := connect(t, context.Background(), hub)
		conns = append(conns, s)
	}
	if n := hub.ActiveConnections(); n != 3 {
		t.Fatalf("ActiveConnections() = %d, want 3", n)
	}

	ev := hub.RecordAnalysis(11, 2, 10)
	if ev.TotalAnalyses != 10 {
		t.Errorf("event total = %d, want 10", ev.TotalAnalyses)
	}

	for i, s := range conns {
		msg := s.conn.next(t)
		if msg["type"] != string(EventAnalysisComplete) {
			t.Fatalf("conn %d: type = %v, want analysis_complete", i, msg["type"])
		}
		d := data(t, msg)
		if d["total_analyses"] != float64(10) || d["text_length"] != float64(11) || d["word_count"] != float64(2) {
			t.Errorf("conn %d: unexpected data %v", i, d)
		}
		s.conn.expectNone(t, 20*time.Millisecond)
	}
}

func TestHub_RecordAnalysisWithoutPersistedTotal(t *testing.T) {
	hub := newTestHub(time.Minute)
	defer hub.Close()
	hub.Seed(3)

	ev := hub.RecordAnalysis(0, 0, 0)
	if ev.TotalAnalyses != 4 || ev.AnalysesToday != 1 {
		t.Errorf("event = %+v, want total 4 today 1", ev)
	}

	// an out-of-order persisted total never lowers the snapshot
	hub.RecordAnalysis(0, 0, 2)
	if snap := hub.Snapshot(); snap.TotalAnalyses != 4 || snap.AnalysesToday != 2 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestHub_FailedConnectionDoesNotAffectOthers(t *testing.T) {
	hub := newTestHub(time.Minute)
	defer hub.Close()

	healthy1, _ := connect(t, context.Background(), hub)

	broken := &served{conn: newFakeConn(), err: make(chan error, 1)}
	broken.conn.failAfter = 1
	go func() { broken.err <- hub.Serve(context.Background(), broken.conn) }()
	broken.conn.next(t)

	healthy2, _ := connect(t, context.Background(), hub)

	hub.Notify(FeedbackReceivedEvent{Feedback: models.Feedback{ID: 1, Rating: 5}})

	for _, s := range []*served{healthy1, healthy2} {
		msg := s.conn.next(t)
		if msg["type"] != string(EventFeedbackReceived) {
			t.Fatalf("type = %v, want feedback_received", msg["type"])
		}
		if d := data(t, msg); d["rating"] != float64(5) {
			t.Errorf("rating = %v, want 5", d["rating"])
		}
	}

	if err := broken.wait(t); err == nil {
		t.Error("Serve() for broken connection returned nil, want write error")
	}
	if !broken.conn.isClosed() {
		t.Error("broken transport was not closed")
	}
	if n := hub.ActiveConnections(); n != 2 {
		t.Errorf("ActiveConnections() = %d, want 2", n)
	}

	// later broadcasts still reach the survivors
	hub.RecordAnalysis(1, 1, 0)
	for _, s := range []*served{healthy1, healthy2} {
		if msg := s.conn.next(t); msg["type"] != string(EventAnalysisComplete) {
			t.Errorf("type = %v, want analysis_complete", msg["type"])
		}
	}
}

func TestHub_SlowConnectionEvicted(t *testing.T) {
	hub := NewHub(HubConfig{IdleWindow: time.Minute, SendBuffer: 1, WriteTimeout: time.Second})
	defer hub.Close()

	slow := &served{conn: newFakeConn(), err: make(chan error, 1)}
	go func() { slow.err <- hub.Serve(context.Background(), slow.conn) }()
	slow.conn.next(t)

	slow.conn.mu.Lock()
	slow.conn.block = true
	slow.conn.mu.Unlock()

	// first event is picked up and blocks in WriteJSON, second fills the
	// queue, later ones overflow it
	for i := 0; i < 5; i++ {
		hub.RecordAnalysis(1, 1, 0)
		time.Sleep(10 * time.Millisecond)
	}

	if err := slow.wait(t); !errors.Is(err, ErrEvicted) {
		t.Errorf("Serve() error = %v, want ErrEvicted", err)
	}
	if n := hub.ActiveConnections(); n != 0 {
		t.Errorf("ActiveConnections() = %d, want 0", n)
	}
}

func TestHub_ContextCancelReleasesSlot(t *testing.T) {
	hub := newTestHub(time.Minute)
	defer hub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	s, _ := connect(t, ctx, hub)
	cancel()

	if err := s.wait(t); !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() error = %v, want context.Canceled", err)
	}
	if n := hub.ActiveConnections(); n != 0 {
		t.Errorf("ActiveConnections() = %d, want 0", n)
	}
}

func TestHub_Close(t *testing.T) {
	hub := newTestHub(time.Minute)

	a, _ := connect(t, context.Background(), hub)
	b, _ := connect(t, context.Background(), hub)

	hub.Close()
	hub.Close()

	for _, s := range []*served{a, b} {
		if err := s.wait(t); !errors.Is(err, ErrHubClosed) {
			t.Errorf("Serve() error = %v, want ErrHubClosed", err)
		}
		if !s.conn.isClosed() {
			t.Error("transport not closed on hub shutdown")
		}
	}
	if n := hub.ActiveConnections(); n != 0 {
		t.Errorf("ActiveConnections() = %d, want 0", n)
	}

	if err := hub.Serve(context.Background(), newFakeConn()); !errors.Is(err, ErrHubClosed) {
		t.Errorf("Serve() after Close error = %v, want ErrHubClosed", err)
	}

	// broadcasting to a closed hub is harmless
	hub.RecordAnalysis(1, 1, 0)
}

func TestHub_DailyRollover(t *testing.T) {
	var mu sync.Mutex
	now := time.Date(2024, 3, 1, 23, 59, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	hub := NewHub(HubConfig{IdleWindow: time.Minute, Now: clock})
	defer hub.Close()

	hub.RecordAnalysis(1, 1, 1)
	hub.RecordAnalysis(1, 1, 2)
	if snap := hub.Snapshot(); snap.AnalysesToday != 2 {
		t.Fatalf("AnalysesToday = %d, want 2", snap.AnalysesToday)
	}

	mu.Lock()
	now = now.Add(2 * time.Minute)
	mu.Unlock()

	snap := hub.Snapshot()
	if snap.AnalysesToday != 0 {
		t.Errorf("AnalysesToday after midnight = %d, want 0", snap.AnalysesToday)
	}
	if snap.TotalAnalyses != 2 {
		t.Errorf("TotalAnalyses = %d, want 2", snap.TotalAnalyses)
	}

	ev := hub.RecordAnalysis(1, 1, 3)
	if ev.AnalysesToday != 1 || ev.TotalAnalyses != 3 {
		t.Errorf("event = %+v, want today 1 total 3", ev)
	}
}

func TestHub_SetHealth(t *testing.T) {
	hub := newTestHub(time.Minute)
	defer hub.Close()

	hub.SetHealth(HealthDegraded)
	if got := hub.Snapshot().SystemHealth; got != HealthDegraded {
		t.Errorf("SystemHealth = %q, want degraded", got)
	}
	hub.SetHealth(HealthHealthy)
	if got := hub.Snapshot().SystemHealth; got != HealthHealthy {
		t.Errorf("SystemHealth = %q, want healthy", got)
	}
}

func TestEvents_MarshalJSON(t *testing.T) {
	comments := "great"
	user := "u-1"
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name string
		ev   Event
		want string
	}{
		{
			"metrics",
			MetricsEvent{Snapshot: Snapshot{ActiveConnections: 2, AnalysesToday: 3, TotalAnalyses: 4, SystemHealth: HealthHealthy}},
			`{"type":"metrics","data":{"active_connections":2,"analyses_today":3,"total_analyses":4,"system_health":"healthy"}}`,
		},
		{
			"heartbeat",
			HeartbeatEvent{Timestamp: ts},
			`{"type":"heartbeat","timestamp":"2024-01-02T03:04:05Z"}`,
		},
		{
			"analysis complete",
			AnalysisCompleteEvent{TextLength: 10, WordCount: 2, AnalysesToday: 1, TotalAnalyses: 7},
			`{"type":"analysis_complete","data":{"text_length":10,"word_count":2,"analyses_today":1,"total_analyses":7}}`,
		},
		{
			"feedback received",
			FeedbackReceivedEvent{Feedback: models.Feedback{ID: 3, Rating: 5, Comments: &comments, CreatedAt: ts}},
			`{"type":"feedback_received","data":{"id":3,"rating":5,"comments":"great","created_at":"2024-01-02T03:04:05Z"}}`,
		},
		{
			"feedback with user",
			FeedbackReceivedEvent{Feedback: models.Feedback{ID: 4, Rating: 2, UserID: &user, CreatedAt: ts}},
			`{"type":"feedback_received","data":{"id":4,"rating":2,"comments":null,"user_id":"u-1","created_at":"2024-01-02T03:04:05Z"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := json.Marshal(tt.ev)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("Marshal() = %s\nwant %s", got, tt.want)
			}
		})
	}
}
