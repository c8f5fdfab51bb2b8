package analytics

import (
	"encoding/json"
	"time"

	"github.com/foxxcyber/dyslexia-ar/internal/models"
)

// EventType is the "type" discriminator on the wire.
type EventType string

const (
	EventMetrics          EventType = "metrics"
	EventHeartbeat        EventType = "heartbeat"
	EventAnalysisComplete EventType = "analysis_complete"
	EventFeedbackReceived EventType = "feedback_received"
)

// Event is one message pushed to analytics observers. The set of
// implementations is closed: MetricsEvent, HeartbeatEvent,
// AnalysisCompleteEvent and FeedbackReceivedEvent.
type Event interface {
	EventType() EventType
	json.Marshaler
	event()
}

type envelope struct {
	Type EventType   `json:"type"`
	Data interface{} `json:"data"`
}

// MetricsEvent carries the full snapshot.
type MetricsEvent struct {
	Snapshot Snapshot
}

func (MetricsEvent) EventType() EventType { return EventMetrics }
func (MetricsEvent) event()               {}

func (e MetricsEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(envelope{Type: EventMetrics, Data: e.Snapshot})
}

// HeartbeatEvent is sent after an idle window with no inbound traffic.
type HeartbeatEvent struct {
	Timestamp time.Time
}

func (HeartbeatEvent) EventType() EventType { return EventHeartbeat }
func (HeartbeatEvent) event()               {}

func (e HeartbeatEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type      EventType `json:"type"`
		Timestamp time.Time `json:"timestamp"`
	}{Type: EventHeartbeat, Timestamp: e.Timestamp})
}

// AnalysisCompleteEvent summarizes one finished capture.
type AnalysisCompleteEvent struct {
	TextLength    int   `json:"text_length"`
	WordCount     int   `json:"word_count"`
	AnalysesToday int64 `json:"analyses_today"`
	TotalAnalyses int64 `json:"total_analyses"`
}

func (AnalysisCompleteEvent) EventType() EventType { return EventAnalysisComplete }
func (AnalysisCompleteEvent) event()               {}

func (e AnalysisCompleteEvent) MarshalJSON() ([]byte, error) {
	type data AnalysisCompleteEvent
	return json.Marshal(envelope{Type: EventAnalysisComplete, Data: data(e)})
}

// FeedbackReceivedEvent echoes a stored feedback record.
type FeedbackReceivedEvent struct {
	Feedback models.Feedback
}

func (FeedbackReceivedEvent) EventType() EventType { return EventFeedbackReceived }
func (FeedbackReceivedEvent) event()               {}

func (e FeedbackReceivedEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(envelope{Type: EventFeedbackReceived, Data: e.Feedback})
}
