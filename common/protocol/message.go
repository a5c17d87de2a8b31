// Package protocol models the connector protocol messages consumed by the
// tracking core. Only the fields the bookkeeping needs are typed; payloads stay
// as raw JSON.
package protocol

import (
	"encoding/json"
	"time"
)

// MessageType is the top-level discriminator of a protocol message.
type MessageType string

const (
	TypeRecord  MessageType = "RECORD"
	TypeState   MessageType = "STATE"
	TypeTrace   MessageType = "TRACE"
	TypeControl MessageType = "CONTROL"
	TypeLog     MessageType = "LOG"
)

// Message is one decoded line of connector output.
type Message struct {
	Type    MessageType `json:"type"`
	Record  *Record     `json:"record,omitempty"`
	State   *State      `json:"state,omitempty"`
	Trace   *Trace      `json:"trace,omitempty"`
	Control *Control    `json:"control,omitempty"`
	Log     *Log        `json:"log,omitempty"`
}

// StreamDescriptor addresses a stream. An empty namespace means no namespace.
type StreamDescriptor struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace,omitempty"`
}

// Record is a single row emitted by the source.
type Record struct {
	Stream    string          `json:"stream"`
	Namespace string          `json:"namespace,omitempty"`
	Data      json.RawMessage `json:"data"`
	EmittedAt int64           `json:"emitted_at"`
}

// Descriptor returns the stream the record belongs to.
func (r *Record) Descriptor() StreamDescriptor {
	return StreamDescriptor{Name: r.Stream, Namespace: r.Namespace}
}

// SizeInBytes estimates the record size as the length of its serialized data.
func (r *Record) SizeInBytes() int64 {
	return int64(len(r.Data))
}

// StateType discriminates checkpoint payloads.
type StateType string

const (
	StateTypeGlobal StateType = "GLOBAL"
	StateTypeStream StateType = "STREAM"
	StateTypeLegacy StateType = "LEGACY"
)

// State is a checkpoint. Exactly one of Stream, Global or Data is meaningful,
// depending on Type.
type State struct {
	Type   StateType       `json:"type,omitempty"`
	Stream *StreamState    `json:"stream,omitempty"`
	Global *GlobalState    `json:"global,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// EffectiveType treats an untyped state as LEGACY, which is what connectors
// predating per-stream state emit.
func (s *State) EffectiveType() StateType {
	if s.Type == "" {
		return StateTypeLegacy
	}
	return s.Type
}

// StreamState is the checkpoint of a single stream.
type StreamState struct {
	StreamDescriptor StreamDescriptor `json:"stream_descriptor"`
	StreamState      json.RawMessage  `json:"stream_state,omitempty"`
}

// GlobalState checkpoints several streams at once.
type GlobalState struct {
	SharedState  json.RawMessage `json:"shared_state,omitempty"`
	StreamStates []StreamState   `json:"stream_states"`
}

// TraceType discriminates trace messages.
type TraceType string

const (
	TraceTypeError        TraceType = "ERROR"
	TraceTypeEstimate     TraceType = "ESTIMATE"
	TraceTypeStreamStatus TraceType = "STREAM_STATUS"
	TraceTypeAnalytics    TraceType = "ANALYTICS"
)

// Trace carries lifecycle, error and estimate information.
type Trace struct {
	Type         TraceType          `json:"type"`
	EmittedAt    float64            `json:"emitted_at"`
	Error        *ErrorTrace        `json:"error,omitempty"`
	Estimate     *EstimateTrace     `json:"estimate,omitempty"`
	StreamStatus *StreamStatusTrace `json:"stream_status,omitempty"`
	Analytics    *AnalyticsTrace    `json:"analytics,omitempty"`
}

// EmittedTime converts the millisecond emitted_at to a time.
func (t *Trace) EmittedTime() time.Time {
	return time.UnixMilli(int64(t.EmittedAt))
}

// FailureType is the connector's own classification of an error.
type FailureType string

const (
	FailureTypeSystemError    FailureType = "system_error"
	FailureTypeConfigError    FailureType = "config_error"
	FailureTypeTransientError FailureType = "transient_error"
)

// ErrorTrace reports a connector failure.
type ErrorTrace struct {
	Message          string            `json:"message"`
	InternalMessage  string            `json:"internal_message,omitempty"`
	StackTrace       string            `json:"stack_trace,omitempty"`
	FailureType      FailureType       `json:"failure_type,omitempty"`
	StreamDescriptor *StreamDescriptor `json:"stream_descriptor,omitempty"`
}

// EstimateType says whether an estimate covers one stream or the whole sync.
type EstimateType string

const (
	EstimateTypeStream EstimateType = "STREAM"
	EstimateTypeSync   EstimateType = "SYNC"
)

// EstimateTrace is an absolute (not incremental) size estimate.
type EstimateTrace struct {
	Name         string       `json:"name"`
	Namespace    string       `json:"namespace,omitempty"`
	Type         EstimateType `json:"type"`
	RowEstimate  int64        `json:"row_estimate"`
	ByteEstimate int64        `json:"byte_estimate"`
}

// Descriptor returns the stream the estimate belongs to.
func (e *EstimateTrace) Descriptor() StreamDescriptor {
	return StreamDescriptor{Name: e.Name, Namespace: e.Namespace}
}

// StreamStatus is the lifecycle status reported in a stream status trace.
type StreamStatus string

const (
	StreamStatusStarted    StreamStatus = "STARTED"
	StreamStatusRunning    StreamStatus = "RUNNING"
	StreamStatusComplete   StreamStatus = "COMPLETE"
	StreamStatusIncomplete StreamStatus = "INCOMPLETE"
)

// StreamStatusReasonType qualifies a status.
type StreamStatusReasonType string

const ReasonRateLimited StreamStatusReasonType = "RATE_LIMITED"

// StreamStatusReason carries extra information about a status.
type StreamStatusReason struct {
	Type        StreamStatusReasonType `json:"type"`
	RateLimited *RateLimitedReason     `json:"rate_limited,omitempty"`
}

// RateLimitedReason says when the connector's quota resets (epoch millis).
type RateLimitedReason struct {
	QuotaReset *int64 `json:"quota_reset,omitempty"`
}

// StreamStatusTrace reports a stream lifecycle transition.
type StreamStatusTrace struct {
	StreamDescriptor StreamDescriptor     `json:"stream_descriptor"`
	Status           StreamStatus         `json:"status"`
	Reasons          []StreamStatusReason `json:"reasons,omitempty"`
}

// RateLimit returns the first rate-limited reason, if any.
func (s *StreamStatusTrace) RateLimit() *RateLimitedReason {
	for _, r := range s.Reasons {
		if r.Type == ReasonRateLimited {
			if r.RateLimited != nil {
				return r.RateLimited
			}
			return &RateLimitedReason{}
		}
	}
	return nil
}

// AnalyticsTrace is a connector-side observability event.
type AnalyticsTrace struct {
	Type  string `json:"type"`
	Value string `json:"value,omitempty"`
}

// Control is a connector control message (e.g. config update). Not tracked.
type Control struct {
	Type      string          `json:"type"`
	EmittedAt float64         `json:"emitted_at"`
	Payload   json.RawMessage `json:"connectorConfig,omitempty"`
}

// Log is a connector log line. Not tracked.
type Log struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}
