package protocol

import (
	"encoding/json"
	"time"
)

// NewRecordMessage builds a RECORD message with the given raw JSON data.
func NewRecordMessage(stream, namespace string, data string) *Message {
	return &Message{
		Type: TypeRecord,
		Record: &Record{
			Stream:    stream,
			Namespace: namespace,
			Data:      json.RawMessage(data),
			EmittedAt: time.Now().UnixMilli(),
		},
	}
}

// NewStreamStateMessage builds a per-stream STATE message.
func NewStreamStateMessage(stream, namespace string, state string) *Message {
	return &Message{
		Type: TypeState,
		State: &State{
			Type: StateTypeStream,
			Stream: &StreamState{
				StreamDescriptor: StreamDescriptor{Name: stream, Namespace: namespace},
				StreamState:      json.RawMessage(state),
			},
		},
	}
}

// NewGlobalStateMessage builds a GLOBAL STATE message covering streams.
func NewGlobalStateMessage(shared string, streams ...StreamState) *Message {
	return &Message{
		Type: TypeState,
		State: &State{
			Type: StateTypeGlobal,
			Global: &GlobalState{
				SharedState:  json.RawMessage(shared),
				StreamStates: streams,
			},
		},
	}
}

// NewLegacyStateMessage builds an untyped (legacy) STATE message.
func NewLegacyStateMessage(data string) *Message {
	return &Message{
		Type:  TypeState,
		State: &State{Data: json.RawMessage(data)},
	}
}

// NewEstimateMessage builds an ESTIMATE trace.
func NewEstimateMessage(estimateType EstimateType, stream, namespace string, rows, bytes int64) *Message {
	return &Message{
		Type: TypeTrace,
		Trace: &Trace{
			Type:      TraceTypeEstimate,
			EmittedAt: float64(time.Now().UnixMilli()),
			Estimate: &EstimateTrace{
				Name:         stream,
				Namespace:    namespace,
				Type:         estimateType,
				RowEstimate:  rows,
				ByteEstimate: bytes,
			},
		},
	}
}

// NewErrorTraceMessage builds an ERROR trace emitted at emittedAt.
func NewErrorTraceMessage(message string, failureType FailureType, emittedAt time.Time) *Message {
	return &Message{
		Type: TypeTrace,
		Trace: &Trace{
			Type:      TraceTypeError,
			EmittedAt: float64(emittedAt.UnixMilli()),
			Error: &ErrorTrace{
				Message:         message,
				InternalMessage: message,
				FailureType:     failureType,
			},
		},
	}
}

// NewStreamStatusMessage builds a STREAM_STATUS trace.
func NewStreamStatusMessage(stream, namespace string, status StreamStatus, reasons ...StreamStatusReason) *Message {
	return &Message{
		Type: TypeTrace,
		Trace: &Trace{
			Type:      TraceTypeStreamStatus,
			EmittedAt: float64(time.Now().UnixMilli()),
			StreamStatus: &StreamStatusTrace{
				StreamDescriptor: StreamDescriptor{Name: stream, Namespace: namespace},
				Status:           status,
				Reasons:          reasons,
			},
		},
	}
}
