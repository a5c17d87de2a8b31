package tracker

import (
	"github.com/longkeyy/datax-synctrack/common/protocol"
)

// FailureOrigin says which connector a failure came from.
type FailureOrigin string

const (
	FailureOriginSource      FailureOrigin = "source"
	FailureOriginDestination FailureOrigin = "destination"
)

// FailureType is the platform classification of a failure.
type FailureType string

const (
	FailureTypeSystemError    FailureType = "system_error"
	FailureTypeConfigError    FailureType = "config_error"
	FailureTypeTransientError FailureType = "transient_error"
)

// Metadata keys attached to failure reasons built from error traces.
const (
	MetadataJobID            = "jobId"
	MetadataAttemptNumber    = "attemptNumber"
	MetadataFromTrace        = "from_trace_message"
	MetadataConnectorCommand = "connector_command"
)

// FailureReason is the structured record of one connector failure.
type FailureReason struct {
	FailureOrigin    FailureOrigin              `json:"failureOrigin"`
	FailureType      FailureType                `json:"failureType"`
	InternalMessage  string                     `json:"internalMessage,omitempty"`
	ExternalMessage  string                     `json:"externalMessage,omitempty"`
	StackTrace       string                     `json:"stacktrace,omitempty"`
	Timestamp        int64                      `json:"timestamp"`
	StreamDescriptor *protocol.StreamDescriptor `json:"streamDescriptor,omitempty"`
	Metadata         map[string]interface{}     `json:"metadata,omitempty"`
}

// failureTypeOf maps the connector's failure type; anything unknown is a
// system error.
func failureTypeOf(t protocol.FailureType) FailureType {
	switch t {
	case protocol.FailureTypeConfigError:
		return FailureTypeConfigError
	case protocol.FailureTypeTransientError:
		return FailureTypeTransientError
	default:
		return FailureTypeSystemError
	}
}

func connectorCommand(origin FailureOrigin) string {
	if origin == FailureOriginSource {
		return "read"
	}
	return "write"
}

// failureReasonOf builds a failure reason from an ERROR trace.
func failureReasonOf(origin FailureOrigin, trace *protocol.Trace, jobID int64, attemptNumber int) FailureReason {
	reason := FailureReason{
		FailureOrigin: origin,
		FailureType:   FailureTypeSystemError,
		Timestamp:     int64(trace.EmittedAt),
		Metadata: map[string]interface{}{
			MetadataJobID:            jobID,
			MetadataAttemptNumber:    attemptNumber,
			MetadataFromTrace:        true,
			MetadataConnectorCommand: connectorCommand(origin),
		},
	}
	if e := trace.Error; e != nil {
		reason.FailureType = failureTypeOf(e.FailureType)
		reason.ExternalMessage = e.Message
		reason.InternalMessage = e.InternalMessage
		reason.StackTrace = e.StackTrace
		if e.StreamDescriptor != nil {
			desc := *e.StreamDescriptor
			reason.StreamDescriptor = &desc
		}
	}
	return reason
}
