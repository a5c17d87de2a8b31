package statistics

// SyncStats is the summary shape handed to consumers. A nil field means the
// value is unknown, which is not the same as 0.
type SyncStats struct {
	RecordsEmitted                                    *int64   `json:"recordsEmitted,omitempty"`
	BytesEmitted                                      *int64   `json:"bytesEmitted,omitempty"`
	RecordsCommitted                                  *int64   `json:"recordsCommitted,omitempty"`
	BytesCommitted                                    *int64   `json:"bytesCommitted,omitempty"`
	EstimatedRecords                                  *int64   `json:"estimatedRecords,omitempty"`
	EstimatedBytes                                    *int64   `json:"estimatedBytes,omitempty"`
	SourceStateMessagesEmitted                        *int64   `json:"sourceStateMessagesEmitted,omitempty"`
	DestinationStateMessagesEmitted                   *int64   `json:"destinationStateMessagesEmitted,omitempty"`
	MaxSecondsBeforeSourceStateMessageEmitted         *float64 `json:"maxSecondsBeforeSourceStateMessageEmitted,omitempty"`
	MeanSecondsBeforeSourceStateMessageEmitted        *float64 `json:"meanSecondsBeforeSourceStateMessageEmitted,omitempty"`
	MaxSecondsBetweenStateMessageEmittedAndCommitted  *float64 `json:"maxSecondsBetweenStateMessageEmittedAndCommitted,omitempty"`
	MeanSecondsBetweenStateMessageEmittedAndCommitted *float64 `json:"meanSecondsBetweenStateMessageEmittedAndCommitted,omitempty"`
}

// IsEmpty reports whether every field is absent.
func (s SyncStats) IsEmpty() bool {
	return s == SyncStats{}
}

// StreamSyncStats pairs a stream with its stats.
type StreamSyncStats struct {
	StreamName      string    `json:"streamName"`
	StreamNamespace *string   `json:"streamNamespace,omitempty"`
	Stats           SyncStats `json:"stats"`
}

// Helper functions to convert values to pointers
func int64Ptr(i int64) *int64 {
	return &i
}

func float64Ptr(f float64) *float64 {
	return &f
}

// Int64Value dereferences p, returning fallback for nil.
func Int64Value(p *int64, fallback int64) int64 {
	if p == nil {
		return fallback
	}
	return *p
}
