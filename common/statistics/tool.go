package statistics

import (
	"fmt"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// SummaryTool 把 SyncStats 格式化成日志和报告用的文本
type SummaryTool struct{}

// DefaultSummaryTool 全局实例
var DefaultSummaryTool = &SummaryTool{}

// GetSnapshot returns a one-line progress string, e.g.
// "Emitted 10 records, 1.00KB | Committed 8 records, 820B | Estimated unknown | States 2/1 | Commit latency max 1.50s mean 0.75s"
func (st *SummaryTool) GetSnapshot(stats SyncStats) string {
	var sb strings.Builder
	sb.WriteString("Emitted ")
	sb.WriteString(st.pair(stats.RecordsEmitted, stats.BytesEmitted))
	sb.WriteString(" | Committed ")
	sb.WriteString(st.pair(stats.RecordsCommitted, stats.BytesCommitted))
	sb.WriteString(" | Estimated ")
	sb.WriteString(st.pair(stats.EstimatedRecords, stats.EstimatedBytes))
	sb.WriteString(" | States ")
	sb.WriteString(fmt.Sprintf("%s/%s",
		st.count(stats.SourceStateMessagesEmitted),
		st.count(stats.DestinationStateMessagesEmitted)))
	sb.WriteString(" | Commit latency ")
	if stats.MaxSecondsBetweenStateMessageEmittedAndCommitted == nil {
		sb.WriteString("unknown")
	} else {
		sb.WriteString(fmt.Sprintf("max %s mean %s",
			st.FormatSeconds(*stats.MaxSecondsBetweenStateMessageEmittedAndCommitted),
			st.FormatSeconds(Float64Value(stats.MeanSecondsBetweenStateMessageEmittedAndCommitted, 0))))
	}
	return sb.String()
}

func (st *SummaryTool) pair(records, bytes *int64) string {
	if records == nil || bytes == nil {
		return "unknown"
	}
	return fmt.Sprintf("%d records, %s", *records, st.FormatBytes(*bytes))
}

func (st *SummaryTool) count(v *int64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *v)
}

// FormatBytes 格式化字节数显示
func (st *SummaryTool) FormatBytes(bytes int64) string {
	if bytes < 0 {
		return "0B"
	}

	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%dB", bytes)
	}

	units := []string{"KB", "MB", "GB", "TB", "PB", "EB"}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit && exp < len(units)-1; n /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.2f%s", float64(bytes)/float64(div), units[exp])
}

// FormatSeconds 格式化秒数显示
func (st *SummaryTool) FormatSeconds(seconds float64) string {
	if seconds < 0 {
		return "0ms"
	}

	duration := time.Duration(seconds * float64(time.Second))

	switch {
	case duration < time.Second:
		return fmt.Sprintf("%dms", duration.Milliseconds())
	case duration < time.Minute:
		return fmt.Sprintf("%.2fs", duration.Seconds())
	case duration < time.Hour:
		return fmt.Sprintf("%.2fm", duration.Minutes())
	default:
		return fmt.Sprintf("%.2fh", duration.Hours())
	}
}

// GetJSONSnapshot 获取JSON格式的汇总，未知字段不输出
func (st *SummaryTool) GetJSONSnapshot(total SyncStats, streams []StreamSyncStats) (string, error) {
	snapshot := struct {
		Total   SyncStats         `json:"total"`
		Streams []StreamSyncStats `json:"streams"`
	}{
		Total:   total,
		Streams: streams,
	}
	if snapshot.Streams == nil {
		snapshot.Streams = []StreamSyncStats{}
	}

	bytes, err := jsonAPI.Marshal(snapshot)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// Float64Value dereferences p, returning fallback for nil.
func Float64Value(p *float64, fallback float64) float64 {
	if p == nil {
		return fallback
	}
	return *p
}
