package statistics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummaryTool_FormatBytes(t *testing.T) {
	tool := DefaultSummaryTool
	assert.Equal(t, "0B", tool.FormatBytes(-1))
	assert.Equal(t, "500B", tool.FormatBytes(500))
	assert.Equal(t, "1.00KB", tool.FormatBytes(1024))
	assert.Equal(t, "1.50KB", tool.FormatBytes(1536))
	assert.Equal(t, "1.00MB", tool.FormatBytes(1<<20))
	assert.Equal(t, "2.00GB", tool.FormatBytes(2<<30))
}

func TestSummaryTool_FormatSeconds(t *testing.T) {
	tool := DefaultSummaryTool
	assert.Equal(t, "250ms", tool.FormatSeconds(0.25))
	assert.Equal(t, "1.50s", tool.FormatSeconds(1.5))
	assert.Equal(t, "2.00m", tool.FormatSeconds(120))
	assert.Equal(t, "1.00h", tool.FormatSeconds(3600))
}

func TestSummaryTool_GetSnapshot(t *testing.T) {
	stats := SyncStats{
		RecordsEmitted:                  int64Ptr(10),
		BytesEmitted:                    int64Ptr(2048),
		SourceStateMessagesEmitted:      int64Ptr(2),
		DestinationStateMessagesEmitted: int64Ptr(1),
	}
	assert.Equal(t,
		"Emitted 10 records, 2.00KB | Committed unknown | Estimated unknown | States 2/1 | Commit latency unknown",
		DefaultSummaryTool.GetSnapshot(stats))
}

func TestSummaryTool_GetJSONSnapshot(t *testing.T) {
	out, err := DefaultSummaryTool.GetJSONSnapshot(SyncStats{RecordsEmitted: int64Ptr(0)}, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"total":{"recordsEmitted":0},"streams":[]}`, out)
}
