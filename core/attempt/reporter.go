package attempt

import (
	"context"
	"sync"
	"time"

	"github.com/longkeyy/datax-synctrack/common/logger"
	"github.com/longkeyy/datax-synctrack/common/statistics"
	"go.uber.org/zap"
)

// ProgressReporter 定期汇报同步进度
type ProgressReporter struct {
	stats    statistics.SyncStatsTracker
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	log      logger.ApplicationLogger

	mu          sync.Mutex
	lastRecords int64
	lastReport  time.Time
}

func NewProgressReporter(stats statistics.SyncStatsTracker, interval time.Duration) *ProgressReporter {
	ctx, cancel := context.WithCancel(context.Background())
	return &ProgressReporter{
		stats:      stats,
		interval:   interval,
		ctx:        ctx,
		cancel:     cancel,
		log:        logger.App(),
		lastReport: time.Now(),
	}
}

// Start 启动定期汇报
func (pr *ProgressReporter) Start() {
	pr.done = make(chan struct{})
	go pr.reportLoop()
}

// Stop 停止定期汇报，等待汇报循环退出
func (pr *ProgressReporter) Stop() {
	pr.cancel()
	if pr.done != nil {
		<-pr.done
	}
}

func (pr *ProgressReporter) reportLoop() {
	defer close(pr.done)
	ticker := time.NewTicker(pr.interval)
	defer ticker.Stop()

	for {
		select {
		case <-pr.ctx.Done():
			return
		case now := <-ticker.C:
			pr.report(now)
		}
	}
}

// report logs the running totals and the record rate since the last report.
func (pr *ProgressReporter) report(now time.Time) {
	total := pr.stats.GetTotalStats(false)
	records := statistics.Int64Value(total.RecordsEmitted, 0)

	pr.mu.Lock()
	elapsed := now.Sub(pr.lastReport).Seconds()
	var rate float64
	if elapsed > 0 {
		rate = float64(records-pr.lastRecords) / elapsed
	}
	pr.lastRecords = records
	pr.lastReport = now
	pr.mu.Unlock()

	pr.log.Info("Sync progress",
		zap.String("snapshot", statistics.DefaultSummaryTool.GetSnapshot(total)),
		zap.Float64("recordsPerSecond", rate),
		zap.Int("streams", len(pr.stats.GetPerStreamStats(false))))
}
