package pipeline

import (
	"context"
	"time"

	"github.com/forensant/triage-collector/pkg/status"
	"github.com/forensant/triage-collector/pkg/utils"
)

// LocalPollInterval and UploadPollInterval are the two progress poll
// cadences: local ZIP writes are polled more tightly than network
// uploads, which report less often since progress changes more slowly
// relative to their total duration.
const (
	LocalPollInterval  = 2 * time.Second
	UploadPollInterval = 5 * time.Second
)

// logThresholdPercent is the minimum percentage jump between two log
// lines; 99% is always logged regardless of the last logged value.
const logThresholdPercent = 5.0

// ProgressReporter polls a byte counter on a fixed interval and logs
// at each ≥5% increment (or 99%). One reporter instance tracks exactly
// one phase's last-logged
// percentage; callers create a fresh instance per phase.
type ProgressReporter struct {
	logger   *utils.StructuredLogger
	interval time.Duration
	progress status.Progress
	lastPct  float64
}

// NewProgressReporter builds a reporter that logs through logger at
// the given poll interval (LocalPollInterval or UploadPollInterval).
func NewProgressReporter(logger *utils.StructuredLogger, interval time.Duration) *ProgressReporter {
	return &ProgressReporter{logger: logger, interval: interval}
}

// Watch polls counter() on the configured interval until ctx is
// canceled, logging phase progress against total. total <= 0 means the
// final size is unknown (streaming uploads of unknown-length sources);
// Watch then logs raw byte counts without a percentage.
func (p *ProgressReporter) Watch(ctx context.Context, phase string, counter func() uint64, total int64) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.report(phase, counter(), total)
		}
	}
}

func (p *ProgressReporter) report(phase string, current uint64, total int64) {
	p.progress.Update(int64(current), total)

	if total <= 0 {
		p.logger.Info(phase+" progress", map[string]interface{}{
			"bytes_written": current,
		})
		return
	}

	pct := p.progress.Percentage
	if pct < p.lastPct+logThresholdPercent && pct < 99.0 {
		return
	}

	fields := map[string]interface{}{
		"bytes_written": current,
		"total_bytes":   total,
		"percent":       pct,
	}
	if p.progress.Rate > 0 {
		fields["rate_bytes_per_sec"] = p.progress.Rate
	}
	if p.progress.ETA != nil {
		fields["eta_seconds"] = p.progress.ETA.Seconds()
	}

	p.logger.Info(phase+" progress", fields)
	p.lastPct = pct
}
