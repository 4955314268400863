package jobs

import (
	"context"
	"sync"
	"time"

	"community-campaigns/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const backlogQueryTimeout = 10 * time.Second

var campaignsAwaitingOnchain = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "campaigns_awaiting_onchain_record",
	Help: "IN_PROGRESS campaigns with no on-chain transaction hash",
})

// BacklogCounter counts campaigns that filled up but have no ledger record.
type BacklogCounter interface {
	CountAwaitingOnchain(ctx context.Context) (int64, error)
}

// OnchainBacklogMonitor periodically reports campaigns whose ledger
// registration never landed. It only observes; it never re-registers.
type OnchainBacklogMonitor struct {
	campaigns BacklogCounter
	interval  time.Duration
	stopChan  chan struct{}
	stopOnce  sync.Once
}

// NewOnchainBacklogMonitor creates a new backlog monitor job
func NewOnchainBacklogMonitor(campaigns BacklogCounter, interval time.Duration) *OnchainBacklogMonitor {
	if interval <= 0 {
		interval = time.Minute
	}
	return &OnchainBacklogMonitor{
		campaigns: campaigns,
		interval:  interval,
		stopChan:  make(chan struct{}),
	}
}

// Start runs the monitor loop until Stop is called
func (m *OnchainBacklogMonitor) Start() {
	logger.Infof("[OnchainBacklogMonitor] Starting (interval: %v)", m.interval)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Check()
	for {
		select {
		case <-ticker.C:
			m.Check()
		case <-m.stopChan:
			logger.Infof("[OnchainBacklogMonitor] Stopping")
			return
		}
	}
}

// Stop stops the monitor loop
func (m *OnchainBacklogMonitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopChan) })
}

// Check counts the backlog once and publishes it.
func (m *OnchainBacklogMonitor) Check() (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), backlogQueryTimeout)
	defer cancel()

	count, err := m.campaigns.CountAwaitingOnchain(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("[OnchainBacklogMonitor] failed to count backlog")
		return 0, err
	}

	campaignsAwaitingOnchain.Set(float64(count))
	if count > 0 {
		logger.Warn().
			Int64("campaigns", count).
			Msg("[OnchainBacklogMonitor] campaigns in progress without on-chain record")
	}
	return count, nil
}
