package sweep

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/membergate/membergate/internal/pkg/billing"
	"github.com/membergate/membergate/internal/pkg/cache"
	"github.com/membergate/membergate/internal/pkg/config"
)

const heartbeatCacheKey = "membergate:heartbeat"

// Manager schedules the daily removal sweep, the daily warning pass and a
// lightweight heartbeat. Jobs are time-triggered on the configured timezone;
// a missed daily slot at startup is caught up with one immediate run.
type Manager struct {
	cfg     *config.Config
	engine  *Engine
	billing *billing.Service

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewManager creates the scheduler around an engine and the billing service
// (the latter only for processed-event housekeeping).
func NewManager(cfg *config.Config, engine *Engine, billingSvc *billing.Service) *Manager {
	return &Manager{
		cfg:     cfg,
		engine:  engine,
		billing: billingSvc,
		stopCh:  make(chan struct{}),
	}
}

// Start launches the background workers.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so the manager can be
	// restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Infof("[Scheduler] starting: sweep at %02d:00, warnings at %02d:00 (%s)",
		m.cfg.SweepHour, m.cfg.WarningHour, m.cfg.Location)

	m.wg.Add(3)
	go m.dailyWorker("removal sweep", m.cfg.SweepHour, m.runRemovalSweep)
	go m.dailyWorker("warning pass", m.cfg.WarningHour, m.runWarningPass)
	go m.heartbeatWorker()
}

// Stop stops the workers. A sweep in flight finishes; nothing is cancelled
// mid-candidate because durable state lets the next run resume the work.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[Scheduler] stopping workers...")
	close(m.stopCh)
	m.running = false
	m.wg.Wait()
	log.Info("[Scheduler] all workers stopped")
}

// dailyWorker runs job once per day at the given hour. If today's slot has
// already passed when the worker starts, one immediate catch-up run happens
// first instead of waiting for tomorrow.
func (m *Manager) dailyWorker(name string, hour int, job func()) {
	defer m.wg.Done()

	now := time.Now().In(m.cfg.Location)
	if todayAt(now, hour).Before(now) {
		log.Infof("[Scheduler] %s slot for today already passed, running catch-up", name)
		job()
	}

	for {
		next := nextRunAt(time.Now().In(m.cfg.Location), hour)
		timer := time.NewTimer(time.Until(next))
		select {
		case <-m.stopCh:
			timer.Stop()
			return
		case <-timer.C:
			job()
		}
	}
}

func (m *Manager) runRemovalSweep() {
	if _, err := m.engine.RunRemovalSweep(context.Background()); err != nil && !errors.Is(err, ErrSweepInProgress) {
		log.Errorf("[Scheduler] removal sweep failed: %v", err)
	}
	// Daily housekeeping rides along with the sweep slot.
	m.billing.TrimProcessedEvents()
}

func (m *Manager) runWarningPass() {
	if _, err := m.engine.RunWarningPass(context.Background()); err != nil {
		log.Errorf("[Scheduler] warning pass failed: %v", err)
	}
}

func (m *Manager) heartbeatWorker() {
	defer m.wg.Done()

	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			ts := time.Now().In(m.cfg.Location).Format(time.RFC3339)
			if err := cache.Set(heartbeatCacheKey, ts, 2*time.Hour); err != nil {
				log.Warnf("[Scheduler] heartbeat write failed: %v", err)
			}
			log.Infof("[Scheduler] heartbeat %s", ts)
		}
	}
}

// todayAt returns the job slot for now's calendar day.
func todayAt(now time.Time, hour int) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
}

// nextRunAt returns the next daily slot strictly after now.
func nextRunAt(now time.Time, hour int) time.Time {
	next := todayAt(now, hour)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
