package services

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"fanpit/config"
	"fanpit/internal/store"
	"fanpit/models"
	"fanpit/monitoring"
)

const sweepBatchSize = 100

// Reaper retires overdue queue entries and checkout sessions, refreshes
// the Redis position cache, and logs periodic health stats. Sweeps are
// idempotent: re-running one over the same rows changes nothing, so an
// overlapping or restarted sweep is harmless.
type Reaper struct {
	store     store.Store
	Redis     *redis.Client
	admission *Admission
	config    *config.Config
	monitor   *monitoring.Monitor
	notifier  *Notifier
	now       func() time.Time

	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewReaper(st store.Store, redisClient *redis.Client, admission *Admission, cfg *config.Config, monitor *monitoring.Monitor, notifier *Notifier) *Reaper {
	return &Reaper{
		store:     st,
		Redis:     redisClient,
		admission: admission,
		config:    cfg,
		monitor:   monitor,
		notifier:  notifier,
		now:       time.Now,
		stopChan:  make(chan struct{}),
	}
}

// Start launches the background loops. Call Shutdown to stop them.
func (r *Reaper) Start() {
	r.wg.Add(1)
	go r.sweeper()

	r.wg.Add(1)
	go r.positionUpdater()

	r.wg.Add(1)
	go r.healthMonitor()

	slog.Info("reaper started",
		"sweep_interval", r.config.ReaperInterval,
		"position_interval", r.config.PositionUpdateInterval)
}

func (r *Reaper) sweeper() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.ReaperInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := r.Sweep(context.Background()); err != nil {
				slog.Error("sweep failed", "error", err)
			}
		case <-r.stopChan:
			return
		}
	}
}

// Sweep runs one full pass over expired queue entries and checkout
// sessions. Exposed so the admin API and startup restore can force one.
func (r *Reaper) Sweep(ctx context.Context) error {
	start := r.now()
	defer func() {
		r.monitor.TrackSweep(time.Since(start))
	}()

	events, err := r.sweepQueueEntries(ctx)
	if err != nil {
		return err
	}
	sessionEvents, err := r.sweepSessions(ctx)
	if err != nil {
		return err
	}
	for eventID := range sessionEvents {
		events[eventID] = struct{}{}
	}

	// Every event that lost an admitted slot can admit someone else now.
	for eventID := range events {
		if _, err := r.admission.FillSlots(ctx, eventID); err != nil {
			slog.Error("fill slots after sweep", "event", eventID, "error", err)
		}
	}
	return nil
}

// sweepQueueEntries expires every overdue live entry, starts its rejoin
// cooldown, and frees the admission slot of entries that held one.
// Returns the set of touched event ids.
func (r *Reaper) sweepQueueEntries(ctx context.Context) (map[string]struct{}, error) {
	events := make(map[string]struct{})

	for {
		expired, err := r.store.ExpiredQueueEntries(ctx, r.now(), sweepBatchSize)
		if err != nil {
			return events, err
		}
		if len(expired) == 0 {
			return events, nil
		}

		for _, candidate := range expired {
			var notify *models.QueueEntry
			err := r.store.RunInTransaction(ctx, func(tx store.Store) error {
				entry, err := tx.QueueEntry(ctx, candidate.ID)
				if err != nil {
					return err
				}
				now := r.now()
				// Another sweep, a purchase, or a leave may have settled
				// this entry since the batch was read.
				if !entry.Live() || !entry.ExpiredAt(now) {
					return nil
				}
				wasAdmitted := entry.Status == models.QueueAdmitted
				entry.Status = models.QueueExpired
				entry.CooldownUntil = now.Add(r.config.QueueCooldown)
				if err := tx.SaveQueueEntry(ctx, entry); err != nil {
					return err
				}
				if wasAdmitted {
					if err := r.admission.ReleaseSlot(ctx, tx, entry.EventID, entry.UserID); err != nil {
						return err
					}
				}
				notify = entry
				return nil
			})
			if err != nil {
				slog.Error("expire queue entry", "entry", candidate.ID, "error", err)
				continue
			}
			if notify != nil {
				events[notify.EventID] = struct{}{}
				r.notifier.Expired(notify.UserID, notify.EventID)
				r.monitor.TrackQueueOperation("expire", notify.EventID, "success")
			}
		}

		if len(expired) < sweepBatchSize {
			return events, nil
		}
	}
}

// sweepSessions closes expired, never-consumed sessions so they stop
// matching the expired-session scan. The owning queue entry shares the
// session's deadline, so sweepQueueEntries already retired it; this pass
// only handles stragglers whose entry outlived the session somehow.
func (r *Reaper) sweepSessions(ctx context.Context) (map[string]struct{}, error) {
	events := make(map[string]struct{})

	for {
		expired, err := r.store.ExpiredSessions(ctx, r.now(), sweepBatchSize)
		if err != nil {
			return events, err
		}
		if len(expired) == 0 {
			return events, nil
		}

		for _, candidate := range expired {
			err := r.store.RunInTransaction(ctx, func(tx store.Store) error {
				session, err := tx.Session(ctx, candidate.ID)
				if err != nil {
					return err
				}
				now := r.now()
				if session.Consumed || session.ExpiresAt.After(now) {
					return nil
				}
				session.Consumed = true
				if err := tx.SaveSession(ctx, session); err != nil {
					return err
				}

				entry, err := tx.LiveQueueEntry(ctx, session.EventID, session.UserID)
				if err != nil {
					return err
				}
				if entry != nil && entry.Status == models.QueueAdmitted {
					entry.Status = models.QueueExpired
					entry.CooldownUntil = now.Add(r.config.QueueCooldown)
					if err := tx.SaveQueueEntry(ctx, entry); err != nil {
						return err
					}
					if err := r.admission.ReleaseSlot(ctx, tx, entry.EventID, entry.UserID); err != nil {
						return err
					}
					events[entry.EventID] = struct{}{}
				}
				return nil
			})
			if err != nil {
				slog.Error("close expired session", "session", candidate.ID, "error", err)
			}
		}

		if len(expired) < sweepBatchSize {
			return events, nil
		}
	}
}

func (r *Reaper) positionUpdater() {
	defer r.wg.Done()

	if r.Redis == nil {
		return
	}

	ticker := time.NewTicker(r.config.PositionUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.updateAllPositions()
		case <-r.stopChan:
			return
		}
	}
}

func (r *Reaper) updateAllPositions() {
	ctx := context.Background()

	eventIDs, err := r.Redis.SMembers(ctx, "active_events").Result()
	if err != nil {
		slog.Error("position update: list active events", "error", err)
		return
	}

	for _, eventID := range eventIDs {
		if err := r.updateEventPositions(ctx, eventID); err != nil {
			slog.Error("position update", "event", eventID, "error", err)
		}
	}
}

func (r *Reaper) updateEventPositions(ctx context.Context, eventID string) error {
	waiting, err := r.store.WaitingEntries(ctx, eventID)
	if err != nil {
		return err
	}
	admitted, err := r.store.CountQueueByStatus(ctx, eventID, models.QueueAdmitted)
	if err != nil {
		return err
	}

	pipe := r.Redis.Pipeline()
	for position, entry := range waiting {
		posKey := fmt.Sprintf("queue:position:%s:%s", eventID, entry.UserID)
		pipe.Set(ctx, posKey, position, r.config.PositionCacheTTL)
	}
	pipe.Set(ctx, "queue:waiting_count:"+eventID, len(waiting), 2*r.config.PositionUpdateInterval)
	pipe.Set(ctx, "queue:admitted_count:"+eventID, admitted, 2*r.config.PositionUpdateInterval)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}

	for position, entry := range waiting {
		if ShouldNotifyPosition(position) {
			r.notifier.QueuePosition(entry.UserID, eventID, position)
		}
	}
	return nil
}

func (r *Reaper) healthMonitor() {
	defer r.wg.Done()

	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.logHealthStats()
		case <-r.stopChan:
			return
		}
	}
}

func (r *Reaper) logHealthStats() {
	ctx := context.Background()

	totalWaiting := 0
	totalAdmitted := 0
	activeEvents := 0

	if r.Redis != nil {
		eventIDs, _ := r.Redis.SMembers(ctx, "active_events").Result()
		activeEvents = len(eventIDs)
		for _, eventID := range eventIDs {
			waiting, _ := r.Redis.Get(ctx, "queue:waiting_count:"+eventID).Int()
			admitted, _ := r.Redis.Get(ctx, "queue:admitted_count:"+eventID).Int()
			totalWaiting += waiting
			totalAdmitted += admitted
		}
	}

	memStats := &runtime.MemStats{}
	runtime.ReadMemStats(memStats)

	slog.Info("queue health",
		"events", activeEvents,
		"waiting", totalWaiting,
		"admitted", totalAdmitted,
		"goroutines", runtime.NumGoroutine(),
		"memory_mb", float64(memStats.Alloc)/1024/1024)
}

// Shutdown stops the background loops and waits for in-flight sweeps.
func (r *Reaper) Shutdown() {
	slog.Info("shutting down reaper")
	close(r.stopChan)

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("reaper stopped")
	case <-time.After(30 * time.Second):
		slog.Warn("timeout waiting for reaper goroutines")
	}
}
