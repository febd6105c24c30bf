package event_sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dthul/swissrpg-discord-bot-sub001/internal/config"
	"github.com/dthul/swissrpg-discord-bot-sub001/internal/event_bus"
	"github.com/dthul/swissrpg-discord-bot-sub001/internal/scheduler"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

const DiscordSyncTaskName = "discord sync"

type EventReconciler interface {
	Reconcile(ctx context.Context) (ReconcileResult, error)
}

type DiscordSyncer interface {
	SyncDiscord(ctx context.Context) error
}

type TaskScheduler interface {
	AddTaskNow(name string, task scheduler.Task)
}

// SyncStatus describes the outcome of the most recent reconciliation.
type SyncStatus struct {
	Result     ReconcileResult
	Err        error
	FinishedAt time.Time
}

// Orchestrator runs the reconciliation on a fixed interval and hands successful runs over to
// the Discord sync.
type Orchestrator struct {
	reconciler EventReconciler
	scheduler  TaskScheduler
	discord    DiscordSyncer
	eventBus   *event_bus.EventBus
	interval   time.Duration
	timeout    time.Duration

	cron *cron.Cron
	wg   sync.WaitGroup

	mu   sync.RWMutex
	last *SyncStatus
}

func NewOrchestrator(reconciler EventReconciler, scheduler TaskScheduler, discord DiscordSyncer,
	eventBus *event_bus.EventBus, cfg config.Sync) *Orchestrator {
	return &Orchestrator{
		reconciler: reconciler,
		scheduler:  scheduler,
		discord:    discord,
		eventBus:   eventBus,
		interval:   cfg.Interval,
		timeout:    cfg.Timeout,
		cron:       cron.New(),
	}
}

// Start registers the periodic sync. Every tick runs in its own goroutine so that a hanging
// sync never delays the next one.
func (o *Orchestrator) Start(ctx context.Context) error {
	if o.timeout >= o.interval {
		return fmt.Errorf("sync timeout %s must be shorter than the sync interval %s", o.timeout, o.interval)
	}
	_, err := o.cron.AddFunc(fmt.Sprintf("@every %s", o.interval), func() {
		o.TriggerNow(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule meetup sync: %w", err)
	}
	o.cron.Start()
	log.Infof("Meetup sync scheduled every %s (timeout %s)", o.interval, o.timeout)
	return nil
}

// Stop ends the periodic sync and waits for runs that are still in flight.
func (o *Orchestrator) Stop() {
	<-o.cron.Stop().Done()
	o.wg.Wait()
}

// TriggerNow starts a sync in the background.
func (o *Orchestrator) TriggerNow(ctx context.Context) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		_, _ = o.RunOnce(ctx)
	}()
}

// RunOnce reconciles within the configured timeout. A run exceeding it is reported as
// ErrTimeout, its late result is discarded.
func (o *Orchestrator) RunOnce(ctx context.Context) (ReconcileResult, error) {
	started := time.Now()
	result, err := o.reconcileWithTimeout(ctx)

	o.mu.Lock()
	o.last = &SyncStatus{Result: result, Err: err, FinishedAt: time.Now()}
	o.mu.Unlock()

	if err != nil {
		log.Errorf("Meetup sync failed: %v", err)
		o.publish(ctx, event_bus.MeetupSyncFailedType, event_bus.MeetupSyncFailed{
			Err:      err,
			TimedOut: errors.Is(err, ErrTimeout),
		})
		return result, err
	}

	o.scheduler.AddTaskNow(DiscordSyncTaskName, scheduler.OneShot(func(ctx context.Context) {
		if err := o.discord.SyncDiscord(ctx); err != nil {
			log.Errorf("Discord sync failed: %v", err)
		}
	}))
	o.publish(ctx, event_bus.MeetupSyncCompletedType, event_bus.MeetupSyncCompleted{
		EventsMatched: result.EventsMatched,
		EventsSynced:  result.EventsSynced,
		NewSeries:     result.NewSeries,
		Errors:        result.Errors,
		Duration:      time.Since(started),
	})
	return result, nil
}

// LastStatus returns the outcome of the most recent run, or false if none has finished yet.
func (o *Orchestrator) LastStatus() (SyncStatus, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.last == nil {
		return SyncStatus{}, false
	}
	return *o.last, true
}

type reconcileOutcome struct {
	result ReconcileResult
	err    error
}

func (o *Orchestrator) reconcileWithTimeout(ctx context.Context) (ReconcileResult, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	done := make(chan reconcileOutcome, 1)
	go func() {
		result, err := o.reconciler.Reconcile(ctx)
		done <- reconcileOutcome{result: result, err: err}
	}()

	select {
	case outcome := <-done:
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return outcome.result, fmt.Errorf("%w after %s", ErrTimeout, o.timeout)
		}
		return outcome.result, outcome.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ReconcileResult{}, fmt.Errorf("%w after %s", ErrTimeout, o.timeout)
		}
		return ReconcileResult{}, ctx.Err()
	}
}

func (o *Orchestrator) publish(ctx context.Context, eventType event_bus.EventType, data any) {
	if o.eventBus == nil {
		return
	}
	if err := o.eventBus.Publish(event_bus.NewEvent(context.WithoutCancel(ctx), eventType, data)); err != nil {
		log.Errorf("failed to publish %s: %v", eventType, err)
	}
}
