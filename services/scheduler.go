// services/scheduler.go
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"card-league-system/repository"

	"github.com/go-co-op/gocron/v2"
)

// Reconciler re-runs gym badge assignment so holder rows lost to concurrent
// completions converge. Achievements are not touched.
type Reconciler struct {
	Seasons repository.SeasonStore
	Leaders LeaderReassigner
	Logger  *slog.Logger
}

func NewReconciler(seasons repository.SeasonStore, leaders LeaderReassigner, logger *slog.Logger) *Reconciler {
	return &Reconciler{Seasons: seasons, Leaders: leaders, Logger: logger}
}

// ReconcileSeason reassigns the leaders of one season.
func (r *Reconciler) ReconcileSeason(ctx context.Context, seasonID string) ([]LeaderAssignment, error) {
	if _, err := r.Seasons.GetSeason(ctx, seasonID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSeasonNotFound
		}
		return nil, persistence("get season", err)
	}
	return r.Leaders.ReassignLeaders(ctx, seasonID)
}

// ReconcileOpenSeasons reassigns leaders for every open season and returns
// how many seasons were reconciled. It keeps going past failing seasons.
func (r *Reconciler) ReconcileOpenSeasons(ctx context.Context) (int, error) {
	seasons, err := r.Seasons.ListOpenSeasons(ctx)
	if err != nil {
		return 0, persistence("list open seasons", err)
	}
	var errs []error
	done := 0
	for _, s := range seasons {
		if _, err := r.Leaders.ReassignLeaders(ctx, s.ID); err != nil {
			r.Logger.ErrorContext(ctx, "reconcile season failed", "season_id", s.ID, "error", err)
			errs = append(errs, fmt.Errorf("season %s: %w", s.ID, err))
			continue
		}
		done++
	}
	return done, errors.Join(errs...)
}

// StartReconcileScheduler runs ReconcileOpenSeasons every interval until the
// returned scheduler is shut down.
func StartReconcileScheduler(ctx context.Context, r *Reconciler, every time.Duration) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(every),
		gocron.NewTask(func() {
			n, err := r.ReconcileOpenSeasons(ctx)
			if err != nil {
				r.Logger.ErrorContext(ctx, "[Scheduler] reconcile finished with errors", "seasons", n, "error", err)
				return
			}
			r.Logger.DebugContext(ctx, "[Scheduler] reconcile finished", "seasons", n)
		}),
		gocron.WithName("reconcile-gym-badges"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, fmt.Errorf("schedule reconcile job: %w", err)
	}

	sched.Start()
	return sched, nil
}
