package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"card-league-system/metrics"
	"card-league-system/models"
	"card-league-system/repository"
)

const (
	defaultRetryDelay  = 30 * time.Second
	defaultMaxAttempts = 8
)

type OutcomeRecorder interface {
	RecordOutcome(ctx context.Context, userID, deckType, seasonID string, won bool) error
}

type LeaderReassigner interface {
	ReassignLeaders(ctx context.Context, seasonID string) ([]LeaderAssignment, error)
}

type AchievementRecomputer interface {
	RecomputeAchievements(ctx context.Context, userID, seasonID string) (AchievementReport, error)
}

// CompletedMatch is what the recompute pipeline needs to know about a match
// that just completed. Empty deck types mean the player did not tag one.
type CompletedMatch struct {
	MatchID         string
	SeasonID        string
	Player1ID       string
	Player2ID       string
	WinnerID        string
	Player1DeckType string
	Player2DeckType string
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func CompletedMatchFrom(m *models.Match) CompletedMatch {
	return CompletedMatch{
		MatchID:         m.ID,
		SeasonID:        m.SeasonID,
		Player1ID:       m.Player1ID,
		Player2ID:       m.Player2ID,
		WinnerID:        deref(m.WinnerID),
		Player1DeckType: deref(m.Player1Slot.DeckType),
		Player2DeckType: deref(m.Player2Slot.DeckType),
	}
}

// StepReport describes one pipeline step of one completion.
type StepReport struct {
	Step    models.RecomputeStep `json:"step"`
	UserID  string               `json:"user_id,omitempty"`
	Skipped bool                 `json:"skipped,omitempty"`
	Error   string               `json:"error,omitempty"`
	TaskID  string               `json:"retry_task_id,omitempty"`
	Err     error                `json:"-"`
}

// CompletionOutcome is returned to the caller that completed a match.
type CompletionOutcome struct {
	MatchID      string              `json:"match_id"`
	WinnerID     string              `json:"winner_id"`
	Steps        []StepReport        `json:"steps"`
	Leaders      []LeaderAssignment  `json:"leaders,omitempty"`
	Achievements []AchievementReport `json:"achievements,omitempty"`
}

// Failed returns the steps that did not succeed.
func (o CompletionOutcome) Failed() []StepReport {
	var out []StepReport
	for _, s := range o.Steps {
		if s.Err != nil {
			out = append(out, s)
		}
	}
	return out
}

// CompletionOrchestrator runs the post-completion recompute steps in order.
// Steps are best-effort: a failure is logged, counted, saved as a
// RecomputeTask and the remaining steps still run. The match stays completed.
type CompletionOrchestrator struct {
	Aggregator   OutcomeRecorder
	Leaders      LeaderReassigner
	Achievements AchievementRecomputer
	Tasks        repository.TaskStore
	Metrics      *metrics.LeagueMetrics
	Logger       *slog.Logger

	RetryDelay  time.Duration
	MaxAttempts int
	Now         func() time.Time
}

func NewCompletionOrchestrator(
	aggregator OutcomeRecorder,
	leaders LeaderReassigner,
	achievements AchievementRecomputer,
	tasks repository.TaskStore,
	m *metrics.LeagueMetrics,
	logger *slog.Logger,
) *CompletionOrchestrator {
	return &CompletionOrchestrator{
		Aggregator:   aggregator,
		Leaders:      leaders,
		Achievements: achievements,
		Tasks:        tasks,
		Metrics:      m,
		Logger:       logger,
		RetryDelay:   defaultRetryDelay,
		MaxAttempts:  defaultMaxAttempts,
		Now:          func() time.Time { return time.Now().UTC() },
	}
}

// OnMatchCompleted runs, in order: the aggregator for player1 then player2,
// the leadership assigner once for the season, then the evaluator for player1
// then player2.
func (o *CompletionOrchestrator) OnMatchCompleted(ctx context.Context, cm CompletedMatch) CompletionOutcome {
	out := CompletionOutcome{MatchID: cm.MatchID, WinnerID: cm.WinnerID}
	log := o.Logger.With("match_id", cm.MatchID, "season_id", cm.SeasonID)

	record := func(step models.RecomputeStep, userID, deckType string) {
		won := userID == cm.WinnerID
		task := models.RecomputeTask{
			MatchID: cm.MatchID, Step: step, UserID: userID,
			SeasonID: cm.SeasonID, DeckType: deckType, Won: won,
		}
		if deckType == "" {
			out.Steps = append(out.Steps, StepReport{Step: step, UserID: userID, Skipped: true})
			return
		}
		out.Steps = append(out.Steps, o.run(ctx, log, task, func() error {
			return o.Aggregator.RecordOutcome(ctx, userID, deckType, cm.SeasonID, won)
		}))
	}
	record(models.StepRecordPlayer1, cm.Player1ID, cm.Player1DeckType)
	record(models.StepRecordPlayer2, cm.Player2ID, cm.Player2DeckType)

	leaderTask := models.RecomputeTask{MatchID: cm.MatchID, Step: models.StepReassignLeaders, SeasonID: cm.SeasonID}
	out.Steps = append(out.Steps, o.run(ctx, log, leaderTask, func() error {
		leaders, err := o.Leaders.ReassignLeaders(ctx, cm.SeasonID)
		out.Leaders = leaders
		return err
	}))

	evaluate := func(step models.RecomputeStep, userID string) {
		task := models.RecomputeTask{MatchID: cm.MatchID, Step: step, UserID: userID, SeasonID: cm.SeasonID}
		out.Steps = append(out.Steps, o.run(ctx, log, task, func() error {
			report, err := o.Achievements.RecomputeAchievements(ctx, userID, cm.SeasonID)
			if err == nil {
				out.Achievements = append(out.Achievements, report)
			}
			return err
		}))
	}
	evaluate(models.StepAchievements1, cm.Player1ID)
	evaluate(models.StepAchievements2, cm.Player2ID)

	if failed := out.Failed(); len(failed) > 0 {
		log.WarnContext(ctx, "match completed with failed recompute steps", "failed_steps", len(failed))
	}
	return out
}

func (o *CompletionOrchestrator) run(ctx context.Context, log *slog.Logger, task models.RecomputeTask, fn func() error) StepReport {
	rep := StepReport{Step: task.Step, UserID: task.UserID}
	start := time.Now()
	err := fn()
	o.Metrics.Step(string(task.Step), time.Since(start), err)
	if err == nil {
		return rep
	}

	rep.Err = err
	rep.Error = err.Error()
	log.ErrorContext(ctx, "recompute step failed", "step", task.Step, "user_id", task.UserID, "error", err)

	task.Status = models.TaskPending
	task.LastError = err.Error()
	task.NextAttemptAt = o.Now().Add(o.RetryDelay)
	if saveErr := o.Tasks.SaveRecomputeTask(ctx, &task); saveErr != nil {
		log.ErrorContext(ctx, "failed to save retry task", "step", task.Step, "user_id", task.UserID, "error", saveErr)
		return rep
	}
	rep.TaskID = task.ID
	return rep
}

func (o *CompletionOrchestrator) runTask(ctx context.Context, t models.RecomputeTask) error {
	switch t.Step {
	case models.StepRecordPlayer1, models.StepRecordPlayer2:
		if err := o.Aggregator.RecordOutcome(ctx, t.UserID, t.DeckType, t.SeasonID, t.Won); err != nil {
			return err
		}
		// Counters changed after the original pass derived leaders and
		// achievements from them, so derive them again.
		if _, err := o.Leaders.ReassignLeaders(ctx, t.SeasonID); err != nil {
			o.Logger.WarnContext(ctx, "leader refresh after retry failed", "season_id", t.SeasonID, "error", err)
		}
		if _, err := o.Achievements.RecomputeAchievements(ctx, t.UserID, t.SeasonID); err != nil {
			o.Logger.WarnContext(ctx, "achievement refresh after retry failed", "user_id", t.UserID, "error", err)
		}
		return nil
	case models.StepReassignLeaders:
		_, err := o.Leaders.ReassignLeaders(ctx, t.SeasonID)
		return err
	case models.StepAchievements1, models.StepAchievements2:
		_, err := o.Achievements.RecomputeAchievements(ctx, t.UserID, t.SeasonID)
		return err
	default:
		return fmt.Errorf("unknown recompute step %q", t.Step)
	}
}

// RetryTask re-runs one failed step and records the result on the task.
// Tasks that keep failing back off exponentially and are abandoned after
// MaxAttempts.
func (o *CompletionOrchestrator) RetryTask(ctx context.Context, t models.RecomputeTask) error {
	if t.Status != models.TaskPending {
		return fmt.Errorf("task %s is %s", t.ID, t.Status)
	}
	start := time.Now()
	err := o.runTask(ctx, t)
	o.Metrics.Step(string(t.Step), time.Since(start), err)

	t.Attempts++
	if err == nil {
		t.Status = models.TaskDone
		t.LastError = ""
		o.Metrics.Retry("done")
	} else {
		t.LastError = err.Error()
		if o.MaxAttempts > 0 && t.Attempts >= o.MaxAttempts {
			t.Status = models.TaskAbandoned
			o.Metrics.Retry("abandoned")
		} else {
			t.NextAttemptAt = o.Now().Add(o.RetryDelay << min(t.Attempts, 10))
			o.Metrics.Retry("failed")
		}
	}

	if updErr := o.Tasks.UpdateRecomputeTask(ctx, &t); updErr != nil {
		return errors.Join(err, persistence("update recompute task", updErr))
	}
	if err != nil {
		o.Logger.WarnContext(ctx, "recompute retry failed",
			"task_id", t.ID, "step", t.Step, "attempts", t.Attempts, "status", t.Status, "error", err)
		return err
	}
	o.Logger.InfoContext(ctx, "recompute retry succeeded", "task_id", t.ID, "step", t.Step, "match_id", t.MatchID)
	return nil
}

// RetryDue retries every pending task whose next attempt is due. It returns
// how many succeeded.
func (o *CompletionOrchestrator) RetryDue(ctx context.Context, limit int) (int, error) {
	tasks, err := o.Tasks.ListDueRecomputeTasks(ctx, o.Now(), limit)
	if err != nil {
		return 0, persistence("list due recompute tasks", err)
	}
	done := 0
	for _, t := range tasks {
		if ctx.Err() != nil {
			return done, ctx.Err()
		}
		if err := o.RetryTask(ctx, t); err == nil {
			done++
		}
	}
	return done, nil
}
