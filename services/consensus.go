package services

import (
	"context"
	"errors"
	"log/slog"
	"mime/multipart"
	"strings"
	"time"

	"card-league-system/metrics"
	"card-league-system/models"
	"card-league-system/notify"
	"card-league-system/repository"
	"card-league-system/utils"
)

// ConsensusState summarizes where a match is in the two-party protocol.
type ConsensusState string

const (
	StateAwaitingBoth   ConsensusState = "awaiting_both"
	StateOneSubmitted   ConsensusState = "one_submitted"
	StateIncomplete     ConsensusState = "incomplete"
	StateAgreeing       ConsensusState = "agreeing"
	StateWinnerMismatch ConsensusState = "winner_mismatch"
	StateCompleted      ConsensusState = "completed"
	StateCancelled      ConsensusState = "cancelled"
)

// Actor is the caller of a consensus operation.
type Actor struct {
	UserID  string
	IsAdmin bool
}

// EvidenceInput carries the fields a participant submits. Nil fields keep
// whatever the slot already holds.
type EvidenceInput struct {
	ImageRef        *string
	DamagePoints    *int
	WinnerSelection *string
	DeckType        *string
}

type SubmissionResult struct {
	Match      *models.Match      `json:"match"`
	State      ConsensusState     `json:"state"`
	Completion *CompletionOutcome `json:"completion,omitempty"`
	Mismatch   *ConsensusError    `json:"-"`
}

// EvidenceStorage persists screenshot uploads and returns their public reference.
type EvidenceStorage interface {
	UploadEvidence(ctx context.Context, key string, fh *multipart.FileHeader) (string, error)
}

type DeckTypeResolver interface {
	Resolve(input string) (string, bool)
}

type CompletionHandler interface {
	OnMatchCompleted(ctx context.Context, cm CompletedMatch) CompletionOutcome
}

type consensusStore interface {
	repository.MatchStore
	repository.SeasonStore
}

// ConsensusEngine decides when a scheduled match becomes completed. A match
// completes once both participants attached a screenshot, damage and the
// same winner.
type ConsensusEngine struct {
	Store        consensusStore
	Orchestrator CompletionHandler
	DeckTypes    DeckTypeResolver
	Storage      EvidenceStorage
	Notifier     notify.Notifier
	Metrics      *metrics.LeagueMetrics
	Logger       *slog.Logger
	Now          func() time.Time

	locks *keyedMutex
}

func NewConsensusEngine(
	store consensusStore,
	orchestrator CompletionHandler,
	deckTypes DeckTypeResolver,
	storage EvidenceStorage,
	notifier notify.Notifier,
	m *metrics.LeagueMetrics,
	logger *slog.Logger,
) *ConsensusEngine {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &ConsensusEngine{
		Store:        store,
		Orchestrator: orchestrator,
		DeckTypes:    deckTypes,
		Storage:      storage,
		Notifier:     notifier,
		Metrics:      m,
		Logger:       logger,
		Now:          func() time.Time { return time.Now().UTC() },
		locks:        newKeyedMutex(),
	}
}

func winnerPick(s models.MatchSlot) string {
	if s.WinnerSelection == nil {
		return ""
	}
	return *s.WinnerSelection
}

// Evaluate reports the consensus state of m. A slot counts as submitted once
// it has a screenshot. Disagreeing winner picks are reported as soon as both
// exist, even while other fields are missing.
func Evaluate(m *models.Match) ConsensusState {
	switch m.Status {
	case models.MatchStatusCompleted:
		return StateCompleted
	case models.MatchStatusCancelled:
		return StateCancelled
	}

	p1, p2 := m.Player1Slot, m.Player2Slot
	if w1, w2 := winnerPick(p1), winnerPick(p2); w1 != "" && w2 != "" && w1 != w2 {
		return StateWinnerMismatch
	}
	switch {
	case p1.HasImage() && p2.HasImage():
		if p1.IsComplete() && p2.IsComplete() {
			return StateAgreeing
		}
		return StateIncomplete
	case p1.HasImage() || p2.HasImage():
		return StateOneSubmitted
	default:
		return StateAwaitingBoth
	}
}

func missingFields(m *models.Match) []string {
	var out []string
	for _, s := range []models.Slot{models.SlotPlayer1, models.SlotPlayer2} {
		slot := m.Slot(s)
		if !slot.HasImage() {
			out = append(out, s.String()+".screenshot")
		}
		if slot.DamagePoints == nil {
			out = append(out, s.String()+".damage_points")
		}
		if winnerPick(slot) == "" {
			out = append(out, s.String()+".winner")
		}
	}
	return out
}

func consensusError(m *models.Match, state ConsensusState) *ConsensusError {
	ce := &ConsensusError{
		MatchID:     m.ID,
		Player1Pick: winnerPick(m.Player1Slot),
		Player2Pick: winnerPick(m.Player2Slot),
	}
	if state == StateWinnerMismatch {
		ce.Kind = WinnerMismatch
	} else {
		ce.Kind = Incomplete
		ce.Missing = missingFields(m)
	}
	return ce
}

func (e *ConsensusEngine) validateInput(in *EvidenceInput) error {
	if in.ImageRef != nil {
		ref := strings.TrimSpace(*in.ImageRef)
		if ref == "" {
			return &ValidationError{Field: "image_ref", Reason: "must not be empty"}
		}
		in.ImageRef = &ref
	}
	if in.DamagePoints != nil && *in.DamagePoints < 0 {
		return &ValidationError{Field: "damage_points", Reason: "must be zero or greater"}
	}
	if in.DeckType != nil {
		key, ok := e.DeckTypes.Resolve(*in.DeckType)
		if !ok {
			return &ValidationError{Field: "deck_type", Reason: "unknown deck type " + *in.DeckType}
		}
		in.DeckType = &key
	}
	return nil
}

// loadOpen fetches a match that can still change.
func (e *ConsensusEngine) loadOpen(ctx context.Context, matchID string) (*models.Match, error) {
	m, err := e.Store.GetMatch(ctx, matchID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrMatchNotFound
	}
	if err != nil {
		return nil, persistence("get match", err)
	}
	if m.Status != models.MatchStatusScheduled {
		return m, ErrMatchClosed
	}
	season, err := e.Store.GetSeason(ctx, m.SeasonID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		// seasons are optional bookkeeping; an unknown season is treated as open
	case err != nil:
		return nil, persistence("get season", err)
	case season.IsClosed():
		return m, ErrMatchClosed
	}
	return m, nil
}

// resolveSlot returns the slot the actor writes. slot 0 means the actor's own.
func resolveSlot(m *models.Match, actor Actor, slot models.Slot) (models.Slot, error) {
	if slot == 0 {
		if own, ok := m.SlotOf(actor.UserID); ok {
			return own, nil
		}
		if actor.IsAdmin {
			return 0, &ValidationError{Field: "slot", Reason: "required when an admin submits for a player"}
		}
		return 0, &AuthorizationError{UserID: actor.UserID, MatchID: m.ID, Action: "submit evidence for"}
	}
	if !slot.Valid() {
		return 0, &ValidationError{Field: "slot", Reason: "must be 1 or 2"}
	}
	if m.ParticipantID(slot) != actor.UserID && !actor.IsAdmin {
		return 0, &AuthorizationError{UserID: actor.UserID, MatchID: m.ID, Action: "submit evidence for"}
	}
	return slot, nil
}

// checkWinner resolves the target slot and rejects winner picks outside the match.
func checkWinner(m *models.Match, actor Actor, slot models.Slot, in EvidenceInput) (models.Slot, error) {
	target, err := resolveSlot(m, actor, slot)
	if err != nil {
		return 0, err
	}
	if in.WinnerSelection != nil && !m.IsParticipant(*in.WinnerSelection) {
		return 0, &ValidationError{Field: "winner_id", Reason: "must be one of the two participants"}
	}
	return target, nil
}

// CheckEvidence runs every check SubmitEvidence would run without writing
// anything. Callers use it before uploading a screenshot.
func (e *ConsensusEngine) CheckEvidence(ctx context.Context, matchID string, actor Actor, slot models.Slot, in EvidenceInput) error {
	if err := e.validateInput(&in); err != nil {
		return err
	}
	m, err := e.loadOpen(ctx, matchID)
	if err != nil {
		return err
	}
	_, err = checkWinner(m, actor, slot, in)
	return err
}

// GetMatch returns the match with its current consensus state.
func (e *ConsensusEngine) GetMatch(ctx context.Context, matchID string) (*models.Match, ConsensusState, error) {
	m, err := e.Store.GetMatch(ctx, matchID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, "", ErrMatchNotFound
	}
	if err != nil {
		return nil, "", persistence("get match", err)
	}
	return m, Evaluate(m), nil
}

// SubmitEvidence writes the supplied fields into one slot and then evaluates
// the match. Agreement completes the match and runs the recompute pipeline
// before returning. A winner disagreement is returned in the result, not as
// an error, and both players are notified.
func (e *ConsensusEngine) SubmitEvidence(ctx context.Context, matchID string, actor Actor, slot models.Slot, in EvidenceInput) (*SubmissionResult, error) {
	if err := e.validateInput(&in); err != nil {
		return nil, err
	}

	unlock := e.locks.Lock(matchID)
	defer unlock()

	m, err := e.loadOpen(ctx, matchID)
	if err != nil {
		return nil, err
	}
	target, err := checkWinner(m, actor, slot, in)
	if err != nil {
		return nil, err
	}

	merged := m.Slot(target).Clone()
	if in.ImageRef != nil {
		merged.EvidenceImageRef = in.ImageRef
	}
	if in.DamagePoints != nil {
		merged.DamagePoints = in.DamagePoints
	}
	if in.WinnerSelection != nil {
		merged.WinnerSelection = in.WinnerSelection
	}
	if in.DeckType != nil {
		merged.DeckType = in.DeckType
	}
	now := e.Now()
	merged.SubmittedAt = &now

	if err := e.Store.UpdateMatchSlot(ctx, matchID, target, merged); err != nil {
		switch {
		case errors.Is(err, repository.ErrConflict):
			return nil, ErrMatchClosed
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrMatchNotFound
		}
		return nil, persistence("update match slot", err)
	}
	prev := Evaluate(m)
	m.SetSlot(target, merged)

	log := e.Logger.With("match_id", matchID, "slot", target.String(), "actor", actor.UserID)
	res := &SubmissionResult{Match: m, State: Evaluate(m)}
	e.Metrics.Submission(string(res.State))

	switch res.State {
	case StateWinnerMismatch:
		res.Mismatch = consensusError(m, res.State)
		if prev == StateWinnerMismatch {
			log.DebugContext(ctx, "winner selections still disagree")
			break
		}
		e.Metrics.Mismatch()
		log.InfoContext(ctx, "winner selections disagree",
			"player1_pick", res.Mismatch.Player1Pick, "player2_pick", res.Mismatch.Player2Pick)
		if err := e.Notifier.WinnerMismatch(ctx, m); err != nil {
			log.WarnContext(ctx, "mismatch notification failed", "error", err)
		}
	case StateAgreeing:
		outcome, err := e.complete(ctx, m)
		if err != nil {
			return nil, err
		}
		res.State = StateCompleted
		res.Completion = &outcome
	default:
		log.DebugContext(ctx, "evidence recorded", "state", res.State)
	}
	return res, nil
}

// UploadEvidence stores a screenshot for the actor's slot and returns the
// reference to submit as ImageRef. Nothing is uploaded for closed matches or
// non-participants.
func (e *ConsensusEngine) UploadEvidence(ctx context.Context, matchID string, actor Actor, slot models.Slot, fh *multipart.FileHeader) (string, error) {
	if e.Storage == nil {
		return "", &ValidationError{Field: "screenshot", Reason: "uploads are not configured, send image_ref"}
	}
	m, err := e.loadOpen(ctx, matchID)
	if err != nil {
		return "", err
	}
	target, err := resolveSlot(m, actor, slot)
	if err != nil {
		return "", err
	}

	seasonName := m.SeasonID
	if season, err := e.Store.GetSeason(ctx, m.SeasonID); err == nil && season.Slug != "" {
		seasonName = season.Slug
	}
	key, err := utils.EvidenceKey(seasonName, m.ID, m.ParticipantID(target), fh.Filename)
	if err != nil {
		return "", &ValidationError{Field: "screenshot", Reason: err.Error()}
	}
	ref, err := e.Storage.UploadEvidence(ctx, key, fh)
	if err != nil {
		return "", persistence("upload evidence", err)
	}
	return ref, nil
}

// CompleteMatchAndRecompute completes the match if both slots agree and runs
// the recompute pipeline.
func (e *ConsensusEngine) CompleteMatchAndRecompute(ctx context.Context, matchID string) (CompletionOutcome, error) {
	unlock := e.locks.Lock(matchID)
	defer unlock()

	m, err := e.loadOpen(ctx, matchID)
	if err != nil {
		return CompletionOutcome{}, err
	}
	return e.complete(ctx, m)
}

// complete expects the caller to hold the match lock.
func (e *ConsensusEngine) complete(ctx context.Context, m *models.Match) (CompletionOutcome, error) {
	state := Evaluate(m)
	if state != StateAgreeing {
		return CompletionOutcome{}, consensusError(m, state)
	}

	winner := winnerPick(m.Player1Slot)
	slot, ok := m.SlotOf(winner)
	if !ok {
		return CompletionOutcome{}, &ValidationError{Field: "winner_id", Reason: "agreed winner is not a participant"}
	}
	p1Score, p2Score := 1, 0
	if slot == models.SlotPlayer2 {
		p1Score, p2Score = 0, 1
	}

	if err := e.Store.TransitionMatchToCompleted(ctx, m.ID, winner, p1Score, p2Score); err != nil {
		switch {
		case errors.Is(err, repository.ErrConflict):
			return CompletionOutcome{}, ErrMatchClosed
		case errors.Is(err, repository.ErrNotFound):
			return CompletionOutcome{}, ErrMatchNotFound
		}
		return CompletionOutcome{}, persistence("complete match", err)
	}

	now := e.Now()
	m.Status = models.MatchStatusCompleted
	m.WinnerID = &winner
	m.Player1Score, m.Player2Score = p1Score, p2Score
	m.CompletedAt = &now
	e.Metrics.Completion()
	e.Logger.InfoContext(ctx, "match completed", "match_id", m.ID, "season_id", m.SeasonID, "winner_id", winner)

	outcome := e.Orchestrator.OnMatchCompleted(ctx, CompletedMatchFrom(m))

	if err := e.Notifier.MatchCompleted(ctx, m); err != nil {
		e.Logger.WarnContext(ctx, "completion notification failed", "match_id", m.ID, "error", err)
	}
	return outcome, nil
}
