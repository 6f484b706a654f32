package services

import (
	"context"
	"errors"
	"log"
	"math"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"spendSmartAPI/internal/achievement"
	"spendSmartAPI/internal/challenge"
	"spendSmartAPI/internal/clock"
	"spendSmartAPI/internal/expense"
	"spendSmartAPI/internal/repository"
	"spendSmartAPI/internal/streak"
)

const (
	maxFutureSkew       = 24 * time.Hour
	defaultExpenseLimit = 50
	maxExpenseLimit     = 200
	maxMoodLength       = 32
	maxCategoryLength   = 64
)

// StreakBoard receives a user's longest streak after it changed.
type StreakBoard interface {
	UpdateStreak(ctx context.Context, userID uuid.UUID, username string, longest int) error
}

// AwardNotifier is told about badges and challenge outcomes after they are
// committed. Implementations must not block.
type AwardNotifier interface {
	NotifyAwards(userID uuid.UUID, awards []achievement.Achievement)
	NotifyChallenge(userID uuid.UUID, inst challenge.Instance)
}

type GamificationService struct {
	store    repository.Store
	clock    clock.Clock
	loc      *time.Location
	board    StreakBoard
	notifier AwardNotifier
}

func NewGamificationService(store repository.Store, clk clock.Clock, loc *time.Location) *GamificationService {
	if loc == nil {
		loc = time.UTC
	}
	return &GamificationService{store: store, clock: clk, loc: loc}
}

// Allow injecting the Redis leaderboard from main.go
func (s *GamificationService) SetLeaderboard(board StreakBoard) {
	s.board = board
}

func (s *GamificationService) SetNotifier(n AwardNotifier) {
	s.notifier = n
}

// EventResult is what a recorded expense changed.
type EventResult struct {
	Expense          *expense.Expense          `json:"expense"`
	UpdatedChallenge *challenge.Instance       `json:"updatedChallenge,omitempty"`
	NewBadges        []achievement.Achievement `json:"newBadges"`
}

// LoginResult is what a login check-in changed.
type LoginResult struct {
	Streak    *streak.Streak            `json:"streak"`
	NewBadges []achievement.Achievement `json:"newBadges"`
}

// commitEffects collects side effects that only run once the unit of work
// has committed.
type commitEffects struct {
	streakChanged bool
	username      string
	longest       int
	awards        []achievement.Achievement
	finished      []challenge.Instance
}

func (s *GamificationService) ListTemplates(ctx context.Context) ([]challenge.Template, error) {
	templates, err := s.store.ListTemplates(ctx)
	if err != nil {
		return nil, storageErr("list challenges", err)
	}
	if templates == nil {
		templates = []challenge.Template{}
	}
	return templates, nil
}

// StartChallenge begins templateID for userID. An overdue active instance is
// resolved first; a live one is a conflict.
func (s *GamificationService) StartChallenge(ctx context.Context, userID, templateID uuid.UUID) (*challenge.Instance, error) {
	tmpl, err := s.store.GetTemplate(ctx, templateID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrChallengeNotFound
	}
	if err != nil {
		return nil, storageErr("get challenge", err)
	}
	if !tmpl.IsActive {
		return nil, ErrChallengeNotFound
	}

	now := s.clock.Now()
	var started *challenge.Instance
	effects := &commitEffects{}

	err = s.withUser(ctx, userID, func(tx repository.Tx) error {
		active, err := tx.ActiveChallenge(ctx)
		switch {
		case errors.Is(err, repository.ErrNotFound):
		case err != nil:
			return storageErr("get active challenge", err)
		default:
			resolved, err := s.resolve(ctx, tx, active, now, effects)
			if err != nil {
				return err
			}
			if !resolved {
				return ErrActiveChallengeExists
			}
		}

		inst := challenge.Start(userID, *tmpl, now)
		if err := tx.InsertChallenge(ctx, inst); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return ErrActiveChallengeExists
			}
			return storageErr("insert challenge", err)
		}
		started = inst
		return nil
	})
	if err != nil {
		return nil, err
	}

	challengeTransitions.WithLabelValues(string(challenge.StatusActive)).Inc()
	s.afterCommit(userID, effects)
	log.Printf("StartChallenge: user %s started %s (expires %s)", userID, tmpl.ID, started.ExpiresAt.Format(time.RFC3339))
	return started, nil
}

// EndChallenge terminates the caller's active instance. An instance found
// overdue is resolved by time instead and reported as not found.
func (s *GamificationService) EndChallenge(ctx context.Context, userID, instanceID uuid.UUID, rawReason string) (*challenge.Instance, error) {
	reason, err := challenge.ParseEndReason(rawReason)
	if err != nil {
		return nil, validationErr("%v", err)
	}

	now := s.clock.Now()
	var ended *challenge.Instance
	overdue := false
	effects := &commitEffects{}

	err = s.withUser(ctx, userID, func(tx repository.Tx) error {
		inst, err := tx.GetChallenge(ctx, instanceID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNoActiveChallenge
		}
		if err != nil {
			return storageErr("get challenge instance", err)
		}
		if inst.Status != challenge.StatusActive {
			return ErrNoActiveChallenge
		}

		resolved, err := s.resolve(ctx, tx, inst, now, effects)
		if err != nil {
			return err
		}
		if resolved {
			overdue = true
			return nil
		}

		if err := inst.End(reason, now); err != nil {
			return ErrNoActiveChallenge
		}
		if err := tx.UpdateChallenge(ctx, inst); err != nil {
			return storageErr("update challenge instance", err)
		}
		effects.finished = append(effects.finished, *inst)
		ended = inst
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(userID, effects)
	if overdue {
		return nil, ErrNoActiveChallenge
	}
	return ended, nil
}

// GetActiveChallenge returns the caller's live instance with its template, or
// a response with a nil instance.
func (s *GamificationService) GetActiveChallenge(ctx context.Context, userID uuid.UUID) (*challenge.ActiveChallengeResponse, error) {
	now := s.clock.Now()
	var active *challenge.Instance
	effects := &commitEffects{}

	err := s.withUser(ctx, userID, func(tx repository.Tx) error {
		inst, err := tx.ActiveChallenge(ctx)
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		if err != nil {
			return storageErr("get active challenge", err)
		}
		resolved, err := s.resolve(ctx, tx, inst, now, effects)
		if err != nil {
			return err
		}
		if !resolved {
			active = inst
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.afterCommit(userID, effects)

	resp := &challenge.ActiveChallengeResponse{ActiveChallenge: active}
	if active == nil {
		return resp, nil
	}

	tmpl, err := s.store.GetTemplate(ctx, active.TemplateID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, storageErr("get challenge", err)
	}
	resp.Challenge = tmpl
	resp.TimeRemainingSeconds = int64(active.TimeRemaining(now) / time.Second)
	return resp, nil
}

// ChallengeHistory lists every instance of the caller, newest first, with
// overdue ones resolved.
func (s *GamificationService) ChallengeHistory(ctx context.Context, userID uuid.UUID) ([]challenge.Instance, error) {
	now := s.clock.Now()
	var history []challenge.Instance
	effects := &commitEffects{}

	err := s.withUser(ctx, userID, func(tx repository.Tx) error {
		all, err := tx.ListChallenges(ctx)
		if err != nil {
			return storageErr("list challenge history", err)
		}
		for i := range all {
			if _, err := s.resolve(ctx, tx, &all[i], now, effects); err != nil {
				return err
			}
		}
		history = all
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.afterCommit(userID, effects)

	if history == nil {
		history = []challenge.Instance{}
	}
	return history, nil
}

// RecordEvent appends an expense and cascades it into the expense streak,
// the active challenge and badge evaluation, all in one unit of work.
func (s *GamificationService) RecordEvent(ctx context.Context, userID uuid.UUID, req *expense.CreateExpenseRequest) (*EventResult, error) {
	now := s.clock.Now()

	e, err := s.newExpense(userID, req, now)
	if err != nil {
		return nil, err
	}

	result := &EventResult{Expense: e}
	effects := &commitEffects{}

	err = s.withUser(ctx, userID, func(tx repository.Tx) error {
		if err := tx.InsertExpense(ctx, e); err != nil {
			return storageErr("insert expense", err)
		}

		if err := s.touchStreak(ctx, tx, streak.ActivityExpenseLog, now, effects); err != nil {
			return err
		}

		inst, err := tx.ActiveChallenge(ctx)
		switch {
		case errors.Is(err, repository.ErrNotFound):
		case err != nil:
			return storageErr("get active challenge", err)
		default:
			resolved, err := s.resolve(ctx, tx, inst, now, effects)
			if err != nil {
				return err
			}
			if !resolved {
				if inst.ApplyProgressDelta(challenge.ScoreFor(e.Mood), now) {
					effects.finished = append(effects.finished, *inst)
				}
				if err := tx.UpdateChallenge(ctx, inst); err != nil {
					return storageErr("update challenge progress", err)
				}
			}
			result.UpdatedChallenge = inst
		}

		awards, err := s.evaluateBadges(ctx, tx, now)
		if err != nil {
			return err
		}
		effects.awards = append(effects.awards, awards...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	moodLabel := string(e.Mood)
	if !e.Mood.Known() {
		moodLabel = "unknown"
	}
	expensesRecorded.WithLabelValues(moodLabel).Inc()
	s.afterCommit(userID, effects)

	result.NewBadges = effects.awards
	if result.NewBadges == nil {
		result.NewBadges = []achievement.Achievement{}
	}
	return result, nil
}

// RecordLogin registers a login check-in for the day.
func (s *GamificationService) RecordLogin(ctx context.Context, userID uuid.UUID) (*LoginResult, error) {
	now := s.clock.Now()
	result := &LoginResult{}
	effects := &commitEffects{}

	err := s.withUser(ctx, userID, func(tx repository.Tx) error {
		if err := s.touchStreak(ctx, tx, streak.ActivityLogin, now, effects); err != nil {
			return err
		}
		st, err := tx.GetStreak(ctx, streak.ActivityLogin)
		if err != nil {
			return storageErr("get login streak", err)
		}
		result.Streak = st

		awards, err := s.evaluateBadges(ctx, tx, now)
		if err != nil {
			return err
		}
		effects.awards = append(effects.awards, awards...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.afterCommit(userID, effects)

	result.NewBadges = effects.awards
	if result.NewBadges == nil {
		result.NewBadges = []achievement.Achievement{}
	}
	return result, nil
}

// GetStreak returns one record per activity kind. Kinds without activity
// come back zeroed.
func (s *GamificationService) GetStreak(ctx context.Context, userID uuid.UUID) ([]streak.Streak, error) {
	if err := s.ensureUser(ctx, userID); err != nil {
		return nil, err
	}
	records, err := s.store.ListStreaks(ctx, userID)
	if err != nil {
		return nil, storageErr("list streaks", err)
	}

	byKind := make(map[streak.ActivityKind]streak.Streak, len(records))
	for _, r := range records {
		byKind[r.Kind] = r
	}
	out := make([]streak.Streak, 0, len(streak.Kinds))
	for _, kind := range streak.Kinds {
		r, ok := byKind[kind]
		if !ok {
			r = streak.Streak{UserID: userID, Kind: kind}
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *GamificationService) ListAwards(ctx context.Context, userID uuid.UUID) ([]achievement.UserAchievement, error) {
	if err := s.ensureUser(ctx, userID); err != nil {
		return nil, err
	}
	awards, err := s.store.ListUserAchievements(ctx, userID)
	if err != nil {
		return nil, storageErr("list awards", err)
	}
	if awards == nil {
		awards = []achievement.UserAchievement{}
	}
	return awards, nil
}

// AchievementsWithStatus merges the catalog with the caller's awards.
func (s *GamificationService) AchievementsWithStatus(ctx context.Context, userID uuid.UUID) ([]*achievement.AchievementWithStatus, error) {
	catalog, err := s.ListAchievements(ctx)
	if err != nil {
		return nil, err
	}
	owned, err := s.ListAwards(ctx, userID)
	if err != nil {
		return nil, err
	}
	return achievement.WithStatus(catalog, owned), nil
}

func (s *GamificationService) ListAchievements(ctx context.Context) ([]achievement.Achievement, error) {
	catalog, err := s.store.ListAchievements(ctx)
	if err != nil {
		return nil, storageErr("list achievements", err)
	}
	if catalog == nil {
		catalog = []achievement.Achievement{}
	}
	return catalog, nil
}

func (s *GamificationService) ListExpenses(ctx context.Context, userID uuid.UUID, limit int) ([]expense.Expense, error) {
	if err := s.ensureUser(ctx, userID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultExpenseLimit
	}
	if limit > maxExpenseLimit {
		limit = maxExpenseLimit
	}
	out, err := s.store.ListExpenses(ctx, userID, limit)
	if err != nil {
		return nil, storageErr("list expenses", err)
	}
	if out == nil {
		out = []expense.Expense{}
	}
	return out, nil
}

// SeedDefaults inserts the starter badges that are missing and rejects a
// catalog holding criteria kinds this build cannot evaluate.
func (s *GamificationService) SeedDefaults(ctx context.Context) error {
	now := s.clock.Now()
	for _, a := range achievement.Defaults() {
		a.ID = uuid.New()
		a.CreatedAt = now
		created, err := s.store.CreateAchievement(ctx, &a)
		if err != nil {
			return storageErr("seed achievement", err)
		}
		if created {
			log.Printf("SeedDefaults: added badge %q", a.Name)
		}
	}

	catalog, err := s.store.ListAchievements(ctx)
	if err != nil {
		return storageErr("list achievements", err)
	}
	for _, a := range catalog {
		if _, err := achievement.ParseCriteriaType(string(a.CriteriaType)); err != nil {
			return validationErr("badge %q: %v", a.Name, err)
		}
	}
	return nil
}

// DueChallenges lists active instances whose expiry has passed, in
// (expires_at, id) order after the cursor.
func (s *GamificationService) DueChallenges(ctx context.Context, after challenge.Cursor, limit int) ([]challenge.Instance, error) {
	due, err := s.store.ListDueChallenges(ctx, s.clock.Now(), after, limit)
	if err != nil {
		return nil, storageErr("list due challenges", err)
	}
	return due, nil
}

// ResolveChallenge applies the time-driven transition to one instance, if it
// is still due when its owner's lock is held, and reports whether it did.
func (s *GamificationService) ResolveChallenge(ctx context.Context, inst challenge.Instance) (bool, error) {
	now := s.clock.Now()
	effects := &commitEffects{}
	changed := false

	err := s.withUser(ctx, inst.UserID, func(tx repository.Tx) error {
		cur, err := tx.GetChallenge(ctx, inst.ID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		if err != nil {
			return storageErr("get challenge instance", err)
		}
		changed, err = s.resolve(ctx, tx, cur, now, effects)
		return err
	})
	if err != nil {
		return false, err
	}
	s.afterCommit(inst.UserID, effects)
	return changed, nil
}

// UpdateExpense rewrites one of the user's expenses. Nothing derived from
// the original entry is recomputed.
func (s *GamificationService) UpdateExpense(ctx context.Context, userID, expenseID uuid.UUID, req *expense.UpdateExpenseRequest) (*expense.Expense, error) {
	if req == nil {
		return nil, validationErr("missing expense")
	}
	if err := checkExpenseFields(req.Amount, req.Mood, req.Category); err != nil {
		return nil, err
	}
	if err := s.ensureUser(ctx, userID); err != nil {
		return nil, err
	}

	e, err := s.store.GetExpense(ctx, userID, expenseID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrExpenseNotFound
	}
	if err != nil {
		return nil, storageErr("get expense", err)
	}

	if req.Date != nil && !req.Date.IsZero() {
		if req.Date.After(s.clock.Now().Add(maxFutureSkew)) {
			return nil, validationErr("date is too far in the future")
		}
		e.OccurredAt = *req.Date
	}
	e.Amount = req.Amount
	e.Mood = expense.NormalizeMood(req.Mood)
	e.Category = expense.NormalizeCategory(req.Category)

	err = s.store.UpdateExpense(ctx, e)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrExpenseNotFound
	}
	if err != nil {
		return nil, storageErr("update expense", err)
	}
	log.Printf("UpdateExpense: user %s edited expense %s", userID, expenseID)
	return e, nil
}

// DeleteExpense removes one of the user's expenses. Like edits, deletes do
// not take back streak days, progress or badges.
func (s *GamificationService) DeleteExpense(ctx context.Context, userID, expenseID uuid.UUID) error {
	if err := s.ensureUser(ctx, userID); err != nil {
		return err
	}
	err := s.store.DeleteExpense(ctx, userID, expenseID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrExpenseNotFound
	}
	if err != nil {
		return storageErr("delete expense", err)
	}
	log.Printf("DeleteExpense: user %s deleted expense %s", userID, expenseID)
	return nil
}

func (s *GamificationService) newExpense(userID uuid.UUID, req *expense.CreateExpenseRequest, now time.Time) (*expense.Expense, error) {
	if req == nil {
		return nil, validationErr("missing expense")
	}
	if err := checkExpenseFields(req.Amount, req.Mood, req.Category); err != nil {
		return nil, err
	}

	occurred := now
	if req.Date != nil && !req.Date.IsZero() {
		if req.Date.After(now.Add(maxFutureSkew)) {
			return nil, validationErr("date is too far in the future")
		}
		occurred = *req.Date
	}

	return &expense.Expense{
		ID:         uuid.New(),
		UserID:     userID,
		Amount:     req.Amount,
		Mood:       expense.NormalizeMood(req.Mood),
		Category:   expense.NormalizeCategory(req.Category),
		OccurredAt: occurred,
		CreatedAt:  now,
	}, nil
}

// checkExpenseFields counts lengths in characters, like the request validator.
func checkExpenseFields(amount float64, mood, category string) error {
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return validationErr("amount must be a positive number")
	}
	if utf8.RuneCountInString(mood) > maxMoodLength {
		return validationErr("mood must be at most %d characters", maxMoodLength)
	}
	if utf8.RuneCountInString(category) > maxCategoryLength {
		return validationErr("category must be at most %d characters", maxCategoryLength)
	}
	return nil
}

func (s *GamificationService) withUser(ctx context.Context, userID uuid.UUID, fn func(tx repository.Tx) error) error {
	err := s.store.WithUser(ctx, userID, fn)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrUserNotFound
	}
	return storageErr("user transaction", err)
}

func (s *GamificationService) ensureUser(ctx context.Context, userID uuid.UUID) error {
	_, err := s.store.GetUser(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrUserNotFound
	}
	return storageErr("get user", err)
}

// resolve applies a due time-driven transition to inst and persists it. A
// transition into completed re-runs badge evaluation.
func (s *GamificationService) resolve(ctx context.Context, tx repository.Tx, inst *challenge.Instance, now time.Time, effects *commitEffects) (bool, error) {
	if !inst.Resolve(now) {
		return false, nil
	}
	if err := tx.UpdateChallenge(ctx, inst); err != nil {
		return false, storageErr("resolve challenge", err)
	}
	effects.finished = append(effects.finished, *inst)

	if inst.Status == challenge.StatusCompleted {
		awards, err := s.evaluateBadges(ctx, tx, now)
		if err != nil {
			return false, err
		}
		effects.awards = append(effects.awards, awards...)
	}
	return true, nil
}

func (s *GamificationService) touchStreak(ctx context.Context, tx repository.Tx, kind streak.ActivityKind, now time.Time, effects *commitEffects) error {
	st, err := tx.GetStreak(ctx, kind)
	if err != nil {
		return storageErr("get streak", err)
	}
	if !st.Touch(now, s.loc) {
		return nil
	}
	if err := tx.SaveStreak(ctx, st); err != nil {
		return storageErr("save streak", err)
	}

	effects.streakChanged = true
	effects.username = tx.User().Username
	if st.LongestStreak > effects.longest {
		effects.longest = st.LongestStreak
	}
	return nil
}

// evaluateBadges awards every pending badge whose criteria hold. A badge that
// fails to evaluate or insert is logged and skipped.
func (s *GamificationService) evaluateBadges(ctx context.Context, tx repository.Tx, now time.Time) ([]achievement.Achievement, error) {
	catalog, err := s.store.ListAchievements(ctx)
	if err != nil {
		return nil, storageErr("list achievements", err)
	}
	owned, err := tx.ListUserAchievements(ctx)
	if err != nil {
		return nil, storageErr("list user achievements", err)
	}
	pending := achievement.Pending(catalog, owned)
	if len(pending) == 0 {
		return nil, nil
	}

	sig, err := s.signals(ctx, tx, now)
	if err != nil {
		return nil, err
	}

	var awarded []achievement.Achievement
	for _, a := range pending {
		ok, err := a.Qualifies(sig)
		if err != nil {
			log.Printf("evaluateBadges: skipping badge %s: %v", a.ID, err)
			badgeEvaluationFailures.Inc()
			continue
		}
		if !ok {
			continue
		}

		created, err := tx.AwardIfAbsent(ctx, achievement.UserAchievement{
			UserID:        tx.User().ID,
			AchievementID: a.ID,
			UnlockedAt:    now,
		})
		if err != nil {
			log.Printf("evaluateBadges: failed to award %s to %s: %v", a.ID, tx.User().ID, err)
			badgeEvaluationFailures.Inc()
			continue
		}
		if created {
			awarded = append(awarded, a)
		}
	}
	return awarded, nil
}

func (s *GamificationService) signals(ctx context.Context, tx repository.Tx, now time.Time) (achievement.Signals, error) {
	streaks, err := tx.ListStreaks(ctx)
	if err != nil {
		return achievement.Signals{}, storageErr("list streaks", err)
	}
	completed, err := tx.CountCompletedChallenges(ctx)
	if err != nil {
		return achievement.Signals{}, storageErr("count completed challenges", err)
	}
	events, err := tx.CountExpenses(ctx)
	if err != nil {
		return achievement.Signals{}, storageErr("count expenses", err)
	}

	from, to := monthBounds(now, s.loc)
	spent, err := tx.SumExpenses(ctx, from, to)
	if err != nil {
		return achievement.Signals{}, storageErr("sum expenses", err)
	}

	return achievement.Signals{
		CurrentStreak:       streak.Best(streaks),
		ChallengesCompleted: completed,
		EventsLogged:        events,
		MonthlyBudget:       tx.User().MonthlyBudget,
		SpentThisMonth:      spent,
	}, nil
}

func (s *GamificationService) afterCommit(userID uuid.UUID, effects *commitEffects) {
	for _, inst := range effects.finished {
		challengeTransitions.WithLabelValues(string(inst.Status)).Inc()
	}
	for _, a := range effects.awards {
		badgesAwarded.WithLabelValues(string(a.CriteriaType)).Inc()
	}

	if effects.streakChanged && s.board != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := s.board.UpdateStreak(ctx, userID, effects.username, effects.longest); err != nil {
			log.Printf("Leaderboard: failed to update streak for %s: %v", userID, err)
		}
		cancel()
	}

	if s.notifier == nil {
		return
	}
	if len(effects.awards) > 0 {
		s.notifier.NotifyAwards(userID, effects.awards)
	}
	for _, inst := range effects.finished {
		s.notifier.NotifyChallenge(userID, inst)
	}
}

// monthBounds is the calendar month containing now in loc.
func monthBounds(now time.Time, loc *time.Location) (time.Time, time.Time) {
	y, m, _ := now.In(loc).Date()
	from := time.Date(y, m, 1, 0, 0, 0, 0, loc)
	return from, from.AddDate(0, 1, 0)
}
