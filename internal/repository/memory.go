package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"spendSmartAPI/internal/achievement"
	"spendSmartAPI/internal/challenge"
	"spendSmartAPI/internal/expense"
	"spendSmartAPI/internal/notification"
	"spendSmartAPI/internal/streak"
	"spendSmartAPI/internal/user"
)

var (
	_ Store = (*MemoryStore)(nil)
	_ Tx    = (*memTx)(nil)
)

type streakKey struct {
	userID uuid.UUID
	kind   streak.ActivityKind
}

// MemoryStore keeps everything in process memory. Writers of one user are
// serialised by a per-user mutex and their writes are staged until the unit
// of work returns without error.
type MemoryStore struct {
	mu sync.RWMutex

	users        map[uuid.UUID]*user.User
	templates    map[uuid.UUID]challenge.Template
	achievements []achievement.Achievement
	instances    map[uuid.UUID]challenge.Instance
	expenses     []expense.Expense
	streaks      map[streakKey]streak.Streak
	awards       map[uuid.UUID][]achievement.UserAchievement

	locksMu sync.Mutex
	locks   map[uuid.UUID]*sync.Mutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[uuid.UUID]*user.User),
		templates: make(map[uuid.UUID]challenge.Template),
		instances: make(map[uuid.UUID]challenge.Instance),
		streaks:   make(map[streakKey]streak.Streak),
		awards:    make(map[uuid.UUID][]achievement.UserAchievement),
		locks:     make(map[uuid.UUID]*sync.Mutex),
	}
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) userLock(id uuid.UUID) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

func (s *MemoryStore) WithUser(ctx context.Context, userID uuid.UUID, fn func(tx Tx) error) error {
	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	u, ok := s.users[userID]
	var snapshot user.User
	if ok {
		snapshot = *u
	}
	s.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}

	tx := &memTx{
		store:     s,
		user:      &snapshot,
		instances: make(map[uuid.UUID]challenge.Instance),
		streaks:   make(map[streak.ActivityKind]streak.Streak),
	}
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (s *MemoryStore) UpsertUser(ctx context.Context, u *user.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.ClerkID != u.ClerkID {
			continue
		}
		existing.Email = u.Email
		existing.Username = u.Username
		existing.FirstName = u.FirstName
		existing.LastName = u.LastName
		existing.ImageURL = u.ImageURL
		existing.EmailVerified = u.EmailVerified
		existing.UpdatedAt = u.UpdatedAt
		*u = *existing
		return nil
	}

	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *MemoryStore) GetUser(ctx context.Context, id uuid.UUID) (*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyUser(u), nil
}

func (s *MemoryStore) GetUserByClerkID(ctx context.Context, clerkID string) (*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.ClerkID == clerkID {
			return copyUser(u), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) UpdateUser(ctx context.Context, u *user.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.users[u.ID]
	if !ok {
		return ErrNotFound
	}
	existing.Username = u.Username
	existing.FirstName = u.FirstName
	existing.LastName = u.LastName
	existing.ImageURL = u.ImageURL
	existing.MonthlyBudget = u.MonthlyBudget
	existing.Currency = u.Currency
	existing.UpdatedAt = u.UpdatedAt
	return nil
}

// DeleteUserByClerkID removes the user together with everything they own,
// the way the Postgres foreign keys cascade.
func (s *MemoryStore) DeleteUserByClerkID(ctx context.Context, clerkID string) error {
	s.mu.RLock()
	var id uuid.UUID
	found := false
	for uid, u := range s.users {
		if u.ClerkID == clerkID {
			id, found = uid, true
			break
		}
	}
	s.mu.RUnlock()
	if !found {
		return ErrNotFound
	}

	// wait out any unit of work still running for this user
	l := s.userLock(id)
	l.Lock()
	defer l.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return ErrNotFound
	}
	delete(s.users, id)
	for instID, inst := range s.instances {
		if inst.UserID == id {
			delete(s.instances, instID)
		}
	}
	kept := s.expenses[:0]
	for _, e := range s.expenses {
		if e.UserID != id {
			kept = append(kept, e)
		}
	}
	s.expenses = kept
	for k := range s.streaks {
		if k.userID == id {
			delete(s.streaks, k)
		}
	}
	delete(s.awards, id)

	s.locksMu.Lock()
	delete(s.locks, id)
	s.locksMu.Unlock()
	return nil
}

func (s *MemoryStore) AddDeviceToken(ctx context.Context, userID uuid.UUID, token notification.DeviceToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	for i, t := range u.DeviceTokens {
		if t.Token == token.Token {
			u.DeviceTokens[i].Platform = token.Platform
			return nil
		}
	}
	u.DeviceTokens = append(u.DeviceTokens, token)
	return nil
}

func (s *MemoryStore) CreateTemplate(ctx context.Context, t *challenge.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.templates[t.ID]; ok {
		return ErrDuplicate
	}
	s.templates[t.ID] = *t
	return nil
}

func (s *MemoryStore) GetTemplate(ctx context.Context, id uuid.UUID) (*challenge.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.templates[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (s *MemoryStore) ListTemplates(ctx context.Context) ([]challenge.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []challenge.Template
	for _, t := range s.templates {
		if t.IsActive {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) CreateAchievement(ctx context.Context, a *achievement.Achievement) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.achievements {
		if existing.Name == a.Name {
			return false, nil
		}
	}
	s.achievements = append(s.achievements, *a)
	return true, nil
}

func (s *MemoryStore) ListAchievements(ctx context.Context) ([]achievement.Achievement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]achievement.Achievement, len(s.achievements))
	copy(out, s.achievements)
	return out, nil
}

func (s *MemoryStore) ListDueChallenges(ctx context.Context, now time.Time, after challenge.Cursor, limit int) ([]challenge.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []challenge.Instance
	for _, inst := range s.instances {
		if inst.Due(now) && after.Precedes(inst) {
			out = append(out, inst)
		}
	}
	challenge.SortDue(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) ListExpenses(ctx context.Context, userID uuid.UUID, limit int) ([]expense.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []expense.Expense
	for _, e := range s.expenses {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt.After(out[j].OccurredAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) GetExpense(ctx context.Context, userID, id uuid.UUID) (*expense.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.expenses {
		if e.ID == id && e.UserID == userID {
			return &e, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) UpdateExpense(ctx context.Context, e *expense.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.expenses {
		if existing.ID == e.ID && existing.UserID == e.UserID {
			s.expenses[i].Amount = e.Amount
			s.expenses[i].Mood = e.Mood
			s.expenses[i].Category = e.Category
			s.expenses[i].OccurredAt = e.OccurredAt
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) DeleteExpense(ctx context.Context, userID, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.expenses {
		if e.ID == id && e.UserID == userID {
			s.expenses = append(s.expenses[:i], s.expenses[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) ListStreaks(ctx context.Context, userID uuid.UUID) ([]streak.Streak, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.streaksOf(userID), nil
}

func (s *MemoryStore) ListUserAchievements(ctx context.Context, userID uuid.UUID) ([]achievement.UserAchievement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]achievement.UserAchievement, len(s.awards[userID]))
	copy(out, s.awards[userID])
	return out, nil
}

func (s *MemoryStore) streaksOf(userID uuid.UUID) []streak.Streak {
	var out []streak.Streak
	for k, v := range s.streaks {
		if k.userID == userID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

func copyUser(u *user.User) *user.User {
	cp := *u
	cp.DeviceTokens = append([]notification.DeviceToken(nil), u.DeviceTokens...)
	return &cp
}

// memTx reads through to the store and stages its own writes.
type memTx struct {
	store *MemoryStore
	user  *user.User

	instances map[uuid.UUID]challenge.Instance
	expenses  []expense.Expense
	streaks   map[streak.ActivityKind]streak.Streak
	awards    []achievement.UserAchievement
}

func (t *memTx) User() *user.User { return t.user }

// challenges merges committed and staged instances of the user.
func (t *memTx) challenges() []challenge.Instance {
	t.store.mu.RLock()
	merged := make(map[uuid.UUID]challenge.Instance)
	for id, inst := range t.store.instances {
		if inst.UserID == t.user.ID {
			merged[id] = inst
		}
	}
	t.store.mu.RUnlock()

	for id, inst := range t.instances {
		merged[id] = inst
	}
	out := make([]challenge.Instance, 0, len(merged))
	for _, inst := range merged {
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}

func (t *memTx) ActiveChallenge(ctx context.Context) (*challenge.Instance, error) {
	for _, inst := range t.challenges() {
		if inst.Status == challenge.StatusActive {
			return &inst, nil
		}
	}
	return nil, ErrNotFound
}

func (t *memTx) GetChallenge(ctx context.Context, id uuid.UUID) (*challenge.Instance, error) {
	for _, inst := range t.challenges() {
		if inst.ID == id {
			return &inst, nil
		}
	}
	return nil, ErrNotFound
}

func (t *memTx) ListChallenges(ctx context.Context) ([]challenge.Instance, error) {
	return t.challenges(), nil
}

func (t *memTx) InsertChallenge(ctx context.Context, inst *challenge.Instance) error {
	if inst.Status == challenge.StatusActive {
		if _, err := t.ActiveChallenge(ctx); err == nil {
			return ErrDuplicate
		}
	}
	t.instances[inst.ID] = *inst
	return nil
}

func (t *memTx) UpdateChallenge(ctx context.Context, inst *challenge.Instance) error {
	if _, err := t.GetChallenge(ctx, inst.ID); err != nil {
		return err
	}
	t.instances[inst.ID] = *inst
	return nil
}

func (t *memTx) CountCompletedChallenges(ctx context.Context) (int, error) {
	n := 0
	for _, inst := range t.challenges() {
		if inst.Status == challenge.StatusCompleted {
			n++
		}
	}
	return n, nil
}

func (t *memTx) InsertExpense(ctx context.Context, e *expense.Expense) error {
	t.expenses = append(t.expenses, *e)
	return nil
}

func (t *memTx) allExpenses() []expense.Expense {
	t.store.mu.RLock()
	var out []expense.Expense
	for _, e := range t.store.expenses {
		if e.UserID == t.user.ID {
			out = append(out, e)
		}
	}
	t.store.mu.RUnlock()
	return append(out, t.expenses...)
}

func (t *memTx) CountExpenses(ctx context.Context) (int, error) {
	return len(t.allExpenses()), nil
}

func (t *memTx) SumExpenses(ctx context.Context, from, to time.Time) (float64, error) {
	var sum float64
	for _, e := range t.allExpenses() {
		if !e.OccurredAt.Before(from) && e.OccurredAt.Before(to) {
			sum += e.Amount
		}
	}
	return sum, nil
}

func (t *memTx) GetStreak(ctx context.Context, kind streak.ActivityKind) (*streak.Streak, error) {
	if s, ok := t.streaks[kind]; ok {
		return &s, nil
	}
	t.store.mu.RLock()
	s, ok := t.store.streaks[streakKey{t.user.ID, kind}]
	t.store.mu.RUnlock()
	if !ok {
		return &streak.Streak{UserID: t.user.ID, Kind: kind}, nil
	}
	return &s, nil
}

func (t *memTx) SaveStreak(ctx context.Context, s *streak.Streak) error {
	t.streaks[s.Kind] = *s
	return nil
}

func (t *memTx) ListStreaks(ctx context.Context) ([]streak.Streak, error) {
	t.store.mu.RLock()
	committed := t.store.streaksOf(t.user.ID)
	t.store.mu.RUnlock()

	byKind := make(map[streak.ActivityKind]streak.Streak, len(committed))
	for _, s := range committed {
		byKind[s.Kind] = s
	}
	for k, s := range t.streaks {
		byKind[k] = s
	}
	out := make([]streak.Streak, 0, len(byKind))
	for _, s := range byKind {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out, nil
}

func (t *memTx) ListUserAchievements(ctx context.Context) ([]achievement.UserAchievement, error) {
	t.store.mu.RLock()
	out := append([]achievement.UserAchievement(nil), t.store.awards[t.user.ID]...)
	t.store.mu.RUnlock()
	return append(out, t.awards...), nil
}

func (t *memTx) AwardIfAbsent(ctx context.Context, award achievement.UserAchievement) (bool, error) {
	owned, _ := t.ListUserAchievements(ctx)
	for _, o := range owned {
		if o.AchievementID == award.AchievementID {
			return false, nil
		}
	}
	t.awards = append(t.awards, award)
	return true, nil
}

func (t *memTx) commit() {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, inst := range t.instances {
		s.instances[id] = inst
	}
	s.expenses = append(s.expenses, t.expenses...)
	for kind, st := range t.streaks {
		s.streaks[streakKey{t.user.ID, kind}] = st
	}
	s.awards[t.user.ID] = append(s.awards[t.user.ID], t.awards...)
}
