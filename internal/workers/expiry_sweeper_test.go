package workers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spendSmartAPI/internal/challenge"
	"spendSmartAPI/internal/clock"
	"spendSmartAPI/internal/repository"
	"spendSmartAPI/internal/user"
	"spendSmartAPI/services"
)

type fakeResolver struct {
	mu       sync.Mutex
	due      []challenge.Instance
	failing  map[uuid.UUID]bool
	stale    map[uuid.UUID]bool
	resolved []uuid.UUID
}

func (f *fakeResolver) DueChallenges(ctx context.Context, after challenge.Cursor, limit int) ([]challenge.Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []challenge.Instance
	for _, inst := range f.due {
		if !f.isResolved(inst.ID) && after.Precedes(inst) {
			out = append(out, inst)
		}
	}
	challenge.SortDue(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeResolver) isResolved(id uuid.UUID) bool {
	for _, r := range f.resolved {
		if r == id {
			return true
		}
	}
	return false
}

func (f *fakeResolver) ResolveChallenge(ctx context.Context, inst challenge.Instance) (bool, error) {
	if f.failing[inst.ID] {
		return false, errors.New("row locked by a crashed writer")
	}
	if f.stale[inst.ID] {
		return false, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolved = append(f.resolved, inst.ID)
	return true, nil
}

func (f *fakeResolver) resolvedIDs() []uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uuid.UUID(nil), f.resolved...)
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{failing: map[uuid.UUID]bool{}, stale: map[uuid.UUID]bool{}}
}

func TestSweepIsolatesFailures(t *testing.T) {
	r := newFakeResolver()
	for i := 0; i < 10; i++ {
		inst := challenge.Instance{ID: uuid.New(), UserID: uuid.New(), Status: challenge.StatusActive}
		r.due = append(r.due, inst)
		if i%3 == 0 {
			r.failing[inst.ID] = true
		}
	}

	s := NewExpirySweeper(r, time.Minute, 4)
	b, err := s.Sweep(context.Background(), challenge.Cursor{})

	require.NoError(t, err)
	assert.Equal(t, 10, b.Due)
	assert.Equal(t, 6, b.Resolved)
	assert.Equal(t, 4, b.Failed)
	assert.Len(t, r.resolvedIDs(), 6)
}

func TestSweepCountsOnlyRealTransitions(t *testing.T) {
	r := newFakeResolver()
	for i := 0; i < 4; i++ {
		inst := challenge.Instance{ID: uuid.New(), UserID: uuid.New()}
		r.due = append(r.due, inst)
		if i < 3 {
			r.stale[inst.ID] = true
		}
	}

	s := NewExpirySweeper(r, time.Minute, 2)
	b, err := s.Sweep(context.Background(), challenge.Cursor{})

	require.NoError(t, err)
	assert.Equal(t, 4, b.Due)
	assert.Equal(t, 1, b.Resolved)
	assert.Zero(t, b.Failed)
}

func TestSweepAdvancesCursor(t *testing.T) {
	r := newFakeResolver()
	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		r.due = append(r.due, challenge.Instance{ID: uuid.New(), UserID: uuid.New(), ExpiresAt: base.Add(time.Duration(i) * time.Minute)})
	}

	s := NewExpirySweeper(r, time.Minute, 1)
	s.batchSize = 2
	b, err := s.Sweep(context.Background(), challenge.Cursor{})
	require.NoError(t, err)
	assert.Equal(t, base.Add(time.Minute), b.Next.ExpiresAt)

	empty, err := NewExpirySweeper(newFakeResolver(), time.Minute, 1).Sweep(context.Background(), b.Next)
	require.NoError(t, err)
	assert.Equal(t, b.Next, empty.Next)
}

func TestRunDrainsFullBatches(t *testing.T) {
	r := newFakeResolver()
	for i := 0; i < 7; i++ {
		r.due = append(r.due, challenge.Instance{ID: uuid.New(), UserID: uuid.New()})
	}

	s := NewExpirySweeper(r, time.Minute, 2)
	s.batchSize = 3
	s.Run(context.Background())

	assert.Len(t, r.resolvedIDs(), 7)
}

func TestRunSkipsPastFailingBatch(t *testing.T) {
	r := newFakeResolver()
	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	// a full batch of instances that always fail sorts ahead of the rest
	for i := 0; i < 3; i++ {
		inst := challenge.Instance{ID: uuid.New(), UserID: uuid.New(), ExpiresAt: base}
		r.due = append(r.due, inst)
		r.failing[inst.ID] = true
	}
	var live []uuid.UUID
	for i := 0; i < 2; i++ {
		inst := challenge.Instance{ID: uuid.New(), UserID: uuid.New(), ExpiresAt: base.Add(time.Hour)}
		r.due = append(r.due, inst)
		live = append(live, inst.ID)
	}

	s := NewExpirySweeper(r, time.Minute, 2)
	s.batchSize = 3

	done := make(chan struct{})
	go func() {
		s.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("sweep kept retrying instances that never resolve")
	}
	assert.ElementsMatch(t, live, r.resolvedIDs())
}

func TestSweepExpiresOverdueChallenges(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	clk := clock.NewFake(start)
	store := repository.NewMemoryStore()
	users := services.NewUserService(store, clk)
	engine := services.NewGamificationService(store, clk, time.UTC)

	short := challenge.Template{ID: uuid.New(), Title: "One hour", DurationHours: 1, IsActive: true}
	long := challenge.Template{ID: uuid.New(), Title: "One week", DurationHours: 24 * 7, IsActive: true}
	require.NoError(t, store.CreateTemplate(ctx, &short))
	require.NoError(t, store.CreateTemplate(ctx, &long))

	var ids []uuid.UUID
	for i, tmpl := range []challenge.Template{short, short, long} {
		u, err := users.CreateUser(ctx, &user.CreateUserRequest{ClerkID: uuid.NewString(), Username: "sweeper" + string(rune('a'+i))})
		require.NoError(t, err)
		_, err = engine.StartChallenge(ctx, u.ID, tmpl.ID)
		require.NoError(t, err)
		ids = append(ids, u.ID)
	}

	clk.Advance(2 * time.Hour)
	s := NewExpirySweeper(engine, time.Minute, 2)
	b, err := s.Sweep(ctx, challenge.Cursor{})
	require.NoError(t, err)
	assert.Equal(t, 2, b.Due)
	assert.Equal(t, 2, b.Resolved)

	for i, id := range ids {
		history, err := engine.ChallengeHistory(ctx, id)
		require.NoError(t, err)
		require.Len(t, history, 1)
		if i < 2 {
			assert.Equal(t, challenge.StatusExpired, history[0].Status)
			assert.Equal(t, start.Add(time.Hour), *history[0].EndedAt)
		} else {
			assert.Equal(t, challenge.StatusActive, history[0].Status)
		}
	}
}

func TestSweepReachesLiveUsersAfterDeletedOnes(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	clk := clock.NewFake(start)
	store := repository.NewMemoryStore()
	users := services.NewUserService(store, clk)
	engine := services.NewGamificationService(store, clk, time.UTC)

	tmpl := challenge.Template{ID: uuid.New(), Title: "One hour", DurationHours: 1, IsActive: true}
	require.NoError(t, store.CreateTemplate(ctx, &tmpl))

	// deleted users' challenges expire before the live user's
	for i := 0; i < 5; i++ {
		u, err := users.CreateUser(ctx, &user.CreateUserRequest{ClerkID: uuid.NewString(), Username: "gone"})
		require.NoError(t, err)
		_, err = engine.StartChallenge(ctx, u.ID, tmpl.ID)
		require.NoError(t, err)
		require.NoError(t, users.DeleteUserByClerkID(ctx, u.ClerkID))
	}
	clk.Advance(time.Minute)
	live, err := users.CreateUser(ctx, &user.CreateUserRequest{ClerkID: uuid.NewString(), Username: "live"})
	require.NoError(t, err)
	_, err = engine.StartChallenge(ctx, live.ID, tmpl.ID)
	require.NoError(t, err)

	clk.Advance(2 * time.Hour)
	s := NewExpirySweeper(engine, time.Minute, 2)
	s.batchSize = 5
	s.Run(ctx)

	due, err := engine.DueChallenges(ctx, challenge.Cursor{}, 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	history, err := engine.ChallengeHistory(ctx, live.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, challenge.StatusExpired, history[0].Status)
}

func TestStartStop(t *testing.T) {
	r := newFakeResolver()
	r.due = append(r.due, challenge.Instance{ID: uuid.New(), UserID: uuid.New()})

	s := NewExpirySweeper(r, 10*time.Millisecond, 1)
	s.Start()

	assert.Eventually(t, func() bool {
		return len(r.resolvedIDs()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	s.Stop()
	s.Stop()
}
