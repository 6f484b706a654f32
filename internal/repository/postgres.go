package repository

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"spendSmartAPI/internal/achievement"
	"spendSmartAPI/internal/challenge"
	"spendSmartAPI/internal/expense"
	"spendSmartAPI/internal/notification"
	"spendSmartAPI/internal/streak"
	"spendSmartAPI/internal/user"
)

//go:embed schema.sql
var schema string

const uniqueViolation = "23505"

const (
	userColumns      = `id, clerk_id, email, username, first_name, last_name, image_url, email_verified, monthly_budget, currency, created_at, updated_at`
	templateColumns  = `id, title, description, duration_hours, is_active, created_at`
	instanceColumns  = `id, user_id, template_id, progress, status, started_at, expires_at, ended_at`
	expenseColumns   = `id, user_id, amount, mood, category, occurred_at, created_at`
	streakColumns    = `user_id, kind, current_streak, longest_streak, last_activity_date, updated_at`
	badgeColumns     = `id, name, description, icon, points, criteria_type, criteria_value, created_at`
	userBadgeColumns = `user_id, achievement_id, unlocked_at`
)

var (
	_ Store = (*PostgresStore)(nil)
	_ Tx    = (*pgTx)(nil)
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *PostgresStore) WithUser(ctx context.Context, userID uuid.UUID, fn func(tx Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// the row lock serialises every writer of this user's state
	u, err := scanUser(tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, userID))
	if err != nil {
		return err
	}

	if err := fn(&pgTx{tx: tx, user: u}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpsertUser(ctx context.Context, u *user.User) error {
	query := `
	INSERT INTO users (id, clerk_id, email, username, first_name, last_name, image_url, email_verified, monthly_budget, currency, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT (clerk_id) DO UPDATE SET
		email = EXCLUDED.email,
		username = EXCLUDED.username,
		first_name = EXCLUDED.first_name,
		last_name = EXCLUDED.last_name,
		image_url = EXCLUDED.image_url,
		email_verified = EXCLUDED.email_verified,
		updated_at = EXCLUDED.updated_at
	RETURNING ` + userColumns

	got, err := scanUser(s.db.QueryRow(ctx, query,
		u.ID, u.ClerkID, u.Email, u.Username, u.FirstName, u.LastName, u.ImageURL,
		u.EmailVerified, u.MonthlyBudget, u.Currency, u.CreatedAt, u.UpdatedAt,
	))
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	*u = *got
	return nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id uuid.UUID) (*user.User, error) {
	u, err := scanUser(s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	if u.DeviceTokens, err = s.deviceTokens(ctx, u.ID); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *PostgresStore) GetUserByClerkID(ctx context.Context, clerkID string) (*user.User, error) {
	u, err := scanUser(s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE clerk_id = $1`, clerkID))
	if err != nil {
		return nil, err
	}
	if u.DeviceTokens, err = s.deviceTokens(ctx, u.ID); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *PostgresStore) UpdateUser(ctx context.Context, u *user.User) error {
	query := `
	UPDATE users
	SET username = $2, first_name = $3, last_name = $4, image_url = $5,
		monthly_budget = $6, currency = $7, updated_at = $8
	WHERE id = $1
	`
	tag, err := s.db.Exec(ctx, query,
		u.ID, u.Username, u.FirstName, u.LastName, u.ImageURL, u.MonthlyBudget, u.Currency, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteUserByClerkID(ctx context.Context, clerkID string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM users WHERE clerk_id = $1`, clerkID)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) AddDeviceToken(ctx context.Context, userID uuid.UUID, token notification.DeviceToken) error {
	query := `
	INSERT INTO device_tokens (user_id, token, platform)
	VALUES ($1, $2, $3)
	ON CONFLICT (user_id, token) DO UPDATE SET platform = EXCLUDED.platform
	`
	if _, err := s.db.Exec(ctx, query, userID, token.Token, token.Platform); err != nil {
		return fmt.Errorf("failed to save device token: %w", err)
	}
	return nil
}

func (s *PostgresStore) deviceTokens(ctx context.Context, userID uuid.UUID) ([]notification.DeviceToken, error) {
	rows, err := s.db.Query(ctx, `SELECT token, platform FROM device_tokens WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query device tokens: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[notification.DeviceToken])
}

func (s *PostgresStore) CreateTemplate(ctx context.Context, t *challenge.Template) error {
	query := `INSERT INTO challenges (` + templateColumns + `) VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := s.db.Exec(ctx, query, t.ID, t.Title, t.Description, t.DurationHours, t.IsActive, t.CreatedAt); err != nil {
		return fmt.Errorf("failed to create challenge: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTemplate(ctx context.Context, id uuid.UUID) (*challenge.Template, error) {
	rows, err := s.db.Query(ctx, `SELECT `+templateColumns+` FROM challenges WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query challenge: %w", err)
	}
	return collectOne(rows, pgx.RowToAddrOfStructByName[challenge.Template])
}

func (s *PostgresStore) ListTemplates(ctx context.Context) ([]challenge.Template, error) {
	rows, err := s.db.Query(ctx, `SELECT `+templateColumns+` FROM challenges WHERE is_active ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query challenges: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[challenge.Template])
}

func (s *PostgresStore) CreateAchievement(ctx context.Context, a *achievement.Achievement) (bool, error) {
	query := `
	INSERT INTO achievements (` + badgeColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (name) DO NOTHING
	`
	tag, err := s.db.Exec(ctx, query,
		a.ID, a.Name, a.Description, a.Icon, a.Points, a.CriteriaType, a.CriteriaValue, a.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to create achievement: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) ListAchievements(ctx context.Context) ([]achievement.Achievement, error) {
	rows, err := s.db.Query(ctx, `SELECT `+badgeColumns+` FROM achievements ORDER BY criteria_type, criteria_value, name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query achievements: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[achievement.Achievement])
}

func (s *PostgresStore) ListDueChallenges(ctx context.Context, now time.Time, after challenge.Cursor, limit int) ([]challenge.Instance, error) {
	query := `
	SELECT ` + instanceColumns + `
	FROM user_challenges
	WHERE status = 'active' AND expires_at <= $1 AND (expires_at, id) > ($2, $3)
	ORDER BY expires_at, id
	LIMIT $4
	`
	rows, err := s.db.Query(ctx, query, now, after.ExpiresAt, after.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query due challenges: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[challenge.Instance])
}

func (s *PostgresStore) GetExpense(ctx context.Context, userID, id uuid.UUID) (*expense.Expense, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query expense: %w", err)
	}
	return collectOne(rows, pgx.RowToAddrOfStructByName[expense.Expense])
}

func (s *PostgresStore) UpdateExpense(ctx context.Context, e *expense.Expense) error {
	query := `
	UPDATE expenses
	SET amount = $3, mood = $4, category = $5, occurred_at = $6
	WHERE id = $1 AND user_id = $2
	`
	tag, err := s.db.Exec(ctx, query, e.ID, e.UserID, e.Amount, e.Mood, e.Category, e.OccurredAt)
	if err != nil {
		return fmt.Errorf("failed to update expense: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteExpense(ctx context.Context, userID, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM expenses WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete expense: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListExpenses(ctx context.Context, userID uuid.UUID, limit int) ([]expense.Expense, error) {
	return listExpenses(ctx, s.db, userID, limit)
}

func (s *PostgresStore) ListStreaks(ctx context.Context, userID uuid.UUID) ([]streak.Streak, error) {
	return listStreaks(ctx, s.db, userID)
}

func (s *PostgresStore) ListUserAchievements(ctx context.Context, userID uuid.UUID) ([]achievement.UserAchievement, error) {
	return listUserAchievements(ctx, s.db, userID)
}

// pgTx is the per-user unit of work on top of a pgx transaction.
type pgTx struct {
	tx   pgx.Tx
	user *user.User
}

func (t *pgTx) User() *user.User { return t.user }

func (t *pgTx) ActiveChallenge(ctx context.Context) (*challenge.Instance, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT `+instanceColumns+` FROM user_challenges WHERE user_id = $1 AND status = 'active'`, t.user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query active challenge: %w", err)
	}
	return collectOne(rows, pgx.RowToAddrOfStructByName[challenge.Instance])
}

func (t *pgTx) GetChallenge(ctx context.Context, id uuid.UUID) (*challenge.Instance, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT `+instanceColumns+` FROM user_challenges WHERE id = $1 AND user_id = $2`, id, t.user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query challenge instance: %w", err)
	}
	return collectOne(rows, pgx.RowToAddrOfStructByName[challenge.Instance])
}

func (t *pgTx) ListChallenges(ctx context.Context) ([]challenge.Instance, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT `+instanceColumns+` FROM user_challenges WHERE user_id = $1 ORDER BY started_at DESC`, t.user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query challenge history: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[challenge.Instance])
}

func (t *pgTx) InsertChallenge(ctx context.Context, inst *challenge.Instance) error {
	query := `INSERT INTO user_challenges (` + instanceColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := t.tx.Exec(ctx, query,
		inst.ID, inst.UserID, inst.TemplateID, inst.Progress, inst.Status, inst.StartedAt, inst.ExpiresAt, inst.EndedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert challenge instance: %w", err)
	}
	return nil
}

func (t *pgTx) UpdateChallenge(ctx context.Context, inst *challenge.Instance) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE user_challenges SET progress = $2, status = $3, ended_at = $4 WHERE id = $1`,
		inst.ID, inst.Progress, inst.Status, inst.EndedAt)
	if err != nil {
		return fmt.Errorf("failed to update challenge instance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) CountCompletedChallenges(ctx context.Context) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM user_challenges WHERE user_id = $1 AND status = 'completed'`, t.user.ID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count completed challenges: %w", err)
	}
	return n, nil
}

func (t *pgTx) InsertExpense(ctx context.Context, e *expense.Expense) error {
	query := `INSERT INTO expenses (` + expenseColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := t.tx.Exec(ctx, query,
		e.ID, e.UserID, e.Amount, e.Mood, e.Category, e.OccurredAt, e.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert expense: %w", err)
	}
	return nil
}

func (t *pgTx) CountExpenses(ctx context.Context) (int, error) {
	var n int
	if err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM expenses WHERE user_id = $1`, t.user.ID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count expenses: %w", err)
	}
	return n, nil
}

func (t *pgTx) SumExpenses(ctx context.Context, from, to time.Time) (float64, error) {
	var sum float64
	err := t.tx.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM expenses WHERE user_id = $1 AND occurred_at >= $2 AND occurred_at < $3`,
		t.user.ID, from, to).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("failed to sum expenses: %w", err)
	}
	return sum, nil
}

func (t *pgTx) GetStreak(ctx context.Context, kind streak.ActivityKind) (*streak.Streak, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT `+streakColumns+` FROM streaks WHERE user_id = $1 AND kind = $2`, t.user.ID, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to query streak: %w", err)
	}
	s, err := collectOne(rows, pgx.RowToAddrOfStructByName[streak.Streak])
	if errors.Is(err, ErrNotFound) {
		return &streak.Streak{UserID: t.user.ID, Kind: kind}, nil
	}
	return s, err
}

func (t *pgTx) SaveStreak(ctx context.Context, s *streak.Streak) error {
	query := `
	INSERT INTO streaks (` + streakColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (user_id, kind) DO UPDATE SET
		current_streak = EXCLUDED.current_streak,
		longest_streak = EXCLUDED.longest_streak,
		last_activity_date = EXCLUDED.last_activity_date,
		updated_at = EXCLUDED.updated_at
	`
	if _, err := t.tx.Exec(ctx, query,
		s.UserID, s.Kind, s.CurrentStreak, s.LongestStreak, s.LastActivityDate, s.UpdatedAt); err != nil {
		return fmt.Errorf("failed to save streak: %w", err)
	}
	return nil
}

func (t *pgTx) ListStreaks(ctx context.Context) ([]streak.Streak, error) {
	return listStreaks(ctx, t.tx, t.user.ID)
}

func (t *pgTx) ListUserAchievements(ctx context.Context) ([]achievement.UserAchievement, error) {
	return listUserAchievements(ctx, t.tx, t.user.ID)
}

// AwardIfAbsent runs inside a savepoint so a failed award leaves the
// surrounding transaction usable for the remaining badges.
func (t *pgTx) AwardIfAbsent(ctx context.Context, award achievement.UserAchievement) (bool, error) {
	sp, err := t.tx.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to open savepoint: %w", err)
	}
	defer sp.Rollback(ctx)

	tag, err := sp.Exec(ctx, `
	INSERT INTO user_achievements (`+userBadgeColumns+`)
	VALUES ($1, $2, $3)
	ON CONFLICT (user_id, achievement_id) DO NOTHING
	`, award.UserID, award.AchievementID, award.UnlockedAt)
	if err != nil {
		return false, fmt.Errorf("failed to award achievement: %w", err)
	}
	if err := sp.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to release savepoint: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func listExpenses(ctx context.Context, q querier, userID uuid.UUID, limit int) ([]expense.Expense, error) {
	rows, err := q.Query(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE user_id = $1 ORDER BY occurred_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query expenses: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[expense.Expense])
}

func listStreaks(ctx context.Context, q querier, userID uuid.UUID) ([]streak.Streak, error) {
	rows, err := q.Query(ctx, `SELECT `+streakColumns+` FROM streaks WHERE user_id = $1 ORDER BY kind`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query streaks: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[streak.Streak])
}

func listUserAchievements(ctx context.Context, q querier, userID uuid.UUID) ([]achievement.UserAchievement, error) {
	rows, err := q.Query(ctx,
		`SELECT `+userBadgeColumns+` FROM user_achievements WHERE user_id = $1 ORDER BY unlocked_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query user achievements: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[achievement.UserAchievement])
}

func collectOne[T any](rows pgx.Rows, fn pgx.RowToFunc[*T]) (*T, error) {
	v, err := pgx.CollectExactlyOneRow(rows, fn)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return v, nil
}

func scanUser(row pgx.Row) (*user.User, error) {
	u := &user.User{}
	err := row.Scan(
		&u.ID,
		&u.ClerkID,
		&u.Email,
		&u.Username,
		&u.FirstName,
		&u.LastName,
		&u.ImageURL,
		&u.EmailVerified,
		&u.MonthlyBudget,
		&u.Currency,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return u, nil
}
