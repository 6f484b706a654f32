package challenge

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

const (
	MinProgress = 0
	MaxProgress = 100
)

type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusAbandoned Status = "abandoned"
	StatusExpired   Status = "expired"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusAbandoned || s == StatusExpired
}

// EndReason is the subset of terminal states a caller may request explicitly.
type EndReason string

const (
	EndAbandoned EndReason = "abandoned"
	EndExpired   EndReason = "expired"
)

func ParseEndReason(s string) (EndReason, error) {
	switch EndReason(s) {
	case EndAbandoned, EndExpired:
		return EndReason(s), nil
	case "":
		return EndAbandoned, nil
	}
	return "", fmt.Errorf("unsupported end reason %q", s)
}

// Template is an admin-authored challenge definition. Read-only here.
type Template struct {
	ID            uuid.UUID `json:"id" db:"id"`
	Title         string    `json:"title" db:"title"`
	Description   string    `json:"description" db:"description"`
	DurationHours int       `json:"duration_hours" db:"duration_hours"`
	IsActive      bool      `json:"is_active" db:"is_active"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

func (t Template) Duration() time.Duration {
	return time.Duration(t.DurationHours) * time.Hour
}

// Instance is one user's attempt at a Template.
type Instance struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	UserID     uuid.UUID  `json:"user_id" db:"user_id"`
	TemplateID uuid.UUID  `json:"challenge_id" db:"template_id"`
	Progress   int        `json:"progress" db:"progress"`
	Status     Status     `json:"status" db:"status"`
	StartedAt  time.Time  `json:"started_at" db:"started_at"`
	ExpiresAt  time.Time  `json:"expires_at" db:"expires_at"`
	EndedAt    *time.Time `json:"ended_at" db:"ended_at"`
}

// Start creates a fresh active instance of tmpl for userID.
func Start(userID uuid.UUID, tmpl Template, now time.Time) *Instance {
	return &Instance{
		ID:         uuid.New(),
		UserID:     userID,
		TemplateID: tmpl.ID,
		Progress:   MinProgress,
		Status:     StatusActive,
		StartedAt:  now,
		ExpiresAt:  now.Add(tmpl.Duration()),
	}
}

// ApplyProgressDelta adds delta to the instance progress, clamped to
// [MinProgress, MaxProgress]. Reaching MaxProgress completes the instance.
// Terminal instances are left untouched; the return value reports whether
// the instance transitioned to completed.
func (i *Instance) ApplyProgressDelta(delta int, now time.Time) bool {
	if i.Status != StatusActive {
		return false
	}

	i.Progress = clamp(i.Progress + delta)
	if i.Progress >= MaxProgress {
		i.finish(StatusCompleted, now)
		return true
	}
	return false
}

// Due reports whether the instance has outlived its duration at now.
func (i *Instance) Due(now time.Time) bool {
	return i.Status == StatusActive && !now.Before(i.ExpiresAt)
}

// StatusAt is the status the instance should have at now, without mutating it.
func (i *Instance) StatusAt(now time.Time) Status {
	if !i.Due(now) {
		return i.Status
	}
	if i.Progress >= MaxProgress {
		return StatusCompleted
	}
	return StatusExpired
}

// Resolve applies a time-driven transition if one is due and reports
// whether the instance changed.
func (i *Instance) Resolve(now time.Time) bool {
	next := i.StatusAt(now)
	if next == i.Status {
		return false
	}
	i.finish(next, i.ExpiresAt)
	return true
}

// End terminates an active instance for reason.
func (i *Instance) End(reason EndReason, now time.Time) error {
	if i.Status != StatusActive {
		return fmt.Errorf("challenge %s is already %s", i.ID, i.Status)
	}
	i.finish(Status(reason), now)
	return nil
}

// TimeRemaining is the time left before expiry, never negative.
func (i *Instance) TimeRemaining(now time.Time) time.Duration {
	if i.Status != StatusActive {
		return 0
	}
	left := i.ExpiresAt.Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// Cursor is a position in the due list, which is ordered by expiry and then
// by instance ID. The zero Cursor sorts before every instance.
type Cursor struct {
	ExpiresAt time.Time
	ID        uuid.UUID
}

func CursorOf(inst Instance) Cursor {
	return Cursor{ExpiresAt: inst.ExpiresAt, ID: inst.ID}
}

// Precedes reports whether c sorts strictly before inst.
func (c Cursor) Precedes(inst Instance) bool {
	if !c.ExpiresAt.Equal(inst.ExpiresAt) {
		return c.ExpiresAt.Before(inst.ExpiresAt)
	}
	return bytes.Compare(c.ID[:], inst.ID[:]) < 0
}

// SortDue orders instances the way the due list is paged.
func SortDue(insts []Instance) {
	sort.Slice(insts, func(a, b int) bool {
		return CursorOf(insts[a]).Precedes(insts[b])
	})
}

func (i *Instance) finish(status Status, at time.Time) {
	i.Status = status
	i.EndedAt = &at
}

func clamp(p int) int {
	if p < MinProgress {
		return MinProgress
	}
	if p > MaxProgress {
		return MaxProgress
	}
	return p
}

type StartChallengeRequest struct {
	ChallengeID string `json:"challengeId" validate:"required,uuid"`
}

type EndChallengeRequest struct {
	Reason string `json:"reason,omitempty" validate:"omitempty,oneof=abandoned expired"`
}

type ActiveChallengeResponse struct {
	ActiveChallenge      *Instance `json:"activeChallenge"`
	Challenge            *Template `json:"challenge,omitempty"`
	TimeRemainingSeconds int64     `json:"timeRemaining"`
}
