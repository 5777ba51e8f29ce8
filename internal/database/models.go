package database

import (
	"time"

	"github.com/google/uuid"

	"github.com/ZanzyTHEbar/core-view/internal/profile"
	"github.com/ZanzyTHEbar/core-view/internal/scoring"
	"github.com/ZanzyTHEbar/core-view/internal/types"
)

// SessionStatus tracks whether the self-report flow has finished
type SessionStatus string

const (
	StatusInProgress SessionStatus = "in_progress"
	StatusCompleted  SessionStatus = "completed"
)

// Session is one person's pass through the wizard plus everything derived from it
type Session struct {
	ID                       string                `json:"id" db:"id"`
	Status                   SessionStatus         `json:"status" db:"status"`
	CurrentStep              types.WizardStep      `json:"currentStep" db:"current_step"`
	Accumulator              scoring.Accumulator   `json:"-" db:"accumulator"`
	Responses                []types.ResponseEvent `json:"responses" db:"responses"`
	Profile                  *profile.Profile      `json:"profile,omitempty" db:"profile"`
	ProfileV1                *profile.Profile      `json:"-" db:"profile_v1"`
	DeepDiveAdjustment       *profile.Adjustment   `json:"-" db:"deep_dive_adjustments"`
	ReconciliationAdjustment *profile.Adjustment   `json:"-" db:"reconciliation_adjustments"`
	FeedbackToken            string                `json:"-" db:"feedback_token"`
	FeedbackActive           bool                  `json:"-" db:"feedback_active"`
	ShareToken               string                `json:"-" db:"share_token"`
	StartedAt                time.Time             `json:"startedAt" db:"started_at"`
	LastActiveAt             time.Time             `json:"lastActiveAt" db:"last_active_at"`
	CompletedAt              *time.Time            `json:"completedAt,omitempty" db:"completed_at"`
}

// FeedbackSubmission is one batch of answers from a third party
type FeedbackSubmission struct {
	ID        string                   `json:"id" db:"id"`
	SessionID string                   `json:"session_id" db:"session_id"`
	Responses []types.FeedbackResponse `json:"responses" db:"responses"`
	CreatedAt time.Time                `json:"created_at" db:"created_at"`
}

// NewSession creates an empty session positioned at the first wizard step
func NewSession() *Session {
	now := time.Now().UTC()
	return &Session{
		ID:           uuid.New().String(),
		Status:       StatusInProgress,
		CurrentStep:  types.StepWarmup,
		Accumulator:  scoring.NewAccumulator(),
		Responses:    []types.ResponseEvent{},
		StartedAt:    now,
		LastActiveAt: now,
	}
}

// NewFeedbackSubmission wraps responses with a generated ID
func NewFeedbackSubmission(sessionID string, responses []types.FeedbackResponse) *FeedbackSubmission {
	return &FeedbackSubmission{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Responses: responses,
		CreatedAt: time.Now().UTC(),
	}
}

// NewToken returns an opaque random token for feedback and share links
func NewToken() string {
	return uuid.New().String()
}
