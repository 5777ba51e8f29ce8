package privacy

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/ZanzyTHEbar/core-view/internal/database"
	"github.com/ZanzyTHEbar/core-view/internal/monitoring"
)

// DefaultRetentionDays is how long an untouched session is kept
const DefaultRetentionDays = 365

// SessionDeleter removes sessions together with anything derived from them,
// cached profiles included. *session.Service satisfies it.
type SessionDeleter interface {
	Delete(ctx context.Context, id string) error
	PurgeInactive(ctx context.Context, before time.Time) (int, error)
}

// RetentionStore reports what is currently stored.
type RetentionStore interface {
	GetSessionStats(ctx context.Context) (*database.SessionStats, error)
}

// PrivacyService handles user-initiated deletion and retention cleanup
type PrivacyService struct {
	sessions      SessionDeleter
	store         RetentionStore
	retentionDays int
	logger        *monitoring.Logger
	now           func() time.Time
}

// NewService creates a new privacy service
func NewService(sessions SessionDeleter, store RetentionStore, retentionDays int, logger *monitoring.Logger) *PrivacyService {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	if logger == nil {
		logger = monitoring.NopLogger()
	}
	return &PrivacyService{
		sessions:      sessions,
		store:         store,
		retentionDays: retentionDays,
		logger:        logger,
		now:           time.Now,
	}
}

// AnonymizeID hashes an identifier for log lines
func AnonymizeID(id string) string {
	hash := sha256.Sum256([]byte(id))
	return hex.EncodeToString(hash[:])[:12]
}

// DeleteSessionData removes a session, its profile and every feedback
// submission made about it
func (ps *PrivacyService) DeleteSessionData(ctx context.Context, id string) error {
	if err := ps.sessions.Delete(ctx, id); err != nil {
		return err
	}
	ps.logger.Info("Session data deleted on request", "session_hash", AnonymizeID(id))
	return nil
}

// CleanupInactive deletes sessions whose last activity is older than the
// retention window and returns how many were removed
func (ps *PrivacyService) CleanupInactive(ctx context.Context) (int, error) {
	cutoff := ps.now().UTC().AddDate(0, 0, -ps.retentionDays)
	deleted, err := ps.sessions.PurgeInactive(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	ps.logger.Info("Data cleanup completed", "cutoff_date", cutoff.Format(time.RFC3339), "sessions_deleted", deleted)
	return deleted, nil
}

// RunCleanup runs CleanupInactive every interval until ctx is done
func (ps *PrivacyService) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := ps.CleanupInactive(ctx); err != nil && ctx.Err() == nil {
			ps.logger.Error("Data cleanup failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RetentionInfo describes the data retention policy
func (ps *PrivacyService) RetentionInfo(ctx context.Context) (map[string]any, error) {
	stats, err := ps.store.GetSessionStats(ctx)
	if err != nil {
		return nil, err
	}
	info := map[string]any{
		"session_retention_days":  ps.retentionDays,
		"retention_measured_from": "last_active_at",
		"feedback_deleted_with":   "session",
		"sessions_stored":         stats.Total,
		"sessions_completed":      stats.Completed,
		"self_service_deletion":   "DELETE /api/sessions/:id",
	}
	if stats.OldestActivity != nil {
		info["oldest_activity"] = stats.OldestActivity.UTC().Format(time.RFC3339)
	}
	return info, nil
}
