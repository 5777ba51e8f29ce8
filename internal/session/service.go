// Package session drives one person's pass through the wizard: recording
// responses, computing the profile once, applying follow-up adjustments and
// collecting third-party feedback.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ZanzyTHEbar/core-view/internal/archetype"
	"github.com/ZanzyTHEbar/core-view/internal/cache"
	"github.com/ZanzyTHEbar/core-view/internal/catalog"
	"github.com/ZanzyTHEbar/core-view/internal/database"
	"github.com/ZanzyTHEbar/core-view/internal/feedback"
	"github.com/ZanzyTHEbar/core-view/internal/monitoring"
	"github.com/ZanzyTHEbar/core-view/internal/profile"
	"github.com/ZanzyTHEbar/core-view/internal/scoring"
	"github.com/ZanzyTHEbar/core-view/internal/types"
)

var (
	ErrNotInProgress      = errors.New("session is no longer accepting responses")
	ErrProfileNotReady    = errors.New("profile is not available until the session is completed")
	ErrAdjustmentApplied  = errors.New("adjustment from this source was already applied")
	ErrInvalidSource      = errors.New("unknown adjustment source")
	ErrFeedbackClosed     = errors.New("feedback link is not active")
	ErrNoFeedbackLink     = errors.New("feedback link has not been created")
	ErrInvalidLinkAction  = errors.New("unknown feedback link action")
	ErrEmptyFeedback      = errors.New("no recognized feedback responses")
	ErrEmptyResponseBatch = errors.New("no responses supplied")
)

// alternativeCount is how many runner-up archetypes a follow-up offers when
// the assigned one is a questionable fit.
const alternativeCount = 3

// Store is the persistence the service needs. *database.Repository satisfies it.
type Store interface {
	CreateSession(ctx context.Context, s *database.Session) error
	GetSession(ctx context.Context, id string) (*database.Session, error)
	GetSessionByFeedbackToken(ctx context.Context, token string) (*database.Session, error)
	GetSessionByShareToken(ctx context.Context, token string) (*database.Session, error)
	UpdateSession(ctx context.Context, id string, fn func(*database.Session) error) (*database.Session, error)
	AddFeedback(ctx context.Context, sub *database.FeedbackSubmission) error
	ListFeedback(ctx context.Context, sessionID string) ([]types.FeedbackResponse, int, error)
	DeleteSession(ctx context.Context, id string) (bool, error)
	DeleteInactiveSessions(ctx context.Context, before time.Time) ([]string, error)
}

// LinkAction is a requested change to a session's feedback link.
type LinkAction string

const (
	LinkCreate LinkAction = "create"
	LinkToggle LinkAction = "toggle"
)

// FeedbackLink is the public state of a session's feedback link.
type FeedbackLink struct {
	Token  string `json:"token"`
	Active bool   `json:"active"`
}

// FollowUp tells a follow-up conversation what to probe.
type FollowUp struct {
	LowConfidence     []types.DimensionScore `json:"lowConfidence"`
	NeedsFitReview    bool                   `json:"needsFitReview"`
	ArchetypeID       string                 `json:"archetypeId"`
	ArchetypeDistance float64                `json:"archetypeDistance"`
	Alternatives      []Alternative          `json:"alternatives,omitempty"`
}

// Alternative is a runner-up archetype.
type Alternative struct {
	ArchetypeID string  `json:"archetypeId"`
	Name        string  `json:"name"`
	Distance    float64 `json:"distance"`
}

// FeedbackSummary compares what others said with the self-report.
type FeedbackSummary struct {
	Responses    int                    `json:"responses"`
	Submissions  int                    `json:"submissions"`
	CanReconcile bool                   `json:"canReconcile"`
	Scores       []types.DimensionScore `json:"scores"`
	Gaps         []feedback.Gap         `json:"gaps,omitempty"`
}

// SharedProfile is what a share link reveals.
type SharedProfile struct {
	Dimensions []types.DimensionScore `json:"dimensions"`
	Archetype  catalog.Archetype      `json:"archetype"`
	IssuedAt   time.Time              `json:"issuedAt"`
}

type Service struct {
	store      Store
	catalog    *catalog.Catalog
	scorer     *Scorer
	matcher    *archetype.Matcher
	builder    *profile.Builder
	aggregator *feedback.Aggregator
	signer     *profile.Signer
	profiles   *cache.Cache[profile.Profile]
	metrics    *monitoring.Metrics
	logger     *monitoring.Logger
	now        func() time.Time
}

// NewService wires the scoring pipeline against store. metrics may be nil.
func NewService(store Store, c *catalog.Catalog, metrics *monitoring.Metrics, logger *monitoring.Logger) *Service {
	if logger == nil {
		logger = monitoring.NopLogger()
	}
	matcher := archetype.NewMatcher(c)
	return &Service{
		store:      store,
		catalog:    c,
		scorer:     NewScorer(c),
		matcher:    matcher,
		builder:    profile.NewBuilder(matcher),
		aggregator: feedback.NewAggregator(c, logger.Slog()),
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
	}
}

// WithSigner makes share tokens HS256-signed JWTs instead of plain encoded tokens.
func (s *Service) WithSigner(signer *profile.Signer) *Service {
	s.signer = signer
	return s
}

// WithProfileCache keeps computed profiles in memory in front of the store.
func (s *Service) WithProfileCache(c *cache.Cache[profile.Profile]) *Service {
	s.profiles = c
	return s
}

// WithClock overrides the timestamp source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	s.builder.WithClock(now)
	return s
}

func (s *Service) Start(ctx context.Context) (*database.Session, error) {
	sess := database.NewSession()
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	s.logger.Info("Session started", "session_id", sess.ID)
	return sess, nil
}

func (s *Service) Get(ctx context.Context, id string) (*database.Session, error) {
	return s.store.GetSession(ctx, id)
}

// RecordResponses scores a batch of events. The batch is applied atomically:
// if any event is rejected, nothing is stored.
func (s *Service) RecordResponses(ctx context.Context, id string, events []types.ResponseEvent) (*database.Session, error) {
	if len(events) == 0 {
		return nil, ErrEmptyResponseBatch
	}

	sess, err := s.store.UpdateSession(ctx, id, func(sess *database.Session) error {
		if sess.Status != database.StatusInProgress {
			return ErrNotInProgress
		}

		acc := sess.Accumulator
		for i := range events {
			if events[i].AnsweredAt.IsZero() {
				events[i].AnsweredAt = s.now().UTC()
			}
			next, err := s.scorer.Apply(acc, events[i])
			if err != nil {
				s.metrics.RecordResponseRejected(rejectReason(err))
				return err
			}
			acc = next
		}

		sess.Accumulator = acc
		sess.Responses = append(sess.Responses, events...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, ev := range events {
		s.metrics.RecordResponseScored(string(ev.QuestionType))
	}
	s.logger.ScoringLogger(id, len(events), string(sess.CurrentStep))
	return sess, nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, catalog.ErrUnknownQuestion):
		return "unknown_question"
	case errors.Is(err, catalog.ErrUnknownOption):
		return "unknown_option"
	case errors.Is(err, ErrQuestionTypeMismatch):
		return "type_mismatch"
	case errors.Is(err, ErrInvalidRanking):
		return "invalid_ranking"
	default:
		return "invalid"
	}
}

// AdvanceStep moves the wizard forward. Advancing past processing completes
// the session.
func (s *Service) AdvanceStep(ctx context.Context, id string) (*database.Session, error) {
	return s.store.UpdateSession(ctx, id, func(sess *database.Session) error {
		if sess.Status != database.StatusInProgress {
			return ErrNotInProgress
		}
		if next, ok := sess.CurrentStep.Next(); ok {
			sess.CurrentStep = next
			return nil
		}
		completed := s.now().UTC()
		sess.Status = database.StatusCompleted
		sess.CompletedAt = &completed
		return nil
	})
}

// Profile returns the session's profile, computing it on first request.
// Later reads return the stored profile unchanged.
func (s *Service) Profile(ctx context.Context, id string) (profile.Profile, error) {
	if s.profiles != nil {
		if p, ok := s.profiles.Get(id); ok {
			return p, nil
		}
	}

	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		return profile.Profile{}, err
	}
	if sess.Profile != nil {
		s.remember(id, *sess.Profile)
		return *sess.Profile, nil
	}
	if sess.Status != database.StatusCompleted {
		return profile.Profile{}, ErrProfileNotReady
	}

	built := false
	sess, err = s.store.UpdateSession(ctx, id, func(sess *database.Session) error {
		// another request may have won the race
		if sess.Profile != nil {
			return nil
		}
		p := s.builder.Build(sess.Accumulator)
		sess.Profile = &p
		built = true
		return nil
	})
	if err != nil {
		return profile.Profile{}, err
	}

	p := *sess.Profile
	if built {
		s.metrics.RecordProfileBuilt(p.ArchetypeID, p.ArchetypeDistance)
		s.logger.ProfileLogger(id, p.ArchetypeID, p.ArchetypeDistance, p.NeedsFitReview())
	}
	s.remember(id, p)
	return p, nil
}

func (s *Service) remember(id string, p profile.Profile) {
	if s.profiles != nil {
		s.profiles.Set(id, p)
	}
}

func (s *Service) forget(id string) {
	if s.profiles != nil {
		s.profiles.Delete(id)
	}
}

// ApplyAdjustment parses model output and applies it to the profile. Each
// source applies at most once; the first adjustment preserves the original
// profile as ProfileV1. Reconciliation needs enough feedback and closes the
// feedback link.
func (s *Service) ApplyAdjustment(ctx context.Context, id string, source profile.Source, text string) (profile.Profile, error) {
	if !source.Valid() {
		return profile.Profile{}, fmt.Errorf("%w: %q", ErrInvalidSource, source)
	}
	adj, err := profile.ParseAdjustment(text)
	if err != nil {
		return profile.Profile{}, err
	}

	if source == profile.SourceReconciliation {
		responses, _, err := s.store.ListFeedback(ctx, id)
		if err != nil {
			return profile.Profile{}, err
		}
		if !feedback.CanReconcile(len(responses)) {
			return profile.Profile{}, fmt.Errorf("%w: have %d, need %d",
				feedback.ErrNotEnoughResponses, len(responses), feedback.MinResponsesForReconciliation)
		}
	}

	// make sure a profile exists before adjusting it
	if _, err := s.Profile(ctx, id); err != nil {
		return profile.Profile{}, err
	}

	var from string
	sess, err := s.store.UpdateSession(ctx, id, func(sess *database.Session) error {
		if sess.Profile == nil {
			return ErrProfileNotReady
		}
		slot := &sess.DeepDiveAdjustment
		if source == profile.SourceReconciliation {
			slot = &sess.ReconciliationAdjustment
		}
		if *slot != nil {
			return ErrAdjustmentApplied
		}

		if sess.ProfileV1 == nil {
			original := *sess.Profile
			sess.ProfileV1 = &original
		}
		from = sess.Profile.ArchetypeID
		adjusted := s.builder.Adjust(*sess.Profile, adj)
		sess.Profile = &adjusted
		*slot = &adj

		if source == profile.SourceReconciliation {
			sess.FeedbackActive = false
		}
		return nil
	})
	if err != nil {
		return profile.Profile{}, err
	}

	p := *sess.Profile
	s.remember(id, p)
	s.metrics.RecordAdjustment(string(source), p.ArchetypeID, p.ArchetypeDistance)
	s.logger.AdjustmentLogger(id, string(source), from, p.ArchetypeID)
	return p, nil
}

// FollowUp reports the least certain dimensions and, when the archetype is a
// poor fit, the nearest alternatives.
func (s *Service) FollowUp(ctx context.Context, id string) (FollowUp, error) {
	p, err := s.Profile(ctx, id)
	if err != nil {
		return FollowUp{}, err
	}

	out := FollowUp{
		LowConfidence:     p.LowConfidence(scoring.DefaultConfidenceThreshold),
		NeedsFitReview:    p.NeedsFitReview(),
		ArchetypeID:       p.ArchetypeID,
		ArchetypeDistance: p.ArchetypeDistance,
	}
	if out.NeedsFitReview {
		for _, m := range s.matcher.Ranked(p.Dimensions) {
			if m.Archetype.ID == p.ArchetypeID {
				continue
			}
			out.Alternatives = append(out.Alternatives, Alternative{
				ArchetypeID: m.Archetype.ID,
				Name:        m.Archetype.Name,
				Distance:    m.Distance,
			})
			if len(out.Alternatives) == alternativeCount {
				break
			}
		}
	}
	return out, nil
}

// FeedbackLink creates or toggles the session's feedback link. Links are only
// offered once the self-report is complete.
func (s *Service) FeedbackLink(ctx context.Context, id string, action LinkAction) (FeedbackLink, error) {
	if action != LinkCreate && action != LinkToggle {
		return FeedbackLink{}, fmt.Errorf("%w: %q", ErrInvalidLinkAction, action)
	}

	sess, err := s.store.UpdateSession(ctx, id, func(sess *database.Session) error {
		if sess.Status != database.StatusCompleted {
			return ErrProfileNotReady
		}
		switch action {
		case LinkCreate:
			if sess.FeedbackToken == "" {
				sess.FeedbackToken = database.NewToken()
			}
			sess.FeedbackActive = true
		case LinkToggle:
			if sess.FeedbackToken == "" {
				return ErrNoFeedbackLink
			}
			sess.FeedbackActive = !sess.FeedbackActive
		}
		return nil
	})
	if err != nil {
		return FeedbackLink{}, err
	}
	return FeedbackLink{Token: sess.FeedbackToken, Active: sess.FeedbackActive}, nil
}

func (s *Service) activeFeedbackSession(ctx context.Context, token string) (*database.Session, error) {
	sess, err := s.store.GetSessionByFeedbackToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if !sess.FeedbackActive {
		return nil, ErrFeedbackClosed
	}
	return sess, nil
}

// FeedbackQuestions returns the third-party question bank for an active link.
func (s *Service) FeedbackQuestions(ctx context.Context, token string) ([]catalog.Question, error) {
	if _, err := s.activeFeedbackSession(ctx, token); err != nil {
		return nil, err
	}
	return s.catalog.FeedbackQuestions(), nil
}

// SubmitFeedback stores the recognized answers from one respondent and
// returns how many were kept.
func (s *Service) SubmitFeedback(ctx context.Context, token string, responses []types.FeedbackResponse) (int, error) {
	sess, err := s.activeFeedbackSession(ctx, token)
	if err != nil {
		return 0, err
	}

	kept := make([]types.FeedbackResponse, 0, len(responses))
	for _, r := range responses {
		if _, err := s.catalog.FeedbackOption(r.QuestionID, r.OptionID); err != nil {
			s.logger.Warn("Dropping feedback response", "session_id", sess.ID, "question_id", r.QuestionID, "error", err)
			continue
		}
		kept = append(kept, r)
	}
	if len(kept) == 0 {
		return 0, ErrEmptyFeedback
	}

	if err := s.store.AddFeedback(ctx, database.NewFeedbackSubmission(sess.ID, kept)); err != nil {
		return 0, err
	}
	s.metrics.RecordFeedback(len(kept))
	return len(kept), nil
}

// FeedbackScores aggregates all feedback for a session. Gaps are included
// once the self-report profile exists.
func (s *Service) FeedbackScores(ctx context.Context, id string) (FeedbackSummary, error) {
	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		return FeedbackSummary{}, err
	}
	responses, submissions, err := s.store.ListFeedback(ctx, id)
	if err != nil {
		return FeedbackSummary{}, err
	}

	scores := s.aggregator.Scores(responses)
	out := FeedbackSummary{
		Responses:    len(responses),
		Submissions:  submissions,
		CanReconcile: feedback.CanReconcile(len(responses)),
		Scores:       scores,
	}
	if sess.Profile != nil {
		other := make(map[types.Dimension]int, len(scores))
		for _, sc := range scores {
			other[sc.DimensionID] = sc.Score
		}
		out.Gaps = feedback.Gaps(sess.Profile.Dimensions, other)
	}
	return out, nil
}

// Share issues a share token for the current profile. Each call replaces the
// previous token, so a link made before an adjustment stops resolving.
func (s *Service) Share(ctx context.Context, id string) (string, error) {
	p, err := s.Profile(ctx, id)
	if err != nil {
		return "", err
	}

	token := profile.EncodeToken(p)
	if s.signer != nil {
		if token, err = s.signer.Sign(p); err != nil {
			return "", err
		}
	}

	if _, err := s.store.UpdateSession(ctx, id, func(sess *database.Session) error {
		sess.ShareToken = token
		return nil
	}); err != nil {
		return "", err
	}
	return token, nil
}

// Shared resolves a share token. Tokens of deleted sessions no longer resolve.
func (s *Service) Shared(ctx context.Context, token string) (SharedProfile, error) {
	if _, err := s.store.GetSessionByShareToken(ctx, token); err != nil {
		return SharedProfile{}, err
	}

	var (
		t   profile.Token
		err error
	)
	if s.signer != nil {
		t, err = s.signer.Verify(token)
	} else {
		t, err = profile.DecodeToken(token)
	}
	if err != nil {
		return SharedProfile{}, err
	}

	a, err := s.catalog.Archetype(t.ArchetypeID)
	if err != nil {
		return SharedProfile{}, fmt.Errorf("%w: %v", profile.ErrInvalidToken, err)
	}
	return SharedProfile{Dimensions: t.Dimensions(), Archetype: a, IssuedAt: t.Time()}, nil
}

// Delete removes a session and its feedback.
func (s *Service) Delete(ctx context.Context, id string) error {
	deleted, err := s.store.DeleteSession(ctx, id)
	if err != nil {
		return err
	}
	s.forget(id)
	if !deleted {
		return database.ErrSessionNotFound
	}
	return nil
}

// PurgeInactive deletes every session not touched since before and drops
// their cached profiles. It returns how many sessions were removed.
func (s *Service) PurgeInactive(ctx context.Context, before time.Time) (int, error) {
	ids, err := s.store.DeleteInactiveSessions(ctx, before)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		s.forget(id)
	}
	return len(ids), nil
}
