package session

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

var fixedTime = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func fixedClock() time.Time { return fixedTime }

type testEnv struct {
	svc     *Service
	repo    *database.Repository
	catalog *catalog.Catalog
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	db, err := database.NewDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	c, err := catalog.Load()
	require.NoError(t, err)

	repo := database.NewRepository(db)
	metrics := monitoring.MustNewMetrics(prometheus.NewRegistry())
	svc := NewService(repo, c, metrics, monitoring.NopLogger()).
		WithClock(fixedClock).
		WithProfileCache(cache.New[profile.Profile]("profile", 16, time.Minute, metrics, nil))
	return testEnv{svc: svc, repo: repo, catalog: c}
}

var warmupAnswer = types.ResponseEvent{QuestionID: "w1", QuestionType: types.QuestionWarmup, OptionID: "w1a"}

// completedSession walks a session through every step with one warmup answer.
func completedSession(t *testing.T, svc *Service) string {
	t.Helper()
	ctx := context.Background()

	sess, err := svc.Start(ctx)
	require.NoError(t, err)
	_, err = svc.RecordResponses(ctx, sess.ID, []types.ResponseEvent{warmupAnswer})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err = svc.AdvanceStep(ctx, sess.ID)
		require.NoError(t, err)
	}
	return sess.ID
}

func TestWizardFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sess, err := env.svc.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.StepWarmup, sess.CurrentStep)

	_, err = env.svc.RecordResponses(ctx, sess.ID, nil)
	assert.ErrorIs(t, err, ErrEmptyResponseBatch)

	got, err := env.svc.RecordResponses(ctx, sess.ID, []types.ResponseEvent{warmupAnswer})
	require.NoError(t, err)
	require.Len(t, got.Responses, 1)
	assert.Equal(t, fixedTime, got.Responses[0].AnsweredAt)

	_, err = env.svc.Profile(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrProfileNotReady)

	steps := []types.WizardStep{types.StepScenarios, types.StepRanking, types.StepWriting, types.StepProcessing}
	for _, want := range steps {
		got, err = env.svc.AdvanceStep(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, want, got.CurrentStep)
		assert.Equal(t, database.StatusInProgress, got.Status)
	}

	got, err = env.svc.AdvanceStep(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, database.StatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)

	_, err = env.svc.RecordResponses(ctx, sess.ID, []types.ResponseEvent{warmupAnswer})
	assert.ErrorIs(t, err, ErrNotInProgress)
	_, err = env.svc.AdvanceStep(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrNotInProgress)
}

func TestRecordResponsesIsAtomic(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sess, err := env.svc.Start(ctx)
	require.NoError(t, err)

	_, err = env.svc.RecordResponses(ctx, sess.ID, []types.ResponseEvent{
		warmupAnswer,
		{QuestionID: "r1", QuestionType: types.QuestionRanking, Ranking: []string{"r1a"}},
	})
	require.ErrorIs(t, err, ErrInvalidRanking)

	stored, err := env.svc.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Responses)
	assert.True(t, stored.Accumulator.Empty())

	_, err = env.svc.RecordResponses(ctx, "missing", []types.ResponseEvent{warmupAnswer})
	assert.ErrorIs(t, err, database.ErrSessionNotFound)
}

func TestProfileIsComputedOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := completedSession(t, env.svc)

	acc := scoring.NewAccumulator()
	opt, err := env.catalog.Option("w1", "w1a")
	require.NoError(t, err)
	acc.AccumulateScores(opt.DimensionScores)
	want := profile.NewBuilder(archetype.NewMatcher(env.catalog)).WithClock(fixedClock).Build(acc)

	first, err := env.svc.Profile(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, want, first)

	// the stored profile wins over anything in the accumulator
	_, err = env.repo.UpdateSession(ctx, id, func(s *database.Session) error {
		s.Accumulator.AccumulateScores(types.DimensionScoreMap{types.Energy: 8})
		return nil
	})
	require.NoError(t, err)

	env.svc.forget(id)
	second, err := env.svc.Profile(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestApplyAdjustment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := completedSession(t, env.svc)

	original, err := env.svc.Profile(ctx, id)
	require.NoError(t, err)

	_, err = env.svc.ApplyAdjustment(ctx, id, "chat", `{"complete": true}`)
	assert.ErrorIs(t, err, ErrInvalidSource)

	_, err = env.svc.ApplyAdjustment(ctx, id, profile.SourceDeepDive, `{"complete": false}`)
	assert.ErrorIs(t, err, profile.ErrNoAdjustment)

	text := "```json\n{\"complete\": true, \"dimension_adjustments\": {\"energy\": +10}, \"confidence_boosts\": {\"energy\": 2}}\n```"
	adjusted, err := env.svc.ApplyAdjustment(ctx, id, profile.SourceDeepDive, text)
	require.NoError(t, err)

	energy, ok := adjusted.Score(types.Energy)
	require.True(t, ok)
	assert.Equal(t, 10, energy.Score)
	assert.Equal(t, 3, energy.Confidence)
	assert.Equal(t, original.CompletedAt, adjusted.CompletedAt)

	stored, err := env.svc.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, stored.ProfileV1)
	assert.Equal(t, original, *stored.ProfileV1)
	require.NotNil(t, stored.DeepDiveAdjustment)

	_, err = env.svc.ApplyAdjustment(ctx, id, profile.SourceDeepDive, text)
	assert.ErrorIs(t, err, ErrAdjustmentApplied)

	_, err = env.svc.ApplyAdjustment(ctx, id, profile.SourceReconciliation, text)
	assert.ErrorIs(t, err, feedback.ErrNotEnoughResponses)

	cached, err := env.svc.Profile(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, adjusted, cached)
}

func TestAdjustmentBeforeCompletion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sess, err := env.svc.Start(ctx)
	require.NoError(t, err)

	_, err = env.svc.ApplyAdjustment(ctx, sess.ID, profile.SourceDeepDive, `{"complete": true, "dimension_adjustments": {}}`)
	assert.ErrorIs(t, err, ErrProfileNotReady)
}

func TestFollowUp(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := completedSession(t, env.svc)

	fu, err := env.svc.FollowUp(ctx, id)
	require.NoError(t, err)

	// one answer touched every dimension once
	require.Len(t, fu.LowConfidence, types.DimensionCount)
	for _, s := range fu.LowConfidence {
		assert.Equal(t, 1, s.Confidence)
	}

	assert.Equal(t, fu.ArchetypeDistance > archetype.FitThreshold, fu.NeedsFitReview)
	if fu.NeedsFitReview {
		require.Len(t, fu.Alternatives, alternativeCount)
		for i, alt := range fu.Alternatives {
			assert.NotEqual(t, fu.ArchetypeID, alt.ArchetypeID)
			assert.GreaterOrEqual(t, alt.Distance, fu.ArchetypeDistance)
			if i > 0 {
				assert.GreaterOrEqual(t, alt.Distance, fu.Alternatives[i-1].Distance)
			}
		}
	} else {
		assert.Empty(t, fu.Alternatives)
	}
}

func TestFeedbackFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	pending, err := env.svc.Start(ctx)
	require.NoError(t, err)
	_, err = env.svc.FeedbackLink(ctx, pending.ID, LinkCreate)
	assert.ErrorIs(t, err, ErrProfileNotReady)

	id := completedSession(t, env.svc)

	_, err = env.svc.FeedbackLink(ctx, id, "share")
	assert.ErrorIs(t, err, ErrInvalidLinkAction)
	_, err = env.svc.FeedbackLink(ctx, id, LinkToggle)
	assert.ErrorIs(t, err, ErrNoFeedbackLink)

	link, err := env.svc.FeedbackLink(ctx, id, LinkCreate)
	require.NoError(t, err)
	assert.True(t, link.Active)
	require.NotEmpty(t, link.Token)

	again, err := env.svc.FeedbackLink(ctx, id, LinkCreate)
	require.NoError(t, err)
	assert.Equal(t, link.Token, again.Token)

	questions, err := env.svc.FeedbackQuestions(ctx, link.Token)
	require.NoError(t, err)
	assert.Len(t, questions, len(env.catalog.FeedbackQuestions()))

	closed, err := env.svc.FeedbackLink(ctx, id, LinkToggle)
	require.NoError(t, err)
	assert.False(t, closed.Active)
	_, err = env.svc.FeedbackQuestions(ctx, link.Token)
	assert.ErrorIs(t, err, ErrFeedbackClosed)
	_, err = env.svc.SubmitFeedback(ctx, link.Token, []types.FeedbackResponse{{QuestionID: "fb1", OptionID: "fb1a"}})
	assert.ErrorIs(t, err, ErrFeedbackClosed)

	_, err = env.svc.FeedbackLink(ctx, id, LinkToggle)
	require.NoError(t, err)

	_, err = env.svc.FeedbackQuestions(ctx, "no-such-token")
	assert.ErrorIs(t, err, database.ErrSessionNotFound)

	_, err = env.svc.SubmitFeedback(ctx, link.Token, []types.FeedbackResponse{{QuestionID: "fb1", OptionID: "nope"}})
	assert.ErrorIs(t, err, ErrEmptyFeedback)

	kept, err := env.svc.SubmitFeedback(ctx, link.Token, []types.FeedbackResponse{
		{QuestionID: "fb1", OptionID: "fb1b"},
		{QuestionID: "fb2", OptionID: "fb2a"},
		{QuestionID: "zz", OptionID: "zz1"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, kept)

	summary, err := env.svc.FeedbackScores(ctx, id)
	require.NoError(t, err)
	assert.False(t, summary.CanReconcile)

	_, err = env.svc.SubmitFeedback(ctx, link.Token, []types.FeedbackResponse{{QuestionID: "fb4", OptionID: "fb4a"}})
	require.NoError(t, err)

	summary, err = env.svc.FeedbackScores(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Responses)
	assert.Equal(t, 2, summary.Submissions)
	assert.True(t, summary.CanReconcile)
	require.Len(t, summary.Scores, types.DimensionCount)
	assert.Equal(t, 70, summary.Scores[types.Energy.Index()].Score)
	assert.Equal(t, 83, summary.Scores[types.Social.Index()].Score)

	// gaps need the self-report profile
	assert.Empty(t, summary.Gaps)
	self, err := env.svc.Profile(ctx, id)
	require.NoError(t, err)
	summary, err = env.svc.FeedbackScores(ctx, id)
	require.NoError(t, err)
	require.Len(t, summary.Gaps, types.DimensionCount)
	selfEnergy, _ := self.Score(types.Energy)
	assert.Equal(t, 70-selfEnergy.Score, summary.Gaps[types.Energy.Index()].Delta)

	_, err = env.svc.ApplyAdjustment(ctx, id, profile.SourceReconciliation,
		`{"complete": true, "dimension_adjustments": {"energy": 5}, "confidence_boosts": {}}`)
	require.NoError(t, err)

	_, err = env.svc.FeedbackQuestions(ctx, link.Token)
	assert.ErrorIs(t, err, ErrFeedbackClosed)
}

func TestShareAndDelete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := completedSession(t, env.svc)

	p, err := env.svc.Profile(ctx, id)
	require.NoError(t, err)

	token, err := env.svc.Share(ctx, id)
	require.NoError(t, err)

	shared, err := env.svc.Shared(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, p.ArchetypeID, shared.Archetype.ID)
	assert.Equal(t, fixedTime, shared.IssuedAt)
	for i, d := range shared.Dimensions {
		assert.Equal(t, p.Dimensions[i].Score, d.Score)
	}

	_, err = env.svc.Shared(ctx, "bogus")
	assert.ErrorIs(t, err, database.ErrSessionNotFound)

	require.NoError(t, env.svc.Delete(ctx, id))
	_, err = env.svc.Get(ctx, id)
	assert.ErrorIs(t, err, database.ErrSessionNotFound)
	_, err = env.svc.Profile(ctx, id)
	assert.ErrorIs(t, err, database.ErrSessionNotFound)
	_, err = env.svc.Shared(ctx, token)
	assert.ErrorIs(t, err, database.ErrSessionNotFound)
	assert.ErrorIs(t, env.svc.Delete(ctx, id), database.ErrSessionNotFound)
}

func TestPurgeInactiveEvictsCachedProfiles(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := completedSession(t, env.svc)

	_, err := env.svc.Profile(ctx, id)
	require.NoError(t, err)

	n, err := env.svc.PurgeInactive(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)
	_, err = env.svc.Profile(ctx, id)
	require.NoError(t, err)

	n, err = env.svc.PurgeInactive(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = env.svc.Profile(ctx, id)
	assert.ErrorIs(t, err, database.ErrSessionNotFound)
	_, err = env.svc.Get(ctx, id)
	assert.ErrorIs(t, err, database.ErrSessionNotFound)
}

func TestSignedShare(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.svc.WithSigner(profile.NewSigner([]byte("test-secret"), "core-view"))
	id := completedSession(t, env.svc)

	token, err := env.svc.Share(ctx, id)
	require.NoError(t, err)

	_, err = profile.DecodeToken(token)
	assert.ErrorIs(t, err, profile.ErrInvalidToken)

	shared, err := env.svc.Shared(ctx, token)
	require.NoError(t, err)
	assert.NotEmpty(t, shared.Archetype.ID)
}
