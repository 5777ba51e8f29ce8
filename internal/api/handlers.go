// Package api exposes the scoring pipeline over HTTP.
package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ZanzyTHEbar/core-view/internal/catalog"
	"github.com/ZanzyTHEbar/core-view/internal/privacy"
	"github.com/ZanzyTHEbar/core-view/internal/profile"
	"github.com/ZanzyTHEbar/core-view/internal/security"
	"github.com/ZanzyTHEbar/core-view/internal/session"
	"github.com/ZanzyTHEbar/core-view/internal/types"
)

// maxBatchSize bounds how many events one request may record. A full
// self-report is well under this.
const maxBatchSize = 64

type responsesRequest struct {
	Responses []types.ResponseEvent `json:"responses" binding:"required,min=1,dive"`
}

type adjustmentRequest struct {
	Source profile.Source `json:"source" binding:"required"`
	Text   string         `json:"text" binding:"required"`
}

type feedbackLinkRequest struct {
	Action session.LinkAction `json:"action" binding:"required"`
}

type feedbackRequest struct {
	Responses []types.FeedbackResponse `json:"responses" binding:"required,min=1,dive"`
}

// Handlers holds the route handlers
type Handlers struct {
	sessions *session.Service
	catalog  *catalog.Catalog
	privacy  *privacy.PrivacyService
	security *security.SecurityMiddleware
}

// NewHandlers wires handlers to the session pipeline
func NewHandlers(sessions *session.Service, c *catalog.Catalog, ps *privacy.PrivacyService, sm *security.SecurityMiddleware) *Handlers {
	return &Handlers{sessions: sessions, catalog: c, privacy: ps, security: sm}
}

func (h *Handlers) Dimensions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"dimensions": h.catalog.Dimensions()})
}

func (h *Handlers) Archetypes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"archetypes": h.catalog.Archetypes()})
}

func (h *Handlers) Archetype(c *gin.Context) {
	a, err := h.catalog.Archetype(c.Param("id"))
	if err != nil {
		respondError(c, err, "archetype")
		return
	}
	c.JSON(http.StatusOK, a)
}

// Questions returns the self-report bank in wizard order
func (h *Handlers) Questions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"version":   h.catalog.Version(),
		"questions": h.catalog.Questions(),
	})
}

func (h *Handlers) StartSession(c *gin.Context) {
	sess, err := h.sessions.Start(c.Request.Context())
	if err != nil {
		respondError(c, err, "session")
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":          sess.ID,
		"currentStep": sess.CurrentStep,
		"startedAt":   sess.StartedAt,
	})
}

func (h *Handlers) GetSession(c *gin.Context) {
	sess, err := h.sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "session")
		return
	}
	c.JSON(http.StatusOK, sess)
}

// RecordResponses applies a batch of wizard answers. Free text is sanitized
// before it is stored.
func (h *Handlers) RecordResponses(c *gin.Context) {
	var req responsesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	if len(req.Responses) > maxBatchSize {
		respondError(c, fmt.Errorf("%w: at most %d responses per request", session.ErrInvalidResponse, maxBatchSize), "session")
		return
	}

	for i := range req.Responses {
		if req.Responses[i].Text == "" {
			continue
		}
		text, err := h.security.SanitizeText(req.Responses[i].Text)
		if err != nil {
			respondError(c, err, "session")
			return
		}
		req.Responses[i].Text = text
	}

	sess, err := h.sessions.RecordResponses(c.Request.Context(), c.Param("id"), req.Responses)
	if err != nil {
		respondError(c, err, "session")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":          sess.ID,
		"currentStep": sess.CurrentStep,
		"recorded":    len(req.Responses),
		"total":       len(sess.Responses),
	})
}

func (h *Handlers) AdvanceStep(c *gin.Context) {
	sess, err := h.sessions.AdvanceStep(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "session")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":          sess.ID,
		"status":      sess.Status,
		"currentStep": sess.CurrentStep,
		"completedAt": sess.CompletedAt,
	})
}

func (h *Handlers) Profile(c *gin.Context) {
	p, err := h.sessions.Profile(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "session")
		return
	}
	c.JSON(http.StatusOK, p)
}

// ApplyAdjustment takes the raw completion text of a follow-up conversation
func (h *Handlers) ApplyAdjustment(c *gin.Context) {
	var req adjustmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	text, err := h.security.SanitizeText(req.Text)
	if err != nil {
		respondError(c, err, "session")
		return
	}

	p, err := h.sessions.ApplyAdjustment(c.Request.Context(), c.Param("id"), req.Source, text)
	if err != nil {
		respondError(c, err, "session")
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handlers) FollowUp(c *gin.Context) {
	f, err := h.sessions.FollowUp(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "session")
		return
	}
	c.JSON(http.StatusOK, f)
}

func (h *Handlers) FeedbackLink(c *gin.Context) {
	var req feedbackLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	link, err := h.sessions.FeedbackLink(c.Request.Context(), c.Param("id"), req.Action)
	if err != nil {
		respondError(c, err, "session")
		return
	}
	c.JSON(http.StatusOK, link)
}

func (h *Handlers) FeedbackQuestions(c *gin.Context) {
	questions, err := h.sessions.FeedbackQuestions(c.Request.Context(), c.Param("token"))
	if err != nil {
		respondError(c, err, "feedback link")
		return
	}
	c.JSON(http.StatusOK, gin.H{"questions": questions})
}

func (h *Handlers) SubmitFeedback(c *gin.Context) {
	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	kept, err := h.sessions.SubmitFeedback(c.Request.Context(), c.Param("token"), req.Responses)
	if err != nil {
		respondError(c, err, "feedback link")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"accepted": kept})
}

func (h *Handlers) FeedbackScores(c *gin.Context) {
	summary, err := h.sessions.FeedbackScores(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "session")
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *Handlers) Share(c *gin.Context) {
	token, err := h.sessions.Share(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "session")
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (h *Handlers) Shared(c *gin.Context) {
	shared, err := h.sessions.Shared(c.Request.Context(), c.Param("token"))
	if err != nil {
		respondError(c, err, "share link")
		return
	}
	c.JSON(http.StatusOK, shared)
}

// DeleteSession removes the session, its profile and all feedback about it
func (h *Handlers) DeleteSession(c *gin.Context) {
	id := c.Param("id")
	if err := h.privacy.DeleteSessionData(c.Request.Context(), id); err != nil {
		respondError(c, err, "session")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "session data deleted",
		"id":      privacy.AnonymizeID(id),
	})
}

func (h *Handlers) PrivacyPolicy(c *gin.Context) {
	info, err := h.privacy.RetentionInfo(c.Request.Context())
	if err != nil {
		respondError(c, err, "privacy policy")
		return
	}
	c.JSON(http.StatusOK, info)
}

// validParam rejects malformed path parameters before they reach storage
func validParam(name string, validate func(string) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := validate(c.Param(name)); err != nil {
			respondError(c, err, name)
			return
		}
		c.Next()
	}
}
