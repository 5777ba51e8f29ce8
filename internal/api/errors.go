package api

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/ZanzyTHEbar/core-view/internal/catalog"
	"github.com/ZanzyTHEbar/core-view/internal/database"
	apperrors "github.com/ZanzyTHEbar/core-view/internal/errors"
	"github.com/ZanzyTHEbar/core-view/internal/feedback"
	"github.com/ZanzyTHEbar/core-view/internal/profile"
	"github.com/ZanzyTHEbar/core-view/internal/security"
	"github.com/ZanzyTHEbar/core-view/internal/session"
)

var validationErrors = []error{
	catalog.ErrUnknownQuestion,
	catalog.ErrUnknownOption,
	session.ErrQuestionTypeMismatch,
	session.ErrInvalidRanking,
	session.ErrInvalidResponse,
	session.ErrInvalidSource,
	session.ErrInvalidLinkAction,
	session.ErrEmptyFeedback,
	session.ErrEmptyResponseBatch,
	profile.ErrNoAdjustment,
	profile.ErrInvalidToken,
	security.ErrTextTooLong,
	security.ErrInvalidToken,
}

var conflictErrors = []error{
	session.ErrNotInProgress,
	session.ErrProfileNotReady,
	session.ErrAdjustmentApplied,
	session.ErrNoFeedbackLink,
	feedback.ErrNotEnoughResponses,
}

// toAppError maps domain errors onto HTTP categories. resource names what a
// not-found error refers to.
func toAppError(err error, resource string) *apperrors.AppError {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, database.ErrSessionNotFound):
		return apperrors.NewNotFoundError(resource, err)
	case errors.Is(err, catalog.ErrUnknownArchetype):
		return apperrors.NewNotFoundError("archetype", err)
	case errors.Is(err, session.ErrFeedbackClosed):
		return apperrors.NewGoneError("Feedback link is no longer active", err)
	}
	for _, target := range conflictErrors {
		if errors.Is(err, target) {
			return apperrors.NewConflictError(err.Error(), err)
		}
	}
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return apperrors.NewValidationError(err.Error(), err)
		}
	}
	return apperrors.ToAppError(err)
}

func respondError(c *gin.Context, err error, resource string) {
	appErr := toAppError(err, resource)
	apperrors.LogError(c, appErr)
	c.AbortWithStatusJSON(appErr.HTTPStatus, appErr)
}

func respondBindError(c *gin.Context, err error) {
	appErr := apperrors.NewValidationError("Invalid request body", err)
	apperrors.LogError(c, appErr)
	c.AbortWithStatusJSON(appErr.HTTPStatus, appErr)
}
