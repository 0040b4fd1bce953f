package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/geocoder89/expenseflow/internal/blob"
	"github.com/geocoder89/expenseflow/internal/domain/expense"
	"github.com/geocoder89/expenseflow/internal/domain/user"
	"github.com/geocoder89/expenseflow/internal/http/middlewares"
	"github.com/geocoder89/expenseflow/internal/identity"
	"github.com/geocoder89/expenseflow/internal/service"
	"github.com/geocoder89/expenseflow/internal/session"
	"github.com/gin-gonic/gin"
)

type APIError struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	RequestID string      `json:"requestId,omitempty"`
	Details   interface{} `json:"details,omitempty"`
}

func requestIDFrom(ctx *gin.Context) string {
	v, ok := ctx.Get(string(middlewares.CtxRequestID))

	if ok {
		s, ok := v.(string)
		if ok && s != "" {
			return s
		}
	}

	// fallback header
	return ctx.GetHeader("X-Request-Id")
}

func RespondError(ctx *gin.Context, status int, code, message string, details interface{}) {
	ctx.JSON(status, gin.H{
		"error": APIError{
			Code:      code,
			Message:   message,
			RequestID: requestIDFrom(ctx),
			Details:   details,
		},
	})
}

func RespondBadRequest(ctx *gin.Context, message string, details interface{}) {
	RespondError(ctx, http.StatusBadRequest, "invalid_request", message, details)
}

func RespondUnauthorized(ctx *gin.Context, code, message string) {
	RespondError(ctx, http.StatusUnauthorized, code, message, nil)
}

func RespondForbidden(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusForbidden, "forbidden", message, nil)
}

func RespondNotFound(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusNotFound, "not_found", message, nil)
}

func RespondInternal(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusInternalServerError, "internal_error", message, nil)
}

func RespondConflict(ctx *gin.Context, code, message string) {
	RespondError(ctx, http.StatusConflict, code, message, nil)
}

// RespondDomainError maps the error taxonomy of the domain and service
// packages onto HTTP statuses. Unrecognized errors are logged and reported
// as 500 without leaking their text.
func RespondDomainError(ctx *gin.Context, log *slog.Logger, err error) {
	var (
		ve  *expense.ValidationError
		te  *expense.InvalidTransitionError
		ue  *blob.UploadError
		mbe *http.MaxBytesError
	)

	switch {
	case errors.As(err, &ve):
		RespondError(ctx, http.StatusBadRequest, "validation_failed", "Some fields need attention", gin.H{"fields": ve.Fields})
	case errors.As(err, &ue):
		status := http.StatusBadRequest
		if ue.Temporary() {
			status = http.StatusInternalServerError
		}
		RespondError(ctx, status, ue.Code, ue.Message, nil)
	case errors.As(err, &mbe):
		RespondError(ctx, http.StatusRequestEntityTooLarge, "payload_too_large", "Request body is too large", nil)
	case errors.Is(err, identity.ErrInvalidCredentials):
		RespondUnauthorized(ctx, "invalid_credentials", "Invalid email or password")
	case errors.Is(err, session.ErrNotSignedIn):
		RespondUnauthorized(ctx, "unauthorized", "Sign in to continue")
	case errors.As(err, &te):
		RespondConflict(ctx, "invalid_transition", te.Error())
	case errors.Is(err, expense.ErrForbidden):
		RespondForbidden(ctx, "Your role does not permit this action")
	case errors.Is(err, expense.ErrNotFound):
		RespondNotFound(ctx, "Expense not found")
	case errors.Is(err, user.ErrNotFound):
		RespondNotFound(ctx, "User not found")
	case errors.Is(err, session.ErrSwitchDisabled):
		RespondNotFound(ctx, "Not found")
	case errors.Is(err, expense.ErrVersionConflict):
		RespondConflict(ctx, "version_conflict", "The expense was changed by someone else; reload and try again")
	case errors.Is(err, service.ErrSubmissionInProgress):
		RespondConflict(ctx, "submission_in_progress", "A submission is already in progress")
	default:
		if log == nil {
			log = slog.Default()
		}
		log.ErrorContext(ctx.Request.Context(), "request failed",
			"route", ctx.FullPath(),
			"request_id", requestIDFrom(ctx),
			"err", err,
		)
		RespondInternal(ctx, "Something went wrong")
	}
}
