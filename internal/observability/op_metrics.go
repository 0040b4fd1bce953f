package observability

import (
	"context"
	"errors"
	"time"

	"github.com/geocoder89/expenseflow/internal/blob"
	"github.com/geocoder89/expenseflow/internal/domain/expense"
	"github.com/geocoder89/expenseflow/internal/identity"
)

// ObserveOp times fn under op and counts its error class. A nil Prom only runs fn.
func (p *Prom) ObserveOp(op string, fn func() error) error {
	if p == nil {
		return fn()
	}

	start := time.Now()
	err := fn()

	status := "ok"

	if err != nil {
		status = "error"
		p.OpErrors.WithLabelValues(op, ClassifyErr(err)).Inc()
	}
	p.OpDuration.WithLabelValues(op, status).Observe(time.Since(start).Seconds())
	return err
}

// ClassifyErr maps an error to a low-cardinality label.
func ClassifyErr(err error) string {
	var ue *blob.UploadError
	switch {
	case err == nil:
		return "none"
	case expense.IsValidation(err):
		return "validation"
	case expense.IsInvalidTransition(err):
		return "invalid_transition"
	case errors.Is(err, expense.ErrForbidden):
		return "forbidden"
	case errors.Is(err, expense.ErrNotFound):
		return "not_found"
	case errors.Is(err, expense.ErrVersionConflict):
		return "version_conflict"
	case errors.Is(err, identity.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.As(err, &ue):
		return "upload_" + ue.Code
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	default:
		return "unknown"
	}
}
