package handlers

import (
	"bytes"
	"net/http"

	"github.com/geocoder89/expenseflow/internal/domain/expense"
	"github.com/geocoder89/expenseflow/internal/report"
	"github.com/gin-gonic/gin"
)

func adminFilterFromQuery(ctx *gin.Context) (report.AdminFilter, error) {
	f := report.AdminFilter{
		Department: ctx.Query("department"),
		Status:     expense.Status(ctx.Query("status")),
	}
	if f.Status != "" && !f.Status.Valid() {
		return f, expense.NewFieldError("status", "oneof", "is not a known status")
	}
	return f, nil
}

func (h *ExpensesHandler) AdminSummary(ctx *gin.Context) {
	actor, ok := h.actor(ctx)
	if !ok {
		return
	}

	f, err := adminFilterFromQuery(ctx)
	if err != nil {
		RespondDomainError(ctx, h.log, err)
		return
	}

	sum, err := h.svc.AdminSummary(ctx.Request.Context(), actor, f)
	if err != nil {
		RespondDomainError(ctx, h.log, err)
		return
	}

	ctx.JSON(http.StatusOK, sum)
}

// Export streams the filtered claims as an xlsx workbook. The workbook is
// built in memory first so a failure can still be reported as JSON.
func (h *ExpensesHandler) Export(ctx *gin.Context) {
	actor, ok := h.actor(ctx)
	if !ok {
		return
	}

	f, err := adminFilterFromQuery(ctx)
	if err != nil {
		RespondDomainError(ctx, h.log, err)
		return
	}

	var buf bytes.Buffer
	if err := h.svc.ExportXLSX(ctx.Request.Context(), actor, f, &buf); err != nil {
		RespondDomainError(ctx, h.log, err)
		return
	}

	ctx.Header("Content-Disposition", `attachment; filename="`+report.ExportFileName(h.now())+`"`)
	ctx.Data(http.StatusOK, report.XLSXMime, buf.Bytes())
}

func (h *ExpensesHandler) Users(ctx *gin.Context) {
	actor, ok := h.actor(ctx)
	if !ok {
		return
	}

	users, err := h.svc.Users(ctx.Request.Context(), actor)
	if err != nil {
		RespondDomainError(ctx, h.log, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"items": users,
		"count": len(users),
	})
}
