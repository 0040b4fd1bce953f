package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/geocoder89/expenseflow/internal/blob"
	"github.com/geocoder89/expenseflow/internal/domain/expense"
	"github.com/geocoder89/expenseflow/internal/domain/user"
	"github.com/geocoder89/expenseflow/internal/http/middlewares"
	"github.com/geocoder89/expenseflow/internal/report"
	"github.com/geocoder89/expenseflow/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

// ExpenseService is the part of service.Expenses the HTTP layer drives.
type ExpenseService interface {
	Submit(ctx context.Context, actor user.User, guard service.SubmitGuard, sub service.Submission) (expense.Expense, error)
	Resubmit(ctx context.Context, actor user.User, guard service.SubmitGuard, id string, sub service.Submission) (expense.Expense, error)
	Approve(ctx context.Context, actor user.User, id string, version int) (expense.Expense, error)
	Reject(ctx context.Context, actor user.User, id, reason string, version int) (expense.Expense, error)
	Get(ctx context.Context, actor user.User, id string) (expense.Expense, error)
	List(ctx context.Context, actor user.User, f expense.ListFilter) ([]expense.Expense, error)
	ApprovalQueue(ctx context.Context, actor user.User) (report.ApprovalQueue, error)
	Dashboard(ctx context.Context, actor user.User) (report.Dashboard, error)
	AdminSummary(ctx context.Context, actor user.User, f report.AdminFilter) (report.AdminSummary, error)
	ExportXLSX(ctx context.Context, actor user.User, f report.AdminFilter, w io.Writer) error
	Users(ctx context.Context, actor user.User) ([]user.User, error)
	UploadReceipt(ctx context.Context, actor user.User, u blob.Upload) (blob.Stored, error)
}

type ExpensesHandler struct {
	svc ExpenseService
	log *slog.Logger
	now func() time.Time
}

func NewExpensesHandler(svc ExpenseService, log *slog.Logger) *ExpensesHandler {
	if log == nil {
		log = slog.Default()
	}
	return &ExpensesHandler{svc: svc, log: log, now: time.Now}
}

// ExpenseRequest is the create/resubmit body, sent as JSON or as multipart
// form fields alongside a "receipt" file.
type ExpenseRequest struct {
	Date        string           `json:"date" form:"date"`
	Category    expense.Category `json:"category" form:"category"`
	Amount      int64            `json:"amount" form:"amount"`
	Description string           `json:"description" form:"description"`
	ReceiptURL  string           `json:"receiptUrl" form:"receiptUrl"`
	Version     int              `json:"version" form:"version"`
}

type DecisionRequest struct {
	Reason  string `json:"reason"`
	Version int    `json:"version"`
}

const receiptField = "receipt"

func (h *ExpensesHandler) Create(ctx *gin.Context) {
	actor, s, ok := h.caller(ctx)
	if !ok {
		return
	}

	sub, ok := h.bindSubmission(ctx)
	if !ok {
		return
	}

	e, err := h.svc.Submit(ctx.Request.Context(), actor, s, sub)
	if err != nil {
		RespondDomainError(ctx, h.log, err)
		return
	}

	ctx.JSON(http.StatusCreated, e)
}

func (h *ExpensesHandler) Update(ctx *gin.Context) {
	actor, s, ok := h.caller(ctx)
	if !ok {
		return
	}

	sub, ok := h.bindSubmission(ctx)
	if !ok {
		return
	}

	e, err := h.svc.Resubmit(ctx.Request.Context(), actor, s, ctx.Param("id"), sub)
	if err != nil {
		RespondDomainError(ctx, h.log, err)
		return
	}

	ctx.JSON(http.StatusOK, e)
}

func (h *ExpensesHandler) Get(ctx *gin.Context) {
	actor, ok := h.actor(ctx)
	if !ok {
		return
	}

	e, err := h.svc.Get(ctx.Request.Context(), actor, ctx.Param("id"))
	if err != nil {
		RespondDomainError(ctx, h.log, err)
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, e)
}

func (h *ExpensesHandler) List(ctx *gin.Context) {
	actor, ok := h.actor(ctx)
	if !ok {
		return
	}

	f, err := listFilterFromQuery(ctx)
	if err != nil {
		RespondDomainError(ctx, h.log, err)
		return
	}

	items, err := h.svc.List(ctx.Request.Context(), actor, f)
	if err != nil {
		RespondDomainError(ctx, h.log, err)
		return
	}
	if items == nil {
		items = []expense.Expense{}
	}

	RespondJSONWithETag(ctx, http.StatusOK, gin.H{
		"items": items,
		"count": len(items),
	})
}

func (h *ExpensesHandler) Approve(ctx *gin.Context) {
	actor, ok := h.actor(ctx)
	if !ok {
		return
	}

	var req DecisionRequest
	if ctx.Request.ContentLength != 0 && !BindJSON(ctx, &req) {
		return
	}

	e, err := h.svc.Approve(ctx.Request.Context(), actor, ctx.Param("id"), req.Version)
	if err != nil {
		RespondDomainError(ctx, h.log, err)
		return
	}

	ctx.JSON(http.StatusOK, e)
}

func (h *ExpensesHandler) Reject(ctx *gin.Context) {
	actor, ok := h.actor(ctx)
	if !ok {
		return
	}

	var req DecisionRequest
	if !BindJSON(ctx, &req) {
		return
	}

	e, err := h.svc.Reject(ctx.Request.Context(), actor, ctx.Param("id"), req.Reason, req.Version)
	if err != nil {
		RespondDomainError(ctx, h.log, err)
		return
	}

	ctx.JSON(http.StatusOK, e)
}

func (h *ExpensesHandler) Approvals(ctx *gin.Context) {
	actor, ok := h.actor(ctx)
	if !ok {
		return
	}

	q, err := h.svc.ApprovalQueue(ctx.Request.Context(), actor)
	if err != nil {
		RespondDomainError(ctx, h.log, err)
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, q)
}

func (h *ExpensesHandler) Dashboard(ctx *gin.Context) {
	actor, ok := h.actor(ctx)
	if !ok {
		return
	}

	d, err := h.svc.Dashboard(ctx.Request.Context(), actor)
	if err != nil {
		RespondDomainError(ctx, h.log, err)
		return
	}

	ctx.JSON(http.StatusOK, d)
}

// Upload stores a receipt without creating a claim. The returned URL can be
// sent later as receiptUrl.
func (h *ExpensesHandler) Upload(ctx *gin.Context) {
	actor, ok := h.actor(ctx)
	if !ok {
		return
	}

	u, err := readUpload(ctx, receiptField)
	if err != nil {
		RespondDomainError(ctx, h.log, uploadBodyError(err))
		return
	}
	if u == nil {
		u = &blob.Upload{}
	}

	stored, err := h.svc.UploadReceipt(ctx.Request.Context(), actor, *u)
	if err != nil {
		RespondDomainError(ctx, h.log, err)
		return
	}

	ctx.JSON(http.StatusCreated, stored)
}

func (h *ExpensesHandler) actor(ctx *gin.Context) (user.User, bool) {
	u, ok := middlewares.UserFromContext(ctx)
	if !ok {
		RespondUnauthorized(ctx, "unauthorized", "Sign in to continue")
	}
	return u, ok
}

func (h *ExpensesHandler) caller(ctx *gin.Context) (user.User, service.SubmitGuard, bool) {
	u, ok := h.actor(ctx)
	if !ok {
		return user.User{}, nil, false
	}

	s, ok := middlewares.SessionFromContext(ctx)
	if !ok {
		RespondInternal(ctx, "Session unavailable")
		return user.User{}, nil, false
	}
	return u, s, true
}

func (h *ExpensesHandler) bindSubmission(ctx *gin.Context) (service.Submission, bool) {
	var req ExpenseRequest

	if isMultipart(ctx) {
		if err := ctx.ShouldBindWith(&req, binding.FormMultipart); err != nil {
			h.respondBindError(ctx, uploadBodyError(err))
			return service.Submission{}, false
		}
	} else if !BindJSON(ctx, &req) {
		return service.Submission{}, false
	}

	sub := service.Submission{
		Form: expense.Form{
			Date:        req.Date,
			Category:    req.Category,
			Amount:      req.Amount,
			Description: req.Description,
		},
		ReceiptURL: req.ReceiptURL,
		Version:    req.Version,
	}

	if isMultipart(ctx) {
		u, err := readUpload(ctx, receiptField)
		if err != nil {
			RespondDomainError(ctx, h.log, uploadBodyError(err))
			return service.Submission{}, false
		}
		sub.Receipt = u
	}

	return sub, true
}

func (h *ExpensesHandler) respondBindError(ctx *gin.Context, err error) {
	var (
		tooLarge *http.MaxBytesError
		ue       *blob.UploadError
	)
	if errors.As(err, &ue) || errors.As(err, &tooLarge) {
		RespondDomainError(ctx, h.log, err)
		return
	}
	RespondBadRequest(ctx, "Invalid request body", parseBindError(err))
}

// uploadBodyError reports a multipart body cut off by the body limit as an
// oversized receipt, the same answer a file just over MaxSize gets.
func uploadBodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return blob.TooLarge(err)
	}
	return err
}

func isMultipart(ctx *gin.Context) bool {
	return strings.HasPrefix(ctx.ContentType(), "multipart/form-data")
}

// readUpload returns nil when the request carries no file under field.
func readUpload(ctx *gin.Context, field string) (*blob.Upload, error) {
	fh, err := ctx.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, nil
		}
		return nil, err
	}

	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	// one byte past the limit is enough to reject oversized files
	data, err := io.ReadAll(io.LimitReader(f, blob.MaxSize+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}

	return &blob.Upload{
		FileName:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Data:        data,
	}, nil
}

func listFilterFromQuery(ctx *gin.Context) (expense.ListFilter, error) {
	f := expense.ListFilter{
		Status:   expense.Status(ctx.Query("status")),
		Category: expense.Category(ctx.Query("category")),
		From:     ctx.Query("from"),
		To:       ctx.Query("to"),
		SortBy:   expense.SortKey(ctx.Query("sort")),
	}

	var fields []expense.FieldError
	if f.Status != "" && !f.Status.Valid() {
		fields = append(fields, expense.FieldError{Field: "status", Rule: "oneof", Message: "is not a known status"})
	}
	if f.Category != "" && !f.Category.Valid() {
		fields = append(fields, expense.FieldError{Field: "category", Rule: "category", Message: expense.ValidationMessage("category", "")})
	}
	for name, v := range map[string]string{"from": f.From, "to": f.To} {
		if v == "" {
			continue
		}
		if _, err := time.Parse(expense.DateLayout, v); err != nil {
			fields = append(fields, expense.FieldError{Field: name, Rule: "datetime", Param: expense.DateLayout, Message: expense.ValidationMessage("datetime", expense.DateLayout)})
		}
	}
	switch f.SortBy {
	case "", expense.SortBySubmitted, expense.SortByDate:
	default:
		fields = append(fields, expense.FieldError{Field: "sort", Rule: "oneof", Param: "submitted date", Message: expense.ValidationMessage("oneof", "submitted date")})
	}

	if len(fields) > 0 {
		return f, &expense.ValidationError{Fields: fields}
	}
	return f, nil
}
