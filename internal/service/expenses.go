// Package service runs every expense operation the HTTP layer exposes. It
// consults the authorization gate itself, so a caller that skips the route
// middleware still cannot act outside its role.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/geocoder89/expenseflow/internal/authz"
	"github.com/geocoder89/expenseflow/internal/blob"
	"github.com/geocoder89/expenseflow/internal/cache"
	"github.com/geocoder89/expenseflow/internal/domain/expense"
	"github.com/geocoder89/expenseflow/internal/domain/user"
	"github.com/geocoder89/expenseflow/internal/lifecycle"
	"github.com/geocoder89/expenseflow/internal/notifications"
	"github.com/geocoder89/expenseflow/internal/observability"
	"github.com/geocoder89/expenseflow/internal/report"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrSubmissionInProgress is returned while the same client still has a
// submission outstanding.
var ErrSubmissionInProgress = errors.New("a submission is already in progress")

type Repository interface {
	Create(ctx context.Context, actor lifecycle.Actor, form expense.Form, receipt string) (expense.Expense, error)
	Update(ctx context.Context, actor lifecycle.Actor, id string, form expense.Form, receipt string, expectedVersion int) (expense.Expense, error)
	Transition(ctx context.Context, actor lifecycle.Actor, id string, action lifecycle.Action, p lifecycle.Payload, expectedVersion int) (expense.Expense, error)
	Get(ctx context.Context, id string) (expense.Expense, error)
	List(ctx context.Context, f expense.ListFilter) ([]expense.Expense, error)
}

type Directory interface {
	ByID(ctx context.Context, id string) (user.User, error)
	All(ctx context.Context) []user.User
}

// SubmitGuard serializes submissions from one client.
type SubmitGuard interface {
	BeginSubmit() (release func(), ok bool)
}

type Deps struct {
	Repo     Repository
	Blobs    blob.Store
	Users    Directory
	Notifier notifications.Notifier // optional
	Prom     *observability.Prom    // optional
	Log      *slog.Logger
	Now      func() time.Time

	// ReceiptURLPrefix is the only prefix accepted for pre-uploaded receipt URLs.
	ReceiptURLPrefix string
	CacheTTL         time.Duration
}

type Expenses struct {
	repo     Repository
	blobs    blob.Store
	users    Directory
	notifier notifications.Notifier
	prom     *observability.Prom
	log      *slog.Logger
	now      func() time.Time
	tracer   trace.Tracer

	receiptPrefix string

	dashboards *cache.Cache[report.Dashboard]
	summaries  *cache.Cache[report.AdminSummary]
}

func NewExpenses(d Deps) *Expenses {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.ReceiptURLPrefix == "" {
		d.ReceiptURLPrefix = blob.DefaultURLPrefix
	}

	return &Expenses{
		repo:          d.Repo,
		blobs:         d.Blobs,
		users:         d.Users,
		notifier:      d.Notifier,
		prom:          d.Prom,
		log:           d.Log,
		now:           d.Now,
		tracer:        otel.Tracer("github.com/geocoder89/expenseflow/internal/service"),
		receiptPrefix: strings.TrimRight(d.ReceiptURLPrefix, "/") + "/",
		dashboards:    cache.New[report.Dashboard](d.CacheTTL),
		summaries:     cache.New[report.AdminSummary](d.CacheTTL),
	}
}

// Submission is a create or resubmit request. Receipt is a file to upload
// now; ReceiptURL references one uploaded earlier. Version > 0 makes a
// resubmit conditional on the stored version.
type Submission struct {
	Form       expense.Form
	Receipt    *blob.Upload
	ReceiptURL string
	Version    int
}

func (s *Expenses) Submit(ctx context.Context, actor user.User, guard SubmitGuard, sub Submission) (expense.Expense, error) {
	ctx, span := s.tracer.Start(ctx, "expenses.submit", trace.WithAttributes(attribute.String("user.id", actor.ID)))
	defer span.End()

	var out expense.Expense
	err := s.prom.ObserveOp("expenses.submit", func() error {
		if !authz.Allowed(actor.Role, authz.SubmitExpense) {
			return fmt.Errorf("submit: %w", expense.ErrForbidden)
		}

		receipt, err := s.prepare(ctx, actor, guard, &sub)
		if err != nil {
			return err
		}
		defer receipt.release()

		out, err = s.repo.Create(ctx, lifecycle.ActorFor(actor), sub.Form, receipt.url)
		return err
	})

	s.finish(ctx, span, lifecycle.ActionCreate, err)
	if err != nil {
		return expense.Expense{}, err
	}

	s.log.InfoContext(ctx, "expense submitted", "expense_id", out.ID, "user_id", actor.ID, "amount", out.Amount)
	return out, nil
}

// Resubmit edits a draft or rejected claim owned by actor and returns it to pending.
func (s *Expenses) Resubmit(ctx context.Context, actor user.User, guard SubmitGuard, id string, sub Submission) (expense.Expense, error) {
	ctx, span := s.tracer.Start(ctx, "expenses.resubmit", trace.WithAttributes(
		attribute.String("user.id", actor.ID),
		attribute.String("expense.id", id),
	))
	defer span.End()

	var out expense.Expense
	err := s.prom.ObserveOp("expenses.resubmit", func() error {
		if !authz.Allowed(actor.Role, authz.EditOwnExpense) {
			return fmt.Errorf("resubmit: %w", expense.ErrForbidden)
		}

		// check ownership and state before anything is uploaded
		current, err := s.repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if current.OwnerID != actor.ID {
			return fmt.Errorf("resubmit: %w", expense.ErrForbidden)
		}
		if !lifecycle.Editable(current.Status) {
			return &expense.InvalidTransitionError{From: current.Status, Action: string(lifecycle.ActionResubmit)}
		}
		if sub.Version > 0 && sub.Version != current.Version {
			return expense.ErrVersionConflict
		}

		receipt, err := s.prepare(ctx, actor, guard, &sub)
		if err != nil {
			return err
		}
		defer receipt.release()

		out, err = s.repo.Update(ctx, lifecycle.ActorFor(actor), id, sub.Form, receipt.url, sub.Version)
		return err
	})

	s.finish(ctx, span, lifecycle.ActionResubmit, err)
	if err != nil {
		return expense.Expense{}, err
	}

	s.log.InfoContext(ctx, "expense resubmitted", "expense_id", out.ID, "user_id", actor.ID, "version", out.Version)
	return out, nil
}

func (s *Expenses) Approve(ctx context.Context, actor user.User, id string, version int) (expense.Expense, error) {
	return s.decide(ctx, actor, id, lifecycle.ActionApprove, lifecycle.Payload{}, version)
}

func (s *Expenses) Reject(ctx context.Context, actor user.User, id, reason string, version int) (expense.Expense, error) {
	return s.decide(ctx, actor, id, lifecycle.ActionReject, lifecycle.Payload{Reason: reason}, version)
}

func (s *Expenses) decide(ctx context.Context, actor user.User, id string, action lifecycle.Action, p lifecycle.Payload, version int) (expense.Expense, error) {
	ctx, span := s.tracer.Start(ctx, "expenses."+string(action), trace.WithAttributes(
		attribute.String("user.id", actor.ID),
		attribute.String("expense.id", id),
	))
	defer span.End()

	var out expense.Expense
	err := s.prom.ObserveOp("expenses."+string(action), func() error {
		if !authz.Allowed(actor.Role, authz.ApproveReject) {
			return fmt.Errorf("%s: %w", action, expense.ErrForbidden)
		}

		var err error
		out, err = s.repo.Transition(ctx, lifecycle.ActorFor(actor), id, action, p, version)
		return err
	})

	s.finish(ctx, span, action, err)
	if err != nil {
		return expense.Expense{}, err
	}

	s.log.InfoContext(ctx, "expense decided", "expense_id", out.ID, "action", action, "user_id", actor.ID)
	s.notifyDecision(ctx, out)
	return out, nil
}

// Get returns one claim. Employees only see their own; anything else is
// reported as not found.
func (s *Expenses) Get(ctx context.Context, actor user.User, id string) (expense.Expense, error) {
	if !authz.Allowed(actor.Role, authz.ViewList) {
		return expense.Expense{}, expense.ErrForbidden
	}

	e, err := s.repo.Get(ctx, id)
	if err != nil {
		return expense.Expense{}, err
	}
	if !seesAll(actor) && e.OwnerID != actor.ID {
		return expense.Expense{}, expense.ErrNotFound
	}
	return e, nil
}

// List applies f within actor's visibility: employees are pinned to their own claims.
func (s *Expenses) List(ctx context.Context, actor user.User, f expense.ListFilter) ([]expense.Expense, error) {
	if !authz.Allowed(actor.Role, authz.ViewList) {
		return nil, expense.ErrForbidden
	}

	if !seesAll(actor) {
		f.OwnerID = actor.ID
	}

	var out []expense.Expense
	err := s.prom.ObserveOp("expenses.list", func() error {
		var err error
		out, err = s.repo.List(ctx, f)
		return err
	})
	return out, err
}

func (s *Expenses) ApprovalQueue(ctx context.Context, actor user.User) (report.ApprovalQueue, error) {
	if !authz.Allowed(actor.Role, authz.ApproveReject) {
		return report.ApprovalQueue{}, expense.ErrForbidden
	}

	items, err := s.repo.List(ctx, expense.ListFilter{SortBy: expense.SortBySubmitted})
	if err != nil {
		return report.ApprovalQueue{}, err
	}
	return report.BuildApprovalQueue(items), nil
}

func (s *Expenses) Dashboard(ctx context.Context, actor user.User) (report.Dashboard, error) {
	if !authz.Allowed(actor.Role, authz.ViewDashboard) {
		return report.Dashboard{}, expense.ErrForbidden
	}

	now := s.now()
	f := expense.ListFilter{}
	scope := "all"
	if !seesAll(actor) {
		f.OwnerID = actor.ID
		scope = "user:" + actor.ID
	}

	key := scope + ":" + now.Format("2006-01")
	return s.dashboards.GetOrCompute(key, func() (report.Dashboard, error) {
		items, err := s.repo.List(ctx, f)
		if err != nil {
			return report.Dashboard{}, err
		}
		return report.BuildDashboard(items, now), nil
	})
}

func (s *Expenses) AdminSummary(ctx context.Context, actor user.User, f report.AdminFilter) (report.AdminSummary, error) {
	if !authz.Allowed(actor.Role, authz.ViewAdminPanel) {
		return report.AdminSummary{}, expense.ErrForbidden
	}

	key := f.Department + "|" + string(f.Status)
	return s.summaries.GetOrCompute(key, func() (report.AdminSummary, error) {
		items, err := s.repo.List(ctx, expense.ListFilter{})
		if err != nil {
			return report.AdminSummary{}, err
		}
		return report.BuildAdminSummary(items, s.users.All(ctx), f), nil
	})
}

// ExportXLSX writes every claim matching f, without the summary row limit.
func (s *Expenses) ExportXLSX(ctx context.Context, actor user.User, f report.AdminFilter, w io.Writer) error {
	if !authz.Allowed(actor.Role, authz.ViewAdminPanel) {
		return expense.ErrForbidden
	}

	_, span := s.tracer.Start(ctx, "expenses.export")
	defer span.End()

	items, err := s.repo.List(ctx, expense.ListFilter{})
	if err != nil {
		return err
	}
	return report.WriteXLSX(w, report.FilterRows(items, s.users.All(ctx), f))
}

// Users lists the directory for the admin panel.
func (s *Expenses) Users(ctx context.Context, actor user.User) ([]user.User, error) {
	if !authz.Allowed(actor.Role, authz.ViewAdminPanel) {
		return nil, expense.ErrForbidden
	}
	return s.users.All(ctx), nil
}

// UploadReceipt stores a receipt on its own, for clients that upload before
// submitting the form.
func (s *Expenses) UploadReceipt(ctx context.Context, actor user.User, u blob.Upload) (blob.Stored, error) {
	if !authz.Allowed(actor.Role, authz.SubmitExpense) {
		return blob.Stored{}, expense.ErrForbidden
	}
	return s.upload(ctx, u)
}

// InvalidateCaches drops every cached summary.
func (s *Expenses) InvalidateCaches() {
	s.dashboards.Clear()
	s.summaries.Clear()
}

type preparedReceipt struct {
	url     string
	release func()
}

// prepare validates the form, takes the submit guard and uploads the receipt.
// On success the caller must call release once the repository write is done.
func (s *Expenses) prepare(ctx context.Context, actor user.User, guard SubmitGuard, sub *Submission) (preparedReceipt, error) {
	if err := expense.ValidateForm(&sub.Form); err != nil {
		return preparedReceipt{}, err
	}

	url := strings.TrimSpace(sub.ReceiptURL)
	if url != "" && !strings.HasPrefix(url, s.receiptPrefix) {
		return preparedReceipt{}, expense.NewFieldError("receipt", "receipt_url", "must reference an uploaded receipt")
	}

	release := func() {}
	if guard != nil {
		r, ok := guard.BeginSubmit()
		if !ok {
			return preparedReceipt{}, ErrSubmissionInProgress
		}
		release = r
	}

	if sub.Receipt != nil {
		stored, err := s.upload(ctx, *sub.Receipt)
		if err != nil {
			release()
			return preparedReceipt{}, err
		}
		url = stored.URL
	}

	return preparedReceipt{url: url, release: release}, nil
}

func (s *Expenses) upload(ctx context.Context, u blob.Upload) (blob.Stored, error) {
	ctx, span := s.tracer.Start(ctx, "receipts.upload", trace.WithAttributes(
		attribute.String("file.type", u.ContentType),
		attribute.Int64("file.size", u.Size),
	))
	defer span.End()

	stored, err := s.blobs.Put(ctx, u)

	result := "ok"
	if err != nil {
		result = "error"
		var ue *blob.UploadError
		if errors.As(err, &ue) {
			result = ue.Code
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, result)
		s.log.WarnContext(ctx, "receipt upload failed", "code", result, "err", err)
	}
	if s.prom != nil {
		s.prom.Uploads.WithLabelValues(result).Inc()
	}

	return stored, err
}

func (s *Expenses) finish(ctx context.Context, span trace.Span, action lifecycle.Action, err error) {
	result := "ok"
	if err != nil {
		result = observability.ClassifyErr(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, result)
	}
	if s.prom != nil {
		s.prom.Transitions.WithLabelValues(string(action), result).Inc()
	}

	if err == nil {
		s.InvalidateCaches()
		return
	}

	var ite *expense.InvalidTransitionError
	if errors.As(err, &ite) {
		s.log.WarnContext(ctx, "invalid expense transition", "from", ite.From, "action", ite.Action)
	}
}

func (s *Expenses) notifyDecision(ctx context.Context, e expense.Expense) {
	if s.notifier == nil {
		return
	}

	owner, err := s.users.ByID(ctx, e.OwnerID)
	if err != nil {
		s.log.WarnContext(ctx, "decision notification skipped", "expense_id", e.ID, "err", err)
		return
	}

	err = s.notifier.SendDecision(ctx, notifications.DecisionInput{
		ExpenseID:  e.ID,
		OwnerEmail: owner.Email,
		OwnerName:  owner.Name,
		Status:     e.Status,
		Amount:     e.Amount,
		Reason:     e.RejectionReason,
	})

	result := "ok"
	if err != nil {
		result = "error"
		s.log.WarnContext(ctx, "decision notification failed", "expense_id", e.ID, "err", err)
	}
	if s.prom != nil {
		s.prom.Notifications.WithLabelValues(result).Inc()
	}
}

func seesAll(u user.User) bool {
	return authz.Allowed(u.Role, authz.ApproveReject) || authz.Allowed(u.Role, authz.ViewAdminPanel)
}
