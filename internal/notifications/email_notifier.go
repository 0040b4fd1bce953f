package notifications

import (
	"context"
	"fmt"
	"html"

	"github.com/geocoder89/expenseflow/internal/domain/expense"
	"gopkg.in/gomail.v2"
)

type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type mailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailNotifier mails decisions to the claim owner over SMTP.
type EmailNotifier struct {
	cfg    EmailConfig
	sender mailSender
}

func NewEmailNotifier(cfg EmailConfig) *EmailNotifier {
	return &EmailNotifier{
		cfg:    cfg,
		sender: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}
}

func (n *EmailNotifier) SendDecision(ctx context.Context, in DecisionInput) error {
	if in.OwnerEmail == "" {
		return fmt.Errorf("expense %s: owner has no email", in.ExpenseID)
	}

	m := n.message(in)

	// gomail has no context support; give up waiting when ctx ends
	done := make(chan error, 1)
	go func() { done <- n.sender.DialAndSend(m) }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send decision email: %w", err)
		}
		return nil
	}
}

func (n *EmailNotifier) message(in DecisionInput) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", m.FormatAddress(n.cfg.From, "Expense Reports"))
	m.SetHeader("To", in.OwnerEmail)
	m.SetHeader("Subject", subjectFor(in))
	m.SetBody("text/html", bodyFor(in))
	return m
}

func subjectFor(in DecisionInput) string {
	if in.Status == expense.StatusRejected {
		return "[Expense Reports] Your expense claim was returned"
	}
	return "[Expense Reports] Your expense claim was approved"
}

func bodyFor(in DecisionInput) string {
	name := html.EscapeString(in.OwnerName)

	if in.Status == expense.StatusRejected {
		return fmt.Sprintf(`<p>Hello %s,</p>
<p>Your expense claim of %d was returned for the following reason:</p>
<blockquote>%s</blockquote>
<p>Please update the claim and submit it again.</p>`,
			name, in.Amount, html.EscapeString(in.Reason))
	}

	return fmt.Sprintf(`<p>Hello %s,</p>
<p>Your expense claim of %d was approved.</p>`, name, in.Amount)
}
