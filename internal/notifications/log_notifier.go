package notifications

import (
	"context"
	"log/slog"
)

type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) SendDecision(ctx context.Context, in DecisionInput) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	n.log.InfoContext(ctx, "notification.expense_decision",
		"expense_id", in.ExpenseID,
		"email", in.OwnerEmail,
		"status", in.Status,
		"reason", in.Reason,
	)
	return nil
}
