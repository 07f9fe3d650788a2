package notify

import (
	"context"
	"log/slog"

	"github.com/eventlyze/authflow"
)

// LogNotifier records reset notices in a log. The link is only written when
// RevealLink is set, which is meant for local development.
type LogNotifier struct {
	Logger     *slog.Logger
	RevealLink bool
}

var _ authflow.Notifier = (*LogNotifier)(nil)

func (n *LogNotifier) SendResetLink(ctx context.Context, notice authflow.ResetNotice) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}

	attrs := []any{
		"user_id", notice.UserID,
		"expires_at", notice.ExpiresAt,
	}
	if n.RevealLink {
		link := notice.Link
		if link == "" {
			link = notice.Token
		}
		attrs = append(attrs, "identifier", notice.Identifier, "link", link)
	}
	logger.InfoContext(ctx, "password reset link issued", attrs...)
	return nil
}
