package poller

import (
	"context"
	"log/slog"
	"unicode/utf8"

	"github.com/BTreeMap/MentionPipe/internal/models"
)

// ReplyPoster posts a reply threaded to a mention and returns its ID.
type ReplyPoster interface {
	PostReply(ctx context.Context, text, inReplyTo string) (string, error)
}

// Dispatcher validates and posts generated replies. A reply whose composed
// text exceeds the platform limit is skipped, never truncated: truncation
// risks corrupting the reply's meaning.
type Dispatcher struct {
	client ReplyPoster
}

// NewDispatcher creates a Dispatcher posting through client.
func NewDispatcher(client ReplyPoster) *Dispatcher {
	return &Dispatcher{client: client}
}

// Dispatch composes the reply with the author @handle prefix and posts it
// threaded to the mention. Returns the posted reply's platform ID on success.
// Oversized replies fail with models.ErrReplyTooLong before any platform
// call; platform rejections surface as *models.DispatchError. Either way the
// caller still marks the mention processed so the loop keeps moving.
func (d *Dispatcher) Dispatch(ctx context.Context, mention models.Mention, replyText string) (string, error) {
	composed := models.Reply{
		InReplyTo: mention.ID,
		Handle:    mention.AuthorHandle,
		Body:      replyText,
	}.Compose()

	if n := utf8.RuneCountInString(composed); n > models.MaxReplyLength {
		slog.Warn("Dispatcher.Dispatch: composed reply exceeds limit, skipping",
			"mention_id", mention.ID, "length", n, "limit", models.MaxReplyLength)
		return "", models.ErrReplyTooLong
	}

	id, err := d.client.PostReply(ctx, composed, mention.ID)
	if err != nil {
		slog.Error("Dispatcher.Dispatch: reply rejected", "error", err, "mention_id", mention.ID)
		return "", err
	}
	slog.Info("Dispatcher.Dispatch: reply posted", "mention_id", mention.ID, "reply_id", id)
	return id, nil
}
