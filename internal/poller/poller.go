// Package poller drives the mention-reply cycle: it fetches mentions newer
// than the stored cursor, generates a reply for each, dispatches the replies,
// and checkpoints the cursor. The loop is the single logical worker of the
// process; failures in one mention never block the rest of the batch.
package poller

import (
	"context"
	"log/slog"
	"sort"

	"github.com/BTreeMap/MentionPipe/internal/models"
)

// MentionFetcher fetches mentions of a user newer than sinceID.
type MentionFetcher interface {
	Mentions(ctx context.Context, userID, sinceID string) ([]models.Mention, error)
}

// Poller fetches mention batches and normalizes them to a stable processing
// order (oldest first), so the cursor always advances to the true maximum ID
// observed in a batch.
type Poller struct {
	client MentionFetcher
	userID string
}

// NewPoller creates a Poller for the bot user identified by userID.
func NewPoller(client MentionFetcher, userID string) *Poller {
	return &Poller{client: client, userID: userID}
}

// Poll fetches mentions newer than cursor, oldest first. An empty cursor
// fetches only the most recent page; history is never backfilled, so a fresh
// deployment cannot cause a reply storm. Transient failures surface as
// *models.TransientFetchError and carry no partial batch.
func (p *Poller) Poll(ctx context.Context, cursor string) ([]models.Mention, error) {
	batch, err := p.client.Mentions(ctx, p.userID, cursor)
	if err != nil {
		return nil, err
	}
	sort.Slice(batch, func(i, j int) bool {
		return models.CompareIDs(batch[i].ID, batch[j].ID) < 0
	})
	slog.Debug("Poller.Poll: batch normalized", "count", len(batch), "cursor", cursor)
	return batch, nil
}
