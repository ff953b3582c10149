package ops

import (
	"context"
	"fmt"
	"time"

	"github.com/hpungsan/shelf/internal/errors"
	"github.com/hpungsan/shelf/internal/store"
)

// PurgeInput contains parameters for the Purge operation.
type PurgeInput struct {
	OlderThanDays int // only purge rows deleted more than N days ago; 0 purges all
}

// PurgeOutput contains the result of the Purge operation.
type PurgeOutput struct {
	Purged  int    `json:"purged"`
	Message string `json:"message"`
}

// Purge permanently deletes soft-deleted entries and children.
func (c *Coordinator) Purge(ctx context.Context, input PurgeInput) (*PurgeOutput, error) {
	if input.OlderThanDays < 0 {
		return nil, errors.NewInvalidRequest("older_than_days must not be negative")
	}
	olderThan := time.Duration(input.OlderThanDays) * 24 * time.Hour

	var count int
	c.mu.Lock()
	done := c.submit(ctx, store.OpPurge, func(ctx context.Context) error {
		var err error
		count, err = c.store.Purge(ctx, olderThan)
		return err
	})
	c.mu.Unlock()
	if err := <-done; err != nil {
		return nil, err
	}

	return &PurgeOutput{
		Purged:  count,
		Message: formatPurgeMessage(count, input.OlderThanDays),
	}, nil
}

// formatPurgeMessage creates a human-readable message for the purge result.
func formatPurgeMessage(count, olderThanDays int) string {
	if count == 0 {
		return "No deleted rows to purge"
	}

	rowWord := "row"
	if count > 1 {
		rowWord = "rows"
	}

	msg := fmt.Sprintf("Permanently deleted %d %s", count, rowWord)
	if olderThanDays > 0 {
		msg += fmt.Sprintf(" (deleted more than %d days ago)", olderThanDays)
	}
	return msg
}
