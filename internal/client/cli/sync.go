package cli

import (
	"context"
	"fmt"

	"github.com/iudanet/soundlines/internal/client/sync"
)

func (c *Cli) runSync(ctx context.Context) error {
	c.io.Println("=== Synchronization ===")

	token, err := c.authService.Token(ctx)
	if err != nil {
		return err
	}

	result, err := c.syncService.Sync(ctx, token)
	if err != nil {
		return fmt.Errorf("synchronization failed: %w", err)
	}

	c.io.Println()
	c.io.Println("✓ Synchronization completed successfully!")
	if result.Resynced {
		c.io.Println("⚠️  Local world was out of date and has been replaced by a snapshot.")
	}
	c.io.Printf("Mode:    %s\n", result.Mode)
	c.io.Printf("Applied: %d\n", result.Applied)
	c.io.Printf("Seq:     %d\n", result.Seq)

	return nil
}

// runWatch применяет поток изменений до отмены ctx (Ctrl+C)
func (c *Cli) runWatch(ctx context.Context) error {
	token, err := c.authService.Token(ctx)
	if err != nil {
		return err
	}

	c.io.Println("Watching world changes, press Ctrl+C to stop...")

	err = c.syncService.Follow(ctx, token, func(r *sync.Result) {
		c.io.Printf("seq %d: %d change(s) applied\n", r.Seq, r.Applied)
	})
	if err != nil {
		return fmt.Errorf("watch failed: %w", err)
	}

	c.io.Println("Stopped.")
	return nil
}
