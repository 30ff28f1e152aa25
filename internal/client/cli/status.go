package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/soundlines/internal/client/auth"
	"github.com/iudanet/soundlines/internal/models"
)

func (c *Cli) runStatus(ctx context.Context) error {
	c.io.Println("=== Status ===")
	c.io.Println()

	session, err := c.authService.Session(ctx)
	switch {
	case errors.Is(err, auth.ErrNotAuthenticated):
		c.io.Println("Session: Not authenticated")
		c.io.Println("Run 'soundlines login' to authenticate.")
	case err != nil:
		return fmt.Errorf("failed to check authentication: %w", err)
	default:
		expiresAt := time.Unix(session.ExpiresAt, 0)
		c.io.Println("Session: Authenticated")
		c.io.Printf("Device: %s (%s)\n", session.DeviceName, session.DeviceID)
		c.io.Printf("Token expires: %s\n", expiresAt.Format(time.RFC3339))
		if remaining := time.Until(expiresAt); remaining > 0 {
			c.io.Printf("Time remaining: %s\n", remaining.Round(time.Second))
		} else {
			c.io.Println("⚠️  Token has expired. Please login again.")
		}
	}

	stamp, err := c.metadata.GetStamp(ctx)
	if err != nil {
		return fmt.Errorf("failed to read report stamp: %w", err)
	}
	c.io.Println()
	c.io.Printf("Last report stamp: %d\n", stamp)

	seq, counts, err := c.syncService.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to read world replica: %w", err)
	}
	if counts == nil {
		c.io.Println("World: not synchronized yet. Run 'soundlines sync'.")
		return nil
	}
	c.io.Printf("World seq: %d\n", seq)
	c.io.Printf("Regions: %d, trees: %d, animals: %d, noise cells: %d\n",
		counts[models.EntityRegion],
		counts[models.EntityTree],
		counts[models.EntityAnimal],
		counts[models.EntityNoise])

	return nil
}
