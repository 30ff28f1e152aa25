package cli

import (
	"context"
	"fmt"

	"github.com/iudanet/soundlines/internal/aggregate"
)

func (c *Cli) runNearby(ctx context.Context, args []string) error {
	fs := c.newFlagSet("nearby")
	lat := fs.Float64("lat", 0, "Latitude in degrees")
	lng := fs.Float64("lng", 0, "Longitude in degrees")
	k := fs.Int("k", aggregate.DefaultK, "Number of neighbours")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *k <= 0 {
		return fmt.Errorf("--k must be positive")
	}

	token, err := c.authService.Token(ctx)
	if err != nil {
		return err
	}

	resp, err := c.reports.Nearby(ctx, token, *lat, *lng, *k)
	if err != nil {
		return fmt.Errorf("failed to query neighbours: %w", err)
	}

	if len(resp.Neighbours) == 0 {
		c.io.Println("No reports nearby.")
		return nil
	}

	c.io.Printf("%-12s %-12s %-8s %-8s %s\n", "LAT", "LNG", "SOUND", "LIGHT", "DISTANCE")
	for _, n := range resp.Neighbours {
		light := "-"
		if n.LightLevel != nil {
			light = fmt.Sprintf("%.3f", *n.LightLevel)
		}
		c.io.Printf("%-12.6f %-12.6f %-8.3f %-8s %.1f\n", n.Lat, n.Lng, n.SoundLevel, light, n.Distance)
	}
	c.io.Println()
	c.io.Printf("Mean sound level: %.3f, mean light level: %.3f\n", resp.SoundLevel, resp.Light)

	return nil
}
