package cli

import (
	"context"
	"flag"
	"fmt"

	"github.com/iudanet/soundlines/internal/client/stamp"
	"github.com/iudanet/soundlines/internal/validation"
	"github.com/iudanet/soundlines/pkg/api"
)

func (c *Cli) runReport(ctx context.Context, args []string) error {
	fs := c.newFlagSet("report")
	lat := fs.Float64("lat", 0, "Latitude in degrees")
	lng := fs.Float64("lng", 0, "Longitude in degrees")
	sound := fs.Float64("sound", 0, "Sound level in [0,1]")
	light := fs.Float64("light", 0, "Light level in [0,1]")
	if err := fs.Parse(args); err != nil {
		return err
	}

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	for _, required := range []string{"lat", "lng", "sound"} {
		if !set[required] {
			return fmt.Errorf("--%s is required", required)
		}
	}

	if err := validation.ValidateLevel("sound", *sound); err != nil {
		return err
	}
	req := api.ReportRequest{
		Lat:        lat,
		Lng:        lng,
		SoundLevel: sound,
	}
	if set["light"] {
		if err := validation.ValidateLevel("light", *light); err != nil {
			return err
		}
		req.LightLevel = light
	}

	token, err := c.authService.Token(ctx)
	if err != nil {
		return err
	}

	last, err := c.metadata.GetStamp(ctx)
	if err != nil {
		return fmt.Errorf("failed to read report stamp: %w", err)
	}
	clock := stamp.New(last)
	req.Stamp = clock.Tick()

	resp, err := c.reports.SubmitReport(ctx, token, req)
	if err != nil {
		return fmt.Errorf("failed to submit report: %w", err)
	}

	// Сервер мог назначить stamp больше нашего
	clock.Observe(resp.Stamp)
	if err := c.metadata.SaveStamp(ctx, clock.Value()); err != nil {
		return fmt.Errorf("failed to save report stamp: %w", err)
	}

	c.io.Printf("Report %s (stamp %d)\n", resp.Outcome, resp.Stamp)
	if resp.Outcome == "stale" {
		c.io.Println("⚠️  A newer report from this phone is already stored.")
	}
	c.io.Printf("Neighbours: %d\n", len(resp.Locations))
	c.io.Printf("Mean sound level: %.3f\n", resp.SoundLevel)
	c.io.Printf("Mean light level: %.3f\n", resp.Light)

	return nil
}
