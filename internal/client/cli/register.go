package cli

import (
	"context"
	"fmt"

	"github.com/iudanet/soundlines/internal/crypto"
)

func (c *Cli) runRegister(ctx context.Context, args []string) error {
	fs := c.newFlagSet("register")
	name := fs.String("name", "", "Unique device name")
	generate := fs.Bool("generate", false, "Generate a random device secret and print it")
	if err := fs.Parse(args); err != nil {
		return err
	}

	c.io.Println("=== Registration ===")
	c.io.Println()

	deviceName, err := c.deviceName(*name)
	if err != nil {
		return err
	}

	var secret string
	if *generate {
		secret, err = crypto.GenerateSecret()
		if err != nil {
			return fmt.Errorf("failed to generate secret: %w", err)
		}
	} else {
		secret, err = c.getSecret("Device secret (min 16 chars): ")
		if err != nil {
			return err
		}
	}

	c.io.Println("Registering device...")

	result, err := c.authService.Register(ctx, deviceName, secret)
	if err != nil {
		return err
	}

	c.io.Println()
	c.io.Println("✓ Registration successful!")
	c.io.Printf("Device ID: %s\n", result.DeviceID)
	c.io.Printf("Device name: %s\n", result.DeviceName)
	c.io.Println()
	if *generate {
		c.io.Printf("Device secret: %s\n", secret)
	}
	c.io.Println("⚠️  Keep the device secret: it is needed for every login.")
	c.io.Printf("Please run 'soundlines login --name %s' to start sending reports.\n", result.DeviceName)

	return nil
}
