package cli

import (
	"context"
	"time"
)

func (c *Cli) runLogin(ctx context.Context, args []string) error {
	fs := c.newFlagSet("login")
	name := fs.String("name", "", "Device name used at registration")
	if err := fs.Parse(args); err != nil {
		return err
	}

	c.io.Println("=== Login ===")
	c.io.Println()

	deviceName, err := c.deviceName(*name)
	if err != nil {
		return err
	}

	secret, err := c.getSecret("Device secret: ")
	if err != nil {
		return err
	}

	c.io.Println("Authenticating...")

	session, err := c.authService.Login(ctx, deviceName, secret)
	if err != nil {
		return err
	}

	c.io.Println()
	c.io.Println("✓ Login successful!")
	c.io.Printf("Device: %s (%s)\n", session.DeviceName, session.DeviceID)
	c.io.Printf("Token expires: %s\n", time.Unix(session.ExpiresAt, 0).Format(time.RFC3339))

	return nil
}
