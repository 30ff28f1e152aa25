package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
)

// ErrUnknownCommand команда не распознана
var ErrUnknownCommand = errors.New("unknown command")

// Run выполняет команду args[0] с аргументами args[1:]
func (c *Cli) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		PrintUsage(c.io)
		return fmt.Errorf("%w: no command given", ErrUnknownCommand)
	}

	command, rest := args[0], args[1:]
	switch command {
	case "register":
		return c.runRegister(ctx, rest)
	case "login":
		return c.runLogin(ctx, rest)
	case "logout":
		return c.runLogout(ctx)
	case "status":
		return c.runStatus(ctx)
	case "report":
		return c.runReport(ctx, rest)
	case "nearby":
		return c.runNearby(ctx, rest)
	case "sync":
		return c.runSync(ctx)
	case "watch":
		return c.runWatch(ctx)
	case "help":
		PrintUsage(c.io)
		return nil
	default:
		PrintUsage(c.io)
		return fmt.Errorf("%w: %s", ErrUnknownCommand, command)
	}
}

// newFlagSet создает набор флагов подкоманды с выводом в IO
func (c *Cli) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.io)
	return fs
}

// deviceName берёт имя из флага или спрашивает его
func (c *Cli) deviceName(name string) (string, error) {
	if name != "" {
		return name, nil
	}
	name, err := c.io.ReadInput("Device name: ")
	if err != nil {
		return "", fmt.Errorf("failed to read device name: %w", err)
	}
	return name, nil
}
