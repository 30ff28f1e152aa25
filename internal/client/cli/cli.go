package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/iudanet/soundlines/internal/client/auth"
	"github.com/iudanet/soundlines/internal/client/iocli"
	"github.com/iudanet/soundlines/internal/client/storage"
	"github.com/iudanet/soundlines/internal/client/sync"
	"github.com/iudanet/soundlines/internal/models"
	"github.com/iudanet/soundlines/pkg/api"
)

// SecretEnv переменная окружения с секретом устройства
const SecretEnv = "SOUNDLINES_DEVICE_SECRET"

// Secrets источники секрета устройства, заданные флагами
type Secrets struct {
	FromFile string
	FromArgs string
}

// ReportAPI серверные операции с отчётами
type ReportAPI interface {
	SubmitReport(ctx context.Context, token string, req api.ReportRequest) (*api.ReportResponse, error)
	Nearby(ctx context.Context, token string, lat, lng float64, k int) (*api.NearbyResponse, error)
}

// WorldSync репликация мира (sync.Service)
type WorldSync interface {
	Sync(ctx context.Context, accessToken string) (*sync.Result, error)
	Follow(ctx context.Context, accessToken string, onFrame func(*sync.Result)) error
	Status(ctx context.Context) (int64, map[models.EntityType]int, error)
}

// Cli выполняет команды клиента
type Cli struct {
	io          iocli.IO
	reports     ReportAPI
	authService auth.Service
	syncService WorldSync
	metadata    storage.MetadataStorage
	secrets     Secrets
}

// New создает CLI
func New(
	io iocli.IO,
	reports ReportAPI,
	authService auth.Service,
	syncService WorldSync,
	metadata storage.MetadataStorage,
	secrets Secrets,
) *Cli {
	return &Cli{
		io:          io,
		reports:     reports,
		authService: authService,
		syncService: syncService,
		metadata:    metadata,
		secrets:     secrets,
	}
}

// getSecret retrieves device secret from various sources with priority:
// 1. Environment variable SOUNDLINES_DEVICE_SECRET
// 2. File specified in secrets.FromFile
// 3. Command-line parameter secrets.FromArgs
// 4. Interactive prompt (fallback)
func (c *Cli) getSecret(prompt string) (string, error) {
	// Priority 1: Environment variable
	if envSecret := os.Getenv(SecretEnv); envSecret != "" {
		return envSecret, nil
	}

	// Priority 2: File
	if c.secrets.FromFile != "" {
		content, err := os.ReadFile(c.secrets.FromFile)
		if err != nil {
			return "", fmt.Errorf("failed to read secret file: %w", err)
		}
		secret := strings.TrimSpace(string(content))
		if secret == "" {
			return "", fmt.Errorf("secret file is empty")
		}
		return secret, nil
	}

	// Priority 3: CLI parameter
	if c.secrets.FromArgs != "" {
		return c.secrets.FromArgs, nil
	}

	// Priority 4: Interactive prompt (fallback)
	secret, err := c.io.ReadPassword(prompt)
	if err != nil {
		return "", fmt.Errorf("failed to read secret: %w", err)
	}
	if secret == "" {
		return "", fmt.Errorf("secret cannot be empty")
	}
	return secret, nil
}

// PrintUsage печатает справку клиента
func PrintUsage(io iocli.IO) {
	io.Println("Soundlines phone client")
	io.Println()
	io.Println("Usage:")
	io.Println("  soundlines [OPTIONS] COMMAND [ARGS]")
	io.Println()
	io.Println("Options:")
	io.Println("  --version             Show version information")
	io.Println("  --server URL          Server URL (default: http://localhost:8080)")
	io.Println("  --db PATH             Path to local database (default: soundlines-client.db)")
	io.Println("  --secret SECRET       Device secret (not recommended, use env var or file)")
	io.Println("  --secret-file PATH    Path to file containing device secret")
	io.Println()
	io.Println("Device Secret Priority (highest to lowest):")
	io.Printf("  1. %s environment variable\n", SecretEnv)
	io.Println("  2. --secret-file (file path)")
	io.Println("  3. --secret (command line)")
	io.Println("  4. Interactive prompt (fallback)")
	io.Println()
	io.Println("Commands:")
	io.Println("  register [--name NAME]                          Register this phone")
	io.Println("  login [--name NAME]                             Get an access token")
	io.Println("  logout                                          Delete local session")
	io.Println("  status                                          Show session and replica status")
	io.Println("  report --lat LAT --lng LNG --sound S [--light L] Submit a sensor report")
	io.Println("  nearby --lat LAT --lng LNG [--k K]              Show nearest reports")
	io.Println("  sync                                            Fetch world snapshot or diff")
	io.Println("  watch                                           Follow world changes live")
	io.Println()
	io.Println("Examples:")
	io.Printf("  export %s='0123456789abcdef'\n", SecretEnv)
	io.Println("  soundlines register --name pixel-7")
	io.Println("  soundlines login --name pixel-7")
	io.Println("  soundlines report --lat 55.7512 --lng 37.6184 --sound 0.42")
	io.Println("  soundlines --server https://example.com sync")
}
