package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hpungsan/shelf/internal/bus"
	"github.com/hpungsan/shelf/internal/config"
	"github.com/hpungsan/shelf/internal/db"
	"github.com/hpungsan/shelf/internal/logger"
	"github.com/hpungsan/shelf/internal/mcp"
	"github.com/hpungsan/shelf/internal/ops"
	"github.com/hpungsan/shelf/internal/rdb"
	"github.com/hpungsan/shelf/internal/store"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"create": true, "show": true, "list": true, "update": true, "delete": true,
	"reorder": true, "move": true,
	"add-child": true, "children": true, "update-child": true, "toggle": true,
	"delete-child": true, "reorder-child": true,
	"reconcile": true, "audit": true, "purge": true, "spaces": true,
	"serve": true, "help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode() bool {
	if len(os.Args) < 2 {
		return false // No args → MCP server
	}
	arg := os.Args[1]
	if cliCommands[arg] {
		return true
	}
	if arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" {
		return true
	}
	return false
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
       _          _  __
   ___| |__   ___| |/ _|
  / __| '_ \ / _ \ |  _|
  \__ \ | | |  __/ | |
  |___/_| |_|\___|_|_|

  Notes, task lists and lists in ordered spaces

  Usage: shelf <command> [options]
         shelf --help

  MCP server mode requires piped input.`)
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Handle --help/--version before DB init (no DB needed)
	if isHelpOrVersion() {
		app := newCLIApp(nil, nil, nil)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if !isCLIMode() && len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'shelf --help' for usage.\n")
		os.Exit(1)
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("could not determine home directory: %w", err)
	}
	baseDir := filepath.Join(homeDir, ".shelf")

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("could not determine working directory: %w", err)
	}
	cfg, err := config.LoadWithRepo(baseDir, cwd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer log.Sync()

	if unknown := mcp.ValidateDisabledTools(cfg.DisabledTools); len(unknown) > 0 {
		log.Warn("ignoring unknown disabled tools", "tools", unknown)
	}
	if unknown := mcp.ValidateDisabledTypes(cfg.DisabledTypes); len(unknown) > 0 {
		log.Warn("ignoring unknown disabled types", "types", unknown)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	coord, closeBackend, err := openCoordinator(ctx, baseDir, cfg, log)
	if err != nil {
		return err
	}
	defer closeBackend()
	defer coord.Close()

	// CLI mode: known subcommand
	if isCLIMode() {
		app := newCLIApp(coord, cfg, log)
		return app.Run(os.Args)
	}

	// MCP server mode (default)
	return mcp.Run(coord, cfg, Version)
}

// openBackend opens the store selected by cfg.
func openBackend(baseDir string, cfg *config.Config, log *logger.Logger) (store.Backend, error) {
	switch cfg.Backend {
	case config.BackendPostgres:
		backend, err := rdb.OpenPostgres(cfg.PostgresDSN, rdb.Options{
			Logger:       log,
			MaxOpenConns: cfg.DBMaxOpenConns,
			MaxIdleConns: cfg.DBMaxIdleConns,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres: %w", err)
		}
		return backend, nil
	default:
		backend, err := db.Open(baseDir, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		return backend, nil
	}
}

// openCoordinator wires the backend, the optional Redis forwarder and the
// coordinator. The returned func closes the backend.
func openCoordinator(ctx context.Context, baseDir string, cfg *config.Config, log *logger.Logger) (*ops.Coordinator, func(), error) {
	backend, err := openBackend(baseDir, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	closeBackend := func() {
		if err := backend.Close(); err != nil {
			log.Warn("closing backend", "error", err)
		}
	}

	s, err := backend.ForOwner(cfg.Owner)
	if err != nil {
		closeBackend()
		return nil, nil, err
	}

	var fwd bus.Forwarder
	if cfg.RedisAddr != "" {
		fwd, err = bus.NewRedisForwarder(log, cfg.RedisAddr, cfg.RedisChannel)
		if err != nil {
			closeBackend()
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
	}

	coord := ops.New(s, ops.Options{
		Logger:    log,
		Owner:     cfg.Owner,
		Step:      cfg.OrderStep,
		Retry:     ops.RetryFromConfig(cfg),
		Forwarder: fwd,
	})
	if err := coord.Listen(ctx); err != nil {
		coord.Close()
		closeBackend()
		return nil, nil, fmt.Errorf("failed to listen for changes: %w", err)
	}
	return coord, closeBackend, nil
}
