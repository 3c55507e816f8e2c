// Chatmirror is a daemon that mirrors a remote chat server's channels and
// messages into a local SQLite cache, keeping the cache consistent via
// periodic polling plus the server's live event feed.
//
// Usage:
//
//	chatmirror daemon [--config <path>] [--verbose]    # start polling + event listener
//	chatmirror sync-once [--config <path>] [--verbose] # single sync pass then exit
//	chatmirror status                                  # show config & cache state
//	chatmirror version                                 # print version
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatmirror/internal/chatserver"
	"chatmirror/internal/config"
	"chatmirror/internal/identity"
	"chatmirror/internal/store"
	syncp "chatmirror/internal/sync"
	"chatmirror/internal/telemetry"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) < 2 {
		return printUsage()
	}

	switch cmd := os.Args[1]; cmd {
	case "daemon":
		return runSync(os.Args[2:], true)
	case "sync-once":
		return runSync(os.Args[2:], false)
	case "status":
		return runStatus()
	case "version":
		fmt.Println("chatmirror", version)
		return nil
	default:
		return fmt.Errorf("unknown command %q — run 'chatmirror' for usage", cmd)
	}
}

func printUsage() error {
	fmt.Fprintln(os.Stderr, "chatmirror — mirror a chat server into a local cache")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  chatmirror daemon [--config ...]     Run as continuous daemon")
	fmt.Fprintln(os.Stderr, "  chatmirror sync-once [--config ...]  Single sync pass then exit")
	fmt.Fprintln(os.Stderr, "  chatmirror status                    Show config & cache state")
	fmt.Fprintln(os.Stderr, "  chatmirror version                   Print version")
	os.Exit(1)
	return nil // unreachable
}

// runSync wires the full stack and runs either the daemon loop or a single
// pass.
func runSync(args []string, daemon bool) error {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	cfgPath := fs.String("config", "", "path to config file")
	verbose := fs.Bool("verbose", false, "enable debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	path := *cfgPath
	if path == "" {
		var err error
		if path, err = config.DefaultPath(); err != nil {
			return err
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if cfg.Telemetry != nil {
		shutdown, err := telemetry.Setup(ctx, telemetry.Config{
			OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
			Insecure:     cfg.Telemetry.Insecure,
			ServiceName:  cfg.Telemetry.ServiceName,
			Headers:      cfg.Telemetry.Headers,
		})
		if err != nil {
			logger.Error("telemetry setup failed, continuing without export", "error", err)
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := shutdown(flushCtx); err != nil {
				logger.Error("telemetry shutdown", "error", err)
			}
		}()
	}

	cache, err := store.Open(cfg.DBPath(), logger)
	if err != nil {
		return err
	}
	defer func() { _ = cache.Close() }()

	ids := identity.New(cfg.UserIDPath())
	userID, err := ids.GetOrCreate()
	if err != nil {
		return err
	}
	logger.Debug("local identity ready", "user_id", userID)

	client := chatserver.NewClient(cfg.ServerURL, nil, logger)
	reconciler := syncp.NewReconciler(client, cache, logger)

	onError := func(err error) {
		logger.Warn("sync error surfaced", "error", err)
	}

	if !daemon {
		engine := syncp.NewEngine(reconciler, nil, cfg.PollInterval, onError, logger)
		return engine.RunOnce(ctx)
	}

	engine := syncp.NewEngine(reconciler, client, cfg.PollInterval, onError, logger)
	logger.Info("chatmirror daemon starting",
		"server", cfg.ServerURL,
		"poll_interval", cfg.PollInterval,
		"db", cfg.DBPath(),
	)
	if err := engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// runStatus reports whether the config and cache exist, without touching the
// network.
func runStatus() error {
	cfgPath, err := config.DefaultPath()
	if err != nil {
		return err
	}

	fmt.Println("config: ", describeFile(cfgPath))

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Println("         (not loadable — run with a valid config)")
		return nil
	}

	fmt.Println("server: ", cfg.ServerURL)
	fmt.Println("cache:  ", describeFile(cfg.DBPath()))
	fmt.Println("user id:", describeFile(cfg.UserIDPath()))
	return nil
}

func describeFile(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return path + " (missing)"
	}
	return fmt.Sprintf("%s (%d bytes)", path, info.Size())
}
