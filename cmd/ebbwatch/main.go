package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ebbwatch/internal/app"
	"github.com/ternarybob/ebbwatch/internal/common"
)

// configPaths is a custom flag type that allows multiple -config flags
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles  configPaths // Multiple -config flags supported
	feedURL      = flag.String("feed-url", "", "EBB page URL (overrides config)")
	webhookURL   = flag.String("webhook-url", "", "Slack incoming webhook URL (overrides config)")
	logLevel     = flag.String("log-level", "", "Log level (overrides config)")
	runOnce      = flag.Bool("once", false, "Run a single poll cycle and exit")
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("EBBWatch version %s\n", common.GetFullVersion())
		os.Exit(0)
	}

	// Startup sequence:
	// 1. Load config (defaults -> file1 -> file2 -> ... -> env)
	// 2. Apply CLI overrides (highest priority)
	// 3. Validate
	// 4. Initialize logger and print banner
	if len(configFiles) == 0 {
		if _, err := os.Stat("ebbwatch.toml"); err == nil {
			configFiles = append(configFiles, "ebbwatch.toml")
		} else if _, err := os.Stat("deployments/local/ebbwatch.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/ebbwatch.toml")
		}
	}

	config, err := common.LoadFromFiles(configFiles...)
	if err != nil {
		arbor.NewLogger().Fatal().Strs("paths", configFiles).Err(err).Msg("Failed to load configuration files")
		os.Exit(1)
	}

	common.ApplyFlagOverrides(config, *feedURL, *webhookURL, *logLevel)

	if err := config.Validate(); err != nil {
		arbor.NewLogger().Fatal().Strs("paths", configFiles).Err(err).Msg("Configuration is invalid")
		os.Exit(1)
	}

	logger := common.InitLogger(config)
	common.InstallCrashHandler(common.ResolveLogDir(config))
	defer common.RecoverWithCrashFile()

	common.PrintBanner(common.GetVersion())

	logger.Info().
		Strs("config_files", configFiles).
		Str("operator", config.Operator.Name).
		Str("time_zone", config.Operator.TimeZone).
		Str("log_level", config.Logging.Level).
		Msg("Application configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
		os.Exit(1)
	}
	defer application.Close()

	if *runOnce {
		result, err := application.RunOnce(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("Poll cycle failed")
			application.Close()
			os.Exit(1)
		}
		logger.Info().
			Int("delivered", result.Delivered).
			Int("failed", result.Failed).
			Msg("Single poll cycle finished")
		return
	}

	if err := application.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start application")
		os.Exit(1)
	}

	logger.Info().Msg("Polling started - Press Ctrl+C to stop")

	<-ctx.Done()

	logger.Info().Msg("Interrupt signal received, shutting down")
}
