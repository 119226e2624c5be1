// Command sponsorctl is the operator tool for the sponsorship workbook:
// header provisioning, manual finalize, admin tokens and PayFast signatures.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/noah-isme/sponsor-api/internal/app"
	"github.com/noah-isme/sponsor-api/internal/config"
	"github.com/noah-isme/sponsor-api/internal/obs"
	"github.com/noah-isme/sponsor-api/internal/sheet"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "sponsorctl",
		Short:         "Operate the sponsorship order workbook",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("workbook", "", "Workbook path (defaults to WORKBOOK_PATH)")

	rootCmd.AddCommand(headersCmd())
	rootCmd.AddCommand(finalizeCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(payfastCmd())
	rootCmd.AddCommand(seedCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// env bundles the wiring a command needs; close releases the workbook and
// Redis connection.
type env struct {
	cfg   *config.Config
	deps  *app.Dependencies
	close func()
}

func openEnv(cmd *cobra.Command) (*env, error) {
	if path, _ := cmd.Flags().GetString("workbook"); strings.TrimSpace(path) != "" {
		if err := os.Setenv("WORKBOOK_PATH", path); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := obs.NewLogger("console", cfg.LogLevel).With().Str("component", "sponsorctl").Logger()

	book, err := sheet.OpenWorkbook(cfg.WorkbookPath)
	if err != nil {
		return nil, err
	}
	rdb, err := optionalRedis(cmd.Context(), cfg.RedisURL, logger)
	if err != nil {
		_ = book.Close()
		return nil, err
	}
	closeAll := func() {
		if rdb != nil {
			_ = rdb.Close()
		}
		if err := book.Close(); err != nil {
			logger.Error().Err(err).Msg("close workbook")
		}
	}
	return &env{cfg: cfg, deps: app.New(cfg, logger, book, rdb, nil), close: closeAll}, nil
}

func optionalRedis(ctx context.Context, url string, logger zerolog.Logger) (*redis.Client, error) {
	if strings.TrimSpace(url) == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("redis unreachable, continuing without locks and cache")
		_ = client.Close()
		return nil, nil
	}
	return client, nil
}
