package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pfrederiksen/stuwo-offers/internal/config"
	"github.com/pfrederiksen/stuwo-offers/internal/logger"
	"github.com/pfrederiksen/stuwo-offers/internal/scraper"
	"github.com/pfrederiksen/stuwo-offers/internal/storage"
	"github.com/spf13/cobra"
)

const (
	ExitSuccess   = 0
	ExitError     = 1
	ExitNewOffers = 2
)

// ErrOffersChanged is returned with --exit-code when offers were added or removed
var ErrOffersChanged = errors.New("offers changed")

var (
	flagConfigFile string
	flagFormat     string
	flagVerbose    bool
	flagDryRun     bool
	flagExitCode   bool
	flagSort       string
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stuwo-offers",
		Short: "Check for new private accommodation offers",
		Long: `A CLI tool to check the Studentenwerk München private accommodation offers.
Compares the current offers with the ones cached by the previous run,
prints the new and removed offer IDs and updates the cache.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runCheck,
	}

	// Settings shared with config files and STUWO_ env vars
	flags := cmd.PersistentFlags()
	flags.StringVar(&flagConfigFile, "config", "", "Path to a YAML config file")
	flags.String("base-url", scraper.BaseURL, "Base URL of the offers site")
	flags.String("offers-path", scraper.OffersPath, "Path of the offers page")
	flags.Duration("timeout", scraper.Timeout, "HTTP timeout per attempt")
	flags.Int("retries", scraper.Retries, "Extra fetch attempts on network or server errors (0 disables retrying)")
	flags.String("fetcher", config.FetcherHTTP, "Page fetcher: http or browser")
	flags.Bool("lenient", false, "Skip malformed table rows instead of failing")
	flags.String("log-level", "info", "Log level: debug, info, warn or error")
	flags.String("cache", storage.DefaultCachePath, "Path of the offers cache file")
	flags.String("cache-backend", storage.BackendFile, "Cache backend: file, redis or postgres")
	flags.StringVar(&flagFormat, "format", "text", "Output format: text or json")
	flags.BoolVar(&flagVerbose, "verbose", false, "Show offer details and debug logging")

	cmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "Do not update the cache")
	cmd.Flags().BoolVar(&flagExitCode, "exit-code", false, "Exit with status 2 when offers were added or removed")

	cmd.AddCommand(newConfigCmd(), newShowCmd())

	return cmd
}

// setup loads the configuration and installs the logger
func setup(cmd *cobra.Command) (*config.Config, OutputFormat, error) {
	format := OutputFormat(strings.ToLower(flagFormat))
	if format != FormatText && format != FormatJSON {
		return nil, "", fmt.Errorf("invalid format: %s (must be 'text' or 'json')", flagFormat)
	}

	cfg, err := config.Load(cmd.Flags(), flagConfigFile)
	if err != nil {
		return nil, "", fmt.Errorf("loading config: %w", err)
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, "", err
	}
	if flagVerbose {
		level = logger.LevelDebug
	}
	logger.SetDefault(logger.New(level, cmd.ErrOrStderr()))

	return cfg, format, nil
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	store, err := storage.Open(ctx, storage.Options{
		Backend:     cfg.Cache.Backend,
		Path:        cfg.Cache.Path,
		RedisAddr:   cfg.Cache.RedisAddr,
		RedisKey:    cfg.Cache.RedisKey,
		PostgresDSN: cfg.Cache.PostgresDSN,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}
	return store, nil
}

func newFetcher(cfg *config.Config) scraper.Fetcher {
	if cfg.Fetcher == config.FetcherBrowser {
		return scraper.NewBrowserFetcher(cfg.OffersURL(), cfg.UserAgent, cfg.ChromePath, cfg.Timeout)
	}
	return scraper.NewHTTPFetcher(cfg.OffersURL(), cfg.UserAgent, cfg.Timeout, cfg.Retries)
}

// runCheck is the main command logic
func runCheck(cmd *cobra.Command, args []string) error {
	cfg, format, err := setup(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	logger.Debug("Checking offers", logger.Fields{
		"url":     cfg.OffersURL(),
		"fetcher": cfg.Fetcher,
		"backend": cfg.Cache.Backend,
	})

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	sc := scraper.New(newFetcher(cfg), cfg.Lenient)

	diff, err := Run(ctx, sc, store, cmd.OutOrStdout(), cmd.ErrOrStderr(), RunOptions{
		Format:  format,
		Verbose: flagVerbose,
		DryRun:  flagDryRun,
		Source:  cfg.OffersURL(),
		BaseURL: cfg.BaseURL,
	})
	if err != nil {
		return err
	}

	logger.Debug("Run metrics", logger.Fields(logger.GetMetricsSnapshot()))

	if flagExitCode && diff.HasChanges() {
		return ErrOffersChanged
	}
	return nil
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := setup(cmd)
			if err != nil {
				return err
			}
			data, err := cfg.YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "List the cached offers without fetching",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, format, err := setup(cmd)
			if err != nil {
				return err
			}
			order, err := parseSortOrder(flagSort)
			if err != nil {
				return err
			}

			store, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			offers, found, err := store.Load(cmd.Context())
			if err != nil {
				return fmt.Errorf("loading cache: %w", err)
			}
			sortOffers(offers, order)

			out := cmd.OutOrStdout()
			if format == FormatJSON {
				return writeJSONOffers(out, offers)
			}
			if !found {
				fmt.Fprintf(out, "No cached offers at %s.\n", store.Location())
				return nil
			}
			for _, o := range offers {
				writeOffer(out, "", o, cfg.BaseURL)
			}
			fmt.Fprintf(out, "\nTotal: %d offers\n", len(offers))
			return nil
		},
	}
	cmd.Flags().StringVar(&flagSort, "sort", "", "Sort by id, cost or size (default: cached order)")
	return cmd
}

// Execute runs the CLI
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := NewRootCmd().ExecuteContext(ctx)
	switch {
	case err == nil:
		return
	case errors.Is(err, ErrOffersChanged):
		stop()
		os.Exit(ExitNewOffers)
	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(ExitError)
	}
}
