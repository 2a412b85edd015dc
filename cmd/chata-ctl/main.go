package main

import (
	"context"
	"fmt"
	"os"

	"chata-intake/common/logger"
	"chata-intake/internal/bootstrap"
	"chata-intake/internal/catalog"
	"chata-intake/internal/config"
	"chata-intake/internal/drafts"
	"chata-intake/internal/formstate"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app shared state opened once per invocation
type app struct {
	cfg       *config.Config
	log       *zap.Logger
	catalog   *catalog.Catalog
	backends  *bootstrap.Backends
	drafts    *drafts.Store
	debouncer *drafts.Debouncer
	forms     *formstate.Store
}

var (
	state    *app
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "chata-ctl",
	Short: "Operate on CHATA assessment drafts and submissions",
	Long: `chata-ctl reads the same draft store and submission archive as the
chata-intake service, configured from the same environment variables
(STORE_BACKEND, REDIS_ADDR, SQLITE_PATH, DB_*, SHEETY_*).`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		state = a
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if state != nil {
			state.close(cmd.Context())
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
}

func openApp(ctx context.Context) (*app, error) {
	cfg := config.Load()
	log, err := logger.NewLogger(logLevel, "console", "chata-ctl")
	if err != nil {
		return nil, err
	}
	cat, err := catalog.LoadFile(cfg.CatalogFile)
	if err != nil {
		return nil, err
	}
	backends, err := bootstrap.Open(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	ds := drafts.NewStore(backends.KV, cfg.Store.DraftTTL, log)
	deb := drafts.NewDebouncer(ds, cfg.Store.Debounce, log)
	return &app{
		cfg:       cfg,
		log:       log,
		catalog:   cat,
		backends:  backends,
		drafts:    ds,
		debouncer: deb,
		forms:     formstate.New(cat, ds, deb, log),
	}, nil
}

func (a *app) close(ctx context.Context) {
	a.forms.Flush(ctx)
	a.debouncer.Stop()
	a.backends.Close()
	_ = a.log.Sync()
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
