package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"guild-roster/api/internal/app"
	"guild-roster/api/internal/config"
	"guild-roster/api/internal/roster"
	"guild-roster/api/internal/store"
	"guild-roster/api/internal/util"
)

// cli carries the persistent flags and what they load.
type cli struct {
	cfgFile string
	output  string
	sheet   string

	cfg *config.Config
	log *slog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "rosterctl",
		Short: "Read guild leaderboard screenshots into roster sheets",
		Long: `rosterctl runs leaderboard screenshots through OCR, matches the names
against a roster sheet and writes the values into one column.

Sheets live in the store selected by roster.store (file, postgres or sheets).`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(c.cfgFile)
			if err != nil {
				return err
			}
			c.cfg = cfg
			c.log = config.NewLogger(cfg.Log, cmd.ErrOrStderr())
			if c.sheet == "" {
				c.sheet = cfg.Roster.Sheet
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&c.cfgFile, "config", "", "config file (default: ./config.yaml or ~/.guild-roster/config.yaml)")
	root.PersistentFlags().StringVarP(&c.output, "output", "o", "yaml", "output format: yaml or json")
	root.PersistentFlags().StringVar(&c.sheet, "sheet", "", "roster sheet (default: roster.sheet from config)")

	root.AddCommand(c.scanCmd(), c.watchCmd(), c.rosterCmd(), c.growthCmd())
	return root
}

func (c *cli) print(cmd *cobra.Command, data any) error {
	return util.OutputTo(cmd.OutOrStdout(), c.output, data)
}

// openStore opens the configured roster store. The returned func closes the
// database, if one was opened.
func (c *cli) openStore(ctx context.Context) (roster.Store, func(), error) {
	if c.cfg.Roster.Store != "postgres" {
		st, err := app.OpenStore(ctx, c.cfg, nil, c.log)
		return st, func() {}, err
	}
	db, err := store.Open(ctx, store.ResolveDSN(c.cfg.Database.URL))
	if err != nil {
		return nil, nil, err
	}
	if err := store.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, nil, err
	}
	return store.NewRosterRepo(db, c.cfg.Roster.Columns, c.log), func() { db.Close() }, nil
}

func (c *cli) requireSheet() error {
	if c.sheet == "" {
		return fmt.Errorf("no sheet: pass --sheet or set roster.sheet")
	}
	return nil
}

func readFile(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return b, nil
}
