package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"guild-roster/api/internal/app"
	"guild-roster/api/internal/ocr"
	"guild-roster/api/internal/roster"
	"guild-roster/api/internal/scan"
	"guild-roster/api/internal/util"
)

type scanOptions struct {
	column   string
	guild    string
	engine   string
	applyNew bool
	save     bool
}

// scanResult is what scan and watch print.
type scanResult struct {
	Sheet  string              `json:"sheet,omitempty" yaml:"sheet,omitempty"`
	Report *scan.Report        `json:"report" yaml:"report"`
	Apply  *roster.ApplyResult `json:"apply,omitempty" yaml:"apply,omitempty"`
	Saved  bool                `json:"saved" yaml:"saved"`
}

func (c *cli) scanCmd() *cobra.Command {
	var o scanOptions
	cmd := &cobra.Command{
		Use:   "scan <image>...",
		Short: "Scan screenshots into a column of the sheet",
		Long: `Scan reads every screenshot, pairs names with values and writes matched
values into the column. Names that do not match the roster are listed as
pending; --apply-new adds all of them as new members.

Examples:
  rosterctl scan --sheet week-12 --column ลูดี้ shot1.png shot2.png
  rosterctl scan --sheet week-12 --apply-new --save shots/*.jpg`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			deps, err := app.Build(ctx, c.cfg, c.log)
			if err != nil {
				return err
			}
			defer deps.Close()

			sess, err := c.prepareSession(ctx, deps, o)
			if err != nil {
				return err
			}
			res, err := c.scanFiles(ctx, deps, sess, o, args)
			if err != nil {
				return err
			}
			return c.print(cmd, res)
		},
	}
	cmd.Flags().StringVar(&o.column, "column", "", "target column (default: first column)")
	cmd.Flags().StringVar(&o.guild, "guild", "", "guild name to ignore (default: roster.guild)")
	cmd.Flags().StringVar(&o.engine, "engine", "", "ocr engine (default: ocr.engine)")
	cmd.Flags().BoolVar(&o.applyNew, "apply-new", false, "add every unmatched name as a new member")
	cmd.Flags().BoolVar(&o.save, "save", false, "save the sheet afterwards")
	return cmd
}

func (c *cli) prepareSession(ctx context.Context, deps *app.Deps, o scanOptions) (*scan.Session, error) {
	sess := deps.Sessions.Create()
	if c.sheet != "" {
		if err := sess.LoadSheet(ctx, deps.Store, c.sheet); err != nil {
			return nil, err
		}
	} else if o.save {
		return nil, c.requireSheet()
	}
	if o.column != "" {
		if err := sess.SetColumn(o.column); err != nil {
			return nil, err
		}
	}
	if o.guild != "" {
		sess.SetGuild(o.guild)
	}
	return sess, nil
}

func (c *cli) scanFiles(ctx context.Context, deps *app.Deps, sess *scan.Session, o scanOptions, paths []string) (*scanResult, error) {
	batch := scan.Batch{}
	if o.engine != "" {
		e, ok := deps.Engines.Lookup(o.engine)
		if !ok {
			return nil, fmt.Errorf("unknown ocr engine %q (have %v)", o.engine, deps.Engines.Names())
		}
		batch.Engine = e
	}
	for _, p := range paths {
		data, err := readFile(p)
		if err != nil {
			return nil, err
		}
		batch.Images = append(batch.Images, ocr.Image{ID: filepath.Base(p), Data: data, MIME: util.PickMIME("", "", data)})
	}

	rep, err := deps.Service.RunBatch(ctx, sess, batch)
	if err != nil {
		return nil, err
	}
	res := &scanResult{Sheet: sess.Sheet(), Report: rep}

	if o.applyNew && len(rep.Pending) > 0 {
		decisions := make([]roster.Decision, len(rep.Pending))
		for i, p := range rep.Pending {
			decisions[i] = roster.Decision{Index: i, Action: roster.CreateNew, Name: p.RawLabel}
		}
		ar, err := sess.Confirm(rep.BatchID, decisions)
		if err != nil {
			return nil, err
		}
		res.Apply = &ar
	}
	if o.save {
		if err := sess.SaveSheet(ctx, deps.Store); err != nil {
			return nil, err
		}
		res.Saved = true
	}
	return res, nil
}
