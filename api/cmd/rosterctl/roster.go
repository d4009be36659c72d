package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"guild-roster/api/internal/app"
	"guild-roster/api/internal/roster"
)

type memberRow struct {
	Name   string           `json:"name" yaml:"name"`
	Values map[string]int64 `json:"values" yaml:"values"`
	Total  int64            `json:"total" yaml:"total"`
}

func rows(columns []string, ents []roster.Entity) []memberRow {
	out := make([]memberRow, 0, len(ents))
	for _, e := range ents {
		r := memberRow{Name: e.Name, Values: make(map[string]int64, len(columns)), Total: e.Total()}
		for i, c := range columns {
			r.Values[c] = e.Values[i]
		}
		out = append(out, r)
	}
	return out
}

func (c *cli) rosterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roster",
		Short: "Show, import or export roster sheets",
	}

	var filter string
	var zeros bool
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the members of the sheet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.requireSheet(); err != nil {
				return err
			}
			st, done, err := c.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer done()
			r, err := st.Load(cmd.Context(), c.sheet)
			if err != nil {
				return err
			}
			ents := r.Entities()
			switch {
			case zeros:
				ents = r.WithZeros()
			case filter != "":
				ents = r.Filter(filter)
			}
			return c.print(cmd, rows(r.Columns(), ents))
		},
	}
	show.Flags().StringVar(&filter, "filter", "", "only names containing this text")
	show.Flags().BoolVar(&zeros, "zeros", false, "only members with an empty column")

	imp := &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Replace the sheet with a CSV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.requireSheet(); err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			r, err := roster.ReadCSV(f, app.Layout(c.cfg), c.log)
			if err != nil {
				return err
			}
			st, done, err := c.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer done()
			if err := st.Save(cmd.Context(), c.sheet, r); err != nil {
				return err
			}
			return c.print(cmd, map[string]any{"sheet": c.sheet, "members": r.Len()})
		},
	}

	exp := &cobra.Command{
		Use:   "export <file.csv>",
		Short: "Write the sheet to a CSV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.requireSheet(); err != nil {
				return err
			}
			st, done, err := c.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer done()
			r, err := st.Load(cmd.Context(), c.sheet)
			if err != nil {
				return err
			}
			f, err := os.Create(args[0])
			if err != nil {
				return err
			}
			if err := roster.WriteCSV(f, app.Layout(c.cfg), r); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("close %s: %w", args[0], err)
			}
			return c.print(cmd, map[string]any{"sheet": c.sheet, "members": r.Len(), "file": args[0]})
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List the sheets in the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, done, err := c.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer done()
			l, ok := st.(roster.Lister)
			if !ok {
				return fmt.Errorf("store %q cannot list sheets", c.cfg.Roster.Store)
			}
			names, err := l.Sheets(cmd.Context())
			if err != nil {
				return err
			}
			return c.print(cmd, names)
		},
	}

	cmd.AddCommand(show, list, imp, exp)
	return cmd
}

func (c *cli) growthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "growth <current> <previous>",
		Short: "Compare member totals between two sheets",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, done, err := c.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer done()
			cur, err := st.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			prev, err := st.Load(cmd.Context(), args[1])
			if err != nil {
				return err
			}
			return c.print(cmd, roster.Growth(cur, prev))
		},
	}
}
