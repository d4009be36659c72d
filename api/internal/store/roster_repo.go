package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"guild-roster/api/internal/roster"
)

// RosterRepo keeps roster sheets in Postgres, one row per member and column.
type RosterRepo struct {
	DB      *sql.DB
	Columns []string
	Log     *slog.Logger
}

func NewRosterRepo(db *sql.DB, columns []string, log *slog.Logger) *RosterRepo {
	if log == nil {
		log = slog.Default()
	}
	return &RosterRepo{DB: db, Columns: columns, Log: log}
}

// Load returns the sheet, or an empty roster when it does not exist. Columns
// missing from the stored sheet are 0; stored columns that are no longer
// configured are ignored.
func (r *RosterRepo) Load(ctx context.Context, sheet string) (*roster.Roster, error) {
	out, err := roster.New(r.Columns)
	if err != nil {
		return nil, err
	}
	const q = `
select v.member, v.column_name, v.value
from roster_values v
join roster_sheets s on s.id = v.sheet_id
where s.name = $1
order by v.position, v.column_name`
	rows, err := r.DB.QueryContext(ctx, q, sheet)
	if err != nil {
		return nil, fmt.Errorf("query sheet %s: %w", sheet, err)
	}
	defer rows.Close()

	var order []string
	values := make(map[string]map[string]int64)
	for rows.Next() {
		var member, column string
		var v int64
		if err := rows.Scan(&member, &column, &v); err != nil {
			return nil, err
		}
		m, ok := values[member]
		if !ok {
			m = make(map[string]int64)
			values[member] = m
			order = append(order, member)
		}
		if out.HasColumn(column) {
			m[column] = v
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, name := range order {
		if err := out.Add(name, values[name]); err != nil {
			r.Log.Warn("skip stored member", "sheet", sheet, "name", name, "err", err)
		}
	}
	return out, nil
}

// Save replaces the sheet's content in one transaction.
func (r *RosterRepo) Save(ctx context.Context, sheet string, ros *roster.Roster) (err error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var id int64
	const upsertSheet = `
insert into roster_sheets (name) values ($1)
on conflict (name) do update set updated_at = now()
returning id`
	if err = tx.QueryRowContext(ctx, upsertSheet, sheet).Scan(&id); err != nil {
		return fmt.Errorf("upsert sheet %s: %w", sheet, err)
	}
	if _, err = tx.ExecContext(ctx, `delete from roster_values where sheet_id = $1`, id); err != nil {
		return fmt.Errorf("clear sheet %s: %w", sheet, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
insert into roster_values (sheet_id, member, position, column_name, value)
values ($1, $2, $3, $4, $5)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	cols := ros.Columns()
	for pos, e := range ros.Entities() {
		for i, c := range cols {
			if _, err = stmt.ExecContext(ctx, id, e.Name, pos, c, e.Values[i]); err != nil {
				return fmt.Errorf("insert %s/%s: %w", e.Name, c, err)
			}
		}
	}
	return tx.Commit()
}

// Sheets lists stored sheet names, newest first.
func (r *RosterRepo) Sheets(ctx context.Context) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `select name from roster_sheets order by updated_at desc, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// DeleteSheet removes a sheet and its values.
func (r *RosterRepo) DeleteSheet(ctx context.Context, sheet string) error {
	res, err := r.DB.ExecContext(ctx, `delete from roster_sheets where name = $1`, sheet)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("sheet %s: %w", sheet, sql.ErrNoRows)
	}
	return nil
}

var (
	_ roster.Store  = (*RosterRepo)(nil)
	_ roster.Lister = (*RosterRepo)(nil)
)
