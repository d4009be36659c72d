package store

import (
	"context"
	"database/sql"
	"fmt"
)

var schema = []string{
	`create table if not exists roster_sheets (
  id         bigserial primary key,
  name       text not null unique,
  updated_at timestamptz not null default now()
)`,
	`create table if not exists roster_values (
  sheet_id    bigint not null references roster_sheets(id) on delete cascade,
  member      text not null,
  position    int not null,
  column_name text not null,
  value       bigint not null default 0,
  primary key (sheet_id, member, column_name)
)`,
	`create table if not exists ocr_detections (
  image_hash text not null,
  engine     text not null,
  result     jsonb not null,
  created_at timestamptz not null default now(),
  primary key (image_hash, engine)
)`,
}

// Migrate creates the tables if they do not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	return nil
}
