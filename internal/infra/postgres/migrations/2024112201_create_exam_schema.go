package migrations

import (
	"context"
	_ "embed"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

//go:embed 0001_create_exam_schema.sql
var createExamSchemaSQL string

var dropExamSchema = []string{
	`DROP TABLE IF EXISTS practical_marks`,
	`DROP TABLE IF EXISTS answers`,
	`DROP TABLE IF EXISTS exam_attempts`,
	`DROP TABLE IF EXISTS exam_slot_candidates`,
	`DROP TABLE IF EXISTS exam_slots`,
	`DROP TABLE IF EXISTS questions`,
	`DROP TABLE IF EXISTS exam_papers`,
	`DROP TABLE IF EXISTS candidates`,
	`DROP TABLE IF EXISTS trades`,
}

var Migrations = migrate.NewMigrations()

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			for _, stmt := range strings.Split(createExamSchemaSQL, "--bun:split") {
				if strings.TrimSpace(stmt) == "" {
					continue
				}
				if _, err := db.ExecContext(ctx, stmt); err != nil {
					return err
				}
			}
			return nil
		},
		func(ctx context.Context, db *bun.DB) error {
			for _, stmt := range dropExamSchema {
				if _, err := db.ExecContext(ctx, stmt); err != nil {
					return err
				}
			}
			return nil
		},
	)
}
