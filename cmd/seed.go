package main

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/leadgrid/prospector/internal/db"
	"github.com/leadgrid/prospector/internal/model"
	"github.com/leadgrid/prospector/internal/scorer"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert the sector bonus table and default operators",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := seedSectors(ctx, env.Store.Pool()); err != nil {
			return err
		}
		if err := seedOperators(ctx, env.Store.Pool()); err != nil {
			return err
		}
		return nil
	},
}

func seedSectors(ctx context.Context, pool db.Pool) error {
	table, err := scorer.LoadSectors(cfg.Scoring.SectorsFile)
	if err != nil {
		return err
	}

	codes := make([]string, 0, len(table))
	for code := range table {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	rows := make([][]any, 0, len(codes))
	for _, code := range codes {
		s := table[code]
		rows = append(rows, []any{s.Code, s.Label, s.ScoreBonus, s.IsHighValue})
	}

	n, err := db.BulkUpsert(ctx, pool, db.UpsertConfig{
		Table:        "naf_sectors",
		Columns:      []string{"code", "label", "score_bonus", "is_high_value"},
		ConflictKeys: []string{"code"},
	}, rows)
	if err != nil {
		return err
	}
	zap.L().Info("sectors seeded", zap.Int64("count", n))
	return nil
}

func seedOperators(ctx context.Context, pool db.Pool) error {
	defaults := []struct {
		email    string
		name     string
		role     model.Role
		maxLeads int
	}{
		{"admin@leadgrid.fr", "Admin", model.RoleAdmin, 999},
		{"closer@leadgrid.fr", "Closer", model.RoleCloser, 50},
		{"qualifier@leadgrid.fr", "Qualifier", model.RoleQualifier, 100},
	}

	rows := make([][]any, 0, len(defaults))
	for _, op := range defaults {
		rows = append(rows, []any{uuid.NewString(), op.email, op.name, string(op.role), true, op.maxLeads})
	}

	n, err := db.BulkUpsert(ctx, pool, db.UpsertConfig{
		Table:        "operators",
		Columns:      []string{"id", "email", "name", "role", "is_active", "max_leads"},
		ConflictKeys: []string{"email"},
		UpdateCols:   []string{"name", "role", "max_leads"},
	}, rows)
	if err != nil {
		return err
	}
	zap.L().Info("operators seeded", zap.Int64("count", n))
	return nil
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
