package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/leadgrid/prospector/internal/pipeline"
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Queue a scoring pass over all open leads",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		jobID, err := env.Queue.Enqueue(ctx, pipeline.JobScore, pipeline.ScorePayload{All: true})
		if err != nil {
			return err
		}
		zap.L().Info("scoring queued", zap.String("job_id", jobID))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scoreCmd)
}
