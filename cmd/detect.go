package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/leadgrid/prospector/internal/pipeline"
)

var (
	detectFrom string
	detectTo   string
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Queue a detection run over a registration date window",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := validateWindow(detectFrom, detectTo); err != nil {
			return err
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		jobID, err := env.Queue.Enqueue(ctx, pipeline.JobDetect, pipeline.DetectPayload{
			DateFrom: detectFrom,
			DateTo:   detectTo,
		})
		if err != nil {
			return err
		}
		zap.L().Info("detection queued", zap.String("job_id", jobID))
		return nil
	},
}

func init() {
	detectCmd.Flags().StringVar(&detectFrom, "from", "", "window start (YYYY-MM-DD, default yesterday)")
	detectCmd.Flags().StringVar(&detectTo, "to", "", "window end (YYYY-MM-DD, default today)")
	rootCmd.AddCommand(detectCmd)
}
