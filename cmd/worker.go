package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/leadgrid/prospector/internal/pipeline"
	"github.com/leadgrid/prospector/internal/queue"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the pipeline worker: queue consumers plus the daily detection schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		loc, err := time.LoadLocation(cfg.Queue.Timezone)
		if err != nil {
			return eris.Wrapf(err, "load timezone %s", cfg.Queue.Timezone)
		}

		w := queue.NewWorker(env.Queue, loc, time.Duration(cfg.Queue.DrainTimeoutSecs)*time.Second)

		detector, enricher, scoreStage, assigner := env.stages()
		w.Subscribe(pipeline.JobDetect, 1, detector.Handle)
		w.Subscribe(pipeline.JobEnrich, 3, enricher.Handle)
		w.Subscribe(pipeline.JobScore, 1, scoreStage.Handle)
		w.Subscribe(pipeline.JobAssign, 1, assigner.Handle)

		if cfg.Queue.DetectCron != "" {
			if err := w.Schedule(cfg.Queue.DetectCron, pipeline.JobDetect, pipeline.DetectPayload{}); err != nil {
				return err
			}
			zap.L().Info("detection scheduled",
				zap.String("cron", cfg.Queue.DetectCron),
				zap.String("timezone", cfg.Queue.Timezone),
			)
		}

		zap.L().Info("worker started")
		return w.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
