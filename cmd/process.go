package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kingban00/mining-pipeline/internal/model"
	"github.com/kingban00/mining-pipeline/internal/resolve"
)

var processCmd = &cobra.Command{
	Use:   "process \"Company A, Company B\"",
	Short: "Process a batch of company names and exit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		names, err := resolve.ParseList(args[0], cfg.Intake.MaxCompanies)
		if err != nil {
			return err
		}

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		env.Pool.Start(ctx)
		for _, name := range names {
			if err := env.Pool.Enqueue(model.Task{RawName: name}); err != nil {
				zap.L().Warn("enqueue failed", zap.String("company", name), zap.Error(err))
			}
		}

		zap.L().Info("batch queued", zap.Int("companies", len(names)))

		drainCtx, cancel := context.WithTimeout(ctx, time.Duration(len(names))*30*time.Minute)
		defer cancel()
		return env.Pool.Shutdown(drainCtx)
	},
}

func init() {
	rootCmd.AddCommand(processCmd)
}
