package commands

import (
	"context"
	"log/slog"
	"time"

	"priceregistry/internal/components/chrono"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(backfillCmd)
	rootCmd.AddCommand(updateCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Backfills every missing year then refreshes the current year on a weekly schedule.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a := setup(ctx)
		defer a.close()

		coordinator := a.coordinator(ctx)

		updated, err := coordinator.CollectOldData(ctx)
		if err != nil {
			checkFatal("backfill failed", err)
			slog.Error("backfill failed", "err", err)
		}
		if !updated {
			err = coordinator.UpdateData(ctx)
			if err != nil {
				checkFatal("update failed", err)
				slog.Error("update failed", "err", err)
			}
		}

		cron := chrono.NewStandardCron(a.tel)
		err = cron.Cron(a.cfg.Schedule.UpdateCron, func() {
			err := coordinator.UpdateData(ctx)
			if err != nil {
				slog.Error("scheduled update failed", "err", err)
			}
		})
		if err != nil {
			fatal("failed to schedule update", err)
		}
		slog.Info("waiting for the next update", "schedule", a.cfg.Schedule.UpdateCron)

		<-ctx.Done()

		stopCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		cron.Stop(stopCtx)
	},
}

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Collects every year that has no partition yet, then enriches and reports.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a := setup(ctx)
		defer a.close()

		t1 := time.Now()
		updated, err := a.coordinator(ctx).CollectOldData(ctx)
		if err != nil {
			fatal("backfill failed", err)
		}
		slog.Info("backfill done", "updated", updated, "seconds", time.Since(t1).Seconds())
	},
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Discards and collects the current year again, then enriches and reports.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a := setup(ctx)
		defer a.close()

		t1 := time.Now()
		err := a.coordinator(ctx).UpdateData(ctx)
		if err != nil {
			fatal("update failed", err)
		}
		slog.Info("update done", "seconds", time.Since(t1).Seconds())
	},
}
