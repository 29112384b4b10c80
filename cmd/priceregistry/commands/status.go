package commands

import (
	"fmt"
	"os"
	"time"

	"priceregistry/internal/state"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Prints the collection state of every year.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a := setup(ctx)
		defer a.close()

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Year", "State", "Regions", "Rows", "Partition", "Progress", "Updated"})

		recorded, err := a.store.All(ctx)
		if err != nil {
			fatal("failed to read year state", err)
		}
		states := make(map[int]state.YearState, len(recorded))
		for _, st := range recorded {
			states[st.Year] = st
		}

		for year := a.cfg.Collector.FirstYear; year <= a.time.Now().Year(); year++ {
			st, ok := states[year]
			if !ok {
				st = state.YearState{Year: year, Status: state.NotStarted}
			}
			committed, err := a.layout.YearExists(year)
			if err != nil {
				fatal("failed to stat year partition", err)
			}
			progress := ""
			completed, total, ok, err := a.layout.Progress(year)
			if err != nil {
				fatal("failed to read progress marker", err)
			}
			if ok {
				progress = fmt.Sprintf("%d/%d", completed, total)
			}
			updated := ""
			if !st.UpdatedAt.IsZero() {
				updated = st.UpdatedAt.Format(time.DateTime)
			}

			t.AppendRow(table.Row{
				year,
				st.Status,
				fmt.Sprintf("%d/%d", st.CompletedRegions, st.TotalRegions),
				st.Rows,
				committed,
				progress,
				updated,
			})
		}

		t.SetStyle(table.StyleRounded)
		t.Render()

		run, ok, err := a.store.LastRun(ctx)
		if err != nil {
			fatal("failed to read run log", err)
		}
		if ok {
			finished := "running"
			if !run.FinishedAt.IsZero() {
				finished = run.FinishedAt.Format(time.DateTime)
			}
			fmt.Printf(
				"last run: %s %s started %s finished %s, %d ok, %d failed\n",
				run.Kind, run.ID, run.StartedAt.Format(time.DateTime), finished, run.YearsOk, run.YearsFailed,
			)
		}
	},
}
