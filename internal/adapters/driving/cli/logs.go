package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

const logTimeLayout = "2006-01-02 15:04:05"

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show recorded sync runs",
	Args:  cobra.NoArgs,
	RunE:  runLogs,
}

// Flags for logs.
var (
	logsApp    string
	logsLimit  int
	logsDetail bool
)

func init() {
	logsCmd.Flags().StringVar(&logsApp, "app", "", "only runs of this app")
	logsCmd.Flags().IntVarP(&logsLimit, "limit", "n", 20, "maximum number of runs")
	logsCmd.Flags().BoolVar(&logsDetail, "detail", false, "print the detail text of each run")
	rootCmd.AddCommand(logsCmd)
}

func runLogs(cmd *cobra.Command, _ []string) error {
	if syncService == nil {
		return errors.New("sync service not configured")
	}

	logs, err := syncService.Logs(cmd.Context(), logsApp, logsLimit)
	if err != nil {
		return fmt.Errorf("failed to list sync logs: %w", err)
	}
	if len(logs) == 0 {
		cmd.Println("No sync runs recorded.")
		return nil
	}

	if logsDetail {
		for i := range logs {
			l := &logs[i]
			cmd.Printf("%s  %s  %s\n", shortID(l.ID), l.AppID, status(l.Success))
			cmd.Println(faintStyle.Render(l.Detail))
			cmd.Println()
		}
		return nil
	}

	rows := make([][]string, 0, len(logs))
	for i := range logs {
		l := &logs[i]
		rows = append(rows, []string{
			shortID(l.ID),
			l.AppID,
			status(l.Success),
			l.StartedAt.Local().Format(logTimeLayout),
			fmt.Sprintf("%.2fs", l.Duration().Seconds()),
		})
	}
	cmd.Println(renderTable([]string{"RUN", "APP", "STATUS", "STARTED", "COST"}, rows))
	return nil
}
