package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/dingsync/internal/core/domain"
)

var syncCmd = &cobra.Command{
	Use:   "sync [app-id]",
	Short: "Mirror the organisation of an app",
	Long: `Mirror every department the app is authorised for, with their employees,
into the local store. With --departments only the given subtrees are
re-synced under their existing local parents.

Examples:
  dingsync sync 0b6c1f9e
  dingsync sync 0b6c1f9e --departments 1024,2048`,
	Args: cobra.ExactArgs(1),
	RunE: runSync,
}

var syncDepartments []int64

func init() {
	syncCmd.Flags().Int64SliceVar(&syncDepartments, "departments", nil, "remote department ids to re-sync")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	if syncService == nil {
		return errors.New("sync service not configured")
	}

	ctx := cmd.Context()
	var (
		log *domain.SyncLog
		err error
	)
	if len(syncDepartments) > 0 {
		log, err = syncService.SyncDepartments(ctx, args[0], syncDepartments)
	} else {
		log, err = syncService.Sync(ctx, args[0])
	}
	if err != nil {
		return fmt.Errorf("failed to sync: %w", err)
	}

	cmd.Printf("Sync %s: %s (%.2fs)\n", shortID(log.ID), status(log.Success), log.Duration().Seconds())
	cmd.Println(faintStyle.Render(log.Detail))
	if !log.Success {
		return fmt.Errorf("sync %s failed", log.ID)
	}
	return nil
}
