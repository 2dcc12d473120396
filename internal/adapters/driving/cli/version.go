package cli

import "github.com/spf13/cobra"

var versionCmd = &cobra.Command{
	Use:         "version",
	Short:       "Print the version",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{annotationStandalone: "true"},
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Printf("dingsync %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
