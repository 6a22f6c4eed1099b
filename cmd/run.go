// qmod run [-- args], qmod test
package cmd

import (
	"github.com/qobs-build/qmod/internal/builder"
	"github.com/spf13/cobra"
)

var flagTarget string

var runCmd = &cobra.Command{
	Use:   "run [-- program args]",
	Short: "Build, then run the executable targets",
	Long: `Build, then run the executable targets. Arguments after -- are passed
to the program, which runs inside its output directory.`,
	Args: cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runProjects(cmd.Context(), builder.ActionRun, builder.Options{Target: flagTarget, Args: args})
	},
}

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Build, then run every test target",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runProjects(cmd.Context(), builder.ActionTest, builder.Options{Target: flagTarget})
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVarP(&flagTarget, "target", "t", "", "Only run this target")

	rootCmd.AddCommand(testCmd)
	testCmd.Flags().StringVarP(&flagTarget, "target", "t", "", "Only run this test target")
}
