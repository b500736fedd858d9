package cmd

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the bridge and MaaFramework versions",
	Args:  cobra.NoArgs,
	RunE:  runVersion,
}

var versionBridgeOnly bool

func init() {
	versionCmd.Flags().BoolVar(&versionBridgeOnly, "short", false, "print only the bridge version without loading the library")
	rootCmd.AddCommand(versionCmd)
}

// bridgeVersion reports the module version recorded at build time.
func bridgeVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok || info.Main.Version == "" {
		return "(devel)"
	}
	return info.Main.Version
}

func runVersion(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "maabridge %s\n", bridgeVersion())
	if versionBridgeOnly {
		return nil
	}

	svc, _, cleanup, err := openService()
	if err != nil {
		return err
	}
	defer cleanup()

	version, err := svc.Version()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "MaaFramework %s (%s)\n", version, svc.LibraryDir())
	return nil
}
