package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/maabridge/internal/native"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List ADB devices or desktop windows",
	Long: `List the ADB devices MaaToolkit can see, or with --windows the desktop
windows. --class and --window filter windows by regular expressions on the
class name and window title.`,
	Args: cobra.NoArgs,
	RunE: runDevices,
}

var (
	devicesWindows bool
	devicesClass   string
	devicesWindow  string
	devicesFormat  string
)

func init() {
	devicesCmd.Flags().BoolVar(&devicesWindows, "windows", false, "list desktop windows instead of ADB devices")
	devicesCmd.Flags().StringVar(&devicesClass, "class", "", "regular expression matched against the window class name")
	devicesCmd.Flags().StringVar(&devicesWindow, "window", "", "regular expression matched against the window title")
	devicesCmd.Flags().StringVarP(&devicesFormat, "format", "o", FormatAuto, "output format: auto, table, json or yaml")
	rootCmd.AddCommand(devicesCmd)
}

type adbDeviceList []native.AdbDevice

func (l adbDeviceList) headers() []string {
	return []string{"NAME", "ADDRESS", "ADB", "SCREENCAP", "INPUT"}
}

func (l adbDeviceList) rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, d := range l {
		rows = append(rows, []string{
			d.Name,
			d.Address,
			d.AdbPath,
			strconv.FormatUint(d.ScreencapMethods, 10),
			strconv.FormatUint(d.InputMethods, 10),
		})
	}
	return rows
}

type windowList []native.DesktopWindow

func (l windowList) headers() []string {
	return []string{"HANDLE", "CLASS", "TITLE"}
}

func (l windowList) rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, w := range l {
		rows = append(rows, []string{fmt.Sprintf("0x%x", w.Handle), w.ClassName, w.WindowName})
	}
	return rows
}

func runDevices(cmd *cobra.Command, args []string) error {
	svc, _, cleanup, err := openService()
	if err != nil {
		return err
	}
	defer cleanup()

	if devicesWindows {
		windows, err := svc.FindDesktopWindows(devicesClass, devicesWindow)
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), devicesFormat, windowList(windows))
	}

	devices, err := svc.FindAdbDevices()
	if err != nil {
		return err
	}
	return render(cmd.OutOrStdout(), devicesFormat, adbDeviceList(devices))
}
