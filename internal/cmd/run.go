package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/maabridge/internal/agent"
	"github.com/Iron-Ham/maabridge/internal/bridge"
	"github.com/Iron-Ham/maabridge/internal/errors"
	"github.com/Iron-Ham/maabridge/internal/native"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run pipeline entries against an ADB device",
	Long: `Load resource bundles, connect to an ADB device, run one or more pipeline
entries and wait for them to finish.

Examples:
  maabridge run --resource resource/base --entry StartUp
  maabridge run --resource base --resource cn --address 127.0.0.1:16384 \
      --entry StartUp --entry Daily --agent-exec python --agent-arg agent/main.py`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

// runInstanceID names the single instance a run command drives.
const runInstanceID = "cli"

var (
	runResources      []string
	runEntries        []string
	runOverride       string
	runAddress        string
	runAdbPath        string
	runAgentExec      string
	runAgentArgs      []string
	runTimeout        time.Duration
	runConnectTimeout time.Duration
	runPollInterval   time.Duration
)

func init() {
	runCmd.Flags().StringSliceVar(&runResources, "resource", nil, "resource bundle path, relative to resource.dir (repeatable)")
	runCmd.Flags().StringSliceVar(&runEntries, "entry", nil, "pipeline entry to run (repeatable)")
	runCmd.Flags().StringVar(&runOverride, "override", "{}", "pipeline override JSON applied to every entry")
	runCmd.Flags().StringVar(&runAddress, "address", "", "ADB address of the device (default: first discovered device)")
	runCmd.Flags().StringVar(&runAdbPath, "adb", "", "adb executable overriding the discovered one")
	runCmd.Flags().StringVar(&runAgentExec, "agent-exec", "", "agent executable started before the tasks")
	runCmd.Flags().StringSliceVar(&runAgentArgs, "agent-arg", nil, "agent argument (repeatable)")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 30*time.Minute, "overall time limit")
	runCmd.Flags().DurationVar(&runConnectTimeout, "connect-timeout", 30*time.Second, "time limit for connecting and loading resources")
	runCmd.Flags().DurationVar(&runPollInterval, "poll", 500*time.Millisecond, "status polling interval")
	_ = runCmd.MarkFlagRequired("resource")
	_ = runCmd.MarkFlagRequired("entry")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	svc, logger, cleanup, err := openService()
	if err != nil {
		return err
	}
	defer cleanup()
	out := cmd.OutOrStdout()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	if err := svc.CreateInstance(runInstanceID); err != nil {
		return err
	}
	if _, err := svc.LoadResource(runInstanceID, runResources); err != nil {
		return err
	}

	device, err := pickDevice(svc, runAddress)
	if err != nil {
		return err
	}
	ctrl := bridge.AdbControllerConfig(device)
	if runAdbPath != "" {
		ctrl.AdbPath = runAdbPath
	}
	fmt.Fprintf(out, "Connecting to %s (%s)\n", device.Name, device.Address)
	if _, err := svc.ConnectController(runInstanceID, ctrl, ""); err != nil {
		return err
	}

	if err := waitReady(ctx, svc, runConnectTimeout); err != nil {
		return err
	}

	var agentCfg *agent.Config
	if runAgentExec != "" {
		agentCfg = &agent.Config{ChildExec: runAgentExec, ChildArgs: runAgentArgs}
	}
	tasks := make([]bridge.TaskConfig, 0, len(runEntries))
	for _, entry := range runEntries {
		tasks = append(tasks, bridge.TaskConfig{Entry: entry, PipelineOverride: runOverride})
	}
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current directory: %w", err)
	}
	ids, err := svc.StartTasks(runInstanceID, tasks, agentCfg, cwd)
	if err != nil {
		return err
	}
	if len(ids) < len(tasks) {
		fmt.Fprintf(out, "%d of %d entries could not be posted\n", len(tasks)-len(ids), len(tasks))
	}

	failed := 0
	for _, taskID := range ids {
		status, err := svc.WaitTask(ctx, runInstanceID, taskID, runPollInterval)
		if err != nil {
			if stopErr := svc.Stop(runInstanceID); stopErr != nil {
				logger.Warn("stop after interrupted wait failed", "error", stopErr)
			}
			return err
		}
		fmt.Fprintf(out, "task %d: %s\n", taskID, status)
		if status != bridge.TaskSucceeded {
			failed++
		}
	}
	if failed > 0 || len(ids) < len(tasks) {
		return fmt.Errorf("%d of %d entries did not succeed", failed+len(tasks)-len(ids), len(tasks))
	}
	return nil
}

// pickDevice returns the discovered device at address, or the first one
// when address is empty.
func pickDevice(svc *bridge.Service, address string) (native.AdbDevice, error) {
	devices, err := svc.FindAdbDevices()
	if err != nil {
		return native.AdbDevice{}, err
	}
	for _, d := range devices {
		if address == "" || d.Address == address {
			return d, nil
		}
	}
	if address == "" {
		return native.AdbDevice{}, errors.NewValidationError("no ADB devices found")
	}
	return native.AdbDevice{}, errors.NewValidationError("ADB device not found").WithField("address").WithValue(address)
}

// waitReady blocks until the controller is connected and the resource has
// loaded.
func waitReady(ctx context.Context, svc *bridge.Service, limit time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	ticker := time.NewTicker(runPollInterval)
	defer ticker.Stop()
	for {
		status, err := svc.ConnectionStatus(runInstanceID)
		if err != nil {
			return err
		}
		if status.State == bridge.Failed {
			return fmt.Errorf("connection failed: %s", status)
		}
		loaded, err := svc.IsResourceLoaded(runInstanceID)
		if err != nil {
			return err
		}
		if loaded && status.State == bridge.Connected {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("not ready after %s (connection %s, resource loaded %v): %w", limit, status, loaded, ctx.Err())
		case <-ticker.C:
		}
	}
}
