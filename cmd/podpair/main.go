package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"unicode"

	"github.com/spf13/cobra"

	"github.com/srg/podpair/internal/btctl"
	"github.com/srg/podpair/internal/conf"
	"github.com/srg/podpair/internal/initsys"
	"github.com/srg/podpair/internal/workflow"
	"github.com/srg/podpair/pkg/config"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

// rootCmd represents the base command; the pairing workflow is the default
// and only action.
var rootCmd = &cobra.Command{
	Use:   "podpair",
	Short: "Pair AirPods-class earbuds over classic Bluetooth",
	Long: `Pair wireless earbuds that refuse to bond in dual-mode Bluetooth.

podpair temporarily switches the controller into classic (BR/EDR) mode,
restarts the bluetooth service, scans for devices matching the target name,
pairs, trusts and connects the one you pick, then restores the original
configuration. The original config is restored on every exit path, including
errors and Ctrl+C.

Requires root and a bluetoothctl-compatible control daemon.`,
	Version: formatVersion(version),
	RunE:    runPair,
}

var (
	flagScanOnly   bool
	flagRemoveOnly bool
	flagName       string
	flagTimeout    int
	flagSettings   string
	flagBTConfig   string
	flagLogFile    string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Ctrl+C is a normal exit, not an error - exit silently
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", err)
		os.Exit(1)
	}
}

func init() {
	// Silence Cobra's "Error:" prefix - main() prints clean errors
	rootCmd.SilenceErrors = true

	rootCmd.Flags().BoolVar(&flagScanOnly, "scan-only", false, "List matching devices and exit without pairing")
	rootCmd.Flags().BoolVar(&flagRemoveOnly, "remove-only", false, "Forget matching devices and exit without scanning")
	rootCmd.Flags().StringVarP(&flagName, "name", "n", "", "Device name filter, case-insensitive substring (default \"AirPods\")")
	rootCmd.Flags().IntVarP(&flagTimeout, "timeout", "t", 0, "Scan duration in seconds (default 10)")
	rootCmd.Flags().StringVar(&flagSettings, "settings", "", "YAML settings file with additional overrides")
	rootCmd.Flags().StringVar(&flagBTConfig, "bt-config", "", "Bluetooth daemon config path (default /etc/bluetooth/main.conf)")
	rootCmd.Flags().StringVar(&flagLogFile, "log-file", "", "Append leveled log output to this file instead of the console")
	rootCmd.Flags().BoolP("verbose", "v", false, "Enable debug logging")

	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
}

func runPair(cmd *cobra.Command, args []string) error {
	settings := config.Default()
	if flagSettings != "" {
		if err := settings.Load(flagSettings); err != nil {
			return err
		}
	}

	// Flags beat the settings file, which beats the defaults.
	if cmd.Flags().Changed("name") {
		settings.DeviceName = flagName
	}
	if cmd.Flags().Changed("timeout") {
		if flagTimeout <= 0 {
			return fmt.Errorf("invalid --timeout %d: must be a positive number of seconds", flagTimeout)
		}
		settings.ScanSeconds = flagTimeout
	}
	if cmd.Flags().Changed("bt-config") {
		settings.BluetoothConfig = flagBTConfig
	}
	if cmd.Flags().Changed("log-file") {
		settings.LogFile = flagLogFile
	}
	settings.ScanOnly = flagScanOnly
	settings.RemoveOnly = flagRemoveOnly
	if settings.ScanOnly && settings.RemoveOnly {
		return errors.New("--scan-only and --remove-only are mutually exclusive")
	}

	logger, err := configureLogger(cmd, settings)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	// The whole workflow mutates privileged state (config file, service,
	// daemon bonds); refuse to start without it.
	if os.Geteuid() != 0 {
		return errors.New("root privileges are required (run with sudo)")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Println("\nInterrupted, cleaning up...")
		cancel()
	}()

	client := btctl.NewClient(nil, logger)
	registry := btctl.NewRegistry(client, logger)
	patcher := conf.NewPatcher(settings.BluetoothConfig, logger)
	services := initsys.NewController("bluetooth", logger)

	var progress workflow.Progress
	if !settings.RemoveOnly {
		progress = NewProgressPrinter("Scanning for devices", settings.ScanWindow())
	}

	wf := workflow.New(client, registry, patcher, services, logger, workflow.Options{
		DeviceName:  settings.DeviceName,
		ScanTimeout: settings.ScanWindow(),
		ScanOnly:    settings.ScanOnly,
		RemoveOnly:  settings.RemoveOnly,
		Display:     displayCandidates,
		Progress:    progress,
	})
	// Mirrors the in-run guard for paths that never arm it; idempotent.
	defer wf.Cleanup()

	return wf.Run(ctx)
}
