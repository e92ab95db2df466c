// Command androidfsd is the fleet supervisor's executable: it discovers
// tethered Android devices and mounts each as a drive for the process
// lifetime (spec §4.5/§6.3).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/go-androidfs/androidfs/backend/adb"
	"github.com/go-androidfs/androidfs/fleet"
)

func newRootCommand() *cobra.Command {
	return &cobra.Command{
		Use:           "androidfsd",
		Short:         "Mount tethered Android devices as host drives",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}
}

func run(ctx context.Context) error {
	log := newLogger()

	bridge, err := adb.New(log)
	if err != nil {
		return err
	}

	sup := fleet.New(bridge, locateDaemonBinary, log)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt)
	defer cancel()

	log.Info("fleet supervisor starting")
	return sup.Run(ctx)
}

// newLogger builds the process-wide logrus instance, honoring
// ANDROIDFS_LOG_LEVEL (spec §6.3); defaults to Debug.
func newLogger() *logrus.Entry {
	logger := logrus.New()
	level := logrus.DebugLevel
	if raw := os.Getenv("ANDROIDFS_LOG_LEVEL"); raw != "" {
		if parsed, err := logrus.ParseLevel(raw); err == nil {
			level = parsed
		}
	}
	logger.SetLevel(level)
	return logrus.NewEntry(logger)
}

// locateDaemonBinary resolves the on-device daemon's local path
// (ANDROIDFS_DAEMON_PATH, falling back to "./androidfs_server" relative to
// the working directory, per spec §6.2).
func locateDaemonBinary() (string, error) {
	if p := os.Getenv("ANDROIDFS_DAEMON_PATH"); p != "" {
		return p, nil
	}
	return filepath.Join(".", "androidfs_server"), nil
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
