package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	serverrun "github.com/leviramsey/sliceoffset/internal/cmd/server"
	cfgpkg "github.com/leviramsey/sliceoffset/internal/config"
	"github.com/leviramsey/sliceoffset/internal/offsetstore"
	"github.com/leviramsey/sliceoffset/internal/projection"
	pebblestore "github.com/leviramsey/sliceoffset/internal/storage/pebble"
	logpkg "github.com/leviramsey/sliceoffset/pkg/log"
	"github.com/spf13/cobra"
)

func main() {
	level := os.Getenv("PROJ_LOG_LEVEL")
	parsed, err := logpkg.ParseLevel(level)
	if err != nil || level == "" {
		parsed = logpkg.InfoLevel
	}
	logger := logpkg.NewLogger(
		logpkg.WithLevel(parsed),
		logpkg.WithFormatter(&logpkg.TextFormatter{}),
		logpkg.WithOutput(logpkg.NewConsoleOutput()),
	)
	logpkg.RedirectStdLog(logger)

	rootCmd := &cobra.Command{
		Use:   "projector",
		Short: "Projection offset-tracking runtime CLI",
		Long:  "projector runs a single-binary projection driver and manages its persisted offsets.",
	}

	rootCmd.AddCommand(serverStartCmd())
	rootCmd.AddCommand(offsetCmd())
	rootCmd.AddCommand(pauseCmd())
	rootCmd.AddCommand(resumeCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serverStartCmd() *cobra.Command {
	serverCmd := &cobra.Command{Use: "server", Short: "Server commands"}
	startCmd := &cobra.Command{
		Use:     "start",
		Short:   "Run a projection driver against a jsonl event source",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir, _ := cmd.Flags().GetString("data-dir")
			projectionName, _ := cmd.Flags().GetString("projection")
			eventsFile, _ := cmd.Flags().GetString("events-file")
			minSlice, _ := cmd.Flags().GetInt("min-slice")
			maxSlice, _ := cmd.Flags().GetInt("max-slice")
			filter, _ := cmd.Flags().GetString("filter")
			fsyncMode, _ := cmd.Flags().GetString("fsync")

			mode := pebblestore.FsyncModeAlways
			switch fsyncMode {
			case "never":
				mode = pebblestore.FsyncModeNever
			case "interval":
				mode = pebblestore.FsyncModeInterval
			case "always":
				mode = pebblestore.FsyncModeAlways
			default:
				return fmt.Errorf("invalid --fsync; use always|interval|never")
			}

			return serverrun.Run(context.Background(), serverrun.Options{
				DataDir:        dataDir,
				ProjectionName: projectionName,
				EventsFile:     eventsFile,
				MinSlice:       minSlice,
				MaxSlice:       maxSlice,
				Filter:         filter,
				Fsync:          mode,
				Config:         cfgpkg.Default(),
			})
		},
	}
	startCmd.Flags().String("data-dir", "", "Data directory (if empty, uses an OS-specific application data directory)")
	startCmd.Flags().String("projection", "default", "Projection name")
	startCmd.Flags().String("events-file", "", "Path to a newline-delimited JSON event file")
	startCmd.Flags().Int("min-slice", 0, "Lowest slice this process owns")
	startCmd.Flags().Int("max-slice", 1023, "Highest slice this process owns")
	startCmd.Flags().String("filter", "", "CEL expression selecting envelopes to process")
	startCmd.Flags().String("fsync", "always", "Fsync mode: always|interval|never")
	_ = startCmd.MarkFlagRequired("events-file")
	serverCmd.AddCommand(startCmd)
	return serverCmd
}

func openManagement(cmd *cobra.Command) (*projection.Management, func(), error) {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	projectionName, _ := cmd.Flags().GetString("projection")
	if dataDir == "" {
		dataDir = cfgpkg.DefaultDataDir()
	}
	storeDir := filepath.Join(dataDir, "offsets")
	db, err := pebblestore.Open(pebblestore.Options{DataDir: storeDir, Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		return nil, nil, fmt.Errorf("open offset store: %w", err)
	}
	store := offsetstore.NewPebbleStore(db)
	cfg := cfgpkg.Default()
	mgmt := projection.NewManagement(projectionName, store,
		time.Duration(cfg.Management.OperationTimeoutMillis)*time.Millisecond,
		time.Duration(cfg.Management.AskTimeoutMillis)*time.Millisecond,
	)
	return mgmt, func() { _ = db.Close() }, nil
}

func addManagementFlags(cmd *cobra.Command) {
	cmd.Flags().String("data-dir", "", "Data directory (if empty, uses an OS-specific application data directory)")
	cmd.Flags().String("projection", "default", "Projection name")
}

func offsetCmd() *cobra.Command {
	offCmd := &cobra.Command{Use: "offset", Short: "Inspect or modify a projection's persisted offsets"}

	getCmd := &cobra.Command{
		Use:   "get <pid>",
		Short: "Print the persisted offset for a pid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgmt, closeFn, err := openManagement(cmd)
			if err != nil {
				return err
			}
			defer closeFn()
			rec, ok, err := mgmt.GetOffset(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				fmt.Printf("no offset recorded for pid=%s\n", args[0])
				return nil
			}
			b, _ := json.MarshalIndent(rec, "", "  ")
			fmt.Println(string(b))
			return nil
		},
	}
	addManagementFlags(getCmd)

	setCmd := &cobra.Command{
		Use:   "set <pid> <seqNr>",
		Short: "Overwrite the persisted offset for a pid",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			seqNr, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid seqNr %q: %w", args[1], err)
			}
			mgmt, closeFn, err := openManagement(cmd)
			if err != nil {
				return err
			}
			defer closeFn()
			return mgmt.SetOffset(cmd.Context(), args[0], seqNr, time.Now().UTC())
		},
	}
	addManagementFlags(setCmd)

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every persisted offset for a projection (projection must be paused)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgmt, closeFn, err := openManagement(cmd)
			if err != nil {
				return err
			}
			defer closeFn()
			return mgmt.ClearOffset(cmd.Context())
		},
	}
	addManagementFlags(clearCmd)

	offCmd.AddCommand(getCmd, setCmd, clearCmd)
	return offCmd
}

func pauseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pause",
		Short: "Pause a projection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgmt, closeFn, err := openManagement(cmd)
			if err != nil {
				return err
			}
			defer closeFn()
			return mgmt.SetPaused(cmd.Context(), true)
		},
	}
	addManagementFlags(cmd)
	return cmd
}

func resumeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Resume a paused projection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgmt, closeFn, err := openManagement(cmd)
			if err != nil {
				return err
			}
			defer closeFn()
			return mgmt.SetPaused(cmd.Context(), false)
		},
	}
	addManagementFlags(cmd)
	return cmd
}
