package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/gobeaver/diskkit"
	_ "github.com/gobeaver/diskkit/driver/local"
	_ "github.com/gobeaver/diskkit/driver/memory"
	_ "github.com/gobeaver/diskkit/driver/s3"
	_ "github.com/gobeaver/diskkit/driver/sftp"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		logrus.Fatal(err)
	}
}

// app holds the state shared by every subcommand of one invocation.
type app struct {
	configFile string
	envPrefix  string
	disk       string
	logLevel   string
	logFormat  string

	out      io.Writer
	registry *diskkit.Registry
	storage  *diskkit.Storage
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out}

	rootCmd := &cobra.Command{
		Use:   "diskkit",
		Short: "Work with the files on configured storage disks",
		Long: `diskkit reads a registry of named disks (local directories, S3 buckets,
SFTP servers) and runs file operations against one of them.

The registry comes from --config, or from environment variables with the
--env-prefix prefix when no file is given.`,
		Version:           fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.teardown()
		},
	}
	rootCmd.SetOut(out)

	rootCmd.PersistentFlags().StringVarP(&a.configFile, "config", "c", "", "Disk registry file (yaml, json or toml)")
	rootCmd.PersistentFlags().StringVar(&a.envPrefix, "env-prefix", diskkit.DefaultEnvPrefix, "Environment variable prefix used when no config file is given")
	rootCmd.PersistentFlags().StringVarP(&a.disk, "disk", "d", "", "Disk to operate on (default is the \"local\" disk)")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&a.logFormat, "log-format", "text", "Log format (text, json)")

	rootCmd.AddCommand(
		a.disksCmd(),
		a.lsCmd(),
		a.findCmd(),
		a.catCmd(),
		a.putCmd(),
		a.rmCmd(),
		a.existsCmd(),
		a.mvCmd(),
		a.statCmd(),
		a.mkdirCmd(),
		a.rmdirCmd(),
		a.sumCmd(),
	)

	return rootCmd
}

func (a *app) setup(cmd *cobra.Command, args []string) error {
	setupLogging(a.logLevel, a.logFormat)

	var err error
	if a.configFile != "" {
		a.registry, err = diskkit.LoadRegistry(a.configFile)
	} else {
		a.registry, err = diskkit.LoadRegistryFromEnv(a.envPrefix)
	}
	if err != nil {
		return fmt.Errorf("failed to load disk registry: %w", err)
	}

	a.storage = diskkit.New(a.registry, diskkit.WithLogger(logrus.StandardLogger()))
	if a.disk != "" {
		a.storage.Use(a.disk)
	}

	logrus.WithFields(logrus.Fields{
		"disks":  a.registry.Names(),
		"active": a.storage.ActiveDisk(),
	}).Debug("Disk registry loaded")

	return nil
}

func (a *app) teardown() error {
	if a.storage == nil {
		return nil
	}
	return a.storage.Close()
}

func setupLogging(level, format string) {
	switch format {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	}

	switch level {
	case "debug":
		logrus.SetLevel(logrus.DebugLevel)
	case "info":
		logrus.SetLevel(logrus.InfoLevel)
	case "warn":
		logrus.SetLevel(logrus.WarnLevel)
	case "error":
		logrus.SetLevel(logrus.ErrorLevel)
	default:
		logrus.SetLevel(logrus.WarnLevel)
	}
}
