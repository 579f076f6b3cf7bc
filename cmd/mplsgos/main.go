// mplsgos runs MPLS network scenarios with GoS extensions
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/iti/mplsgos"
)

// CommandPather returns the path to a command
type CommandPather interface {
	CommandPath() string
}

func main() {
	var flags struct {
		logDir   string
		logLevel string
	}
	cmd := &cobra.Command{
		Use:           "mplsgos",
		Short:         "Simulate an MPLS network with guarantee of service",
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(flags.logDir, flags.logLevel)
		},
	}
	cmd.PersistentFlags().StringVar(&flags.logDir, "log-dir", "",
		"Directory for the rotated log file, stdout only if empty")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "info",
		"Log level (debug, info, warn, error)")
	cmd.AddCommand(
		newRun(cmd),
		newValidate(cmd),
		newExample(cmd),
	)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setupLogging sends the log to stdout and, if logDir is given, to a rotated file
func setupLogging(logDir, level string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return err
	}
	logger := log.New()
	logger.SetLevel(lvl)
	logger.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	var out io.Writer = os.Stdout
	if len(logDir) > 0 {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return err
		}
		fileLogger := &lumberjack.Logger{
			Filename:   filepath.Join(logDir, "mplsgos.log"),
			MaxSize:    100, // MB
			MaxBackups: 7,
			MaxAge:     30, // days
			Compress:   true,
		}
		out = io.MultiWriter(os.Stdout, fileLogger)
	}
	logger.SetOutput(out)
	mplsgos.SetLogger(logger)
	return nil
}
