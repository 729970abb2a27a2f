package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/RamXX/tminus-sub002/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "tminusd",
	Short:         "Per-user calendar graph daemon",
	Long:          "tminusd hosts a fleet of per-user calendar actors behind an HTTP+JSON operation surface.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to yaml config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(verifyCertCmd)
}

func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

// newLogger builds the daemon logger. With a log file configured, output
// goes to stderr and a size-rotated file.
func newLogger(logFile string) *slog.Logger {
	var w io.Writer = os.Stderr
	if logFile != "" {
		w = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		})
	}
	return slog.New(slog.NewJSONHandler(w, nil))
}
