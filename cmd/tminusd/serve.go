package main

import (
	"errors"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/RamXX/tminus-sub002/internal/daemon"
	"github.com/RamXX/tminus-sub002/internal/queue"
	"github.com/RamXX/tminus-sub002/internal/rpc"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the actor fleet daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cfg.LogFile)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		var q queue.Queue
		if cfg.EmbedNATS {
			ns, err := daemon.StartNATSServer(daemon.NATSConfig{
				StoreDir: filepath.Join(cfg.DataDir, "nats"),
				Token:    cfg.AuthToken,
			})
			if err != nil {
				return err
			}
			defer ns.Shutdown()
			logger.Info("embedded NATS started", "port", ns.Port())

			q, err = queue.NewNATSWithConn(ns.Conn())
			if err != nil {
				return err
			}
		} else {
			nq, err := queue.NewNATS(cfg.NATSURL)
			if err != nil {
				return err
			}
			defer nq.Close()
			q = nq
		}

		fleet, err := rpc.NewFleet(cfg.DataDir, q)
		if err != nil {
			return err
		}
		defer fleet.Close()

		server := rpc.NewHTTPServer(rpc.NewServer(fleet), cfg.ListenAddr, cfg.AuthToken)
		logger.Info("listening", "addr", cfg.ListenAddr, "data_dir", cfg.DataDir)

		if err := server.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		logger.Info("shutdown complete")
		return nil
	},
}
