package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wfunc/tictacserver/broadcast"
	"github.com/wfunc/tictacserver/config"
	"github.com/wfunc/tictacserver/dispatcher"
	"github.com/wfunc/tictacserver/game"
	"github.com/wfunc/tictacserver/logger"
	"github.com/wfunc/tictacserver/monitor"
	"github.com/wfunc/tictacserver/persistence"
	"github.com/wfunc/tictacserver/room"
	tictac_rpc "github.com/wfunc/tictacserver/rpc"
	"github.com/wfunc/tictacserver/server"
	"github.com/wfunc/tictacserver/services"
	"github.com/wfunc/tictacserver/session"
	"github.com/wfunc/tictacserver/timer"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "tictacserver",
		Short:        "Real-time two-player tic-tac-toe server",
		SilenceUsage: true,
	}
	rootCmd.AddCommand(newServeCmd())
	return rootCmd
}

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the websocket game server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			logger.Init(cfg.Log.Level)
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", ".", "directory containing config.yaml")
	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	archive, err := persistence.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer archive.Close()
	logger.Log.Infow("match archive ready", "driver", cfg.Database.Driver)

	rooms := room.NewRoomManager(game.WithHistoryLimit(cfg.Room.HistoryLimit))
	sessions := session.NewManager()
	timers := timer.NewTimerManager()
	defer timers.Stop()
	mon := monitor.NewMonitor("tictac")

	d := dispatcher.New(rooms, broadcast.NewRoomBroadcaster(rooms, sessions), archive, timers, mon, dispatcher.Options{
		IdleTimeout: cfg.Room.IdleTimeout,
		EndGrace:    cfg.Room.EndGrace,
	})
	stats := services.NewStatsService(rooms, archive, cfg.Room.StatsHistory)

	gameServer := server.NewGameServer(cfg.Server.HTTPAddress, sessions, d, stats, mon, server.Options{
		Heartbeat:       cfg.WebSocket.Heartbeat,
		MaxMessageBytes: cfg.WebSocket.MaxMessageBytes,
	})
	if cfg.Server.RPCAddress != "" {
		rpcServer, err := tictac_rpc.NewServer(cfg.Server.RPCAddress, stats)
		if err != nil {
			return fmt.Errorf("start rpc server: %w", err)
		}
		gameServer.WithRPC(rpcServer)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- gameServer.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := gameServer.Shutdown(shutdownCtx); err != nil {
		logger.Log.Warnw("shutdown incomplete", "error", err)
	}
	return <-errCh
}
