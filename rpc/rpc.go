package rpc

import (
	"context"
	"errors"
	"io"
	"net"
	"net/rpc"
	"time"

	"github.com/wfunc/tictacserver/game"
	"github.com/wfunc/tictacserver/logger"
	"github.com/wfunc/tictacserver/models"
	"github.com/wfunc/tictacserver/services"
)

const callTimeout = 5 * time.Second

// Server manages the RPC listener.
type Server struct {
	listener net.Listener
	address  string
	rpc      *rpc.Server
}

// NewServer creates a new RPC server with StatsRPC registered.
func NewServer(addr string, stats *services.StatsService) (*Server, error) {
	rs := rpc.NewServer()
	if err := rs.RegisterName("StatsRPC", NewStatsRPC(stats)); err != nil {
		return nil, err
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: listener,
		address:  listener.Addr().String(),
		rpc:      rs,
	}, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.address
}

// Start begins listening for RPC requests.
func (s *Server) Start() {
	logger.Log.Infof("RPC server listening on %s", s.address)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			// Check if the error is due to the listener being closed.
			if errors.Is(err, net.ErrClosed) {
				logger.Log.Info("RPC server listener closed.")
				return
			}
			logger.Log.Errorf("RPC server accept error: %v", err)
			continue
		}
		go s.ServeConn(conn)
	}
}

// ServeConn serves a single connection until the client hangs up.
func (s *Server) ServeConn(conn io.ReadWriteCloser) {
	s.rpc.ServeConn(conn)
}

// Stop closes the RPC listener.
func (s *Server) Stop() {
	if s.listener != nil {
		logger.Log.Info("Stopping RPC server.")
		s.listener.Close()
	}
}

// StatsRPC is the struct that exposes RPC methods.
type StatsRPC struct {
	stats *services.StatsService
}

// NewStatsRPC creates a new StatsRPC.
func NewStatsRPC(stats *services.StatsService) *StatsRPC {
	return &StatsRPC{stats: stats}
}

// RPC methods must follow the net/rpc signature: exported method, exported
// arguments, second argument is a pointer, return type is error.
type RoomStatsArgs struct {
	GameID string
}

type RoomStatsReply struct {
	Stats game.Stats
}

type PlayerRecordArgs struct {
	Name string
}

type PlayerRecordReply struct {
	Record models.PlayerRecord
}

// GetRoomStats 查询房间统计
func (r *StatsRPC) GetRoomStats(args *RoomStatsArgs, reply *RoomStatsReply) error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	stats, err := r.stats.RoomStats(ctx, args.GameID)
	if err != nil {
		return err
	}
	reply.Stats = stats
	return nil
}

// GetPlayerRecord 查询玩家战绩
func (r *StatsRPC) GetPlayerRecord(args *PlayerRecordArgs, reply *PlayerRecordReply) error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	record, err := r.stats.PlayerRecord(ctx, args.Name)
	if err != nil {
		return err
	}
	reply.Record = record
	return nil
}
