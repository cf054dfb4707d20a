package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/wfunc/tictacserver/dispatcher"
	"github.com/wfunc/tictacserver/logger"
	"github.com/wfunc/tictacserver/monitor"
	"github.com/wfunc/tictacserver/network"
	tictac_rpc "github.com/wfunc/tictacserver/rpc"
	"github.com/wfunc/tictacserver/services"
	"github.com/wfunc/tictacserver/session"
)

// Options 连接相关配置
type Options struct {
	Heartbeat       time.Duration
	MaxMessageBytes int64
}

type GameServer struct {
	addr           string
	httpServer     *http.Server
	upgrader       websocket.Upgrader
	sessionManager *session.Manager
	dispatcher     *dispatcher.Dispatcher
	stats          *services.StatsService
	monitor        *monitor.Monitor
	rpcServer      *tictac_rpc.Server
	opts           Options
	shutdownChan   chan struct{}
	shutdownOnce   sync.Once
	connections    sync.WaitGroup
}

func NewGameServer(addr string, sessions *session.Manager, d *dispatcher.Dispatcher, stats *services.StatsService, mon *monitor.Monitor, opts Options) *GameServer {
	s := &GameServer{
		addr:           addr,
		sessionManager: sessions,
		dispatcher:     d,
		stats:          stats,
		monitor:        mon,
		opts:           opts,
		shutdownChan:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有跨域请求
			},
		},
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// WithRPC attaches an RPC server started and stopped with the game server.
func (s *GameServer) WithRPC(rs *tictac_rpc.Server) *GameServer {
	s.rpcServer = rs
	return s
}

// Router builds the HTTP routes.
func (s *GameServer) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/ws", s.handleWebSocket)
	r.HandleFunc("/stats/{game_id}", s.handleRoomStats).Methods(http.MethodGet)
	r.HandleFunc("/players/{name}/record", s.handlePlayerRecord).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", s.monitor.Handler()).Methods(http.MethodGet)
	return r
}

// Start serves HTTP until Shutdown. It returns nil after a clean shutdown.
func (s *GameServer) Start() error {
	if s.rpcServer != nil {
		go s.rpcServer.Start()
	}
	s.dispatcher.Start()

	logger.Log.Infof("Game server listening on %s", s.addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections, closes the open ones and waits for
// their handlers to finish or ctx to expire.
func (s *GameServer) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		close(s.shutdownChan)
		if s.rpcServer != nil {
			s.rpcServer.Stop()
		}
		s.dispatcher.Stop()

		err = s.httpServer.Shutdown(ctx)
		// 被劫持的 websocket 连接不受 http.Server.Shutdown 管理
		s.sessionManager.CloseAll()

		done := make(chan struct{})
		go func() {
			s.connections.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			if err == nil {
				err = ctx.Err()
			}
		}
	})
	return err
}

func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	select {
	case <-s.shutdownChan:
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	s.connections.Add(1)
	defer s.connections.Done()
	s.handleConnection(r.Context(), conn)
}

func (s *GameServer) handleConnection(ctx context.Context, conn *websocket.Conn) {
	wsConn := network.NewWSConnection(conn, s.opts.MaxMessageBytes)
	sess := session.NewSession(session.NewToken(), wsConn)
	s.sessionManager.Add(sess)
	s.monitor.IncOnlineConnections()
	wsConn.SetHeartbeat(s.opts.Heartbeat)

	logger.Log.Infow("connection opened", "remote", wsConn.RemoteAddr(), "session", sess.GetID())

	defer func() {
		logger.Log.Infow("connection closed", "remote", wsConn.RemoteAddr(), "session", sess.GetID())
		s.dispatcher.Disconnect(sess)
		s.sessionManager.Remove(sess.GetID())
		s.monitor.DecOnlineConnections()
		wsConn.Close()
	}()

	for {
		select {
		case <-s.shutdownChan:
			return
		default:
		}

		msg, err := wsConn.ReadMessage()
		if err != nil {
			if errors.Is(err, network.ErrMalformedMessage) {
				logger.Log.Debugw("malformed frame", "session", sess.GetID(), "error", err)
				_ = sess.Send(network.EventError, dispatcher.ErrorPayload{Code: dispatcher.CodeInvalidPayload, Message: "frame is not an event envelope"})
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Log.Infow("read failed", "session", sess.GetID(), "error", err)
			}
			return
		}

		if err := s.dispatcher.Handle(ctx, sess, msg); err != nil {
			logger.Log.Debugw("event rejected", "session", sess.GetID(), "event", msg.Event, "error", err)
		}
	}
}

func (s *GameServer) handleRoomStats(w http.ResponseWriter, r *http.Request) {
	gameID := mux.Vars(r)["game_id"]

	stats, err := s.stats.RoomStats(r.Context(), gameID)
	if err != nil {
		if errors.Is(err, services.ErrRoomNotFound) {
			http.Error(w, "Game not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *GameServer) handlePlayerRecord(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	record, err := s.stats.PlayerRecord(r.Context(), name)
	if err != nil {
		if errors.Is(err, services.ErrPlayerNotFound) {
			http.Error(w, "Player not found", http.StatusNotFound)
			return
		}
		logger.Log.Errorw("player record lookup failed", "player", name, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *GameServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"connections": s.sessionManager.Count(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.Warnw("encode response failed", "error", err)
	}
}
