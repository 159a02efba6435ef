package websocket

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/rocketscienceinc/fourinline-backend/internal/board"
	"github.com/rocketscienceinc/fourinline-backend/internal/entity"
	"github.com/rocketscienceinc/fourinline-backend/internal/matchmaking"
	"github.com/rocketscienceinc/fourinline-backend/internal/pkg"
	"github.com/rocketscienceinc/fourinline-backend/internal/repository"
	"github.com/rocketscienceinc/fourinline-backend/internal/session"
)

type matchFinder interface {
	GetMatch(ctx context.Context, player *entity.Player) (*matchmaking.Match, error)
}

type identityProvider interface {
	GetOrCreate(ctx context.Context, id string) (*entity.Player, error)
	Rename(ctx context.Context, id, name string) error
}

// conn wraps one hijacked client connection; the mutex serializes frames from
// the handler and the asynchronous game pushes.
type conn struct {
	mu    sync.Mutex
	bufrw *bufio.ReadWriter
}

// Options carries the game settings the server hands to every session.
type Options struct {
	Rules        board.Rules
	Prolong      time.Duration
	UnsafeWrites bool
}

type Server struct {
	logger     *slog.Logger
	identity   identityProvider
	matchmaker matchFinder
	closed     repository.ClosedMatchRepository
	opts       Options

	handlers map[string]func(ctx context.Context, message *Message, client *conn) error

	connectionsMutex sync.RWMutex
	connections      map[string]*conn

	sessionsMutex sync.RWMutex
	sessions      map[string]*session.Session
}

func New(logger *slog.Logger, identity identityProvider, matchmaker matchFinder, closed repository.ClosedMatchRepository, opts Options) *Server {
	server := &Server{
		logger:     logger,
		identity:   identity,
		matchmaker: matchmaker,
		closed:     closed,
		opts:       opts,

		handlers:    make(map[string]func(context.Context, *Message, *conn) error),
		connections: make(map[string]*conn),
		sessions:    make(map[string]*session.Session),
	}

	server.handlers["connect"] = server.handleConnect
	server.handlers["match:find"] = server.handleMatchFind
	server.handlers["game:turn"] = server.handleGameTurn
	server.handlers["game:leave"] = server.handleGameLeave
	server.handlers["game:list"] = server.handleGameList

	return server
}

// Start - starts WebSocket server.
func (that *Server) Start(ctx context.Context, port string) error {
	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		that.upgradeToWebSocket(ctx, w, r)
	})

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      http.DefaultServeMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	if err := srv.ListenAndServe(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// upgradeToWebSocket - upgrades the connection to WebSocket.
func (that *Server) upgradeToWebSocket(ctx context.Context, writer http.ResponseWriter, req *http.Request) {
	log := that.logger.With("method", "upgradeConnection")

	if req.Header.Get("Upgrade") != "websocket" {
		http.Error(writer, "not a websocket upgrade", http.StatusBadRequest)
		return
	}

	that.setSessionCookie(writer, req)

	key := req.Header.Get("Sec-WebSocket-Key")
	acceptKey := pkg.GenerateAcceptKey(key)

	writer.Header().Set("Upgrade", "websocket")
	writer.Header().Set("Connection", "Upgrade")
	writer.Header().Set("Sec-WebSocket-Accept", acceptKey)
	writer.WriteHeader(http.StatusSwitchingProtocols)

	hijacker, ok := writer.(http.Hijacker)
	if !ok {
		log.Error("web server does not support hijacking", "error", http.StatusText(http.StatusInternalServerError))
		return
	}

	netConn, bufrw, err := hijacker.Hijack()
	if err != nil {
		log.Error("failed to hijack connection", "error", err)
		return
	}

	defer netConn.Close()

	log.Info("WebSocket connection established")

	client := &conn{bufrw: bufrw}

	if err = that.handleMessages(ctx, client); err != nil {
		log.Error("error handling messages", "error", err)
	}

	that.handleDisconnect(client)
}

// handleMessages - processes messages from the client.
func (that *Server) handleMessages(ctx context.Context, client *conn) error {
	log := that.logger.With("method", "HandleMessages")

	for {
		reqBody, err := that.readRequest(client.bufrw)
		if err != nil {
			log.Error("error reading message", "error", err)
			return err
		}

		var message Message
		if err = json.Unmarshal(reqBody, &message); err != nil {
			log.Error("failed to unmarshal message", "error", err)
			continue
		}

		handler, ok := that.handlers[message.Action]
		if !ok {
			log.Error("unknown action", "action", message.Action)
			continue
		}

		if err = handler(ctx, &message, client); err != nil {
			log.Error("error processing message", "action", message.Action, "error", err)
		}
	}
}

// setSessionCookie - set user session.
func (that *Server) setSessionCookie(writer http.ResponseWriter, req *http.Request) {
	log := that.logger.With("method", "setSessionCookie")

	cookie, err := req.Cookie("user_session")
	if err != nil {
		cookie = &http.Cookie{
			Name:    "user_session",
			Value:   pkg.NewID(),
			Expires: time.Now().Add(24 * time.Hour),
			Path:    "/ws",
		}
		http.SetCookie(writer, cookie)
		log.Info("session cookie not found, new one created", "cookie", cookie.Value)
		return
	}

	log.Info("session cookie found", "cookie", cookie.Value)
}
