package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rocketscienceinc/fourinline-backend/internal/apperror"
	"github.com/rocketscienceinc/fourinline-backend/internal/bot"
	"github.com/rocketscienceinc/fourinline-backend/internal/entity"
	"github.com/rocketscienceinc/fourinline-backend/internal/pkg"
	"github.com/rocketscienceinc/fourinline-backend/internal/session"
)

const (
	modeSolo = "solo"
	modePVP  = "pvp"

	comName = "Com"

	payloadActionGameUpdate = "game:update"
)

func (that *Server) handleConnect(ctx context.Context, msg *Message, client *conn) error {
	log := that.logger.With("method", "handleConnect")

	var payloadReq Payload
	if err := json.Unmarshal(msg.Payload, &payloadReq); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	var requestedID string
	if payloadReq.Player != nil {
		requestedID = payloadReq.Player.ID
	}

	player, err := that.identity.GetOrCreate(ctx, requestedID)
	if err != nil {
		log.Error("failed to create or get player", "error", err)
		return that.sendErrorResponse(client, msg.Action, "failed to create a new player")
	}

	if payloadReq.Player != nil && payloadReq.Player.Name != "" && payloadReq.Player.Name != player.Name {
		if err = that.identity.Rename(ctx, player.ID, payloadReq.Player.Name); err != nil {
			log.Error("failed to rename player", "error", err)
		} else {
			player.Name = payloadReq.Player.Name
		}
	}

	that.connectionsMutex.Lock()
	that.connections[player.ID] = client
	that.connectionsMutex.Unlock()

	if err = that.sendMessage(client, msg.Action, Payload{Player: player}); err != nil {
		return fmt.Errorf("failed to send response: %w", err)
	}

	log.Info("successfully connected player", "playerID", player.ID)

	return nil
}

func (that *Server) handleMatchFind(ctx context.Context, msg *Message, client *conn) error {
	log := that.logger.With("method", "handleMatchFind")

	var payloadReq Payload
	if err := json.Unmarshal(msg.Payload, &payloadReq); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	if payloadReq.Player == nil {
		log.Error("Player is missing in payload")
		return that.sendErrorResponse(client, msg.Action, "Player is required")
	}

	player, err := that.identity.GetOrCreate(ctx, payloadReq.Player.ID)
	if err != nil {
		log.Error("failed to resolve player", "error", err)
		return that.sendErrorResponse(client, msg.Action, "failed to resolve player")
	}

	that.connectionsMutex.Lock()
	that.connections[player.ID] = client
	that.connectionsMutex.Unlock()

	if payloadReq.Mode == modeSolo {
		return that.startSoloGame(msg.Action, player, client)
	}
	if payloadReq.Mode != "" && payloadReq.Mode != modePVP {
		return that.sendErrorResponse(client, msg.Action, fmt.Sprintf("unknown mode %q", payloadReq.Mode))
	}

	// Matchmaking blocks until an opponent shows up; the connection keeps
	// serving other actions meanwhile.
	go that.findLiveGame(ctx, msg.Action, player)

	return nil
}

func (that *Server) startSoloGame(action string, player *entity.Player, client *conn) error {
	log := that.logger.With("method", "startSoloGame", "playerID", player.ID)

	com := &entity.Player{ID: pkg.NewID(), Name: comName, Com: true}
	selector := bot.NewSelector(that.opts.Rules, nil)

	sess := session.NewSolo(that.logger, that.opts.Rules, player, com, selector)
	that.storeSession(player.ID, sess)

	state := sess.State()
	if err := that.sendMessage(client, action, Payload{Player: player, Game: &state}); err != nil {
		return fmt.Errorf("failed to send response: %w", err)
	}

	log.Info("started solo game", "matchID", sess.MatchID())

	return nil
}

func (that *Server) findLiveGame(ctx context.Context, action string, player *entity.Player) {
	log := that.logger.With("method", "findLiveGame", "playerID", player.ID)

	match, err := that.matchmaker.GetMatch(ctx, player)
	if err != nil {
		log.Error("matchmaking failed", "error", err)
		that.pushError(player.ID, action, "matchmaking failed")
		return
	}

	sess := session.NewLive(that.logger, that.opts.Rules, match, that.closed, that.opts.Prolong, that.opts.UnsafeWrites)
	sess.SetOnChange(func(state session.State) {
		that.pushGameUpdate(player.ID, state)
	})

	if err = sess.Start(ctx); err != nil {
		log.Error("failed to start session", "error", err)
		that.pushError(player.ID, action, "failed to start the game")
		return
	}

	that.storeSession(player.ID, sess)

	state := sess.State()
	that.push(player.ID, action, Payload{Player: player, Game: &state})

	log.Info("matched up", "matchID", match.ClosedMatchID, "opponentID", match.Opponent.ID)
}

func (that *Server) handleGameTurn(ctx context.Context, msg *Message, client *conn) error {
	log := that.logger.With("method", "handleGameTurn")

	var payloadReq Payload
	if err := json.Unmarshal(msg.Payload, &payloadReq); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	if payloadReq.Player == nil {
		log.Error("Player is missing in payload")
		return that.sendErrorResponse(client, msg.Action, "Player is required")
	}
	if payloadReq.Column == nil {
		log.Error("Column is missing in payload")
		return that.sendErrorResponse(client, msg.Action, "Column is required")
	}

	sess := that.lookupSession(payloadReq.Player.ID)
	if sess == nil {
		return that.sendErrorResponse(client, msg.Action, "no active game")
	}

	state, err := sess.PlaceMove(ctx, *payloadReq.Column)
	switch {
	case errors.Is(err, apperror.ErrGameFinished),
		errors.Is(err, apperror.ErrNotYourTurn),
		errors.Is(err, apperror.ErrOutOfBounds),
		errors.Is(err, apperror.ErrColumnFull):
		return that.sendErrorResponse(client, msg.Action, err.Error())
	case err != nil:
		log.Error("failed to make turn", "error", err)
		return that.sendErrorResponse(client, msg.Action, "failed to make the turn")
	}

	if err = that.sendMessage(client, msg.Action, Payload{Player: payloadReq.Player, Game: &state}); err != nil {
		return fmt.Errorf("failed to send response: %w", err)
	}

	log.Info("player made a turn", "playerID", payloadReq.Player.ID, "column", *payloadReq.Column)

	return nil
}

func (that *Server) handleGameLeave(ctx context.Context, msg *Message, client *conn) error {
	log := that.logger.With("method", "handleGameLeave")

	var payloadReq Payload
	if err := json.Unmarshal(msg.Payload, &payloadReq); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	if payloadReq.Player == nil {
		log.Error("Player is missing in payload")
		return that.sendErrorResponse(client, msg.Action, "Player is required")
	}

	sess := that.lookupSession(payloadReq.Player.ID)
	if sess == nil {
		return that.sendErrorResponse(client, msg.Action, "no active game")
	}

	state, err := sess.Resign(ctx)
	if err != nil && !errors.Is(err, apperror.ErrGameFinished) {
		log.Error("failed to resign", "error", err)
		return that.sendErrorResponse(client, msg.Action, "failed to leave the game")
	}

	sess.Close()
	that.dropSession(payloadReq.Player.ID)

	if err = that.sendMessage(client, msg.Action, Payload{Player: payloadReq.Player, Game: &state}); err != nil {
		return fmt.Errorf("failed to send response: %w", err)
	}

	log.Info("player left the game", "playerID", payloadReq.Player.ID)

	return nil
}

func (that *Server) handleGameList(ctx context.Context, msg *Message, client *conn) error {
	log := that.logger.With("method", "handleGameList")

	docs, err := that.closed.ListByExpiry(ctx)
	if err != nil {
		log.Error("failed to list games", "error", err)
		return that.sendErrorResponse(client, msg.Action, "failed to list games")
	}

	games := make([]GameSummary, 0, len(docs))
	for _, doc := range docs {
		games = append(games, GameSummary{
			MatchID:        doc.ID,
			RegistererName: doc.Match.RegistererName,
			OpponentName:   doc.Match.OpponentName,
			Moves:          doc.Match.Logs.Placements(),
			ExpiresAt:      doc.Match.ExpiresAt,
		})
	}

	if err = that.sendMessage(client, msg.Action, Payload{Games: games}); err != nil {
		return fmt.Errorf("failed to send response: %w", err)
	}

	return nil
}

func (that *Server) handleDisconnect(client *conn) {
	log := that.logger.With("method", "handleDisconnect")

	that.connectionsMutex.Lock()
	var disconnectedPlayerID string
	for playerID, connection := range that.connections {
		if connection == client {
			disconnectedPlayerID = playerID
			break
		}
	}

	if disconnectedPlayerID == "" {
		that.connectionsMutex.Unlock()
		return
	}

	delete(that.connections, disconnectedPlayerID)
	that.connectionsMutex.Unlock()

	// The session stays alive: the game can be picked back up on reconnect,
	// and the opponent keeps playing against the persisted log meanwhile.
	log.Info("player disconnected", "playerID", disconnectedPlayerID)
}

func (that *Server) storeSession(playerID string, sess *session.Session) {
	that.sessionsMutex.Lock()
	defer that.sessionsMutex.Unlock()

	if previous, ok := that.sessions[playerID]; ok {
		previous.Close()
	}
	that.sessions[playerID] = sess
}

func (that *Server) lookupSession(playerID string) *session.Session {
	that.sessionsMutex.RLock()
	defer that.sessionsMutex.RUnlock()
	return that.sessions[playerID]
}

func (that *Server) dropSession(playerID string) {
	that.sessionsMutex.Lock()
	defer that.sessionsMutex.Unlock()
	delete(that.sessions, playerID)
}

// pushGameUpdate forwards a remote move to the player's connection, if any.
func (that *Server) pushGameUpdate(playerID string, state session.State) {
	that.push(playerID, payloadActionGameUpdate, Payload{Game: &state})
}

func (that *Server) push(playerID, action string, payload Payload) {
	that.connectionsMutex.RLock()
	client, ok := that.connections[playerID]
	that.connectionsMutex.RUnlock()

	if !ok {
		return
	}

	if err := that.sendMessage(client, action, payload); err != nil {
		that.logger.Error("failed to push message", "playerID", playerID, "action", action, "error", err)
	}
}

func (that *Server) pushError(playerID, action, errorMsg string) {
	that.push(playerID, action, Payload{Error: errorMsg})
}

func (that *Server) sendErrorResponse(client *conn, action, errorMsg string) error {
	if err := that.sendMessage(client, action, Payload{Error: errorMsg}); err != nil {
		return fmt.Errorf("failed to send error response: %w", err)
	}

	return nil
}
