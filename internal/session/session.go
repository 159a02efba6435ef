package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rocketscienceinc/fourinline-backend/internal/apperror"
	"github.com/rocketscienceinc/fourinline-backend/internal/board"
	"github.com/rocketscienceinc/fourinline-backend/internal/bot"
	"github.com/rocketscienceinc/fourinline-backend/internal/docstore"
	"github.com/rocketscienceinc/fourinline-backend/internal/entity"
	"github.com/rocketscienceinc/fourinline-backend/internal/matchmaking"
	"github.com/rocketscienceinc/fourinline-backend/internal/pkg"
	"github.com/rocketscienceinc/fourinline-backend/internal/repository"
)

const (
	StatusOngoing  = "ongoing"
	StatusFinished = "finished"
)

const persistAttempts = 3

// State is the client-facing snapshot of a game: everything derived from the
// log, viewed from one player's side.
type State struct {
	MatchID  string         `json:"match_id"`
	You      *entity.Player `json:"you"`
	Opponent *entity.Player `json:"opponent"`
	Turn     string         `json:"turn,omitempty"`
	Status   string         `json:"status"`
	Result   string         `json:"result,omitempty"`
	Logs     entity.Log     `json:"logs"`
	Board    board.Board    `json:"board"`
}

// Session runs one game for one player. Solo sessions answer every move with
// an automated reply; live sessions persist the log to the shared match
// record and fold remote moves in through a watch.
type Session struct {
	mu sync.Mutex

	logger  *slog.Logger
	rules   board.Rules
	matchID string

	you       *entity.Player
	opponent  *entity.Player
	creatorID string

	logs       entity.Log
	logVersion int
	result     string

	selector *bot.Selector

	closed       repository.ClosedMatchRepository
	prolong      time.Duration
	unsafeWrites bool
	sub          docstore.Subscription

	onChange func(State)
}

// NewSolo starts a local game against the automated opponent. The human
// always opens.
func NewSolo(logger *slog.Logger, rules board.Rules, you, com *entity.Player, selector *bot.Selector) *Session {
	return &Session{
		logger:    logger.With("component", "session", "mode", "solo"),
		rules:     rules,
		matchID:   pkg.NewID(),
		you:       you,
		opponent:  com,
		creatorID: you.ID,
		logs:      entity.Log{}.Prepend(entity.NewStartEntry()),
		selector:  selector,
	}
}

// NewLive binds a session to the closed match resolved by matchmaking. The
// registerer side moves first.
func NewLive(
	logger *slog.Logger,
	rules board.Rules,
	match *matchmaking.Match,
	closed repository.ClosedMatchRepository,
	prolong time.Duration,
	unsafeWrites bool,
) *Session {
	creatorID := match.Opponent.ID
	if match.MovesFirst {
		creatorID = match.You.ID
	}

	return &Session{
		logger:       logger.With("component", "session", "mode", "live", "match_id", match.ClosedMatchID),
		rules:        rules,
		matchID:      match.ClosedMatchID,
		you:          match.You,
		opponent:     match.Opponent,
		creatorID:    creatorID,
		logs:         entity.Log{},
		closed:       closed,
		prolong:      prolong,
		unsafeWrites: unsafeWrites,
	}
}

// SetOnChange registers the callback fired when a remote move lands. Set it
// before Start.
func (that *Session) SetOnChange(fn func(State)) {
	that.mu.Lock()
	defer that.mu.Unlock()
	that.onChange = fn
}

// Start loads the current match record and begins folding remote updates in.
// Solo sessions have nothing to start.
func (that *Session) Start(ctx context.Context) error {
	if that.closed == nil {
		return nil
	}

	record, err := that.closed.GetByID(ctx, that.matchID)
	if err != nil {
		return err
	}

	sub, err := that.closed.Watch(ctx, that.matchID)
	if err != nil {
		return err
	}

	that.mu.Lock()
	that.adoptLocked(record)
	that.sub = sub
	that.mu.Unlock()

	go that.consume(sub)

	return nil
}

func (that *Session) consume(sub docstore.Subscription) {
	for snapshot := range sub.Updates() {
		if !snapshot.Exists {
			continue
		}

		record, err := repository.DecodeClosedMatch(snapshot)
		if err != nil {
			that.logger.Error("failed to decode match update", "error", err)
			continue
		}

		that.mu.Lock()
		changed := len(record.Logs) > len(that.logs)
		that.adoptLocked(record)
		state := that.stateLocked()
		notify := that.onChange
		that.mu.Unlock()

		if changed && notify != nil {
			notify(state)
		}
	}
}

// adoptLocked folds a remote record into the session. A shorter remote log is
// a stale snapshot and never rolls the session back.
func (that *Session) adoptLocked(record *entity.ClosedMatch) {
	if record.LogVersion > that.logVersion {
		that.logVersion = record.LogVersion
	}
	if len(record.Logs) > len(that.logs) {
		that.logs = record.Logs
		that.refreshResultLocked()
	}
}

// PlaceMove drops your disc into the column, appends the outcome entries, and
// in live mode persists the new log. A concurrent write is retried against
// the freshly adopted record a few times before the conflict is surfaced.
func (that *Session) PlaceMove(ctx context.Context, column int) (State, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	for attempt := 0; ; attempt++ {
		next, err := that.extendLogLocked(column)
		if err != nil {
			return that.stateLocked(), err
		}

		if that.closed == nil {
			that.logs = next
			that.refreshResultLocked()
			that.soloReplyLocked()
			return that.stateLocked(), nil
		}

		if err = that.persist(ctx, next); err == nil {
			that.logs = next
			that.logVersion++
			that.refreshResultLocked()
			return that.stateLocked(), nil
		}

		if !errors.Is(err, apperror.ErrConflict) || attempt+1 >= persistAttempts {
			return that.stateLocked(), err
		}

		record, getErr := that.closed.GetByID(ctx, that.matchID)
		if getErr != nil {
			return that.stateLocked(), getErr
		}
		that.adoptLocked(record)
	}
}

// extendLogLocked validates the move and returns the log with the placement
// and any terminal entries appended.
func (that *Session) extendLogLocked(column int) (entity.Log, error) {
	if that.result != board.ResultNone {
		return nil, apperror.ErrGameFinished
	}
	if column < 0 || column >= that.rules.Cols {
		return nil, apperror.ErrOutOfBounds
	}
	if that.turnLocked() != that.you.ID {
		return nil, apperror.ErrNotYourTurn
	}

	stacks := board.FromLog(that.rules, that.you.ID, that.logs)
	row := stacks.Height(column)
	if row >= that.rules.Rows {
		return nil, apperror.ErrColumnFull
	}

	next := that.logs.Prepend(entity.NewPlaceEntry(that.you.ID, column, row))

	switch board.Winner(that.rules, that.you.ID, next) {
	case board.ResultYou:
		next = next.Prepend(entity.NewDefeatEntry(that.opponent.ID))
	case board.ResultDraw:
		next = next.Prepend(entity.NewDrawEntry(that.you.ID))
	}

	return next, nil
}

// soloReplyLocked lets the automated opponent answer the move.
func (that *Session) soloReplyLocked() {
	if that.selector == nil || that.result != board.ResultNone {
		return
	}

	column, err := that.selector.ChooseColumn(that.logs, that.opponent.ID)
	if err != nil {
		that.logger.Error("automated opponent has no move", "error", err)
		return
	}

	stacks := board.FromLog(that.rules, that.opponent.ID, that.logs)
	next := that.logs.Prepend(entity.NewPlaceEntry(that.opponent.ID, column, stacks.Height(column)))

	switch board.Winner(that.rules, that.you.ID, next) {
	case board.ResultOpponent:
		next = next.Prepend(entity.NewDefeatEntry(that.you.ID))
	case board.ResultDraw:
		next = next.Prepend(entity.NewDrawEntry(that.opponent.ID))
	}

	that.logs = next
	that.refreshResultLocked()
}

func (that *Session) persist(ctx context.Context, logs entity.Log) error {
	if that.unsafeWrites {
		return that.closed.ForceLogs(ctx, that.matchID, logs, that.prolong)
	}
	return that.closed.UpdateLogs(ctx, that.matchID, logs, that.logVersion, that.prolong)
}

// Resign concedes the game. In live mode the resignation entry is persisted
// like any move: a concurrent write is retried against the freshly adopted
// record before the conflict is surfaced.
func (that *Session) Resign(ctx context.Context) (State, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	for attempt := 0; ; attempt++ {
		if that.result != board.ResultNone {
			return that.stateLocked(), apperror.ErrGameFinished
		}

		next := that.logs.Prepend(entity.NewResignEntry(that.you.ID))

		if that.closed == nil {
			that.logs = next
			that.refreshResultLocked()
			return that.stateLocked(), nil
		}

		err := that.persist(ctx, next)
		if err == nil {
			that.logs = next
			that.logVersion++
			that.refreshResultLocked()
			return that.stateLocked(), nil
		}

		if !errors.Is(err, apperror.ErrConflict) || attempt+1 >= persistAttempts {
			return that.stateLocked(), fmt.Errorf("failed to persist resignation: %w", err)
		}

		record, getErr := that.closed.GetByID(ctx, that.matchID)
		if getErr != nil {
			return that.stateLocked(), getErr
		}
		that.adoptLocked(record)
	}
}

// Close tears the remote watch down.
func (that *Session) Close() {
	that.mu.Lock()
	sub := that.sub
	that.sub = nil
	that.mu.Unlock()

	if sub != nil {
		sub.Close()
	}
}

// State returns the current snapshot.
func (that *Session) State() State {
	that.mu.Lock()
	defer that.mu.Unlock()
	return that.stateLocked()
}

func (that *Session) MatchID() string {
	return that.matchID
}

// turnLocked derives whose turn it is from placement parity; the creator
// always opens.
func (that *Session) turnLocked() string {
	other := that.opponent.ID
	if that.creatorID == that.opponent.ID {
		other = that.you.ID
	}

	if that.logs.Placements()%2 == 0 {
		return that.creatorID
	}
	return other
}

// refreshResultLocked recomputes the verdict: explicit terminal entries win
// over the board scan.
func (that *Session) refreshResultLocked() {
	for _, entry := range that.logs {
		switch entry.Action {
		case entity.ActionDraw:
			that.result = board.ResultDraw
			return
		case entity.ActionDefeat, entity.ActionResign:
			if entry.PlayerID == that.you.ID {
				that.result = board.ResultOpponent
			} else {
				that.result = board.ResultYou
			}
			return
		}
	}

	that.result = board.Winner(that.rules, that.you.ID, that.logs)
}

func (that *Session) stateLocked() State {
	state := State{
		MatchID:  that.matchID,
		You:      that.you,
		Opponent: that.opponent,
		Status:   StatusOngoing,
		Result:   that.result,
		Logs:     that.logs,
		Board:    board.FromLog(that.rules, that.you.ID, that.logs),
	}

	if that.result != board.ResultNone {
		state.Status = StatusFinished
	} else {
		state.Turn = that.turnLocked()
	}

	return state
}
