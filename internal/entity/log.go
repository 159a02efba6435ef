package entity

import "time"

const (
	ActionStart  = "start"
	ActionPlace  = "place"
	ActionResign = "resign"
	ActionDraw   = "draw"
	ActionDefeat = "defeat"
)

// LogEntry is one record of a match log. For placements PlayerID is the acting
// player and Column the target column; for terminal entries (defeat, draw,
// resign) PlayerID names the losing or drawing player. Timestamps are
// advisory, ordering comes from the position in the log.
type LogEntry struct {
	Action    string    `json:"action"`
	PlayerID  string    `json:"player_id,omitempty"`
	Column    int       `json:"column"`
	Row       int       `json:"row"`
	CreatedAt time.Time `json:"created_at"`
}

func NewStartEntry() LogEntry {
	return LogEntry{Action: ActionStart, CreatedAt: time.Now()}
}

func NewPlaceEntry(playerID string, column, row int) LogEntry {
	return LogEntry{Action: ActionPlace, PlayerID: playerID, Column: column, Row: row, CreatedAt: time.Now()}
}

func NewResignEntry(playerID string) LogEntry {
	return LogEntry{Action: ActionResign, PlayerID: playerID, CreatedAt: time.Now()}
}

func NewDrawEntry(playerID string) LogEntry {
	return LogEntry{Action: ActionDraw, PlayerID: playerID, CreatedAt: time.Now()}
}

func NewDefeatEntry(loserID string) LogEntry {
	return LogEntry{Action: ActionDefeat, PlayerID: loserID, CreatedAt: time.Now()}
}

// Log is the append-only move log, newest entry first. It is the single
// source of truth for the board, which is only ever derived from it.
type Log []LogEntry

// Prepend inserts an entry at the head of the log.
func (that Log) Prepend(entry LogEntry) Log {
	return append(Log{entry}, that...)
}

// Placements counts the place entries in the log.
func (that Log) Placements() int {
	count := 0
	for _, entry := range that {
		if entry.Action == ActionPlace {
			count++
		}
	}
	return count
}

// Finished reports whether the log carries a terminal entry.
func (that Log) Finished() bool {
	for _, entry := range that {
		switch entry.Action {
		case ActionDefeat, ActionDraw, ActionResign:
			return true
		}
	}
	return false
}
