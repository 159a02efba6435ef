package entity

import "time"

const (
	ColOpened = "match_opened"
	ColClosed = "match_closed"
)

// OpenedMatch is a rendezvous advertisement: a registerer waiting for an
// opponent to claim it. The claiming opponent writes its identity into the
// opponent fields; the registerer answers with the closed match id.
type OpenedMatch struct {
	CreatedAt      time.Time `json:"created_at"`
	RegistererID   string    `json:"registerer_id"`
	RegistererName string    `json:"registerer_name"`
	OpponentID     string    `json:"opponent_id,omitempty"`
	OpponentName   string    `json:"opponent_name,omitempty"`
	ClosedMatchID  string    `json:"closed_match_id,omitempty"`
	ExpiresAt      time.Time `json:"expires_at"`
}

func NewOpenedMatch(registerer *Player, ttl time.Duration) *OpenedMatch {
	now := time.Now()
	return &OpenedMatch{
		CreatedAt:      now,
		RegistererID:   registerer.ID,
		RegistererName: registerer.Name,
		ExpiresAt:      now.Add(ttl),
	}
}

func (that *OpenedMatch) IsClaimed() bool {
	return that.OpponentID != ""
}

func (that *OpenedMatch) IsActive(now time.Time) bool {
	return that.ExpiresAt.After(now)
}

// ClosedMatch is the authoritative game record once both sides are bound. The
// document doubles as the live game store: both sessions append to Logs, and
// LogVersion guards the append against lost updates. ExpiresAt is renewed on
// every persisted move.
type ClosedMatch struct {
	CreatedAt      time.Time `json:"created_at"`
	RegistererID   string    `json:"registerer_id"`
	RegistererName string    `json:"registerer_name"`
	OpponentID     string    `json:"opponent_id"`
	OpponentName   string    `json:"opponent_name"`
	Logs           Log       `json:"logs"`
	LogVersion     int       `json:"log_version"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// Close builds the closed match for a claimed advertisement.
func (that *OpenedMatch) Close(ttl time.Duration) *ClosedMatch {
	now := time.Now()
	return &ClosedMatch{
		CreatedAt:      now,
		RegistererID:   that.RegistererID,
		RegistererName: that.RegistererName,
		OpponentID:     that.OpponentID,
		OpponentName:   that.OpponentName,
		Logs:           Log{},
		ExpiresAt:      now.Add(ttl),
	}
}
