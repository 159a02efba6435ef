package entity

// Player identifies one participant. The id is opaque and unique; Com marks a
// synthesized automated opponent. Immutable after creation.
type Player struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Com  bool   `json:"com,omitempty"`
}
