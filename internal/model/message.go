package model

import (
	"encoding/json"
	"time"
)

// Message is owned by its Match. It survives match expiry for the
// moderation retention window regardless of any client-visible
// "chat ended" state.
type Message struct {
	ID           string    `db:"id" json:"id"`
	MatchID      string    `db:"match_id" json:"matchId"`
	SenderID     string    `db:"sender_id" json:"senderId"`
	Text         string    `db:"text" json:"text"`
	ClientTempID *string   `db:"client_temp_id" json:"clientTempId,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

// ToEventData returns the JSON payload published on the recipient's
// event stream.
func (m *Message) ToEventData() json.RawMessage {
	data, _ := json.Marshal(map[string]any{
		"id":        m.ID,
		"matchId":   m.MatchID,
		"senderId":  m.SenderID,
		"text":      m.Text,
		"createdAt": m.CreatedAt,
	})
	return data
}

type CreateMessageParams struct {
	MatchID      string
	SenderID     string
	Text         string
	ClientTempID *string
}
