package model

import (
	"time"
)

// DeclineEntry is a suppression/audit record: a declined pairing is not
// re-proposed while an entry younger than the suppression window exists
// for the pair. The pair is stored normalized like on Match.
type DeclineEntry struct {
	ID        string    `db:"id" json:"id"`
	MatchID   string    `db:"match_id" json:"matchId"`
	UserIDA   string    `db:"user_id_a" json:"userIdA"`
	UserIDB   string    `db:"user_id_b" json:"userIdB"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

type CreateDeclineEntryParams struct {
	MatchID string
	UserIDA string
	UserIDB string
}
