package lobby

import "time"

// Listing is an open lobby entry.
type Listing struct {
	Code      string    `json:"code"`
	SessionID string    `json:"sessionId"`
	CreatorID string    `json:"creatorId"`
	CreatedAt time.Time `json:"createdAt"`
}

var (
	ErrInvalidArgs     = errf("invalid arguments")
	ErrCodeGone        = errf("join code not found or expired")
	ErrFull            = errf("session already has two participants")
	ErrSelfJoin        = errf("creator cannot join their own session")
	ErrCreatorHasLobby = errf("user already has an open lobby")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error         { return staticErr(s) }
