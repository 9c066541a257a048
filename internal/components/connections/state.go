package connections

import "github.com/MahdiBaghbani/campusmesh-go/internal/store"

// State is a connection status as seen by one participant.
type State string

const (
	StateNone            State = "none"
	StatePendingSent     State = "pending_sent"
	StatePendingReceived State = "pending_received"
	StateAccepted        State = "accepted"
)

// Relative maps a stored record to the state seen by viewerID.
// A nil record is StateNone.
func Relative(rec *store.ConnectionRecord, viewerID string) State {
	if rec == nil || !rec.Involves(viewerID) {
		return StateNone
	}
	switch rec.Status {
	case store.StatusAccepted:
		return StateAccepted
	case store.StatusPending:
		if rec.RequesterID == viewerID {
			return StatePendingSent
		}
		return StatePendingReceived
	}
	return StateNone
}
