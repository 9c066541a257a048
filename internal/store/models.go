package store

import "time"

// ConnectionStatus is the stored status of a connection record.
// There is no rejected or removed status: those outcomes delete the record.
type ConnectionStatus string

const (
	StatusPending  ConnectionStatus = "pending"
	StatusAccepted ConnectionStatus = "accepted"
)

// Valid reports whether s is a known status.
func (s ConnectionStatus) Valid() bool {
	return s == StatusPending || s == StatusAccepted
}

// Expect is the precondition of a conditional connection write.
// An empty RequesterID matches any requester.
type Expect struct {
	Status      ConnectionStatus
	RequesterID string
}

// Matches reports whether rec satisfies e.
func (e Expect) Matches(rec *ConnectionRecord) bool {
	if rec.Status != e.Status {
		return false
	}
	return e.RequesterID == "" || rec.RequesterID == e.RequesterID
}

// ExpectStatus is shorthand for a status-only precondition.
func ExpectStatus(s ConnectionStatus) Expect {
	return Expect{Status: s}
}

// Counters are denormalized per-identity tallies.
type Counters struct {
	Connections int64 `json:"connections" bson:"connections"`
	Projects    int64 `json:"projects" bson:"projects"`
}

// Snapshot is a copied-by-value subset of a profile, embedded in connection
// records at write time. It is never refreshed after the write.
type Snapshot struct {
	ID          string   `json:"id" bson:"id"`
	DisplayName string   `json:"display_name" bson:"display_name"`
	AvatarURL   string   `json:"avatar_url" bson:"avatar_url"`
	Affiliation string   `json:"affiliation" bson:"affiliation"`
	Program     string   `json:"program" bson:"program"`
	Counters    Counters `json:"counters" bson:"counters"`
}

// Profile is the authoritative public record of an identity.
type Profile struct {
	ID          string    `json:"id" gorm:"primaryKey" bson:"_id"`
	DisplayName string    `json:"display_name" bson:"display_name"`
	AvatarURL   string    `json:"avatar_url" bson:"avatar_url"`
	Affiliation string    `json:"affiliation" bson:"affiliation"`
	Program     string    `json:"program" bson:"program"`
	Counters    Counters  `json:"counters" gorm:"embedded;embeddedPrefix:counters_" bson:"counters"`
	CreatedAt   time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" bson:"updated_at"`
}

// Snapshot copies the public display attributes of p.
func (p *Profile) Snapshot() Snapshot {
	return Snapshot{
		ID:          p.ID,
		DisplayName: p.DisplayName,
		AvatarURL:   p.AvatarURL,
		Affiliation: p.Affiliation,
		Program:     p.Program,
		Counters:    p.Counters,
	}
}

// ConnectionRecord is the single persisted relationship between two identities.
// UserA and UserB hold the participants in pair-key order (UserA < UserB).
type ConnectionRecord struct {
	PairKey     string              `json:"pair_key" gorm:"primaryKey" bson:"_id"`
	UserA       string              `json:"user_a" gorm:"index" bson:"user_a"`
	UserB       string              `json:"user_b" gorm:"index" bson:"user_b"`
	Status      ConnectionStatus    `json:"status" gorm:"index" bson:"status"`
	RequesterID string              `json:"requester_id" bson:"requester_id"`
	Snapshots   map[string]Snapshot `json:"snapshots" gorm:"serializer:json;type:text" bson:"snapshots"`
	CreatedAt   time.Time           `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at" bson:"updated_at"`
}

// Participants returns both participant IDs in pair-key order.
func (r *ConnectionRecord) Participants() [2]string {
	return [2]string{r.UserA, r.UserB}
}

// Involves reports whether id is one of the participants.
func (r *ConnectionRecord) Involves(id string) bool {
	return r.UserA == id || r.UserB == id
}

// Counterpart returns the participant that is not id.
func (r *ConnectionRecord) Counterpart(id string) string {
	if r.UserA == id {
		return r.UserB
	}
	return r.UserA
}

// Clone returns a deep copy of r.
func (r *ConnectionRecord) Clone() *ConnectionRecord {
	c := *r
	if r.Snapshots != nil {
		c.Snapshots = make(map[string]Snapshot, len(r.Snapshots))
		for k, v := range r.Snapshots {
			c.Snapshots[k] = v
		}
	}
	return &c
}

// Notification is one entry in a recipient's event log.
// Linkage to the connection that produced it is by convention only
// (Type plus Metadata["fromUserId"]), never by reference.
type Notification struct {
	ID          string            `json:"id" gorm:"primaryKey" bson:"_id"`
	RecipientID string            `json:"recipient_id" gorm:"index" bson:"recipient_id"`
	Type        string            `json:"type" gorm:"index" bson:"type"`
	Title       string            `json:"title" bson:"title"`
	Description string            `json:"description" bson:"description"`
	AvatarURL   string            `json:"avatar_url" bson:"avatar_url"`
	IsRead      bool              `json:"is_read" bson:"is_read"`
	ActionDone  bool              `json:"action_done" bson:"action_done"`
	Metadata    map[string]string `json:"metadata" gorm:"serializer:json;type:text" bson:"metadata"`
	CreatedAt   time.Time         `json:"created_at" gorm:"index" bson:"created_at"`
}

// Clone returns a deep copy of n.
func (n *Notification) Clone() *Notification {
	c := *n
	if n.Metadata != nil {
		c.Metadata = make(map[string]string, len(n.Metadata))
		for k, v := range n.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// Account is a local login. Its ID doubles as the profile ID.
// EmailKey is the normalized email used for lookups; empty means no email.
type Account struct {
	ID           string    `json:"id" gorm:"primaryKey" bson:"_id"`
	Username     string    `json:"username" gorm:"uniqueIndex" bson:"username"`
	Email        string    `json:"email" bson:"email"`
	EmailKey     string    `json:"email_key" gorm:"index" bson:"email_key"`
	DisplayName  string    `json:"display_name" bson:"display_name"`
	PasswordHash string    `json:"password_hash" bson:"password_hash"`
	Role         string    `json:"role" bson:"role"`
	CreatedAt    time.Time `json:"created_at" bson:"created_at"`
}
