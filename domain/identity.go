package domain

// FallbackDisplayName is substituted when the sender lookup fails during
// async processing. Delivery is never blocked on a secondary lookup.
const FallbackDisplayName = "Unknown"

// SocketIdentity is the session attached to a connection at handshake time.
// It is read-only to the pipeline; its absence signals an expired or
// unauthenticated connection.
type SocketIdentity struct {
	UserID        string
	DisplayName   string
	AuthSessionID string
	ConnectionID  string
}

// User is the persisted chat account, as exposed by the user store.
type User struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	PasswordHash string `json:"passwordHash,omitempty"`
}

// Room is the persisted chat room, as exposed by the room store.
type Room struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Creator        string    `json:"creator"`
	HasPassword    bool      `json:"hasPassword"`
	PasswordHash   string    `json:"passwordHash,omitempty"`
	ParticipantIDs []string  `json:"participantIds"`
}

// File is the stored upload metadata referenced by file messages.
type File struct {
	ID           string `json:"id"`
	UserID       string `json:"userId"`
	OriginalName string `json:"originalName"`
	Mimetype     string `json:"mimetype"`
	Size         int64  `json:"size"`
}
