package session

// CreateRequest defines payload for creating a new session.
type CreateRequest struct {
	Name      string `json:"name"`
	PersonaID string `json:"persona_id"`
}

// RenameRequest defines payload for renaming a session.
type RenameRequest struct {
	Name string `json:"name"`
}
