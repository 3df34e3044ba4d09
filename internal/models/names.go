package models

import "github.com/google/uuid"

// SystemAuthorName is the display name attached to system-authored
// messages.
const SystemAuthorName = "Sistema"

// PlaceholderName is the fallback when a user's profile cannot be
// resolved. Deterministic so every viewer sees the same label.
func PlaceholderName(userID uuid.UUID) string {
	return "Estudante " + userID.String()[:8]
}
