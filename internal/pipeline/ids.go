package pipeline

import (
	"encoding/hex"

	"github.com/google/uuid"
)

// NewRequestID returns a random identifier of 32 lowercase hex characters.
// Every file a request touches is named after it.
func NewRequestID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

// SceneName returns the scene class name the generated script must define.
func SceneName(requestID string) string {
	return "Scene_" + requestID
}
