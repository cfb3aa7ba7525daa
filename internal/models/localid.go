package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// localIDPrefix tags client-generated identifiers so they are
// distinguishable from server identifiers everywhere they appear
const localIDPrefix = "local-"

// NewLocalID generates a provisional client-side identifier for an entity
// the server has not acknowledged yet. The millisecond timestamp keeps IDs
// sortable by creation time; the UUID suffix makes collisions across
// restarts practically impossible.
func NewLocalID() string {
	suffix := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return fmt.Sprintf("%s%d-%s", localIDPrefix, time.Now().UnixMilli(), suffix)
}

// IsLocalID reports whether id was generated by NewLocalID
func IsLocalID(id string) bool {
	return strings.HasPrefix(id, localIDPrefix)
}
