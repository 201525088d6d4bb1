package conversation

import (
	"context"
	"strconv"
	"time"
)

// Entry roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Entry is one message of an application's conversation history.
type Entry struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Store persists the ordered per-application message history. The whole
// sequence is the unit of storage: Replace swaps it atomically and refreshes
// the sliding TTL. Implementations degrade to an empty history on read
// failure instead of failing the generation turn; the degradation is logged
// and counted (LoadFailures).
type Store interface {
	Load(ctx context.Context, appID int64) ([]Entry, error)
	Replace(ctx context.Context, appID int64, entries []Entry) error
	Clear(ctx context.Context, appID int64) error
	// LoadFailures reports how many reads degraded to an empty history.
	LoadFailures() uint64
	Close() error
}

const keyPrefix = "appforge:chat:"

// Key returns the namespaced storage key for an application.
func Key(appID int64) string {
	return keyPrefix + strconv.FormatInt(appID, 10)
}
