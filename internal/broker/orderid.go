package broker

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxClientOrderIDLength is the longest client order ID the gateway accepts.
const MaxClientOrderIDLength = 36

const clientOrderIDPrefix = "ENG"

// NewClientOrderID builds a structured client order ID:
// ENG-[DDMMM]-[8 hex chars], e.g. "ENG-24AUG-a3f7c2e9". The random suffix
// comes from a v4 UUID so IDs stay unique across restarts without any
// shared sequence store.
func NewClientOrderID(now time.Time) string {
	dateStr := strings.ToUpper(now.Format("02Jan"))
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s-%s-%s", clientOrderIDPrefix, dateStr, suffix)
}

// ValidateClientOrderID checks gateway constraints on a client order ID.
func ValidateClientOrderID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty client order ID", ErrInvalidOrder)
	}
	if len(id) > MaxClientOrderIDLength {
		return fmt.Errorf("%w: client order ID %q is %d characters (max %d)",
			ErrInvalidOrder, id, len(id), MaxClientOrderIDLength)
	}
	return nil
}
