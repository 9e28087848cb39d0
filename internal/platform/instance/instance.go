package instance

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Identity identifies one process instance for diagnostics. It is stamped on
// outbound commands so responses can be traced back through logs; it is never
// used for routing.
type Identity struct {
	ID   string
	Port string
}

// New generates a fresh identity. The ID embeds the listening port and a
// random suffix so log lines from a fleet are distinguishable.
func New(port string) Identity {
	return Identity{
		ID:   fmt.Sprintf("retinagate-port-%s-%d-%s", port, time.Now().UnixMilli(), uuid.NewString()[:8]),
		Port: port,
	}
}
