package logging

import (
	"github.com/gofrs/uuid"
	log "github.com/sirupsen/logrus"
)

// ContextKey defines the context key type.
type ContextKey string

// ContextIDKey holds the key of the context ID.
const ContextIDKey ContextKey = "ctx_id"

// NewDeviceEntry returns a log entry carrying a unique context id and the
// device label, shared by all log lines of one simulated device.
func NewDeviceEntry(device string) *log.Entry {
	fields := log.Fields{
		"device": device,
	}
	if ctxID, err := uuid.NewV4(); err == nil {
		fields[string(ContextIDKey)] = ctxID
	}
	return log.WithFields(fields)
}
