package instance

import (
	"os"
	"strings"
)

// Env vars consulted, in order, to name the running process in logs.
var idEnvVars = []string{"REPLYRISER_INSTANCE_ID", "DYNO", "HOSTNAME"}

// GetID returns the process instance identifier or "local".
func GetID() string {
	for _, key := range idEnvVars {
		if id := strings.TrimSpace(os.Getenv(key)); id != "" {
			return id
		}
	}
	return "local"
}
