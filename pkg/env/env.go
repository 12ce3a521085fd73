// Package env reads the few process-level variables set by the hosting
// platform rather than by STOREFRONT_* configuration.
package env

import (
	"os"
	"strings"
)

var instanceKeys = []string{"DYNO", "WORKER_ID", "HOSTNAME"}

// Get returns the trimmed value of key or fallback when it is unset or blank.
func Get(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

// InstanceID names the running replica for log correlation.
func InstanceID() string {
	for _, key := range instanceKeys {
		if val := Get(key, ""); val != "" {
			return val
		}
	}
	return "local"
}
