// Package instance names the running process in logs and lease owners.
package instance

import (
	"os"
	"sync"

	"github.com/angelmondragon/spoolhub-backend/pkg/env"
)

const fallbackID = "spoolhub-0"

var (
	once sync.Once
	id   string
)

// GetID returns WORKER_ID when set, then the Cloud Run revision joined with
// the hostname, then the hostname alone. The result is computed once.
func GetID() string {
	once.Do(func() { id = resolve(os.Hostname) })
	return id
}

func resolve(hostname func() (string, error)) string {
	if v := env.Get("WORKER_ID", ""); v != "" {
		return v
	}
	host, err := hostname()
	if err != nil {
		host = ""
	}
	if rev := env.Get("K_REVISION", ""); rev != "" {
		if host == "" {
			return rev
		}
		return rev + "/" + host
	}
	if host != "" {
		return host
	}
	return fallbackID
}
