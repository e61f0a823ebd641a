package instance

import "github.com/angelmondragon/storefront-settlement/pkg/env"

// GetID returns the process identifier attached to logs and lock owners. DYNO wins over
// WORKER_ID so platform-assigned names are kept.
func GetID(service string) string {
	if id, ok := env.First("DYNO", "WORKER_ID"); ok {
		return id
	}
	if service == "" {
		service = "local"
	}
	return service + "-0"
}
