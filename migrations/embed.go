// Package migrations compiles the schema SQL into the gateway binary,
// so deployments are a single executable with no companion files.
package migrations

import (
	"embed"

	"github.com/nana4rider/wisun-gateway/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

// Hand the embedded FS to the database package, which applies pending
// migrations on startup. The .sql files sit at the root of this FS.
func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
