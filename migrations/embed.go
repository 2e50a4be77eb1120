// Package migrations embeds the forwarder's SQL migration files into the binary.
package migrations

import (
	"embed"

	"github.com/nerrad567/relaylight/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
