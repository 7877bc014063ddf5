// Package migrations embeds the provisioner's SQL schema into the binary.
package migrations

import (
	"embed"

	"github.com/nerrad567/fiware-provisioner/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
