package repo

import "embed"

//go:embed migrations/*.sql
var Migrations embed.FS

const MigrationsTable = "invoices_schema_migrations"
