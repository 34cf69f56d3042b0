package repo

import "embed"

//go:embed migrations/*.sql
var Migrations embed.FS

const MigrationsTable = "orders_schema_migrations"
