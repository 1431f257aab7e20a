package delivery

import "embed"

// migrationsFS embeds the persistent queue's single-table schema, managed
// with goose rather than hand-rolled CREATE TABLE IF NOT EXISTS, so future
// schema changes go through the same migration discipline as the rest of
// the ecosystem's SQL-backed services.
//
//go:embed migrations/*.sql
var migrationsFS embed.FS
