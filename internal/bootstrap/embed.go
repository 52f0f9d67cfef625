package bootstrap

import _ "embed"

// schemaSQL holds the idempotent DDL for schema `core` (tables, indexes, and
// the five stored routines from §6.1). It mirrors migrations/001_core_schema
// at the repo root; that copy serves `cmd/migrator` for operators who prefer
// versioned, explicit migrations, while this one lets the Initializer create
// the schema inline on first connect with no external tooling dependency.
//
//go:embed sql/schema.sql
var schemaSQL string
