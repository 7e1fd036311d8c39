/*
Package migration manages the store kernel's schema migrations across
Postgres, MySQL, and SQLite using golang-migrate, with dialect-specific SQL
files embedded via embed.FS.

# Core types

  - Migrator: Up/Down/DownAll/Steps/Goto/Force/Version/Status/Info/Close.
  - DefaultMigrator: the golang-migrate-backed implementation.
  - Config: database type, connection URL, migrations table name, lock
    timeout.
  - DatabaseType: postgres/mysql/sqlite enum.
  - MigrationStatus / MigrationInfo: status and summary snapshots.
  - CLI: terminal-formatted wrapper around Migrator.

# Capabilities

  - NewMigratorFromConfig / NewMigratorFromDatabaseConfig /
    NewMigratorFromURL construct a Migrator from different config sources.
  - CLI.RunUp/RunDown/RunStatus/RunInfo for operator-facing output.
  - ParseDatabaseType and BuildDatabaseURL for dialect string handling.
*/
package migration
