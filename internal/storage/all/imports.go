// Package all wires the built-in storage backends into the storage factory.
//
// Importing it for side effects makes the following kinds available:
//
//   - "memory"   (docetl/internal/storage/memory)
//   - "mongo"    (docetl/internal/storage/mongo)
//   - "postgres" (docetl/internal/storage/postgres)
//   - "mysql"    (docetl/internal/storage/mysql)
//   - "mssql"    (docetl/internal/storage/mssql)
//   - "sqlite"   (docetl/internal/storage/sqlite)
//
// A binary that needs only a subset can import the backends it wants
// directly instead.
package all

import (
	_ "docetl/internal/storage/memory"
	_ "docetl/internal/storage/mongo"
	_ "docetl/internal/storage/mssql"
	_ "docetl/internal/storage/mysql"
	_ "docetl/internal/storage/postgres"
	_ "docetl/internal/storage/sqlite"
)
