// Package all registers every storage backend with the storage factory.
// Binaries import it for side effects; the pipeline config picks the kind.
package all

import (
	_ "csvschema/internal/storage/mssql"
	_ "csvschema/internal/storage/postgres"
	_ "csvschema/internal/storage/sqlite"
)
