// Deliberate violations for verify-no-direct-sql's own test.
package violation

import "database/sql"

const countBatches = "SELECT COUNT(*) FROM import_batch"

func openDirect() (*sql.DB, error) {
	return sql.Open("sqlite", "file:direct.db")
}
