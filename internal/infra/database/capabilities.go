// internal/infra/database/capabilities.go
package database

import (
	"context"
	"database/sql"
	"fmt"
)

// Capabilities describes which optional schema features this deployment has.
// Some installations predate the recurring-test migration and lack the
// renewal columns on test_attempts; the test lane is skipped there instead
// of failing on every tick.
type Capabilities struct {
	// TestRenewalTracking is true when test_attempts carries both
	// expiry_date and renewal_status.
	TestRenewalTracking bool
}

// DetectCapabilities probes information_schema once, at startup. This
// replaces running the queries and catching missing-column errors on every
// tick: the set of optional features is known and enumerable.
func DetectCapabilities(ctx context.Context, db *sql.DB) (Capabilities, error) {
	const query = `SELECT COUNT(*)
                     FROM information_schema.columns
                    WHERE table_name = 'test_attempts'
                      AND column_name IN ('expiry_date', 'renewal_status')`

	var caps Capabilities
	var count int
	if err := db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return caps, fmt.Errorf("error probing test_attempts renewal columns: %w", err)
	}
	caps.TestRenewalTracking = count == 2
	return caps, nil
}
