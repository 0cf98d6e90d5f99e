package postgresengine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
)

// Migrate creates the items and borrows tables with their indexes if they don't exist yet.
//
// Schema invariants:
//   - items.quantity is never negative (CHECK)
//   - borrows.fine is never negative (CHECK)
//   - at most one unreturned record per (patron_id, item_id) (partial unique index)
//
// The borrow ledger has no foreign key to the inventory: the catalog is managed elsewhere,
// and a return must still find its record after the item was removed.
func (s Store) Migrate(ctx context.Context) error {
	start := time.Now()

	for _, statement := range s.schemaStatements() {
		statementStart := time.Now()

		if _, err := s.db.Exec(ctx, statement); err != nil {
			s.logError(ctx, ErrMigrationFailed.Error(), err, logAttrQuery, statement)
			s.recordErrorMetrics(ctx, actionMigrate, errorTypeExec)

			return errors.Join(circulation.ErrStorage, ErrMigrationFailed, err)
		}

		s.logQueryWithDuration(ctx, statement, actionMigrate, time.Since(statementStart))
	}

	s.logOperation(ctx, logMsgSchemaMigrated, logAttrDialect, s.dialect, logAttrDurationMS, s.toMilliseconds(time.Since(start)))

	return nil
}

func (s Store) schemaStatements() []string {
	items := pq.QuoteIdentifier(s.itemsTableName)
	borrows := pq.QuoteIdentifier(s.borrowsTableName)
	activeIndex := pq.QuoteIdentifier(s.borrowsTableName + "_active_idx")
	fineIndex := pq.QuoteIdentifier(s.borrowsTableName + "_fine_idx")

	borrowID := "BIGSERIAL PRIMARY KEY"
	notReturned := "FALSE"

	if s.dialect == DialectSQLite {
		borrowID = "INTEGER PRIMARY KEY AUTOINCREMENT"
		notReturned = "0"
	}

	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id BIGINT PRIMARY KEY,
	title TEXT NOT NULL DEFAULT '',
	item_type TEXT NOT NULL,
	quantity INTEGER NOT NULL DEFAULT 0 CHECK (quantity >= 0)
)`, items),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id %s,
	patron_id TEXT NOT NULL,
	item_id BIGINT NOT NULL,
	borrow_date DATE NOT NULL,
	due_date DATE NOT NULL,
	returned BOOLEAN NOT NULL DEFAULT %s,
	fine INTEGER NOT NULL DEFAULT 0 CHECK (fine >= 0)
)`, borrows, borrowID, notReturned),
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (patron_id, item_id) WHERE returned = %s`,
			activeIndex, borrows, notReturned),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (patron_id) WHERE fine > 0`, fineIndex, borrows),
	}
}
