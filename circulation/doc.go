// Package circulation provides the borrow/return/fine workflow of a library:
// checking items out to patrons, taking them back, computing overdue fines
// per item type, and allocating fine payments across a patron's debt.
//
// The package is storage agnostic. All reads and writes go through the Store
// interface, whose WithinTx method provides the transactional boundary that
// couples the borrow ledger with the inventory count. A PostgreSQL (and SQLite)
// implementation lives in the postgresengine sub-package.
//
// Key types:
//   - ItemType: closed set of item categories, each with its loan period and fine rate
//   - BorrowRecord: one checkout of an item by a patron
//   - Workflow: the orchestrator exposing BorrowItem, ReturnItem, PayFine and the fine queries
//
// Common usage pattern:
//
//	store, _ := postgresengine.NewStoreFromPGXPool(pool)
//	workflow, _ := circulation.NewWorkflow(store)
//
//	loan, err := workflow.BorrowItem(ctx, "reader@example.com", 4711)
//	if errors.Is(err, circulation.ErrOutOfStock) {
//		// no copy left
//	}
//
//	payment, err := workflow.PayFine(ctx, "reader@example.com", 50)
//
// The Workflow never logs. Wrap it with the observable package for logging and metrics.
package circulation
