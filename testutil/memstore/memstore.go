// Package memstore provides an in-memory circulation.Store for tests.
//
// Transactions are serialized by a mutex and rolled back by restoring a snapshot of the state taken at begin.
// Faults can be injected per method to exercise storage failures and optimistic conflicts.
package memstore

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
)

// Method names for fault injection.
const (
	MethodFindItem          = "FindItem"
	MethodDecrementQuantity = "DecrementQuantity"
	MethodIncrementQuantity = "IncrementQuantity"
	MethodInsertBorrow      = "InsertBorrow"
	MethodFindActiveBorrow  = "FindActiveBorrow"
	MethodMarkReturned      = "MarkReturned"
	MethodFineRows          = "FineRows"
	MethodSetFine           = "SetFine"
	MethodSumFine           = "SumFine"
	MethodUnreturnedRecords = "UnreturnedRecords"
	MethodPatronsWithFines  = "PatronsWithFines"
	MethodBeginTx           = "BeginTx"
	MethodCommitTx          = "CommitTx"
)

// ErrInjected is a ready-made error for fault injection.
var ErrInjected = errors.New("injected fault")

type fault struct {
	err    error
	noRows bool
}

type state struct {
	items   map[circulation.ItemIDInt64]circulation.Item
	borrows []circulation.BorrowRecord
	nextID  circulation.BorrowIDInt64
}

func (s state) clone() state {
	items := make(map[circulation.ItemIDInt64]circulation.Item, len(s.items))
	for id, item := range s.items {
		items[id] = item
	}

	return state{
		items:   items,
		borrows: append([]circulation.BorrowRecord(nil), s.borrows...),
		nextID:  s.nextID,
	}
}

// Store is an in-memory circulation.Store.
type Store struct {
	mu     sync.Mutex
	state  state
	faults map[string][]fault
	calls  map[string]int
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		state: state{
			items:  make(map[circulation.ItemIDInt64]circulation.Item),
			nextID: 1,
		},
		faults: make(map[string][]fault),
		calls:  make(map[string]int),
	}
}

// AddItem puts an item into the catalog, replacing an existing item with the same ID.
func (s *Store) AddItem(item circulation.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.items[item.ID] = item
}

// AddBorrow appends a record as is (returned flag and fine included) and returns its assigned ID.
func (s *Store) AddBorrow(record circulation.BorrowRecord) circulation.BorrowIDInt64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.insert(record)
}

// Item returns the current state of an item.
func (s *Store) Item(itemID circulation.ItemIDInt64) (circulation.Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.state.items[itemID]

	return item, ok
}

// Borrows returns a copy of all records in insertion order.
func (s *Store) Borrows() []circulation.BorrowRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]circulation.BorrowRecord(nil), s.state.borrows...)
}

// InjectError makes the next times calls of method fail with err.
func (s *Store) InjectError(method string, err error, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for range times {
		s.faults[method] = append(s.faults[method], fault{err: err})
	}
}

// InjectNoRows makes the next times calls of a conditioned update report that no row was affected,
// as if a concurrent writer had changed the row. Only the update methods honor it.
func (s *Store) InjectNoRows(method string, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for range times {
		s.faults[method] = append(s.faults[method], fault{noRows: true})
	}
}

// Calls returns how often method was invoked, inside and outside transactions.
func (s *Store) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.calls[method]
}

// WithinTx implements circulation.Store.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx circulation.Queries) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f := s.next(MethodBeginTx); f.err != nil {
		return f.err
	}

	snapshot := s.state.clone()

	defer func() {
		if p := recover(); p != nil {
			s.state = snapshot
			panic(p)
		}

		if err != nil {
			s.state = snapshot
		}
	}()

	if err = ctx.Err(); err != nil {
		return err
	}

	if err = fn(ctx, txQueries{s: s}); err != nil {
		return err
	}

	if f := s.next(MethodCommitTx); f.err != nil {
		return f.err
	}

	return nil
}

// next records a call to method and pops its pending fault, if any. The caller must hold the mutex.
func (s *Store) next(method string) fault {
	s.calls[method]++

	pending := s.faults[method]
	if len(pending) == 0 {
		return fault{}
	}

	s.faults[method] = pending[1:]

	return pending[0]
}

func (s *Store) insert(record circulation.BorrowRecord) circulation.BorrowIDInt64 {
	record.ID = s.state.nextID
	s.state.nextID++
	s.state.borrows = append(s.state.borrows, record)

	return record.ID
}

// FindItem implements circulation.Queries outside a transaction.
func (s *Store) FindItem(ctx context.Context, itemID circulation.ItemIDInt64) (circulation.Item, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return txQueries{s: s}.FindItem(ctx, itemID)
}

// DecrementQuantity implements circulation.Queries outside a transaction.
func (s *Store) DecrementQuantity(ctx context.Context, itemID circulation.ItemIDInt64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return txQueries{s: s}.DecrementQuantity(ctx, itemID)
}

// IncrementQuantity implements circulation.Queries outside a transaction.
func (s *Store) IncrementQuantity(ctx context.Context, itemID circulation.ItemIDInt64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return txQueries{s: s}.IncrementQuantity(ctx, itemID)
}

// InsertBorrow implements circulation.Queries outside a transaction.
func (s *Store) InsertBorrow(ctx context.Context, record circulation.BorrowRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return txQueries{s: s}.InsertBorrow(ctx, record)
}

// FindActiveBorrow implements circulation.Queries outside a transaction.
func (s *Store) FindActiveBorrow(
	ctx context.Context,
	patronID circulation.PatronIDString,
	itemID circulation.ItemIDInt64,
) (circulation.BorrowRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return txQueries{s: s}.FindActiveBorrow(ctx, patronID, itemID)
}

// MarkReturned implements circulation.Queries outside a transaction.
func (s *Store) MarkReturned(ctx context.Context, borrowID circulation.BorrowIDInt64, fine int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return txQueries{s: s}.MarkReturned(ctx, borrowID, fine)
}

// FineRows implements circulation.Queries outside a transaction.
func (s *Store) FineRows(ctx context.Context, patronID circulation.PatronIDString) ([]circulation.BorrowRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return txQueries{s: s}.FineRows(ctx, patronID)
}

// SetFine implements circulation.Queries outside a transaction.
func (s *Store) SetFine(ctx context.Context, borrowID circulation.BorrowIDInt64, expectedFine, newFine int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return txQueries{s: s}.SetFine(ctx, borrowID, expectedFine, newFine)
}

// SumFine implements circulation.Queries outside a transaction.
func (s *Store) SumFine(ctx context.Context, patronID circulation.PatronIDString) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return txQueries{s: s}.SumFine(ctx, patronID)
}

// UnreturnedRecords implements circulation.Queries outside a transaction.
func (s *Store) UnreturnedRecords(ctx context.Context, dueBefore time.Time) ([]circulation.BorrowRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return txQueries{s: s}.UnreturnedRecords(ctx, dueBefore)
}

// PatronsWithFines implements circulation.Queries outside a transaction.
func (s *Store) PatronsWithFines(ctx context.Context) ([]circulation.PatronIDString, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return txQueries{s: s}.PatronsWithFines(ctx)
}

// txQueries operates on the state while the mutex is held by the caller.
type txQueries struct {
	s *Store
}

func (q txQueries) FindItem(_ context.Context, itemID circulation.ItemIDInt64) (circulation.Item, bool, error) {
	if f := q.s.next(MethodFindItem); f.err != nil {
		return circulation.Item{}, false, f.err
	}

	item, ok := q.s.state.items[itemID]

	return item, ok, nil
}

func (q txQueries) DecrementQuantity(_ context.Context, itemID circulation.ItemIDInt64) (int64, error) {
	f := q.s.next(MethodDecrementQuantity)
	if f.err != nil {
		return 0, f.err
	}

	item, ok := q.s.state.items[itemID]
	if f.noRows || !ok || item.Quantity <= 0 {
		return 0, nil
	}

	item.Quantity--
	q.s.state.items[itemID] = item

	return 1, nil
}

func (q txQueries) IncrementQuantity(_ context.Context, itemID circulation.ItemIDInt64) (bool, error) {
	f := q.s.next(MethodIncrementQuantity)
	if f.err != nil {
		return false, f.err
	}

	item, ok := q.s.state.items[itemID]
	if f.noRows || !ok {
		return false, nil
	}

	item.Quantity++
	q.s.state.items[itemID] = item

	return true, nil
}

func (q txQueries) InsertBorrow(_ context.Context, record circulation.BorrowRecord) error {
	if f := q.s.next(MethodInsertBorrow); f.err != nil {
		return f.err
	}

	for _, existing := range q.s.state.borrows {
		if !existing.Returned && existing.PatronID == record.PatronID && existing.ItemID == record.ItemID {
			return circulation.ErrAlreadyBorrowed
		}
	}

	record.Returned = false
	record.Fine = 0
	q.s.insert(record)

	return nil
}

func (q txQueries) FindActiveBorrow(
	_ context.Context,
	patronID circulation.PatronIDString,
	itemID circulation.ItemIDInt64,
) (circulation.BorrowRecord, bool, error) {
	if f := q.s.next(MethodFindActiveBorrow); f.err != nil {
		return circulation.BorrowRecord{}, false, f.err
	}

	for i := len(q.s.state.borrows) - 1; i >= 0; i-- {
		record := q.s.state.borrows[i]
		if !record.Returned && record.PatronID == patronID && record.ItemID == itemID {
			return record, true, nil
		}
	}

	return circulation.BorrowRecord{}, false, nil
}

func (q txQueries) MarkReturned(_ context.Context, borrowID circulation.BorrowIDInt64, fine int64) (bool, error) {
	f := q.s.next(MethodMarkReturned)
	if f.err != nil {
		return false, f.err
	}

	if f.noRows {
		return false, nil
	}

	for i, record := range q.s.state.borrows {
		if record.ID == borrowID && !record.Returned {
			q.s.state.borrows[i].Returned = true
			q.s.state.borrows[i].Fine = fine

			return true, nil
		}
	}

	return false, nil
}

func (q txQueries) FineRows(_ context.Context, patronID circulation.PatronIDString) ([]circulation.BorrowRecord, error) {
	if f := q.s.next(MethodFineRows); f.err != nil {
		return nil, f.err
	}

	var rows []circulation.BorrowRecord

	for _, record := range q.s.state.borrows {
		if record.PatronID == patronID && record.Fine > 0 {
			rows = append(rows, record)
		}
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })

	return rows, nil
}

func (q txQueries) SetFine(_ context.Context, borrowID circulation.BorrowIDInt64, expectedFine, newFine int64) (bool, error) {
	f := q.s.next(MethodSetFine)
	if f.err != nil {
		return false, f.err
	}

	if f.noRows {
		return false, nil
	}

	for i, record := range q.s.state.borrows {
		if record.ID == borrowID && record.Fine == expectedFine {
			q.s.state.borrows[i].Fine = newFine
			return true, nil
		}
	}

	return false, nil
}

func (q txQueries) SumFine(_ context.Context, patronID circulation.PatronIDString) (int64, error) {
	if f := q.s.next(MethodSumFine); f.err != nil {
		return 0, f.err
	}

	var total int64

	for _, record := range q.s.state.borrows {
		if record.PatronID == patronID && record.Fine > 0 {
			total += record.Fine
		}
	}

	return total, nil
}

func (q txQueries) UnreturnedRecords(_ context.Context, dueBefore time.Time) ([]circulation.BorrowRecord, error) {
	if f := q.s.next(MethodUnreturnedRecords); f.err != nil {
		return nil, f.err
	}

	var records []circulation.BorrowRecord

	for _, record := range q.s.state.borrows {
		if !record.Returned && record.DueDate.Before(dueBefore) {
			records = append(records, record)
		}
	}

	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].DueDate.Equal(records[j].DueDate) {
			return records[i].DueDate.Before(records[j].DueDate)
		}

		return records[i].ID < records[j].ID
	})

	return records, nil
}

func (q txQueries) PatronsWithFines(_ context.Context) ([]circulation.PatronIDString, error) {
	if f := q.s.next(MethodPatronsWithFines); f.err != nil {
		return nil, f.err
	}

	seen := make(map[circulation.PatronIDString]struct{})
	patrons := make([]circulation.PatronIDString, 0)

	for _, record := range q.s.state.borrows {
		if record.Fine <= 0 {
			continue
		}

		if _, ok := seen[record.PatronID]; ok {
			continue
		}

		seen[record.PatronID] = struct{}{}
		patrons = append(patrons, record.PatronID)
	}

	sort.Strings(patrons)

	return patrons, nil
}
