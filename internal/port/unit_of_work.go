package port

import "context"

type UnitOfWork interface {
	// Begin opens a transaction spanning catalog stock, order ledger and cart writes
	Begin(ctx context.Context) (Tx, error)
}

// Tx is a scoped unit of work. Rollback after Commit is a no-op, so callers
// defer Rollback right after Begin.
type Tx interface {
	Stock() StockLedger
	Orders() OrderWriter
	Carts() CartWriter
	Commit() error
	Rollback() error
}
