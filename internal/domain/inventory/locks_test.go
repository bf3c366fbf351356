package inventory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/db"
)

// rowLocks imitates SELECT ... FOR UPDATE for the in-memory repositories. A
// row read for update, or written through AdjustQuantity, stays locked until
// the transaction that touched it ends. Outside a lockingTx nothing locks.
type rowLocks struct {
	mu      sync.Mutex
	rows    map[uuid.UUID]chan struct{}
	blocked chan uuid.UUID
}

func newRowLocks() *rowLocks {
	return &rowLocks{rows: make(map[uuid.UUID]chan struct{}), blocked: make(chan uuid.UUID, 8)}
}

type lockTxKey struct{}

type lockTx struct {
	owned map[uuid.UUID]bool
	held  []chan struct{}
}

func (l *rowLocks) acquire(ctx context.Context, id uuid.UUID) {
	if l == nil {
		return
	}
	tx, _ := ctx.Value(lockTxKey{}).(*lockTx)
	if tx == nil || tx.owned[id] {
		return
	}
	l.mu.Lock()
	sem, ok := l.rows[id]
	if !ok {
		sem = make(chan struct{}, 1)
		l.rows[id] = sem
	}
	l.mu.Unlock()

	select {
	case sem <- struct{}{}:
	default:
		l.blocked <- id
		sem <- struct{}{}
	}
	tx.owned[id] = true
	tx.held = append(tx.held, sem)
}

// lockingTx releases every row lock taken inside fn once fn returns.
type lockingTx struct {
	inner db.TxRunner
}

func (t lockingTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(lockTxKey{}).(*lockTx); ok {
		return t.inner.InTx(ctx, fn)
	}
	tx := &lockTx{owned: make(map[uuid.UUID]bool)}
	defer func() {
		for _, sem := range tx.held {
			<-sem
		}
	}()
	return t.inner.InTx(context.WithValue(ctx, lockTxKey{}, tx), fn)
}

// interleave starts second in its own goroutine the first time fire is
// called, then waits until second has either finished or blocked on a row
// lock. wait blocks until second has finished.
type interleave struct {
	locks  *rowLocks
	second func()
	fired  bool
	done   chan struct{}
}

func newInterleave(locks *rowLocks, second func()) *interleave {
	return &interleave{locks: locks, second: second, done: make(chan struct{})}
}

func (iv *interleave) fire() {
	if iv == nil || iv.fired {
		return
	}
	iv.fired = true
	go func() {
		defer close(iv.done)
		iv.second()
	}()
	select {
	case <-iv.done:
	case <-iv.locks.blocked:
	}
}

func (iv *interleave) wait() {
	<-iv.done
}
