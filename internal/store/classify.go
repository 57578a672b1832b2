package store

import (
	stderrors "errors"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/sync/singleflight"

	"github.com/rxtech-lab/argo-perp/pkg/errors"
)

// Postgres SQLSTATE codes the adapter reacts to.
const (
	pgUndefinedTable  = "42P01"
	pgDuplicateTable  = "42P07"
	pgUniqueViolation = "23505"
	pgTooManyClients  = "53300"
)

// classify turns a driver error into the store's error kinds.
func classify(err error, symbol, op string) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUndefinedTable:
			return errors.Wrapf(errors.ErrCodePartitionMissing, err, "%s: no partition for %s", op, symbol)
		case pgTooManyClients:
			return errors.Wrapf(errors.ErrCodeTooManyClients, err, "%s %s", op, symbol)
		}
	}

	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "too many clients"):
		return errors.Wrapf(errors.ErrCodeTooManyClients, err, "%s %s", op, symbol)
	case strings.Contains(msg, "table with name") && strings.Contains(msg, "does not exist"):
		return errors.Wrapf(errors.ErrCodePartitionMissing, err, "%s: no partition for %s", op, symbol)
	}

	return errors.Wrapf(errors.ErrCodeQueryFailed, err, "%s %s", op, symbol)
}

// alreadyExists reports whether a concurrent CREATE TABLE lost the race.
func alreadyExists(err error) bool {
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		return pgErr.Code == pgDuplicateTable || pgErr.Code == pgUniqueViolation
	}

	return strings.Contains(strings.ToLower(err.Error()), "already exists")
}

// partitionSet remembers which partitions this process created so repeated
// EnsurePartition calls skip the DDL round trip. Concurrent calls for one
// symbol share a single create; different symbols proceed independently and
// mu is never held while create runs.
type partitionSet struct {
	mu      sync.Mutex
	ensured map[string]struct{}
	flight  singleflight.Group
}

func newPartitionSet() *partitionSet {
	return &partitionSet{ensured: make(map[string]struct{})}
}

func (p *partitionSet) has(symbol string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, ok := p.ensured[symbol]

	return ok
}

// ensure runs create once per symbol.
func (p *partitionSet) ensure(symbol string, create func() error) error {
	if p.has(symbol) {
		return nil
	}

	_, err, _ := p.flight.Do(symbol, func() (any, error) {
		if p.has(symbol) {
			return nil, nil
		}

		if err := create(); err != nil {
			return nil, err
		}

		p.mu.Lock()
		p.ensured[symbol] = struct{}{}
		p.mu.Unlock()

		return nil, nil
	})

	return err
}

func (p *partitionSet) forget(symbol string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.ensured, symbol)
}
