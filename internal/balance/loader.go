package balance

import (
	"context"

	"github.com/fkhayef/expensesplitter/internal/database"
	"github.com/fkhayef/expensesplitter/internal/expense"
	"github.com/fkhayef/expensesplitter/internal/group"
	"github.com/fkhayef/expensesplitter/internal/ledger"
	"github.com/fkhayef/expensesplitter/internal/settlement"
)

// Loader reads ledger snapshots. Every snapshot comes from a single read
// transaction, so memberships, expenses and settlements agree with each other.
type Loader struct {
	db          *database.DB
	groups      *group.Repository
	expenses    *expense.Repository
	settlements *settlement.Repository
}

// NewLoader creates a snapshot loader
func NewLoader(db *database.DB, groups *group.Repository, expenses *expense.Repository, settlements *settlement.Repository) *Loader {
	return &Loader{
		db:          db,
		groups:      groups,
		expenses:    expenses,
		settlements: settlements,
	}
}

// Groups loads a snapshot of the given groups
func (l *Loader) Groups(ctx context.Context, groupIDs ...string) (*ledger.Snapshot, error) {
	var snap *ledger.Snapshot
	err := l.db.WithReadTx(ctx, func(q database.Querier) error {
		var err error
		snap, err = l.load(ctx, q, groupIDs)
		return err
	})
	return snap, err
}

// Member loads a snapshot of every group memberID belongs to
func (l *Loader) Member(ctx context.Context, memberID string) (*ledger.Snapshot, error) {
	var snap *ledger.Snapshot
	err := l.db.WithReadTx(ctx, func(q database.Querier) error {
		groupIDs, err := l.groups.WithTx(q).GroupIDsOf(ctx, memberID)
		if err != nil {
			return err
		}
		snap, err = l.load(ctx, q, groupIDs)
		return err
	})
	return snap, err
}

func (l *Loader) load(ctx context.Context, q database.Querier, groupIDs []string) (*ledger.Snapshot, error) {
	snap := &ledger.Snapshot{}
	if len(groupIDs) == 0 {
		return snap, nil
	}

	var err error
	if snap.Groups, err = l.groups.WithTx(q).Memberships(ctx, groupIDs); err != nil {
		return nil, err
	}
	if snap.Expenses, err = l.expenses.WithTx(q).ListForLedger(ctx, groupIDs); err != nil {
		return nil, err
	}
	if snap.Settlements, err = l.settlements.WithTx(q).ListForLedger(ctx, groupIDs); err != nil {
		return nil, err
	}
	return snap, nil
}
