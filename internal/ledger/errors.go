package ledger

import (
	"errors"
	"fmt"
)

// Common errors
var (
	ErrGroupNotFound       = errors.New("group not found in snapshot")
	ErrMemberNotInGroup    = errors.New("member has no part in this group")
	ErrLedgerInconsistency = errors.New("ledger inconsistency")
)

// Entity kinds reported by InconsistencyError
const (
	EntityExpense    = "EXPENSE"
	EntitySettlement = "SETTLEMENT"
)

// InconsistencyError reports stored data that violates a ledger invariant,
// e.g. persisted shares that do not add up to the expense amount. It matches
// ErrLedgerInconsistency with errors.Is and unwraps to the underlying cause.
type InconsistencyError struct {
	GroupID    string `json:"group_id"`
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	Reason     string `json:"reason"`
	Err        error  `json:"-"`
}

func (e *InconsistencyError) Error() string {
	return fmt.Sprintf("ledger inconsistency in group %s: %s %s: %s", e.GroupID, e.EntityType, e.EntityID, e.Reason)
}

func (e *InconsistencyError) Unwrap() error {
	return e.Err
}

func (e *InconsistencyError) Is(target error) bool {
	return target == ErrLedgerInconsistency
}

func expenseInconsistency(exp Expense, err error, format string, args ...any) *InconsistencyError {
	return &InconsistencyError{
		GroupID:    exp.GroupID,
		EntityType: EntityExpense,
		EntityID:   exp.ID,
		Reason:     fmt.Sprintf(format, args...),
		Err:        err,
	}
}

func settlementInconsistency(s Settlement, format string, args ...any) *InconsistencyError {
	return &InconsistencyError{
		GroupID:    s.GroupID,
		EntityType: EntitySettlement,
		EntityID:   s.ID,
		Reason:     fmt.Sprintf(format, args...),
	}
}
