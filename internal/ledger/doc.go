// Package ledger computes balances from a snapshot of expenses and settlements.
//
// A member's balance within a group is
//
//	paid on included expenses
//	- owed share of included expenses
//	+ completed settlements the member paid
//	- completed settlements the member received
//
// Positive means the group owes the member; negative means the member owes
// the group. Balances are never stored: they are recomputed from the
// snapshot on every call, and the computation is a pure function of it, so
// the same snapshot always yields the same result and the sum over all
// members of a group is zero.
package ledger
