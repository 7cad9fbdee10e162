package models

import (
	"time"
)

// TransactionKind classifies a point transaction. The kind encodes the
// direction of the change; amount is always a positive magnitude.
type TransactionKind string

const (
	TransactionKindEarn     TransactionKind = "earn"
	TransactionKindSpend    TransactionKind = "spend"
	TransactionKindAdjust   TransactionKind = "adjust"
	TransactionKindPurchase TransactionKind = "purchase"
	TransactionKindRefund   TransactionKind = "refund"
)

// ReferenceType identifies what entity a transaction's reference_id points to.
type ReferenceType string

const (
	ReferenceTypePrediction         ReferenceType = "prediction"
	ReferenceTypeWager              ReferenceType = "wager"
	ReferenceTypeAchievement        ReferenceType = "achievement"
	ReferenceTypeEarningRule        ReferenceType = "earning_rule"
	ReferenceTypeGatewayTransaction ReferenceType = "gateway_transaction"
)

// PointTransaction is one immutable entry in the append-only ledger log.
// Rows are never updated or deleted; the current balance for any
// (user, point type) pair is the fold of its transactions ordered by
// creation time.
type PointTransaction struct {
	ID            int64           `db:"id"`
	UserID        int64           `db:"user_id"`
	PointTypeID   int64           `db:"point_type_id"`
	Kind          TransactionKind `db:"kind"`
	Amount        int64           `db:"amount"`
	BalanceBefore int64           `db:"balance_before"`
	BalanceAfter  int64           `db:"balance_after"`
	Reason        string          `db:"reason"`
	ReferenceType *ReferenceType  `db:"reference_type"`
	ReferenceID   *int64          `db:"reference_id"`
	ActingAdminID *int64          `db:"acting_admin_id"`
	CreatedAt     time.Time       `db:"created_at"`
}

// Delta returns the signed balance change this transaction carries.
// For adjust transactions the before/after pair is authoritative; for all
// other kinds the kind determines the sign of the amount.
func (t *PointTransaction) Delta() int64 {
	switch t.Kind {
	case TransactionKindSpend:
		return -t.Amount
	case TransactionKindAdjust:
		return t.BalanceAfter - t.BalanceBefore
	default:
		return t.Amount
	}
}

// Reconciles reports whether balanceAfter = balanceBefore + Delta().
func (t *PointTransaction) Reconciles() bool {
	return t.BalanceAfter == t.BalanceBefore+t.Delta()
}

// ReplayBalance folds a sequence of transactions (in creation order) from
// zero and returns the resulting balance.
func ReplayBalance(transactions []*PointTransaction) int64 {
	var balance int64
	for _, t := range transactions {
		balance += t.Delta()
	}
	return balance
}
