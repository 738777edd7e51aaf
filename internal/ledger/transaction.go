package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TxType is the direction of a ledger transaction.
type TxType int32

const (
	TxTypeCredit TxType = iota
	TxTypeDebit
)

func (t TxType) String() string {
	if t == TxTypeDebit {
		return "debit"
	}
	return "credit"
}

// Opposite returns the reversing direction, used by the correction flow.
func (t TxType) Opposite() TxType {
	if t == TxTypeDebit {
		return TxTypeCredit
	}
	return TxTypeDebit
}

// ParseTxType maps the storage representation back to a TxType.
func ParseTxType(s string) (TxType, error) {
	switch s {
	case "credit":
		return TxTypeCredit, nil
	case "debit":
		return TxTypeDebit, nil
	default:
		return 0, fmt.Errorf("unknown transaction type: %q", s)
	}
}

// TxStatus marks whether a transaction is in effect or has been reversed.
type TxStatus int32

const (
	TxStatusDone TxStatus = iota
	TxStatusReversed
)

func (s TxStatus) String() string {
	if s == TxStatusReversed {
		return "reversed"
	}
	return "done"
}

// ParseTxStatus maps the storage representation back to a TxStatus.
func ParseTxStatus(s string) (TxStatus, error) {
	switch s {
	case "done":
		return TxStatusDone, nil
	case "reversed":
		return TxStatusReversed, nil
	default:
		return 0, fmt.Errorf("unknown transaction status: %q", s)
	}
}

// Transaction is an immutable ledger entry. The only permitted mutation is
// the done → reversed status flip during a correction.
type Transaction struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	Type         TxType
	Amount       decimal.Decimal
	Remark       string
	Status       TxStatus
	BalanceAfter decimal.Decimal
	CreatedAt    time.Time
}

const remarkSep = " / "

// EncodeRemark builds the settlement remark: matchKey / market / winningSide.
// The correction flow matches transactions back to a match by this encoding.
func EncodeRemark(matchKey, market, winningSide string) string {
	return matchKey + remarkSep + market + remarkSep + winningSide
}

// ParseRemark splits a settlement remark into its three components.
func ParseRemark(remark string) (matchKey, market, winningSide string, err error) {
	parts := strings.Split(remark, remarkSep)
	if len(parts) != 3 {
		return "", "", "", fmt.Errorf("malformed settlement remark: %q", remark)
	}
	return parts[0], parts[1], parts[2], nil
}

// RemarkPrefix is the prefix shared by all settlement transactions of a match.
func RemarkPrefix(matchKey string) string {
	return matchKey + remarkSep
}

// Apply returns the balance after this transaction is applied to prior.
func (t *Transaction) Apply(prior decimal.Decimal) decimal.Decimal {
	if t.Type == TxTypeDebit {
		return prior.Sub(t.Amount)
	}
	return prior.Add(t.Amount)
}
