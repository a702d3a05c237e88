package ledger

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	referenceLength = 12
	refundPrefix    = "refund"
	depositPrefix   = "DEP-"
	withdrawPrefix  = "WDL-"
)

// ReferenceGenerator produces opaque transaction references.
type ReferenceGenerator interface {
	New(kind Kind) (string, error)
}

// NanoIDReferences generates 12 character URL-safe references. Deposits and
// withdrawals carry a DEP- or WDL- prefix.
type NanoIDReferences struct{}

// New returns a fresh reference for kind. Refund references are never
// generated; they are derived with RefundReference.
func (NanoIDReferences) New(kind Kind) (string, error) {
	if kind == KindRefund {
		return "", fmt.Errorf("refund references are derived from the original")
	}
	id, err := gonanoid.New(referenceLength)
	if err != nil {
		return "", fmt.Errorf("generate reference: %w", err)
	}
	switch kind {
	case KindDeposit:
		return depositPrefix + id, nil
	case KindWithdrawal:
		return withdrawPrefix + id, nil
	default:
		return id, nil
	}
}

// RefundReference is the idempotency key of a refund: a pure function of the
// original reference. Together with the unique constraint on references it
// makes a second refund of the same original fail.
func RefundReference(original string) string {
	return refundPrefix + original
}

