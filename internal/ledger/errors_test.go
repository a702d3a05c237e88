package ledger

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"nil", nil, ""},
		{"structured", insufficientFunds(1000000001), CodeInsufficientFunds},
		{"bare sentinel", ErrNotAuthorizedOrNotFound, CodeNotAuthorizedOrNotFound},
		{"wrapped sentinel", fmt.Errorf("refund: %w", ErrNoTransactions), CodeNoTransactions},
		{"wrapped structured", fmt.Errorf("outer: %w", duplicateReference("abc", nil)), CodeDuplicateReference},
		{"unknown", errors.New("disk on fire"), CodeStore},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CodeOf(tt.err))
		})
	}
}

func TestError_MatchesSentinelWithCause(t *testing.T) {
	cause := errors.New("unique_violation")
	err := duplicateReference("refundabc", cause)

	assert.ErrorIs(t, err, ErrDuplicateReference)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "transaction reference refundabc already exists: unique_violation", err.Error())
}

func TestError_Messages(t *testing.T) {
	assert.Equal(t, "A/C number 1000000001 does not have sufficient funds", insufficientFunds(1000000001).Error())
	assert.Equal(t, "account 1000000002 does not exist", accountNotFound(1000000002).Error())
	assert.Equal(t, "invalid amount", (&Error{Code: CodeInvalidAmount, Err: ErrInvalidAmount}).Error())
	assert.Equal(t,
		"you can't refund this transaction of reference: xyz",
		(&Error{Code: CodeNotAuthorizedOrNotFound, Reference: "xyz", Err: ErrNotAuthorizedOrNotFound}).Error())
}

func TestRetryableAndClientErrors(t *testing.T) {
	conflict := &Error{Code: CodeConflict, Err: errors.New("40001")}
	assert.True(t, IsRetryable(conflict))
	assert.False(t, IsClientError(conflict))

	assert.True(t, IsClientError(insufficientFunds(1)))
	assert.False(t, IsRetryable(insufficientFunds(1)))

	assert.False(t, IsClientError(storeError("insert", errors.New("boom"))))
	assert.False(t, IsClientError(nil))
}
