package account

import (
	"errors"
	"net/http"

	"github.com/congo-pay/ledgerd/internal/ledger"
)

const genericFailure = "Something went wrong, please try again later"

// Failure is the stable status and message reported to a client.
type Failure struct {
	Status  int
	Message string
}

// Describe maps an error returned by the Service to its HTTP failure.
func Describe(err error) Failure {
	code := ledger.CodeOf(err)
	switch code {
	case ledger.CodeAccountNotFound:
		return Failure{http.StatusNotFound, message(err)}
	case ledger.CodeNotAuthorizedOrNotFound:
		return Failure{http.StatusNotFound, message(err)}
	case ledger.CodeNoTransactions:
		return Failure{http.StatusNotFound, "There are no transactions on this account yet"}
	case ledger.CodeInsufficientFunds:
		return Failure{http.StatusBadRequest, message(err)}
	case ledger.CodeSameAccount:
		return Failure{http.StatusBadRequest, "You cannot transfer money to your own account"}
	case ledger.CodeInvalidAmount:
		return Failure{http.StatusUnprocessableEntity, "Amount must be a positive number with at most two decimal places"}
	case ledger.CodeNotRefundable:
		return Failure{http.StatusUnprocessableEntity, "Only transfers can be refunded"}
	case ledger.CodeDuplicateReference:
		return Failure{http.StatusConflict, "This transaction has already been processed"}
	case ledger.CodeConflict:
		return Failure{http.StatusConflict, "The account is busy, please retry the request"}
	case ledger.CodeStore:
		return Failure{http.StatusInternalServerError, genericFailure}
	}
	return Failure{http.StatusInternalServerError, genericFailure}
}

func message(err error) string {
	var lerr *ledger.Error
	if errors.As(err, &lerr) {
		return lerr.Error()
	}
	return err.Error()
}
