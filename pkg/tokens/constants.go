package tokens

const (
	operationSpend         = "spend"
	operationCredit        = "credit"
	operationFailedPayment = "failed_payment"

	operationStatusOK    = "ok"
	operationStatusError = "error"
)
