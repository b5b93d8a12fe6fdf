package domain

const (
	RoleInvestor    = "investor"
	RoleFundManager = "fundManager"
	RoleSuperAdmin  = "superAdmin"
)

// Payment lifecycle. A payment is created PENDING and moves exactly once to
// COMPLETED or FAILED, driven by webhook reconciliation or the client
// confirmation call.
const (
	PaymentStatusPending   = "PENDING"
	PaymentStatusCompleted = "COMPLETED"
	PaymentStatusFailed    = "FAILED"
)

const (
	PayoutStatusProcessing = "PROCESSING"
	PayoutStatusCompleted  = "COMPLETED"
	PayoutStatusFailed     = "FAILED"
)

const (
	PaymentMethodStripe = "STRIPE"
	PaymentMethodPlaid  = "PLAID"
)

const (
	SoftCommitCommitted = "COMMITTED"
	SoftCommitRejected  = "REJECTED"
)

const (
	SignatureSigned   = "SIGNED"
	SignatureUnsigned = "UNSIGNED"
)

const (
	WalletTxnDealPayment  = "DEAL_PAYMENT"
	WalletTxnWithdrawal   = "WITHDRAWAL"
	WalletTxnPayoutRefund = "PAYOUT_REFUND"
)

const (
	WebhookProviderStripe        = "stripe"
	WebhookProviderStripeConnect = "stripe_connect"
)

// IsTerminalPaymentStatus reports whether s ends the payment lifecycle.
func IsTerminalPaymentStatus(s string) bool {
	return s == PaymentStatusCompleted || s == PaymentStatusFailed
}

// CanTransitionPayment enforces the monotonic PENDING -> terminal rule.
func CanTransitionPayment(from, to string) bool {
	if from != PaymentStatusPending {
		return false
	}
	return IsTerminalPaymentStatus(to)
}
