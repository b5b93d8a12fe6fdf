package ws

const (
	EventPaymentCompleted = "payment.completed"
	EventPayoutCompleted  = "payout.completed"
	EventPayoutFailed     = "payout.failed"
)

// PaymentEvent is pushed to a fund manager's connections when webhook
// reconciliation settles one of their payments or payouts.
type PaymentEvent struct {
	Type        string `json:"type"`
	PaymentID   uint   `json:"payment_id,omitempty"`
	PayoutID    uint   `json:"payout_id,omitempty"`
	Status      string `json:"status"`
	AmountCents int64  `json:"amount_cents"`
}
