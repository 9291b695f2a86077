package pinpadsession

// PurchasePayload is the job payload for a pinpad purchase, optionally
// with tip, cashback, or a caller reference (spec.md §4.6 "Operations").
type PurchasePayload struct {
	AmountMinor   int64  `json:"amount_minor"`
	TipMinor      int64  `json:"tip_minor,omitempty"`
	CashbackMinor int64  `json:"cashback_minor,omitempty"`
	Reference     string `json:"reference,omitempty"`
	Currency      string `json:"currency,omitempty"`
}

// VoidPayload is the job payload for a pinpad void.
type VoidPayload struct {
	RRN       string `json:"rrn"`
	AuthID    string `json:"auth_id,omitempty"`
	Reference string `json:"reference,omitempty"`
}

// EndOfDayPayload carries no required fields; the operation itself is the
// signal.
type EndOfDayPayload struct{}
