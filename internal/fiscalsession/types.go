package fiscalsession

// Operator identifies who is opening the receipt (spec.md §4.5 step 4).
type Operator struct {
	ID       string `json:"id"`
	Password string `json:"password"`
	Till     string `json:"till"`
}

// Item is one sold line (spec.md §4.5 step 5).
type Item struct {
	Name       string `json:"name"`
	Tax        string `json:"tax"`
	Price      string `json:"price"`
	Qty        string `json:"qty,omitempty"`
	Department string `json:"department,omitempty"`
	Unit       string `json:"unit,omitempty"`
	Discount   string `json:"discount,omitempty"`
}

// PaymentLine is one tender line (spec.md §4.5 step 6).
type PaymentLine struct {
	Type   string `json:"type"`
	Amount string `json:"amount"`
}

// ReceiptPayload is the job payload for fiscal_receipt and storno kinds.
type ReceiptPayload struct {
	Operator Operator      `json:"operator"`
	Invoice  string        `json:"invoice,omitempty"`
	Items    []Item        `json:"items"`
	Payments []PaymentLine `json:"payments"`

	// Storno-only fields.
	StornoType    string `json:"storno_type,omitempty"`
	OriginalDocNo string `json:"original_doc_no,omitempty"`
	OriginalDate  string `json:"original_date,omitempty"`
}

// ReportPayload is the job payload for the report kind.
type ReportPayload struct {
	Option  string `json:"option,omitempty"`
	Type    string `json:"type,omitempty"`
	NoReset bool   `json:"no_reset,omitempty"`
}

// CashPayload is the job payload for the cash kind.
type CashPayload struct {
	Amount    string `json:"amount"`
	Direction string `json:"direction"`
	Currency  string `json:"currency,omitempty"`
}

// PaymentMethodResult records one applied tender in the result summary.
type PaymentMethodResult struct {
	Type   string `json:"type"`
	Amount string `json:"amount"`
}

// Result is what run() returns on success (spec.md §4.5).
type Result struct {
	ReceiptNumber  string                `json:"receipt_number,omitempty"`
	TotalAmount    string                `json:"total_amount,omitempty"`
	PaymentMethods []PaymentMethodResult `json:"payment_methods,omitempty"`
	Raw            map[string]string     `json:"raw,omitempty"`
}
