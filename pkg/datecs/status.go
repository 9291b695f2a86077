// pkg/datecs/status.go
package datecs

// StatusFlags is the decoded bit-to-flag map for a Datecs status vector
// (spec.md §4.5.a). Both dialects share the same byte layout for the
// bytes they both expose; the vector length (6 or 8) only changes how
// many trailing bytes exist.
type StatusFlags map[string]bool

type statusBit struct {
	byteIndex int
	bitIndex  int
	name      string
	inverted  bool // flag is set when the bit is CLEAR, not set
}

// statusTable is the fixed bit-to-flag table, identical across dialects
// (spec.md design notes: "specify it as a table resource, not open-coded
// per site").
var statusTable = []statusBit{
	// Byte 0
	{0, 6, "cover_open", false},
	{0, 5, "general_error", false},
	{0, 4, "printing_unit_fault", false},
	{0, 3, "no_customer_display", false},
	{0, 2, "clock_not_set", false},
	{0, 1, "invalid_command_code", false},
	{0, 0, "syntax_error", false},
	// Byte 1
	{1, 6, "tax_terminal_not_responding", false},
	{1, 5, "service_receipt_rotated_open", false},
	{1, 4, "storno_receipt_open", false},
	{1, 3, "low_battery", false},
	{1, 2, "ram_reset", false},
	{1, 1, "command_not_allowed", false},
	{1, 0, "amount_overflow", false},
	// Byte 2
	{2, 6, "ej_near_end", false},
	{2, 5, "service_receipt_open", false},
	{2, 4, "ej_near", false},
	{2, 3, "fiscal_receipt_open", false},
	{2, 2, "ej_end", false},
	{2, 1, "low_paper", false},
	{2, 0, "no_paper", false},
	// Byte 4
	{4, 6, "head_overheated", false},
	{4, 5, "fiscal_error_or", false},
	{4, 4, "fiscal_memory_full", false},
	{4, 3, "fiscal_memory_low", false},
	{4, 1, "uic_missing", true},
	{4, 2, "unique_id_missing", true},
	{4, 1, "uic_set", false},
	{4, 0, "fiscal_memory_store_error", false},
	// Byte 5
	{5, 5, "fiscal_memory_read_error", false},
	{5, 4, "tax_rates_set", false},
	{5, 3, "fiscal_mode", false},
	{5, 2, "last_store_failed", false},
	{5, 1, "fiscal_memory_formatted", false},
	{5, 0, "fiscal_memory_readonly", false},
}

// DecodeStatus is a pure function: identical bytes yield identical flag
// maps (spec.md §8 round-trip property).
func DecodeStatus(status []byte) StatusFlags {
	flags := make(StatusFlags)
	if len(status) == 0 {
		return flags
	}
	for _, b := range statusTable {
		if len(status) <= b.byteIndex {
			continue
		}
		set := status[b.byteIndex]&(1<<uint(b.bitIndex)) != 0
		if b.inverted {
			set = !set
		}
		if set {
			flags[b.name] = true
		}
	}
	return flags
}

// preflightBlockingFlags is the set of flags that must abort a fiscal
// receipt immediately during preflight (spec.md §4.5 step 2a).
var preflightBlockingFlags = []string{"cover_open", "no_paper", "printing_unit_fault"}

// BlocksReceipt reports whether the decoded flags require aborting with
// device-not-ready before any fiscal command is sent.
func (f StatusFlags) BlocksReceipt() bool {
	for _, name := range preflightBlockingFlags {
		if f[name] {
			return true
		}
	}
	return false
}

// receiptOpenFlags is the set of flags indicating some receipt is already
// open and must be cancelled during preflight (spec.md §4.5 step 2c).
var receiptOpenFlags = []string{"fiscal_receipt_open", "service_receipt_open", "storno_receipt_open"}

// HasOpenReceipt reports whether any receipt-open flag is set.
func (f StatusFlags) HasOpenReceipt() bool {
	for _, name := range receiptOpenFlags {
		if f[name] {
			return true
		}
	}
	return false
}
