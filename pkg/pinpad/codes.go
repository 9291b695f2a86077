package pinpad

// Borica (TYPE 0x3D) sub-commands: TRANSACTION_START itself, the
// operation selectors carried as the first byte of its parameters
// (purchase, void, end-of-day, test-connection), and the standalone
// ping/info/status commands (spec.md §4.6).
const (
	SubCmdTransactionStart byte = 0x01
	SubCmdPurchase         byte = 0x01
	SubCmdVoidPurchase     byte = 0x07
	SubCmdEndOfDay         byte = 0x0A
	SubCmdTestConnection   byte = 0x09
	SubCmdPing             byte = 0x0B
	SubCmdInfo             byte = 0x0C
	SubCmdGetPinpadStatus  byte = 0x1A
)

// Borica event sub-events (TYPE 0x0E) (spec.md §4.6).
const (
	SubEventTransactionComplete byte = 0x01
	SubEventIntermediateComplete byte = 0x02
	SubEventPrintHangReceipt    byte = 0x03
)

// External-internet event sub-events (TYPE 0x0F), the socket-proxy
// sub-protocol (spec.md §4.6).
const (
	SubEventSocketOpen  byte = 0x01
	SubEventSocketClose byte = 0x02
	SubEventSendData    byte = 0x03
)

// EXT_INTERNET commands the gateway sends back to the device (spec.md
// §4.6).
const (
	CmdExtInternetReceiveData byte = 0x01 // under 0x40, "0x40 0x01"
	CmdExtInternetEventConfirm byte = 0x02 // "0x40 0x02"
)

// Post-transaction commands under TYPE 0x3D (spec.md §4.6).
const (
	CmdGetReceiptTags byte = 0x02 // "0x3D 0x02"
	CmdTransactionEnd byte = 0x03 // "0x3D 0x03"
)

// BUSY response sub-status the device uses to push back on a RECEIVE_DATA
// chunk (spec.md §4.6 step 2).
const Busy byte = 0x26

// GetPinpadStatus's first data byte (spec.md §4.6 "Pre-transaction health
// check").
const (
	StatusReversalPending byte = 'R' // 0x52
	StatusHungTransaction byte = 'C' // 0x43
)

// ResultCode is the pinpad transaction outcome code (spec.md §4.6 "Result
// codes").
type ResultCode int

const (
	ResultApproved        ResultCode = 0
	ResultDeclined        ResultCode = 1
	ResultDeviceError     ResultCode = 2
	ResultTryOtherInterface ResultCode = 3
	ResultTryAgain        ResultCode = 4
)

// Well-known TLV tags (spec.md §4.6 "a small closed set of well-known
// tags"; the glossary leaves the concrete numbering to the implementer
// beyond tag 0x81, fixed here for internal consistency). All fall in the
// single-byte range DecodeTag/EncodeTag use: none has its low 5 bits all
// set, so none collides with the multi-byte continuation marker.
const (
	TagAmount         = 0x81
	TagRRN            = 0x82
	TagAuthID         = 0x83
	TagHostErrorCode  = 0x84
	TagCardScheme     = 0x85
	TagMaskedPAN      = 0x86
	TagCardholderName = 0x87
	TagTerminalID     = 0x88
	TagMerchantID     = 0x89
	TagTransType      = 0x8A
	TagDateTimeBCD    = 0x8B
	TagInterface      = 0x8C
	TagBatch          = 0x8D
	TagCurrency       = 0x8E
	TagDeviceErrorCode = 0x8F
	TagResultCode     = 0x90
	TagTip            = 0x91
	TagCashback       = 0x92
	TagReference      = 0x93
	TagCurrencyCode   = 0x94
)

// TagEMVMessageID carries the EMV kernel's user-interface message id inside
// the small TLV an EMV event (TYPE 0x0B) body wraps it in (spec.md §4.6
// "decode the message id embedded in a small TLV").
const TagEMVMessageID = 0x95

// emvMessageDescriptions is the fixed, localised text for each EMV
// user-interface message id (spec.md §4.6 "log a localised string"),
// matching the Bulgarian used throughout a Borica-certified pinpad's own
// display prompts.
var emvMessageDescriptions = map[int]string{
	0x01: "Поставете картата",
	0x02: "Прекарайте картата",
	0x03: "Изчакайте",
	0x04: "Одобрена транзакция",
	0x05: "Отказана транзакция",
	0x06: "Отстранете картата",
	0x07: "Грешка при четене на картата",
}

// EMVMessageDescription resolves an EMV user-interface message id to its
// localised text, falling back to a generic message for unknown ids.
func EMVMessageDescription(id int) string {
	if d, ok := emvMessageDescriptions[id]; ok {
		return d
	}
	return "Непознато съобщение от EMV ядрото"
}

// deviceErrorDescriptions and hostErrorDescriptions are the fixed
// description tables spec.md §4.6 "Result codes" calls for.
var deviceErrorDescriptions = map[int]string{
	0: "No error",
	1: "Card read error",
	2: "Timeout waiting for card",
	3: "Pinpad communication error",
}

var hostErrorDescriptions = map[int]string{
	0:  "Approved",
	5:  "Do not honour",
	51: "Insufficient funds",
	54: "Expired card",
	91: "Issuer unavailable",
}

// DeviceErrorDescription resolves a device error code to a description,
// falling back to a generic message for unknown codes.
func DeviceErrorDescription(code int) string {
	if d, ok := deviceErrorDescriptions[code]; ok {
		return d
	}
	return "Unknown pinpad device error"
}

// HostErrorDescription resolves a host (acquirer) error code.
func HostErrorDescription(code int) string {
	if d, ok := hostErrorDescriptions[code]; ok {
		return d
	}
	return "Unknown host error"
}
