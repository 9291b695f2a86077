package fiscalsession

// Datecs command bytes used by the fiscal session (spec.md §4.5).
const (
	cmdStatus            = 0x4A
	cmdTransactionStatus = 0x4C
	cmdCancelReceipt     = 0x3C
	cmdOperatorInfo      = 0x70
	cmdSetOperatorName   = 0x66
	cmdOpenFiscal        = 0x30
	cmdSellItem          = 0x31
	cmdPayment           = 0x35
	cmdCloseFiscal       = 0x38
	cmdNRAData           = 0x25
	cmdStornoOpen        = 0x2E
	cmdCash              = 0x46
	cmdLastError         = 0x20

	// Report sub-commands (spec.md §4.5 "Sequence for report").
	cmdReportDaily     = 0x45
	cmdReportOperator  = 0x6C
	cmdReportDecade    = 0x75
	cmdReportMonthly   = 0x76

	// Supplemented datetime operations (SPEC_FULL §4).
	cmdReadDateTime = 0x3E
	cmdSyncDateTime = 0x3D
)

// reportCommands maps a report payload's selector string to its Datecs
// command byte.
var reportCommands = map[string]int{
	"daily":    cmdReportDaily,
	"z":        cmdReportDaily,
	"x":        cmdReportDaily,
	"operator": cmdReportOperator,
	"decade":   cmdReportDecade,
	"monthly":  cmdReportMonthly,
}
