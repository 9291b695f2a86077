package fiscalsession

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"fiscalgw/internal/model"
	"fiscalgw/internal/transport"
	"fiscalgw/pkg/datecs"
)

const (
	defaultReportTimeout = 30 * time.Second
	paymentTolerance     = 0.02
)

// paymentLabels is the user-facing label for a payment type in a result
// summary (spec.md §8 scenario 1, `"В брой"` for cash).
var paymentLabels = map[string]string{
	"P": "В брой",
	"0": "В брой",
	"D": "Карта",
	"1": "Карта",
	"N": "Кредит",
	"2": "Кредит",
	"C": "Чек",
	"3": "Чек",
}

// Session runs the Datecs fiscal receipt state machine for one printer at
// a time; callers serialise access per printer via the job queue's
// per-device mutex (spec.md §5 "Ordering guarantees").
type Session struct {
	Log *logrus.Logger
	Seq *SeqStore
}

// New builds a Session sharing one process-wide sequence store.
func New(log *logrus.Logger, seq *SeqStore) *Session {
	return &Session{Log: log, Seq: seq}
}

// Run is the fiscal session's single entry point (spec.md §4.5
// "run(printer, payloadKind, payload, dryRun) -> result").
func (s *Session) Run(ctx context.Context, printer *model.Printer, kind model.PayloadKind, payload json.RawMessage, dryRun bool) (*Result, error) {
	profile, err := model.ResolveProfile(printer.ModelKey)
	if err != nil {
		return nil, newErr(KindValidation, err.Error(), nil)
	}
	builder := builderFor(profile.Builder)
	log := s.Log.WithFields(logrus.Fields{"printer_id": printer.ID, "payload_kind": string(kind)})

	p := *printer
	p.DryRun = p.DryRun || dryRun
	tr, err := transport.New(&p, s.Log)
	if err != nil {
		return nil, newErr(KindTransport, "failed to construct transport", err)
	}
	if err := tr.Open(); err != nil {
		return nil, newErr(KindTransport, "failed to open transport", err)
	}
	defer tr.Close()

	ex := &exchanger{
		tr:      tr,
		dialect: toDatecsDialect(profile.Dialect),
		status:  profile.StatusBytes,
		timeout: printer.Timeout,
		encoding: profile.Encoding,
		seq:     s.Seq,
		printer: printer.ID,
		log:     log,
	}

	switch kind {
	case model.PayloadFiscalReceipt:
		var rp ReceiptPayload
		if err := json.Unmarshal(payload, &rp); err != nil {
			return nil, newErr(KindValidation, "invalid fiscal_receipt payload", err)
		}
		return ex.runReceipt(ctx, builder, rp, cmdOpenFiscal)
	case model.PayloadStorno:
		var rp ReceiptPayload
		if err := json.Unmarshal(payload, &rp); err != nil {
			return nil, newErr(KindValidation, "invalid storno payload", err)
		}
		return ex.runStorno(ctx, builder, rp)
	case model.PayloadReport:
		var rp ReportPayload
		if err := json.Unmarshal(payload, &rp); err != nil {
			return nil, newErr(KindValidation, "invalid report payload", err)
		}
		return ex.runReport(ctx, builder, rp)
	case model.PayloadCash:
		var cp CashPayload
		if err := json.Unmarshal(payload, &cp); err != nil {
			return nil, newErr(KindValidation, "invalid cash payload", err)
		}
		return ex.runCash(ctx, builder, cp)
	case model.PayloadCancelReceipt:
		return ex.runCancelReceipt(ctx)
	default:
		return nil, newErr(KindValidation, fmt.Sprintf("unsupported payload kind %q", kind), nil)
	}
}

func builderFor(family model.BuilderFamily) datecs.Builder {
	if family == model.BuilderCompact {
		return datecs.CompactBuilder{}
	}
	return datecs.TabBuilder{}
}

func toDatecsDialect(d model.Dialect) datecs.Dialect {
	if d == model.DialectHexNibble {
		return datecs.DialectHex
	}
	return datecs.DialectByte
}

// exchanger carries everything one run() call needs to talk to a single
// open transport: dialect facts, the shared sequence store, and logging
// context. It is not reused across runs.
type exchanger struct {
	tr       transport.Transport
	dialect  datecs.Dialect
	status   int
	timeout  time.Duration
	encoding string
	seq      *SeqStore
	printer  string
	log      *logrus.Entry
}

func (e *exchanger) send(cmd int, data string, timeout time.Duration) (*datecs.Response, error) {
	seq := e.seq.Advance(e.printer)
	return exchange(e.tr, e.dialect, e.status, cmd, []byte(data), seq, timeout, e.log)
}

func (e *exchanger) decodeFields(data []byte) []string {
	var s string
	if e.encoding == "cp1251" {
		if decoded, err := datecs.DecodeCP1251(data); err == nil {
			s = decoded
		} else {
			s = string(data)
		}
	} else {
		s = string(data)
	}
	return strings.Split(s, "\t")
}

func (e *exchanger) checkDeviceError(resp *datecs.Response, context string) error {
	fields := e.decodeFields(resp.Data)
	code, ok := datecs.FieldErrorCode(fields)
	if !ok {
		return nil
	}
	derr := datecs.ClassifyError(code, context, resp.Status, strings.Join(fields, "\t"))
	return newErr(KindDeviceError, derr.Error(), derr)
}

// preflight runs the mandatory preflight sequence (spec.md §4.5 step 2):
// status check, transaction-status log, and receipt-open cancellation.
func (e *exchanger) preflight() error {
	resp, err := e.send(cmdStatus, "", e.timeout)
	if err != nil {
		return err
	}
	flags := datecs.DecodeStatus(resp.Status)
	if flags.BlocksReceipt() {
		return newErr(KindDeviceNotReady, "device not ready", nil)
	}

	if _, err := e.send(cmdTransactionStatus, "", e.timeout); err != nil {
		e.log.WithError(err).Warn("transaction-status poll failed, continuing")
	}

	if flags.HasOpenReceipt() {
		if _, err := e.send(cmdCancelReceipt, "", e.timeout); err != nil {
			e.log.WithError(err).Warn("cancel-receipt during preflight failed")
		}
		if resp2, err := e.send(cmdStatus, "", e.timeout); err == nil {
			flags = datecs.DecodeStatus(resp2.Status)
			if flags.BlocksReceipt() {
				return newErr(KindDeviceNotReady, "device not ready after cancel", nil)
			}
		}
	}
	return nil
}

// operatorDiagnostics sends the optional operator-registration commands
// best-effort: a failure here must never abort the receipt (SPEC_FULL §4).
func (e *exchanger) operatorDiagnostics(op Operator) {
	if _, err := e.send(cmdOperatorInfo, op.ID, e.timeout); err != nil {
		e.log.WithError(err).Debug("operator-info diagnostic failed, continuing")
	}
	if _, err := e.send(cmdSetOperatorName, op.ID, e.timeout); err != nil {
		e.log.WithError(err).Debug("set-operator-name diagnostic failed, continuing")
	}
}

func validateOperator(op Operator) error {
	id, err := strconv.Atoi(op.ID)
	if err != nil || id < 1 || id > 30 {
		return newErr(KindValidation, "operator id must be 1..30", nil)
	}
	if len(op.Password) < 1 || len(op.Password) > 8 {
		return newErr(KindValidation, "password must be 1..8 digits", nil)
	}
	till, err := strconv.Atoi(op.Till)
	if err != nil || till < 1 {
		return newErr(KindValidation, "till must be >= 1", nil)
	}
	return nil
}

// runReceipt implements the fiscal_receipt sequence (spec.md §4.5 steps
// 1-9), parameterised on the opening command so runStorno can reuse it.
func (e *exchanger) runReceipt(ctx context.Context, builder datecs.Builder, rp ReceiptPayload, openCmd int) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, newErr(KindProtocolTimeout, "cancelled before start", err)
	}
	if err := validateOperator(rp.Operator); err != nil {
		return nil, err
	}
	if len(rp.Payments) == 0 {
		return nil, newErr(KindValidation, "at least one payment is required", nil)
	}

	if err := e.preflight(); err != nil {
		return nil, err
	}
	e.operatorDiagnostics(rp.Operator)

	openData := builder.OpenReceipt(rp.Operator.ID, rp.Operator.Password, rp.Operator.Till, rp.Invoice, "")
	openResp, err := e.send(openCmd, openData, e.timeout)
	if err != nil {
		return nil, err
	}
	if derr := e.checkDeviceError(openResp, "open receipt"); derr != nil {
		return nil, derr
	}
	return e.finishReceipt(builder, rp)
}

func paymentLabel(t string) string {
	v := strings.ToUpper(strings.TrimSpace(t))
	if l, ok := paymentLabels[v]; ok {
		return l
	}
	return v
}

// extractReceiptNumber implements spec.md §4.5 step 9.
func (e *exchanger) extractReceiptNumber(closeResp *datecs.Response) (string, error) {
	if e.dialect == datecs.DialectHex {
		fields := e.decodeFields(closeResp.Data)
		if len(fields) < 2 {
			return "", newErr(KindFraming, "close response missing receipt number field", nil)
		}
		return strings.TrimSpace(fields[1]), nil
	}

	resp, err := e.send(cmdNRAData, "1", e.timeout)
	if err != nil {
		return "", err
	}
	raw := e.decodeFields(resp.Data)
	joined := strings.Join(raw, "\t")
	parts := strings.Split(joined, ",")
	if len(parts) < 2 {
		return "", newErr(KindFraming, "NRA_DATA response too short", nil)
	}
	return strings.TrimSpace(parts[len(parts)-2]), nil
}

// runStorno implements the storno sequence (spec.md §4.5 "Sequence for
// storno"): identical skeleton with STORNO_OPEN instead of OPEN_FISCAL,
// DATA additionally carrying storno type and original-document
// coordinates. The open question about the source's `auto` branch
// (spec.md §9) is resolved here: every branch returns a Result.
func (e *exchanger) runStorno(ctx context.Context, builder datecs.Builder, rp ReceiptPayload) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, newErr(KindProtocolTimeout, "cancelled before start", err)
	}
	if rp.StornoType == "" {
		return nil, newErr(KindValidation, "storno_type is required", nil)
	}
	if err := validateOperator(rp.Operator); err != nil {
		return nil, err
	}
	if err := e.preflight(); err != nil {
		return nil, err
	}
	e.operatorDiagnostics(rp.Operator)

	openData := builder.OpenReceipt(rp.Operator.ID, rp.Operator.Password, rp.Operator.Till, rp.Invoice, "")
	openData += stornoSuffix(rp)
	openResp, err := e.send(cmdStornoOpen, openData, e.timeout)
	if err != nil {
		return nil, err
	}
	if derr := e.checkDeviceError(openResp, "open receipt"); derr != nil {
		return nil, derr
	}
	return e.finishReceipt(builder, rp)
}

// stornoSuffix appends the storno type and, when present, original-document
// coordinates to an already-built open-receipt DATA string.
func stornoSuffix(rp ReceiptPayload) string {
	var b strings.Builder
	b.WriteString(rp.StornoType)
	b.WriteByte('\t')
	if rp.OriginalDocNo != "" {
		b.WriteString(rp.OriginalDocNo)
		b.WriteByte('\t')
	}
	if rp.OriginalDate != "" {
		b.WriteString(rp.OriginalDate)
		b.WriteByte('\t')
	}
	return b.String()
}

// finishReceipt runs items/payments/close shared by runReceipt's inline
// body and runStorno, once the opening command has already succeeded.
func (e *exchanger) finishReceipt(builder datecs.Builder, rp ReceiptPayload) (*Result, error) {
	total := 0.0
	for _, item := range rp.Items {
		data, err := builder.Sale(datecs.SaleItem{
			Name: item.Name, Tax: item.Tax, Price: item.Price, Qty: item.Qty,
			Department: item.Department, Unit: item.Unit, Discount: item.Discount,
		})
		if err != nil {
			return nil, newErr(KindValidation, err.Error(), nil)
		}
		resp, err := e.send(cmdSellItem, data, e.timeout)
		if err != nil {
			return nil, err
		}
		if derr := e.checkDeviceError(resp, "sell item"); derr != nil {
			return nil, derr
		}
		qty := 1.0
		if item.Qty != "" {
			if v, perr := strconv.ParseFloat(item.Qty, 64); perr == nil {
				qty = v
			}
		}
		if price, perr := strconv.ParseFloat(item.Price, 64); perr == nil {
			total += price * qty
		}
	}

	methods := make([]PaymentMethodResult, 0, len(rp.Payments))
	var lastPaymentResp *datecs.Response
	for _, pay := range rp.Payments {
		data, err := builder.Payment(datecs.Payment{Type: pay.Type, Amount: pay.Amount})
		if err != nil {
			return nil, newErr(KindValidation, err.Error(), nil)
		}
		resp, err := e.send(cmdPayment, data, e.timeout)
		if err != nil {
			return nil, err
		}
		if derr := e.checkDeviceError(resp, "payment"); derr != nil {
			return nil, derr
		}
		lastPaymentResp = resp
		methods = append(methods, PaymentMethodResult{Type: paymentLabel(pay.Type), Amount: datecs.FormatAmount(pay.Amount)})
	}
	if lastPaymentResp != nil {
		fields := e.decodeFields(lastPaymentResp.Data)
		if len(fields) >= 2 && fields[1] == "D" {
			remainder, _ := strconv.ParseFloat(strings.TrimSpace(fields[0]), 64)
			if remainder > paymentTolerance {
				return nil, newErr(KindPaymentIncomplete, "payment remainder exceeds tolerance", nil)
			}
		}
	}

	closeResp, err := e.send(cmdCloseFiscal, "", e.timeout)
	if err != nil {
		return nil, err
	}
	if derr := e.checkDeviceError(closeResp, "close receipt"); derr != nil {
		return nil, derr
	}
	if _, err := e.send(cmdStatus, "", e.timeout); err != nil {
		e.log.WithError(err).Warn("post-close status poll failed")
	}
	receiptNumber, err := e.extractReceiptNumber(closeResp)
	if err != nil {
		e.log.WithError(err).Warn("receipt number extraction failed")
	}
	return &Result{
		ReceiptNumber:  receiptNumber,
		TotalAmount:    datecs.FormatAmount(strconv.FormatFloat(total, 'f', -1, 64)),
		PaymentMethods: methods,
	}, nil
}

// runReport implements spec.md §4.5 "Sequence for report".
func (e *exchanger) runReport(ctx context.Context, builder datecs.Builder, rp ReportPayload) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, newErr(KindProtocolTimeout, "cancelled before start", err)
	}
	data, err := builder.Report(datecs.ReportOp{Option: rp.Option, Type: rp.Type, NoReset: rp.NoReset})
	if err != nil {
		return nil, newErr(KindValidation, err.Error(), nil)
	}
	cmd := reportCommands[strings.ToLower(rp.Type)]
	if cmd == 0 {
		cmd = cmdReportDaily
	}

	timeout := e.timeout
	if timeout < defaultReportTimeout {
		timeout = defaultReportTimeout
	}
	resp, err := e.send(cmd, data, timeout)
	if err != nil {
		return nil, err
	}

	flags := datecs.DecodeStatus(resp.Status)
	fields := e.decodeFields(resp.Data)
	reduced := strings.TrimSpace(strings.Join(fields, ""))
	if flags.BlocksReceipt() || flags["general_error"] || flags["syntax_error"] || reduced == "T" || reduced == "F" {
		lastErrResp, err := e.send(cmdLastError, "", e.timeout)
		if err != nil {
			return nil, err
		}
		code, ok := datecs.FieldErrorCode(e.decodeFields(lastErrResp.Data))
		if ok {
			derr := datecs.ClassifyError(code, "report", resp.Status, reduced)
			return nil, newErr(KindDeviceError, derr.Error(), derr)
		}
		return nil, newErr(KindDeviceError, "report failed with no decodable error code", nil)
	}
	return &Result{Raw: map[string]string{"response": strings.Join(fields, "\t")}}, nil
}

// runCash implements spec.md §4.5 "Sequence for cash".
func (e *exchanger) runCash(ctx context.Context, builder datecs.Builder, cp CashPayload) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, newErr(KindProtocolTimeout, "cancelled before start", err)
	}
	data, err := builder.Cash(datecs.CashOp{Amount: cp.Amount, Direction: cp.Direction, Currency: cp.Currency})
	if err != nil {
		return nil, newErr(KindValidation, err.Error(), nil)
	}
	resp, err := e.send(cmdCash, data, e.timeout)
	if err != nil {
		return nil, err
	}
	if derr := e.checkDeviceError(resp, "cash"); derr != nil {
		return nil, derr
	}
	return &Result{TotalAmount: datecs.FormatAmount(cp.Amount)}, nil
}

// runCancelReceipt implements the supplemented standalone cancel-receipt
// operation (SPEC_FULL §4).
func (e *exchanger) runCancelReceipt(ctx context.Context) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, newErr(KindProtocolTimeout, "cancelled before start", err)
	}
	resp, err := e.send(cmdCancelReceipt, "", e.timeout)
	if err != nil {
		return nil, err
	}
	if derr := e.checkDeviceError(resp, "cancel receipt"); derr != nil {
		return nil, derr
	}
	return &Result{}, nil
}
