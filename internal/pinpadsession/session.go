package pinpadsession

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"fiscalgw/internal/model"
	"fiscalgw/internal/transport"
	"fiscalgw/pkg/pinpad"
)

const (
	defaultTransactionTimeout = 120 * time.Second
	endOfDayTimeout           = 300 * time.Second
	idleReadTimeout           = 1 * time.Second
	busyReadTimeout           = 100 * time.Millisecond
	busyRetryDelay            = 100 * time.Millisecond
)

// SimpleResult is the response shape for the non-transaction single
// request/response operations: ping, info, status (SPEC_FULL §4).
type SimpleResult struct {
	StatusByte byte   `json:"status_byte"`
	Data       []byte `json:"data,omitempty"`
}

// Result is what Run returns: exactly one of Transaction or Simple is set.
type Result struct {
	Transaction *model.TransactionResult `json:"transaction,omitempty"`
	Simple      *SimpleResult            `json:"simple,omitempty"`
}

// Session runs pinpad operations for one printer at a time; callers
// serialise access per printer via the job queue's per-device mutex, the
// same discipline fiscalsession.Session relies on (spec.md §5).
type Session struct {
	Log *logrus.Logger
}

// New builds a pinpad Session.
func New(log *logrus.Logger) *Session {
	return &Session{Log: log}
}

// Run dispatches a pinpad payload kind to either the transaction event
// loop or a simple single-command exchange (spec.md §4.6).
func (s *Session) Run(ctx context.Context, printer *model.Printer, kind model.PayloadKind, payload json.RawMessage) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, newErr(KindProtocolTimeout, "cancelled before start", err)
	}

	switch kind {
	case model.PayloadPinpadPurchase:
		var pp PurchasePayload
		if err := json.Unmarshal(payload, &pp); err != nil {
			return nil, newErr(KindValidation, "invalid purchase payload", err)
		}
		tr, err := s.runTransaction(printer, pinpad.SubCmdPurchase, buildPurchaseTLV(pp), defaultTransactionTimeout)
		if err != nil {
			return nil, err
		}
		return &Result{Transaction: tr}, nil
	case model.PayloadPinpadVoid:
		var vp VoidPayload
		if err := json.Unmarshal(payload, &vp); err != nil {
			return nil, newErr(KindValidation, "invalid void payload", err)
		}
		tr, err := s.runTransaction(printer, pinpad.SubCmdVoidPurchase, buildVoidTLV(vp), defaultTransactionTimeout)
		if err != nil {
			return nil, err
		}
		return &Result{Transaction: tr}, nil
	case model.PayloadPinpadEndOfDay:
		tr, err := s.runTransaction(printer, pinpad.SubCmdEndOfDay, nil, endOfDayTimeout)
		if err != nil {
			return nil, err
		}
		return &Result{Transaction: tr}, nil
	case model.PayloadPinpadTestConn:
		tr, err := s.runTransaction(printer, pinpad.SubCmdTestConnection, nil, defaultTransactionTimeout)
		if err != nil {
			return nil, err
		}
		return &Result{Transaction: tr}, nil
	case model.PayloadPinpadPing:
		r, err := s.simpleCommand(printer, pinpad.SubCmdPing)
		if err != nil {
			return nil, err
		}
		return &Result{Simple: r}, nil
	case model.PayloadPinpadInfo:
		r, err := s.simpleCommand(printer, pinpad.SubCmdInfo)
		if err != nil {
			return nil, err
		}
		return &Result{Simple: r}, nil
	case model.PayloadPinpadStatus:
		r, err := s.simpleCommand(printer, pinpad.SubCmdGetPinpadStatus)
		if err != nil {
			return nil, err
		}
		return &Result{Simple: r}, nil
	default:
		return nil, newErr(KindValidation, fmt.Sprintf("unsupported payload kind %q", kind), nil)
	}
}

func buildPurchaseTLV(p PurchasePayload) []pinpad.TLV {
	tlvs := []pinpad.TLV{pinpad.EncodeAmount(uint32(p.AmountMinor))}
	if p.TipMinor > 0 {
		tlvs = append(tlvs, pinpad.TLV{Tag: pinpad.TagTip, Value: []byte{byte(p.TipMinor >> 24), byte(p.TipMinor >> 16), byte(p.TipMinor >> 8), byte(p.TipMinor)}})
	}
	if p.CashbackMinor > 0 {
		tlvs = append(tlvs, pinpad.TLV{Tag: pinpad.TagCashback, Value: []byte{byte(p.CashbackMinor >> 24), byte(p.CashbackMinor >> 16), byte(p.CashbackMinor >> 8), byte(p.CashbackMinor)}})
	}
	if p.Reference != "" {
		tlvs = append(tlvs, pinpad.TLV{Tag: pinpad.TagReference, Value: []byte(p.Reference)})
	}
	if p.Currency != "" {
		tlvs = append(tlvs, pinpad.TLV{Tag: pinpad.TagCurrencyCode, Value: []byte(p.Currency)})
	}
	return tlvs
}

func buildVoidTLV(v VoidPayload) []pinpad.TLV {
	var tlvs []pinpad.TLV
	if v.RRN != "" {
		tlvs = append(tlvs, pinpad.TLV{Tag: pinpad.TagRRN, Value: []byte(v.RRN)})
	}
	if v.AuthID != "" {
		tlvs = append(tlvs, pinpad.TLV{Tag: pinpad.TagAuthID, Value: []byte(v.AuthID)})
	}
	if v.Reference != "" {
		tlvs = append(tlvs, pinpad.TLV{Tag: pinpad.TagReference, Value: []byte(v.Reference)})
	}
	return tlvs
}

// simpleCommand backs ping/info/status: a single request/response with no
// event loop (SPEC_FULL §4).
func (s *Session) simpleCommand(printer *model.Printer, subCmd byte) (*SimpleResult, error) {
	tr, err := transport.New(printer, s.Log)
	if err != nil {
		return nil, newErr(KindTransport, "failed to construct transport", err)
	}
	if err := tr.Open(); err != nil {
		return nil, newErr(KindTransport, "failed to open transport", err)
	}
	defer tr.Close()

	st := newStream(tr)
	resp, err := st.sendCommand(pinpad.TypeBorica, subCmd, nil, printer.Timeout)
	if err != nil {
		return nil, err
	}
	return &SimpleResult{StatusByte: resp.Status, Data: resp.Payload}, nil
}

// runTransaction opens a transport once and runs a full transaction
// (health check, event loop, post-processing) scoped to it (spec.md §4.6,
// §5 "scoped acquisition").
func (s *Session) runTransaction(printer *model.Printer, operationSubCmd byte, tlvParams []pinpad.TLV, timeout time.Duration) (*model.TransactionResult, error) {
	log := s.Log.WithFields(logrus.Fields{"printer_id": printer.ID, "operation": operationSubCmd})

	tr, err := transport.New(printer, s.Log)
	if err != nil {
		return nil, newErr(KindTransport, "failed to construct transport", err)
	}
	if err := tr.Open(); err != nil {
		return nil, newErr(KindTransport, "failed to open transport", err)
	}
	defer tr.Close()

	st := newStream(tr)
	if err := s.clearHungStateIfNeeded(st, operationSubCmd, timeout, log); err != nil {
		return nil, err
	}
	return s.executeTransaction(st, operationSubCmd, tlvParams, timeout, log)
}

// clearHungStateIfNeeded implements the pre-transaction health check
// (spec.md §4.6 "A hung transaction must be cleared by running a
// test-connection transaction before any new one starts").
func (s *Session) clearHungStateIfNeeded(st *stream, operationSubCmd byte, timeout time.Duration, log *logrus.Entry) error {
	resp, err := st.sendCommand(pinpad.TypeBorica, pinpad.SubCmdGetPinpadStatus, nil, timeout)
	if err != nil {
		return err
	}
	if len(resp.Payload) == 0 {
		return nil
	}
	switch resp.Payload[0] {
	case pinpad.StatusHungTransaction:
		if operationSubCmd == pinpad.SubCmdTestConnection {
			return nil
		}
		log.Warn("hung pinpad transaction detected, clearing with test-connection")
		if _, err := s.executeTransaction(st, pinpad.SubCmdTestConnection, nil, timeout, log); err != nil {
			return newErr(KindPinpadStatus, "failed to clear hung transaction", err)
		}
	case pinpad.StatusReversalPending:
		log.Warn("pinpad reversal pending, proceeding")
	}
	return nil
}

// executeTransaction sends TRANSACTION_START, runs the event loop, and
// performs the post-transaction receipt-tag/ack exchange (spec.md §4.6).
func (s *Session) executeTransaction(st *stream, operationSubCmd byte, tlvParams []pinpad.TLV, timeout time.Duration, log *logrus.Entry) (*model.TransactionResult, error) {
	proxy := NewSocketProxy()
	defer proxy.CloseAll()

	paramBytes, err := pinpad.EncodeTLVs(tlvParams)
	if err != nil {
		return nil, newErr(KindValidation, err.Error(), nil)
	}
	payload := append([]byte{operationSubCmd}, paramBytes...)
	if _, err := st.sendCommand(pinpad.TypeBorica, pinpad.SubCmdTransactionStart, payload, timeout); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(timeout)
	result, err := s.transactionLoop(st, proxy, deadline, log)
	if err != nil {
		return nil, err
	}
	if err := s.postTransaction(st, result, timeout, log); err != nil {
		log.WithError(err).Warn("post-transaction processing failed")
	}
	return result, nil
}

// transactionLoop is the cooperative event pump (spec.md §4.6
// "Transaction event loop"): drain pending events, forward proxied host
// bytes, read one packet with a short deadline, dispatch, repeat until
// TRANSACTION_COMPLETE or the overall deadline expires.
func (s *Session) transactionLoop(st *stream, proxy *SocketProxy, deadline time.Time, log *logrus.Entry) (*model.TransactionResult, error) {
	for {
		if time.Now().After(deadline) {
			return nil, newErr(KindPinpadTimeout, "transaction loop exceeded deadline", nil)
		}

		for _, pkt := range st.drainPending() {
			done, result, err := s.handleEvent(pkt, st, proxy, log)
			if err != nil {
				return nil, err
			}
			if done {
				return result, nil
			}
		}

		for _, id := range proxy.ids() {
			data, err := proxy.PollOnce(id)
			if err != nil {
				log.WithError(err).Warn("proxy socket read failed")
				continue
			}
			if len(data) > 0 {
				if err := s.forwardHostBytes(st, id, data, timeoutFloor(time.Until(deadline))); err != nil {
					return nil, err
				}
			}
		}

		readTimeout := idleReadTimeout
		if proxy.HasOpen() {
			readTimeout = busyReadTimeout
		}
		remaining := time.Until(deadline)
		if remaining < readTimeout {
			readTimeout = remaining
		}
		if readTimeout <= 0 {
			continue
		}

		pkt, err := st.readNext(readTimeout)
		if err != nil {
			var pe *Error
			if errors.As(err, &pe) && pe.Kind == KindProtocolTimeout {
				continue
			}
			return nil, err
		}
		done, result, err := s.handleEvent(pkt, st, proxy, log)
		if err != nil {
			return nil, err
		}
		if done {
			return result, nil
		}
	}
}

func timeoutFloor(d time.Duration) time.Duration {
	if d < busyReadTimeout {
		return busyReadTimeout
	}
	return d
}

// forwardHostBytes implements spec.md §4.6 step 2: chunk data to at most
// MTU bytes, retrying a chunk on BUSY.
func (s *Session) forwardHostBytes(st *stream, id byte, data []byte, timeout time.Duration) error {
	for offset := 0; offset < len(data); offset += MTU {
		end := offset + MTU
		if end > len(data) {
			end = len(data)
		}
		chunk := data[offset:end]
		payload := append([]byte{id}, chunk...)
		for {
			resp, err := st.sendCommand(pinpad.TypeExternalInternet, pinpad.CmdExtInternetReceiveData, payload, timeout)
			if err != nil {
				return err
			}
			if resp.Status == pinpad.Busy {
				time.Sleep(busyRetryDelay)
				continue
			}
			break
		}
	}
	return nil
}

// handleEvent dispatches one packet observed mid-transaction (spec.md
// §4.6 step 3). It returns done=true with a result once
// TRANSACTION_COMPLETE has been decoded.
func (s *Session) handleEvent(pkt *pinpad.Packet, st *stream, proxy *SocketProxy, log *logrus.Entry) (bool, *model.TransactionResult, error) {
	if pkt.Kind != pinpad.KindEvent {
		log.WithField("type", pkt.Type).Debug("unexpected non-event packet mid-transaction, ignoring")
		return false, nil, nil
	}
	if len(pkt.Payload) == 0 {
		log.Warn("empty event payload, ignoring")
		return false, nil, nil
	}
	subEvent := pkt.Payload[0]
	body := pkt.Payload[1:]

	switch pkt.Type {
	case pinpad.TypeEventBorica:
		switch subEvent {
		case pinpad.SubEventTransactionComplete:
			tlvs, err := pinpad.DecodeTLVs(body)
			if err != nil {
				return false, nil, newErr(KindFraming, "malformed TRANSACTION_COMPLETE TLV data", err)
			}
			return true, buildResultFromTLVs(tlvs), nil
		case pinpad.SubEventIntermediateComplete:
			log.Info("hung predecessor transaction finalised")
			return false, nil, nil
		case pinpad.SubEventPrintHangReceipt:
			log.Info("pinpad requested hang-receipt print")
			return false, nil, nil
		default:
			log.WithField("sub_event", subEvent).Warn("unknown Borica event")
			return false, nil, nil
		}

	case pinpad.TypeEventExternalInternet:
		return false, nil, s.handleSocketEvent(subEvent, body, st, proxy, log)

	case pinpad.TypeEventEMV:
		msgID := int(subEvent)
		if tlvs, err := pinpad.DecodeTLVs(body); err == nil {
			if v, ok := pinpad.ToMap(tlvs)[pinpad.TagEMVMessageID]; ok && len(v) > 0 {
				msgID = int(v[0])
			}
		}
		log.WithFields(logrus.Fields{"sub_event": subEvent, "message_id": msgID}).Info(pinpad.EMVMessageDescription(msgID))
		return false, nil, nil

	default:
		log.WithField("type", pkt.Type).Warn("short or malformed event packet, ignoring")
		return false, nil, nil
	}
}

// handleSocketEvent implements the socket-proxy sub-protocol (spec.md
// §4.6, GLOSSARY "Socket proxy").
func (s *Session) handleSocketEvent(subEvent byte, body []byte, st *stream, proxy *SocketProxy, log *logrus.Entry) error {
	switch subEvent {
	case pinpad.SubEventSocketOpen:
		if len(body) < 10 {
			log.Warn("malformed SOCKET_OPEN, ignoring")
			return nil
		}
		id := body[0]
		sockType := body[1]
		ip := net.IPv4(body[2], body[3], body[4], body[5]).String()
		port := uint16(body[6])<<8 | uint16(body[7])
		timeoutSec := uint16(body[8])<<8 | uint16(body[9])

		network := "udp"
		if sockType == 1 || sockType == 3 {
			network = "tcp"
		}
		err := proxy.Open(id, network, ip, port, time.Duration(timeoutSec)*time.Second)
		ok := byte(0)
		if err != nil {
			ok = 1
			log.WithError(err).Warn("failed to open proxy socket")
		}
		confirm := []byte{subEvent, ok, byte(MTU >> 8), byte(MTU & 0xFF)}
		if _, cerr := st.sendCommand(pinpad.TypeExternalInternet, pinpad.CmdExtInternetEventConfirm, confirm, idleReadTimeout); cerr != nil {
			log.WithError(cerr).Warn("failed to confirm SOCKET_OPEN")
		}
		return nil

	case pinpad.SubEventSocketClose:
		if len(body) < 1 {
			return nil
		}
		id := body[0]
		if err := proxy.Close(id); err != nil {
			log.WithError(err).Warn("failed to close proxy socket")
		}
		confirm := []byte{subEvent, 0}
		if _, cerr := st.sendCommand(pinpad.TypeExternalInternet, pinpad.CmdExtInternetEventConfirm, confirm, idleReadTimeout); cerr != nil {
			log.WithError(cerr).Warn("failed to confirm SOCKET_CLOSE")
		}
		return nil

	case pinpad.SubEventSendData:
		if len(body) < 1 {
			return nil
		}
		id := body[0]
		data := body[1:]
		sendErr := proxy.Send(id, data)
		ok := byte(0)
		if sendErr != nil {
			ok = 1
			log.WithError(sendErr).Warn("failed to forward SEND_DATA to proxy socket")
		}
		confirm := []byte{subEvent, ok}
		if _, cerr := st.sendCommand(pinpad.TypeExternalInternet, pinpad.CmdExtInternetEventConfirm, confirm, idleReadTimeout); cerr != nil {
			log.WithError(cerr).Warn("failed to confirm SEND_DATA")
		}
		if sendErr == nil {
			reply, perr := proxy.PollOnce(id)
			if perr == nil && len(reply) > 0 {
				if ferr := s.forwardHostBytes(st, id, reply, idleReadTimeout); ferr != nil {
					log.WithError(ferr).Warn("failed to forward immediate SEND_DATA reply")
				}
			}
		}
		return nil

	default:
		log.WithField("sub_event", subEvent).Warn("unknown external-internet event")
		return nil
	}
}

func buildResultFromTLVs(tlvs []pinpad.TLV) *model.TransactionResult {
	result := &model.TransactionResult{Timestamp: time.Now(), Tags: pinpad.ToMap(tlvs)}
	mergeTagsInto(result, tlvs)
	return result
}

// mergeTagsInto folds a TLV set into an existing result without
// clobbering fields the caller already populated; used both for the
// TRANSACTION_COMPLETE payload and the later GET_RECEIPT_TAGS enrichment
// (spec.md §4.6 "After TRANSACTION_COMPLETE").
func mergeTagsInto(result *model.TransactionResult, tlvs []pinpad.TLV) {
	if result.Tags == nil {
		result.Tags = make(map[int][]byte)
	}
	for _, t := range tlvs {
		result.Tags[t.Tag] = t.Value
		switch t.Tag {
		case pinpad.TagAmount:
			result.AmountMinor = int64(pinpad.DecodeAmount(t.Value))
		case pinpad.TagResultCode:
			if len(t.Value) > 0 {
				result.ResultCode = int(t.Value[0])
				result.Approved = result.ResultCode == int(pinpad.ResultApproved)
			}
		case pinpad.TagRRN:
			result.RRN = string(t.Value)
		case pinpad.TagAuthID:
			result.AuthID = string(t.Value)
		case pinpad.TagHostErrorCode:
			if len(t.Value) > 0 {
				result.HostErrCode = int(t.Value[0])
			}
		case pinpad.TagDeviceErrorCode:
			if len(t.Value) > 0 {
				result.DeviceErrCode = int(t.Value[0])
			}
		case pinpad.TagCardScheme:
			result.CardScheme = string(t.Value)
		case pinpad.TagMaskedPAN:
			result.MaskedPAN = string(t.Value)
		case pinpad.TagCardholderName:
			result.CardholderName = string(t.Value)
		case pinpad.TagTerminalID:
			result.TerminalID = string(t.Value)
		case pinpad.TagMerchantID:
			result.MerchantID = string(t.Value)
		case pinpad.TagBatch:
			result.Batch = string(t.Value)
		case pinpad.TagCurrency:
			result.Currency = string(t.Value)
		case pinpad.TagInterface:
			if len(t.Value) > 0 {
				result.Interface = model.CardInterface(t.Value[0])
			}
		}
	}
}

// receiptTags is the closed set of tag ids requested from
// GET_RECEIPT_TAGS (spec.md §4.6 "After TRANSACTION_COMPLETE" step 1).
var receiptTags = []int{
	pinpad.TagRRN, pinpad.TagAuthID, pinpad.TagHostErrorCode, pinpad.TagCardScheme,
	pinpad.TagMaskedPAN, pinpad.TagCardholderName, pinpad.TagTerminalID, pinpad.TagMerchantID,
	pinpad.TagTransType, pinpad.TagDateTimeBCD, pinpad.TagInterface, pinpad.TagBatch, pinpad.TagCurrency,
}

// postTransaction implements spec.md §4.6 "After TRANSACTION_COMPLETE":
// fetch and merge the receipt tags, then acknowledge. Proxy sockets are
// closed by executeTransaction's deferred CloseAll, not here.
func (s *Session) postTransaction(st *stream, result *model.TransactionResult, timeout time.Duration, log *logrus.Entry) error {
	var tagList []byte
	for _, t := range receiptTags {
		tagList = append(tagList, pinpad.EncodeTag(t)...)
	}
	resp, err := st.sendCommand(pinpad.TypeBorica, pinpad.CmdGetReceiptTags, tagList, timeout)
	if err != nil {
		return err
	}
	if tlvs, err := pinpad.DecodeTLVs(resp.Payload); err == nil {
		mergeTagsInto(result, tlvs)
	} else {
		log.WithError(err).Warn("failed to decode GET_RECEIPT_TAGS response")
	}

	ack := []byte{0, 0}
	if result.ResultCode == int(pinpad.ResultApproved) {
		ack = []byte{0, 1}
	}
	_, err = st.sendCommand(pinpad.TypeBorica, pinpad.CmdTransactionEnd, ack, timeout)
	return err
}
