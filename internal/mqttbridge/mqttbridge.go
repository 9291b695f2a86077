// Package mqttbridge subscribes to fiscal/+/+ and bridges ingress messages
// to job creation and egress result publication (spec.md §4.8), grounded
// on serebryakov7-j1708-stats' pkg/mqtt client wired alongside a serial bus
// reader and a bbolt store — the nearest pack analogue of this gateway's
// full stack.
package mqttbridge

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"fiscalgw/internal/jobqueue"
	"fiscalgw/internal/model"
	"fiscalgw/internal/store"
)

// Config is the MQTT block from spec.md §6 "Environment configuration".
type Config struct {
	Host           string
	Port           int
	ClientID       string
	Username       string
	Password       string
	QoS            byte
	KeepAlive      time.Duration
	TLS            bool
	TopicPrefix    string
	ReconnectDelay time.Duration
	ResultPollWait time.Duration
}

// DefaultConfig matches spec.md §4.8/§6 defaults.
func DefaultConfig() Config {
	return Config{
		Host:           "localhost",
		Port:           1883,
		ClientID:       "fiscalgw",
		QoS:            1,
		KeepAlive:      30 * time.Second,
		TopicPrefix:    "fiscal",
		ReconnectDelay: 5 * time.Second,
		ResultPollWait: 30 * time.Second,
	}
}

var actionToKind = map[string]model.PayloadKind{
	"receipt": model.PayloadFiscalReceipt,
	"storno":  model.PayloadStorno,
	"report":  model.PayloadReport,
	"cancel":  model.PayloadCancelReceipt,
}

// ingressPayload is what the bridge expects on fiscal/{printerId}/{action}:
// the job payload fields plus a caller-supplied request_id for correlation.
type ingressPayload struct {
	RequestID string          `json:"request_id"`
	Payload   json.RawMessage `json:"payload"`
}

// resultPayload is what the bridge publishes on fiscal/{printerId}/result.
type resultPayload struct {
	RequestID     string `json:"request_id"`
	JobID         string `json:"job_id"`
	Status        string `json:"status"`
	Error         string `json:"error,omitempty"`
	ReceiptNumber string `json:"receipt_number,omitempty"`
	TotalAmount   string `json:"total_amount,omitempty"`
}

// resultShape is the subset of a fiscal-receipt job result the bridge
// extracts for its egress summary; other payload kinds leave these blank.
type resultShape struct {
	ReceiptNumber string `json:"receipt_number"`
	TotalAmount   string `json:"total_amount"`
}

// Bridge owns the paho client and the correlation logic.
type Bridge struct {
	cfg     Config
	store   *store.Store
	queue   *jobqueue.Queue
	log     *logrus.Logger
	client  mqtt.Client
}

// New builds a Bridge; call Start to connect.
func New(cfg Config, s *store.Store, q *jobqueue.Queue, log *logrus.Logger) *Bridge {
	return &Bridge{cfg: cfg, store: s, queue: q, log: log}
}

// Start connects with LWT configured and subscribes to fiscal/+/+,
// reconnecting with the configured backoff indefinitely on failure
// (spec.md §4.8 "On connect failure, reconnect with a 5 s backoff
// indefinitely").
func (b *Bridge) Start() error {
	scheme := "tcp"
	if b.cfg.TLS {
		scheme = "ssl"
	}
	statusTopic := fmt.Sprintf("%s/status", b.cfg.TopicPrefix)

	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("%s://%s:%d", scheme, b.cfg.Host, b.cfg.Port)).
		SetClientID(b.cfg.ClientID).
		SetUsername(b.cfg.Username).
		SetPassword(b.cfg.Password).
		SetKeepAlive(b.cfg.KeepAlive).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(b.cfg.ReconnectDelay).
		SetWill(statusTopic, "offline", b.cfg.QoS, true).
		SetOnConnectHandler(func(c mqtt.Client) {
			b.log.Info("mqtt connected")
			if tok := c.Publish(statusTopic, b.cfg.QoS, true, "online"); tok.Wait() && tok.Error() != nil {
				b.log.WithError(tok.Error()).Warn("failed to publish online status")
			}
			if tok := c.Subscribe("fiscal/+/+", b.cfg.QoS, b.onMessage); tok.Wait() && tok.Error() != nil {
				b.log.WithError(tok.Error()).Error("failed to subscribe to fiscal/+/+")
			}
		}).
		SetConnectionLostHandler(func(c mqtt.Client, err error) {
			b.log.WithError(err).Warn("mqtt connection lost, reconnecting")
		})

	b.client = mqtt.NewClient(opts)
	tok := b.client.Connect()
	tok.Wait()
	return tok.Error()
}

// Stop disconnects, publishing the retained offline status first.
func (b *Bridge) Stop() {
	if b.client == nil {
		return
	}
	statusTopic := fmt.Sprintf("%s/status", b.cfg.TopicPrefix)
	tok := b.client.Publish(statusTopic, b.cfg.QoS, true, "offline")
	tok.Wait()
	b.client.Disconnect(250)
}

func (b *Bridge) onMessage(client mqtt.Client, msg mqtt.Message) {
	segments := strings.Split(msg.Topic(), "/")
	if len(segments) != 3 {
		b.log.WithField("topic", msg.Topic()).Warn("unexpected mqtt topic shape")
		return
	}
	printerID, action := segments[1], segments[2]

	kind, ok := actionToKind[action]
	if !ok {
		b.log.WithField("action", action).Warn("unknown mqtt action")
		return
	}

	var in ingressPayload
	if err := json.Unmarshal(msg.Payload(), &in); err != nil {
		b.log.WithError(err).Warn("malformed mqtt ingress payload")
		return
	}

	job, err := b.queue.CreateJob(printerID, kind, in.Payload)
	if err != nil {
		b.log.WithError(err).Error("failed to create job from mqtt message")
		b.publishResult(printerID, resultPayload{RequestID: in.RequestID, Status: string(model.JobFailed), Error: err.Error()})
		return
	}

	go b.awaitAndPublish(printerID, in.RequestID, job.ID)
}

// awaitAndPublish polls the store for terminal status, the way spec.md
// §4.8 describes ("asynchronously polls the store up to ~30 s").
func (b *Bridge) awaitAndPublish(printerID, requestID, jobID string) {
	deadline := time.Now().Add(b.cfg.ResultPollWait)
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		job, err := b.store.GetJob(jobID)
		if err != nil {
			b.log.WithError(err).Error("failed to poll job status")
			return
		}
		if job.IsTerminal() {
			b.publishResult(printerID, resultFromJob(requestID, job))
			return
		}
		<-ticker.C
	}

	b.publishResult(printerID, resultPayload{
		RequestID: requestID,
		JobID:     jobID,
		Status:    "timeout",
		Error:     "job did not reach terminal status within the poll window",
	})
}

func resultFromJob(requestID string, job *model.Job) resultPayload {
	out := resultPayload{
		RequestID: requestID,
		JobID:     job.ID,
		Status:    string(job.Status),
		Error:     job.LastError,
	}
	if job.Status == model.JobSuccess && len(job.Result) > 0 {
		var rs resultShape
		if err := json.Unmarshal(job.Result, &rs); err == nil {
			out.ReceiptNumber = rs.ReceiptNumber
			out.TotalAmount = rs.TotalAmount
		}
	}
	return out
}

func (b *Bridge) publishResult(printerID string, result resultPayload) {
	data, err := json.Marshal(result)
	if err != nil {
		b.log.WithError(err).Error("failed to marshal mqtt result payload")
		return
	}
	topic := fmt.Sprintf("%s/%s/result", b.cfg.TopicPrefix, printerID)
	tok := b.client.Publish(topic, b.cfg.QoS, false, data)
	tok.Wait()
	if tok.Error() != nil {
		b.log.WithError(tok.Error()).Error("failed to publish mqtt result")
	}
}
