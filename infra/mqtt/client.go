package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	coremon "github.com/kilianp07/rescuedispatch/core/monitoring"
	coremqtt "github.com/kilianp07/rescuedispatch/core/mqtt"
	"github.com/kilianp07/rescuedispatch/infra/logger"
)

const statusBuffer = 64

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

// PahoClient implements coremqtt.Notifier and coremqtt.StatusSource using
// Eclipse Paho.
type PahoClient struct {
	cli         pahoClient
	prefix      string
	ackTopic    string
	statusTopic string
	qos         map[string]byte

	mu       sync.Mutex
	ackChans map[string]chan struct{}
	statuses chan coremqtt.StatusUpdate
	closed   bool

	logger     logger.Logger
	maxRetries int
	backoff    time.Duration
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// NewPahoClient connects to the MQTT broker and subscribes to the ACK and
// status topics. Subscriptions are renewed on every reconnect.
func NewPahoClient(cfg Config) (*PahoClient, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	log := logger.New("mqtt_client")
	pc := &PahoClient{
		prefix:      strings.TrimSuffix(cfg.TopicPrefix, "/"),
		ackTopic:    cfg.AckTopic,
		statusTopic: cfg.StatusTopic,
		qos:         cfg.QoS,
		ackChans:    make(map[string]chan struct{}),
		statuses:    make(chan coremqtt.StatusUpdate, statusBuffer),
		logger:      log,
		maxRetries:  cfg.MaxRetries,
		backoff:     time.Duration(cfg.BackoffMS) * time.Millisecond,
	}

	opts.OnConnect = func(c paho.Client) {
		log.Infof("MQTT connected")
		if token := c.Subscribe(pc.ackTopic, pc.qosFor("ack"), pc.onAck); token.Wait() && token.Error() != nil {
			log.Errorf("subscribe %s: %v", pc.ackTopic, token.Error())
		}
		if token := c.Subscribe(pc.statusTopic, pc.qosFor("status"), pc.onStatus); token.Wait() && token.Error() != nil {
			log.Errorf("subscribe %s: %v", pc.statusTopic, token.Error())
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	pc.cli = c
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return pc, nil
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.AuthMethod == "username_password" || cfg.AuthMethod == "both" || cfg.AuthMethod == "" {
		if cfg.Username != "" {
			opts.SetUsername(cfg.Username)
		}
		if cfg.Password != "" {
			opts.SetPassword(cfg.Password)
		}
	}
	if cfg.UseTLS || cfg.AuthMethod == "certificate" || cfg.AuthMethod == "both" {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.LWTTopic != "" {
		opts.SetWill(cfg.LWTTopic, cfg.LWTPayload, cfg.LWTQoS, cfg.LWTRetain)
	}
	return opts, nil
}

func (p *PahoClient) qosFor(kind string) byte {
	if q, ok := p.qos[kind]; ok {
		return q
	}
	return 0
}

// DispatchTopic returns the topic a team listens on for dispatch notices.
func (p *PahoClient) DispatchTopic(teamID string) string {
	return fmt.Sprintf("%s/teams/%s/dispatch", p.prefix, teamID)
}

func (p *PahoClient) onAck(_ paho.Client, msg paho.Message) {
	var m struct {
		CommandID string `json:"command_id"`
	}
	if err := json.Unmarshal(msg.Payload(), &m); err != nil {
		p.logger.Errorf("failed to decode ack: %v", err)
		return
	}
	p.mu.Lock()
	ch, ok := p.ackChans[m.CommandID]
	if ok {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	p.mu.Unlock()
	if ok {
		p.logger.Infof("received ack %s", m.CommandID)
	}
}

func (p *PahoClient) onStatus(_ paho.Client, msg paho.Message) {
	var u coremqtt.StatusUpdate
	if err := json.Unmarshal(msg.Payload(), &u); err != nil {
		p.logger.Errorf("failed to decode status on %s: %v", msg.Topic(), err)
		return
	}
	if u.TaskID == "" {
		u.TaskID = taskFromTopic(msg.Topic())
	}
	if u.TaskID == "" || u.Status == "" {
		p.logger.Warnf("status update without task or status on %s", msg.Topic())
		return
	}
	if u.At.IsZero() {
		u.At = time.Now().UTC()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	select {
	case p.statuses <- u:
	default:
		p.logger.Warnf("status buffer full, dropping update for task %s", u.TaskID)
	}
}

// taskFromTopic extracts <id> from <prefix>/tasks/<id>/status.
func taskFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	for i := 0; i+2 < len(parts); i++ {
		if parts[i] == "tasks" && parts[i+2] == "status" {
			return parts[i+1]
		}
	}
	return ""
}

// Statuses implements coremqtt.StatusSource.
func (p *PahoClient) Statuses() <-chan coremqtt.StatusUpdate { return p.statuses }

// SendDispatch publishes the notice to the team's dispatch topic and returns
// the command identifier used for acknowledgment tracking. Publishing is
// retried with exponential backoff.
func (p *PahoClient) SendDispatch(n coremqtt.Notice) (string, error) {
	cmdID := uuid.NewString()
	order := struct {
		CommandID string `json:"command_id"`
		coremqtt.Notice
		Timestamp int64 `json:"timestamp"`
	}{
		CommandID: cmdID,
		Notice:    n,
		Timestamp: time.Now().UnixMilli(),
	}
	payload, err := json.Marshal(order)
	if err != nil {
		return "", err
	}

	// Registered before publishing so an immediate ack is not lost.
	p.mu.Lock()
	p.ackChans[cmdID] = make(chan struct{}, 1)
	p.mu.Unlock()

	topic := p.DispatchTopic(n.TeamID)
	qos := p.qosFor("dispatch")
	var publishErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		token := p.cli.Publish(topic, qos, false, payload)
		token.Wait()
		publishErr = token.Error()
		if publishErr == nil {
			p.logger.Infof("sent dispatch %s (command %s) to %s", n.DispatchID, cmdID, topic)
			return cmdID, nil
		}
		p.logger.Errorf("publish attempt %d failed: %v", attempt+1, publishErr)
		if attempt < p.maxRetries {
			time.Sleep(p.backoff * time.Duration(1<<attempt))
		}
	}
	p.mu.Lock()
	delete(p.ackChans, cmdID)
	p.mu.Unlock()
	coremon.CaptureException(publishErr, map[string]string{"team_id": n.TeamID, "dispatch_id": n.DispatchID})
	return "", publishErr
}

// WaitForAck blocks until an ACK for the given command ID is received or timeout.
func (p *PahoClient) WaitForAck(commandID string, timeout time.Duration) (bool, error) {
	p.mu.Lock()
	ch := p.ackChans[commandID]
	p.mu.Unlock()
	if ch == nil {
		return false, fmt.Errorf("%w: %s", coremqtt.ErrUnknownCommand, commandID)
	}
	defer func() {
		p.mu.Lock()
		delete(p.ackChans, commandID)
		p.mu.Unlock()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ch:
		return true, nil
	case <-timer.C:
		return false, fmt.Errorf("%w: %s", coremqtt.ErrAckTimeout, commandID)
	}
}

// Disconnect gracefully closes the MQTT connection and the status channel.
func (p *PahoClient) Disconnect() {
	if p.cli != nil && p.cli.IsConnected() {
		p.cli.Disconnect(250)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.statuses)
	}
}
