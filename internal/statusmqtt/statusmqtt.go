// Package statusmqtt publishes the live patch table and transport
// counters to an MQTT broker, so dashboards can watch the node without
// speaking Art-Net.
package statusmqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"dmxpatch/internal/logger"
)

// DefaultInterval is the publish period when the config leaves it unset.
const DefaultInterval = 30 * time.Second

// Config holds the broker connection settings.
type Config struct {
	ClientID    string
	Schema      string
	Host        string
	Port        string
	User        string
	Password    string
	Qos         byte
	TopicPrefix string
	Interval    time.Duration
}

// Source produces documents to publish, keyed by topic suffix under the
// configured prefix. Sources run on the publish loop goroutine.
type Source func() map[string]interface{}

// Publisher keeps one broker connection and pushes every source's
// documents on a fixed interval.
type Publisher struct {
	ctx     context.Context
	log     *logger.Log
	cfg     Config
	client  mqtt.Client
	opts    *mqtt.ClientOptions
	sources []Source
}

// NewPublisher builds a publisher; Start opens the connection.
func NewPublisher(log logger.Logger, cfg Config) *Publisher {
	if cfg.Schema == "" {
		cfg.Schema = "tcp"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Publisher{
		log: log.With(logger.Fields{"module": "mqtt"}),
		cfg: cfg,
	}
}

// AddSource registers a document source. Not safe once Start has run.
func (p *Publisher) AddSource(s Source) {
	p.sources = append(p.sources, s)
}

// Start connects to the broker and launches the publish loop.
func (p *Publisher) Start(ctx context.Context) error {
	if p.log.GetLevel() == "debug" {
		mqtt.ERROR = log.New(os.Stdout, "[ERROR] ", 0)
		mqtt.CRITICAL = log.New(os.Stdout, "[CRIT] ", 0)
		mqtt.WARN = log.New(os.Stdout, "[WARN]  ", 0)
	}

	p.ctx = ctx

	p.opts = mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("%s://%s:%s", p.cfg.Schema, p.cfg.Host, p.cfg.Port)).
		SetUsername(p.cfg.User).
		SetPassword(p.cfg.Password).
		SetOnConnectHandler(p.connectHandler).
		SetConnectionLostHandler(p.connectLostHandler).
		SetClientID(p.cfg.ClientID).
		SetOrderMatters(false).
		SetCleanSession(false).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetMaxReconnectInterval(5 * time.Second).
		SetKeepAlive(30 * time.Second)

	p.client = mqtt.NewClient(p.opts)

	token := p.client.Connect()
	select {
	case <-token.Done():
		if token.Error() != nil {
			return token.Error()
		}
	case <-p.ctx.Done():
		return errors.New("context canceled")
	}

	p.log.Infof("connected: %v", p.client.IsConnected())
	go p.publishLoop(ctx)
	return nil
}

// Stop disconnects from the broker.
func (p *Publisher) Stop() error {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(500)
	}
	return nil
}

func (p *Publisher) connectHandler(_ mqtt.Client) {
	p.log.Info("client connected to broker")
}

func (p *Publisher) connectLostHandler(_ mqtt.Client, err error) {
	p.log.Errorf("broker connect lost: %v", err)
}

func (p *Publisher) publishLoop(ctx context.Context) {
	t := time.NewTicker(p.cfg.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.publishAll()
		}
	}
}

func (p *Publisher) publishAll() {
	for _, src := range p.sources {
		for suffix, doc := range src() {
			p.PublishJSON(suffix, doc)
		}
	}
}

// PublishJSON marshals doc and publishes it under the topic prefix. The
// send is fire-and-forget; delivery errors only hit the log.
func (p *Publisher) PublishJSON(suffix string, doc interface{}) {
	if p.client == nil || !p.client.IsConnected() {
		return
	}
	msg, err := json.Marshal(doc)
	if err != nil {
		p.log.Errorf("status document %s: %v", suffix, err)
		return
	}
	topic := suffix
	if p.cfg.TopicPrefix != "" {
		topic = p.cfg.TopicPrefix + "/" + suffix
	}
	token := p.client.Publish(topic, p.cfg.Qos, false, msg)
	go func() {
		select {
		case <-p.ctx.Done():
			return
		case <-token.Done():
			if token.Error() != nil {
				p.log.Errorf("error publish topic %s. %v", topic, token.Error())
			}
		}
	}()
}
