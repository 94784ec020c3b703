package output

import (
	"errors"
	"fmt"
	"log"
	"time"

	"rbncw/spot"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	DefaultMQTTPort       = 1883
	DefaultMQTTTopic      = "rbn/cw/slow"
	DefaultPublishTimeout = 5 * time.Second
)

// MQTTOptions configures the optional MQTT mirror of the stdout stream.
type MQTTOptions struct {
	Broker         string
	Port           int
	Topic          string
	ClientID       string
	QoS            byte
	Retain         bool
	PublishTimeout time.Duration // Per-publish wait; expiry counts as a failure
}

// ContinentLookup resolves a callsign to a continent code ("" when unknown).
type ContinentLookup interface {
	Continent(call string) string
}

// SpotMessage is the JSON payload published for each emitted spot.
type SpotMessage struct {
	Spotter   string `json:"spotter"`
	Call      string `json:"call"`
	Frequency string `json:"freq"`
	WPM       int    `json:"wpm"`
	Continent string `json:"continent,omitempty"` // Spotter continent from CTY
	Time      int64  `json:"time"`                // Unix seconds at emission
}

// publisher is the subset of mqtt.Client the sink needs.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTPublisher mirrors emitted spots to an MQTT topic.
//
// Publishing is synchronous with a bounded wait so ordering matches stdout;
// errors are returned to the caller (normally a Fanout, which only counts
// them).
type MQTTPublisher struct {
	opts      MQTTOptions
	client    publisher
	continent ContinentLookup
	now       func() time.Time
}

// NewMQTTPublisher fills defaults. Call Connect before Emit. continent may be nil.
func NewMQTTPublisher(opts MQTTOptions, continent ContinentLookup) *MQTTPublisher {
	if opts.Port <= 0 {
		opts.Port = DefaultMQTTPort
	}
	if opts.Topic == "" {
		opts.Topic = DefaultMQTTTopic
	}
	if opts.ClientID == "" {
		opts.ClientID = fmt.Sprintf("rbncw-%d", time.Now().Unix())
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = DefaultPublishTimeout
	}
	return &MQTTPublisher{
		opts:      opts,
		continent: continent,
		now:       time.Now,
	}
}

// BrokerURL returns the tcp:// URL of the broker.
func (p *MQTTPublisher) BrokerURL() string {
	return fmt.Sprintf("tcp://%s:%d", p.opts.Broker, p.opts.Port)
}

// Connect establishes the broker connection. Paho reconnects automatically
// afterwards; publishes made while disconnected fail and are counted.
func (p *MQTTPublisher) Connect() error {
	if p.opts.Broker == "" {
		return errors.New("mqtt: broker is required")
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(p.BrokerURL())
	opts.SetClientID(p.opts.ClientID)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(1 * time.Minute)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Printf("MQTT: connected, publishing to %s", p.opts.Topic)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("MQTT: connection lost: %v", err)
	})

	client := mqtt.NewClient(opts)
	log.Printf("Connecting to MQTT broker at %s...", p.BrokerURL())
	token := client.Connect()
	if !token.WaitTimeout(15 * time.Second) {
		return fmt.Errorf("failed to connect to MQTT broker %s: timeout", p.BrokerURL())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to connect to MQTT broker %s: %w", p.BrokerURL(), err)
	}
	p.client = client
	return nil
}

// Message builds the payload for s.
func (p *MQTTPublisher) Message(s spot.Spot) SpotMessage {
	msg := SpotMessage{
		Spotter:   s.Spotter,
		Call:      s.Call,
		Frequency: s.Frequency,
		WPM:       s.WPM,
		Time:      p.now().UTC().Unix(),
	}
	if p.continent != nil {
		msg.Continent = p.continent.Continent(s.Spotter)
	}
	return msg
}

func (p *MQTTPublisher) Emit(s spot.Spot) error {
	if p.client == nil {
		return errors.New("mqtt: not connected")
	}
	payload, err := json.Marshal(p.Message(s))
	if err != nil {
		return fmt.Errorf("mqtt: encode %s: %w", s.Call, err)
	}
	token := p.client.Publish(p.opts.Topic, p.opts.QoS, p.opts.Retain, payload)
	if !token.WaitTimeout(p.opts.PublishTimeout) {
		return fmt.Errorf("mqtt: publish %s: timeout after %s", s.Call, p.opts.PublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: publish %s: %w", s.Call, err)
	}
	return nil
}

// Close disconnects from the broker, allowing in-flight work 250ms.
func (p *MQTTPublisher) Close() error {
	if p.client != nil {
		p.client.Disconnect(250)
		p.client = nil
	}
	return nil
}
