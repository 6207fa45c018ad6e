package telemetry

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/embeddedlinuxer/razor/pkg/analyzer"
	"github.com/embeddedlinuxer/razor/pkg/command"
	"github.com/embeddedlinuxer/razor/pkg/config"
	"github.com/embeddedlinuxer/razor/pkg/meter"
	"github.com/embeddedlinuxer/razor/pkg/register"
	"github.com/embeddedlinuxer/razor/pkg/sample"
)

// Client is the part of mqtt.Client the publisher needs.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
}

// Executor runs operator commands.
type Executor interface {
	Execute(cmd command.Command) analyzer.Reply
}

// Topic suffixes under <prefix>/<instance id>/.
const (
	TopicMeasurement = "measurement"
	TopicRegisters   = "registers"
	TopicAverages    = "averages"
	TopicCommand     = "command"
	TopicReply       = "reply"
)

// Dial connects to the configured broker.
func Dial(cfg config.MQTTConfig) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID("razor_" + uuid.NewString())

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Println("MQTT: Connected to broker")
	})
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Printf("MQTT: Connection lost: %v", err)
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return client, nil
}

// commandQueueSize bounds commands waiting for the executor. Commands
// arriving while the queue is full are rejected.
const commandQueueSize = 16

// Publisher sends measurements to MQTT and accepts commands from it.
// Publishing never waits for the broker, and commands run on a worker
// goroutine so the paho message handler returns at once.
type Publisher struct {
	client Client
	qos    byte
	base   string
	id     string
	exec   Executor

	commands chan []byte
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewPublisher creates a publisher. exec may be nil to ignore commands.
func NewPublisher(client Client, cfg config.MQTTConfig, id string, exec Executor) *Publisher {
	return &Publisher{
		client:   client,
		qos:      cfg.QoS,
		base:     cfg.TopicPrefix + "/" + id + "/",
		id:       id,
		exec:     exec,
		commands: make(chan []byte, commandQueueSize),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Topic returns the full topic for a suffix.
func (p *Publisher) Topic(suffix string) string {
	return p.base + suffix
}

// Start subscribes to the command topic and starts the command worker.
func (p *Publisher) Start() error {
	if p.exec == nil {
		close(p.done)
		return nil
	}
	go p.runCommands()

	token := p.client.Subscribe(p.Topic(TopicCommand), p.qos, p.handleCommand)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to commands: %w", token.Error())
	}
	return nil
}

// Stop ends the command worker and waits for the command in progress.
// Call it only after Start.
func (p *Publisher) Stop() {
	p.stopOnce.Do(func() {
		close(p.quit)
	})
	<-p.done
}

// PublishMeasurement sends the JSON payload and the register image.
func (p *Publisher) PublishMeasurement(m meter.Measurement) {
	p.publishJSON(TopicMeasurement, NewPayload(p.id, m))
	p.publish(TopicRegisters, register.Encode(m).Bytes())
}

// PublishAverages sends the aggregated averages.
func (p *Publisher) PublishAverages(avg sample.Averages) {
	p.publishJSON(TopicAverages, NewAveragesPayload(p.id, avg))
}

// handleCommand runs on the paho router goroutine and must not block.
func (p *Publisher) handleCommand(_ mqtt.Client, msg mqtt.Message) {
	payload := append([]byte(nil), msg.Payload()...)
	select {
	case p.commands <- payload:
	case <-p.quit:
	default:
		log.Printf("MQTT: Command queue full, dropping command")
		p.publishJSON(TopicReply, analyzer.Reply{ID: p.id, Error: "command queue full"})
	}
}

func (p *Publisher) runCommands() {
	defer close(p.done)
	for {
		select {
		case <-p.quit:
			return
		case payload := <-p.commands:
			p.runCommand(payload)
		}
	}
}

func (p *Publisher) runCommand(payload []byte) {
	cmd, err := command.Decode(payload)
	if err != nil {
		log.Printf("MQTT: Rejected command: %v", err)
		p.publishJSON(TopicReply, analyzer.Reply{ID: p.id, Error: err.Error()})
		return
	}
	p.publishJSON(TopicReply, p.exec.Execute(cmd))
}

func (p *Publisher) publishJSON(suffix string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("MQTT ERROR: Failed to marshal payload for topic %s: %v", p.Topic(suffix), err)
		return
	}
	p.publish(suffix, data)
}

// publish hands data to the client without waiting for the broker.
// Delivery errors are logged from a background goroutine.
func (p *Publisher) publish(suffix string, data []byte) {
	topic := p.Topic(suffix)
	token := p.client.Publish(topic, p.qos, false, data)

	go func() {
		if token.Wait() && token.Error() != nil {
			log.Printf("MQTT ERROR: Failed to publish to topic %s: %v", topic, token.Error())
		}
	}()
}
