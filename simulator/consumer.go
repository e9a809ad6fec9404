package simulator

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kilianp07/agriwater/infra/logger"
)

// Consumer subscribes to published schedules and acknowledges them on the
// ack topic, optionally late or not at all.
type Consumer struct {
	Client      paho.Client
	TopicPrefix string
	AckTopic    string
	Delay       time.Duration
	DropRate    float64
	Rand        *rand.Rand

	log     logger.Logger
	pending chan string
}

// ScheduleFilter is the subscription matching every schedule of prefix.
func ScheduleFilter(prefix string) string {
	return strings.TrimSuffix(prefix, "/") + "/schedule/+"
}

// Run listens until ctx is done.
func (c *Consumer) Run(ctx context.Context) error {
	if c.log == nil {
		c.log = logger.New("schedule_consumer")
	}
	if c.Rand == nil {
		c.Rand = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
	}
	c.pending = make(chan string, 50)
	go c.worker(ctx)
	if token := c.Client.Subscribe(ScheduleFilter(c.TopicPrefix), 1, c.onSchedule); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	<-ctx.Done()
	return nil
}

func (c *Consumer) onSchedule(_ paho.Client, msg paho.Message) {
	var m struct {
		RunID string `json:"run_id"`
	}
	if err := json.Unmarshal(msg.Payload(), &m); err != nil || m.RunID == "" {
		topic := msg.Topic()
		m.RunID = topic[strings.LastIndex(topic, "/")+1:]
	}
	if m.RunID == "" {
		c.log.Warnf("schedule without run id on %s", msg.Topic())
		return
	}
	select {
	case c.pending <- m.RunID:
	default:
		c.log.Warnf("ack queue full, dropping run %s", m.RunID)
	}
}

func (c *Consumer) worker(ctx context.Context) {
	for {
		select {
		case runID := <-c.pending:
			c.ack(ctx, runID)
		case <-ctx.Done():
			return
		}
	}
}

func (c *Consumer) ack(ctx context.Context, runID string) {
	if c.DropRate > 0 && c.Rand.Float64() < c.DropRate {
		c.log.Infof("dropping ack for run %s", runID)
		return
	}
	if c.Delay > 0 {
		select {
		case <-time.After(c.Delay):
		case <-ctx.Done():
			return
		}
	}
	payload, err := json.Marshal(struct {
		RunID string `json:"run_id"`
	}{RunID: runID})
	if err != nil {
		c.log.Errorf("marshal ack: %v", err)
		return
	}
	token := c.Client.Publish(c.AckTopic, 1, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		c.log.Errorf("ack publish timeout for run %s", runID)
		return
	}
	if err := token.Error(); err != nil {
		c.log.Errorf("publish ack error for run %s: %v", runID, err)
	}
}

// NewMQTTClient connects a plain Paho client to broker.
func NewMQTTClient(broker, clientID string) (paho.Client, error) {
	opts := paho.NewClientOptions().AddBroker(broker).SetClientID(clientID)
	opts.AutoReconnect = true
	cli := paho.NewClient(opts)
	if token := cli.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return cli, nil
}
