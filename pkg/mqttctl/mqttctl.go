// Package mqttctl takes drive commands from an MQTT topic and publishes the
// motor status to another.
package mqttctl

import (
	"context"
	"encoding/json"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/tigerbot-team/tigerbot/motorctl/pkg/controller"
	"github.com/tigerbot-team/tigerbot/motorctl/pkg/drive"
)

const (
	qos            = 1
	connectTimeout = 10 * time.Second
)

type statusSource interface {
	OnStatus(fn func(controller.Status))
}

type Client struct {
	broker   string
	clientID string
	prefix   string

	client   mqtt.Client
	statuses chan controller.Status

	log *log.Entry
}

func New(broker, clientID, prefix string, source statusSource) *Client {
	c := &Client{
		broker:   broker,
		clientID: clientID,
		prefix:   prefix,
		statuses: make(chan controller.Status, 1),
		log:      log.WithField("component", "mqtt"),
	}
	source.OnStatus(c.onStatus)
	return c
}

func (c *Client) Name() string {
	return "mqtt"
}

func (c *Client) CommandTopic() string {
	return c.prefix + "/command"
}

func (c *Client) StatusTopic() string {
	return c.prefix + "/status"
}

// onStatus keeps only the newest status if the publisher falls behind.
func (c *Client) onStatus(s controller.Status) {
	select {
	case c.statuses <- s:
		return
	default:
	}
	select {
	case <-c.statuses:
	default:
	}
	select {
	case c.statuses <- s:
	default:
	}
}

func (c *Client) Run(ctx context.Context, sender drive.Sender) error {
	opts := mqtt.NewClientOptions().
		AddBroker(c.broker).
		SetClientID(c.clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout).
		SetOnConnectHandler(c.onConnect(ctx, sender)).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			c.log.WithError(err).Warn("Connection lost")
		})
	c.client = mqtt.NewClient(opts)

	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return errors.Wrapf(token.Error(), "connecting to %s", c.broker)
	}
	defer c.client.Disconnect(250)

	for {
		select {
		case <-ctx.Done():
			return nil
		case s := <-c.statuses:
			if err := c.publish(s); err != nil {
				c.log.WithError(err).Warn("Failed to publish status")
			}
		}
	}
}

// onConnect subscribes to the command topic. It runs after every reconnect
// too, since a clean session loses the subscription.
func (c *Client) onConnect(ctx context.Context, sender drive.Sender) mqtt.OnConnectHandler {
	handler := c.messageHandler(ctx, sender)
	return func(client mqtt.Client) {
		c.log.WithField("broker", c.broker).Info("Connected to MQTT broker")
		if err := c.subscribe(client, handler); err != nil {
			c.log.WithError(err).Warn("Not receiving commands")
		}
	}
}

func (c *Client) subscribe(client mqtt.Client, handler mqtt.MessageHandler) error {
	token := client.Subscribe(c.CommandTopic(), qos, handler)
	if !token.WaitTimeout(connectTimeout) {
		return errors.Errorf("timed out subscribing to %s", c.CommandTopic())
	}
	return errors.Wrapf(token.Error(), "subscribing to %s", c.CommandTopic())
}

func (c *Client) messageHandler(ctx context.Context, sender drive.Sender) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		if err := c.handle(ctx, sender, msg.Payload()); err != nil {
			c.log.WithError(err).WithField("payload", string(msg.Payload())).Warn("Rejected command")
		}
	}
}

func (c *Client) handle(ctx context.Context, sender drive.Sender, payload []byte) error {
	cmd, err := drive.Parse(string(payload))
	if err != nil {
		return err
	}
	if !cmd.Moves() {
		return errors.Errorf("%v is not available remotely", cmd)
	}
	return sender.Send(ctx, cmd)
}

func statusPayload(s controller.Status) ([]byte, error) {
	return json.Marshal(s)
}

func (c *Client) publish(s controller.Status) error {
	payload, err := statusPayload(s)
	if err != nil {
		return err
	}
	token := c.client.Publish(c.StatusTopic(), qos, true, payload)
	if !token.WaitTimeout(connectTimeout) {
		return errors.New("timed out publishing status")
	}
	return token.Error()
}
