package infrastructure

import (
	"context"
	"fmt"
	"time"

	"example.com/fdms/services/admin/config"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// MessageHandler processes one inbound MQTT message.
type MessageHandler func(ctx context.Context, topic string, payload []byte) error

// MQTTSubscriber bridges fiscal facts published by the device protocol
// gateway into the entity store. It subscribes to the configured topics
// and hands every message to the registered handler.
type MQTTSubscriber struct {
	cfg     config.MQTTConfig
	client  mqtt.Client
	logger  *logrus.Logger
	handler MessageHandler
}

// NewMQTTSubscriber creates a subscriber with a single routing handler.
func NewMQTTSubscriber(cfg config.MQTTConfig, handler MessageHandler, logger *logrus.Logger) (*MQTTSubscriber, error) {
	if cfg.BrokerURL == "" {
		return nil, fmt.Errorf("MQTT broker URL is required")
	}
	if handler == nil {
		return nil, fmt.Errorf("MQTT message handler is required")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = fmt.Sprintf("fdms-admin-%s", uuid.New().String())
	}

	return &MQTTSubscriber{
		cfg:     cfg,
		logger:  logger,
		handler: handler,
	}, nil
}

// Start connects to the broker and subscribes to the configured topics.
func (s *MQTTSubscriber) Start() error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(s.cfg.BrokerURL)
	opts.SetClientID(s.cfg.ClientID)

	if s.cfg.Username != "" {
		opts.SetUsername(s.cfg.Username)
	}
	if s.cfg.Password != "" {
		opts.SetPassword(s.cfg.Password)
	}

	opts.SetCleanSession(s.cfg.CleanSession)
	opts.SetKeepAlive(s.cfg.KeepAlive)
	opts.SetConnectTimeout(s.cfg.ConnectTimeout)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(s.cfg.MaxReconnectDelay)

	opts.SetOnConnectHandler(s.onConnect)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.logger.WithError(err).Warn("MQTT connection lost")
	})

	s.client = mqtt.NewClient(opts)
	if token := s.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	s.logger.Info("Fiscal facts ingest bridge started")
	return nil
}

// Stop unsubscribes and disconnects.
func (s *MQTTSubscriber) Stop() {
	if s.client == nil || !s.client.IsConnected() {
		return
	}
	for _, topic := range s.cfg.Topics {
		s.client.Unsubscribe(topic)
	}
	s.client.Disconnect(250)
	s.logger.Info("Fiscal facts ingest bridge stopped")
}

// onConnect (re)subscribes on every successful connection so the bridge
// survives broker restarts.
func (s *MQTTSubscriber) onConnect(client mqtt.Client) {
	for _, topic := range s.cfg.Topics {
		token := client.Subscribe(topic, s.cfg.QoS, s.onMessage)
		if token.Wait() && token.Error() != nil {
			s.logger.WithError(token.Error()).WithField("topic", topic).
				Error("Failed to subscribe")
			continue
		}
		s.logger.WithField("topic", topic).Info("Subscribed to ingest topic")
	}
}

func (s *MQTTSubscriber) onMessage(_ mqtt.Client, msg mqtt.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.handler(ctx, msg.Topic(), msg.Payload()); err != nil {
		s.logger.WithError(err).WithField("topic", msg.Topic()).
			Error("Failed to process ingest message")
	}
}
