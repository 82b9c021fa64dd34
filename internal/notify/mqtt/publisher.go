// Package mqtt bridges session events to an MQTT broker so that devices on
// the same network (door displays, home automation) can react to them.
package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/aarthig0611/face-recognition-app/internal/config"
	"github.com/aarthig0611/face-recognition-app/internal/logger"
	"github.com/aarthig0611/face-recognition-app/internal/session"
)

var log = logger.Log

const publishTimeout = 5 * time.Second

// client is the part of paho.Client the publisher uses.
type client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

// Publisher publishes every event as JSON to {topic}/{event type} with QoS 0.
// It implements session.Sink.
type Publisher struct {
	client client
	topic  string
}

// Connect dials the broker described by cfg.
func Connect(cfg config.MQTTConfig) (*Publisher, error) {
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "facerec-" + uuid.New().String()
	}

	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(clientID)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(5 * time.Second)
	opts.SetConnectTimeout(30 * time.Second)
	opts.SetAutoReconnect(true)
	opts.OnConnect = func(c paho.Client) {
		log.Infof("mqtt: connected to %s", cfg.Broker)
	}
	opts.OnConnectionLost = func(c paho.Client, err error) {
		log.Warnf("mqtt: connection lost: %v", err)
	}

	c := paho.NewClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connecting to MQTT broker %s: %w", cfg.Broker, token.Error())
	}
	return newPublisher(c, cfg.Topic), nil
}

func newPublisher(c client, topic string) *Publisher {
	topic = strings.TrimSuffix(topic, "/")
	if topic == "" {
		topic = "facerec/events"
	}
	return &Publisher{client: c, topic: topic}
}

// Topic returns the topic an event of type t is published to.
func (p *Publisher) Topic(t session.EventType) string {
	return p.topic + "/" + string(t)
}

// Publish sends e without waiting for the broker.
func (p *Publisher) Publish(e session.Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		log.Errorf("mqtt: encoding %s event: %v", e.Type, err)
		return
	}

	topic := p.Topic(e.Type)
	token := p.client.Publish(topic, 0, false, payload)
	go func() {
		if token.WaitTimeout(publishTimeout) && token.Error() != nil {
			log.Warnf("mqtt: publish to %s failed: %v", topic, token.Error())
		}
	}()
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	p.client.Disconnect(250)
}
