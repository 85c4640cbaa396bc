package main

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTPublisher mirrors completed contacts and transmit requests to an MQTT
// broker so external loggers and dashboards can follow along.
type MQTTPublisher struct {
	client mqtt.Client
	config *MQTTConfig
}

// generateClientID creates a random client ID for MQTT connection
func generateClientID() string {
	bytes := make([]byte, 8)
	rand.Read(bytes)
	return "ft8engine_" + hex.EncodeToString(bytes)
}

// NewMQTTPublisher creates a new MQTT publisher and connects to the broker
func NewMQTTPublisher(config *MQTTConfig) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.Broker)
	opts.SetClientID(generateClientID())

	if config.Username != "" {
		opts.SetUsername(config.Username)
	}
	if config.Password != "" {
		opts.SetPassword(config.Password)
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

	log.Printf("MQTT: Successfully connected to broker: %s", config.Broker)

	return &MQTTPublisher{
		client: client,
		config: config,
	}, nil
}

// Bind attaches the publisher to the bus.
func (mp *MQTTPublisher) Bind(bus *EventBus) {
	bus.Subscribe(EventQSORecordAdded, func(ev Event) {
		if ev.Record != nil {
			mp.publishJSON(fmt.Sprintf("%s/qso", mp.config.TopicPrefix), ev.Record)
		}
	})
	bus.Subscribe(EventRequestTransmit, func(ev Event) {
		if ev.Transmit != nil {
			mp.publishJSON(fmt.Sprintf("%s/tx", mp.config.TopicPrefix), ev.Transmit)
		}
	})
}

// publishJSON publishes a payload without blocking the bus.
func (mp *MQTTPublisher) publishJSON(topic string, payload any) {
	if mp == nil || !mp.client.IsConnected() {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("MQTT ERROR: Failed to marshal payload for topic %s: %v", topic, err)
		return
	}

	// Publish asynchronously - don't wait for completion (prevents blocking)
	token := mp.client.Publish(topic, 0, false, data)
	go func() {
		if token.Wait() && token.Error() != nil {
			log.Printf("MQTT ERROR: Failed to publish to topic %s: %v", topic, token.Error())
		}
	}()
}

// Disconnect gracefully disconnects from the MQTT broker
func (mp *MQTTPublisher) Disconnect() {
	if mp.client != nil && mp.client.IsConnected() {
		mp.client.Disconnect(250)
		log.Println("MQTT: Disconnected from broker")
	}
}
