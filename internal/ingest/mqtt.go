// README: MQTT subscriber for device fixes published on fleet/assets/<id>/location.
package ingest

import (
	"context"
	"log"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const DefaultMQTTTopic = "fleet/assets/+/location"

type MQTTSubscriber struct {
	client mqtt.Client
	pool   *Pool
	topic  string
}

func NewMQTTSubscriber(client mqtt.Client, pool *Pool, topic string) *MQTTSubscriber {
	if topic == "" {
		topic = DefaultMQTTTopic
	}
	return &MQTTSubscriber{client: client, pool: pool, topic: topic}
}

func (s *MQTTSubscriber) Start() error {
	token := s.client.Subscribe(s.topic, 1, s.handleMessage)
	token.Wait()
	return token.Error()
}

func (s *MQTTSubscriber) Stop() error {
	token := s.client.Unsubscribe(s.topic)
	token.Wait()
	return token.Error()
}

func (s *MQTTSubscriber) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	cmd, err := decodeFix(msg.Payload(), assetFromTopic(msg.Topic()))
	if err != nil {
		s.pool.reject()
		log.Printf("mqtt: invalid fix on %s: %v", msg.Topic(), err)
		return
	}
	if err := s.pool.Submit(context.Background(), cmd); err != nil {
		log.Printf("mqtt: submit fix for %s: %v", cmd.AssetID, err)
	}
}
