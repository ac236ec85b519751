package bridgeservice

import (
	"encoding/json"
	"strings"

	"github.com/rs/zerolog/log"
	"gosrc.io/mqtt"
)

// BridgeService listens to a local MQTT broker fed by a radio-to-MQTT
// bridge (rtl_433 style) and forwards doorbell presses. No vendor cloud
// involved, button presses arrive as JSON on a doorbell topic.
type BridgeService struct {
	MqttURL     string   `json:"MqttURL"`
	MqttPort    string   `json:"MqttPort"`
	Topics      []string `json:"Topics"`
	PressPrefix string   `json:"PressPrefix"`
}

const defaultPressPrefix = "doorbell/"

// Start connects to the broker, subscribes and blocks on the message loop.
// Decoded presses are handed to callBack with the device identifier.
func (bs *BridgeService) Start(callBack func(serial string)) error {
	client := mqtt.NewClient(bs.MqttURL + ":" + bs.MqttPort)
	client.ClientID = "doorchime-sub"

	messages := make(chan mqtt.Message)
	client.Messages = messages

	prefix := bs.PressPrefix
	if prefix == "" {
		prefix = defaultPressPrefix
	}

	postConnect := func(c *mqtt.Client) {
		log.Info().Msg("mqtt Connected")

		topics := bs.Topics
		if len(topics) == 0 {
			log.Info().Msgf("No topics to subscribe to, defaulting to %s#", prefix)
			topics = []string{prefix + "#"}
		}
		for _, name := range topics {
			topic := mqtt.Topic{Name: name, QOS: 0}
			c.Subscribe(topic)
			log.Info().Msgf("Subscribed to topic: %s", name)
		}
	}
	cm := mqtt.NewClientManager(client, postConnect)
	cm.Start()

	for m := range messages {
		serial, ok := decodePress(prefix, m.Topic, m.Payload)
		if !ok {
			continue
		}
		log.Info().Msgf("Doorbell press on %s from %s", m.Topic, serial)
		callBack(serial)
	}
	return nil
}

// decodePress extracts the device identifier from a bridge message. The
// shared broker carries all kinds of radio traffic, so anything off the
// doorbell prefix or without a usable id is dropped quietly.
func decodePress(prefix, topic string, payload []byte) (string, bool) {
	if !strings.HasPrefix(topic, prefix) {
		return "", false
	}

	var press struct {
		ID json.Number `json:"id"`
	}
	if err := json.Unmarshal(payload, &press); err != nil {
		log.Debug().Msgf("Error unmarshalling JSON on %s: %v", topic, err)
		return "", false
	}
	if press.ID.String() == "" {
		return "", false
	}
	return press.ID.String(), true
}
