package controller

import (
	"doorchime/bridgeservice"
	"doorchime/chimeservice"
	"doorchime/ezvizservice"
	"doorchime/mqttservice"
	"doorchime/pushservice"
)

// DoorchimeConfig is the configuration structure for the doorchime
// application. Mode selects the event source: "cloud" listens to the vendor
// push feed, "bridge" listens to a local radio-to-MQTT broker.
type DoorchimeConfig struct {
	LogLevel      string                          `json:"LogLevel"`
	Mode          string                          `json:"Mode"`
	LocalBroker   bool                            `json:"LocalBroker"`
	Ezviz         ezvizservice.ClientConfig       `json:"Ezviz"`
	Chime         chimeservice.ChimeServiceConfig `json:"Chime"`
	PushService   pushservice.PushServiceConfig   `json:"PushService"`
	BridgeService bridgeservice.BridgeService     `json:"BridgeService"`
	MQTTService   mqttservice.MQTTService         `json:"MQTTService"`
}
