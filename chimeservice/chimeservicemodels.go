package chimeservice

import "time"

// DeviceSound maps one registered doorbell to its display name and the
// sound file played for it.
type DeviceSound struct {
	Name  string `json:"Name"`
	Sound string `json:"Sound"`
}

// ChimeServiceConfig is the dispatcher's slice of the config file. Devices
// is the static registry, keyed by device serial; events for serials not in
// here are dropped.
type ChimeServiceConfig struct {
	CooldownSeconds   int                    `json:"CooldownSeconds"`
	PerDeviceCooldown bool                   `json:"PerDeviceCooldown"`
	ChimeSound        string                 `json:"ChimeSound"`
	PauseMillis       int                    `json:"PauseMillis"`
	PlayerCommand     string                 `json:"PlayerCommand"`
	PlayerArgs        []string               `json:"PlayerArgs"`
	Devices           map[string]DeviceSound `json:"Devices"`
}

const (
	defaultCooldown = 5 * time.Second
	defaultPause    = 750 * time.Millisecond
)
