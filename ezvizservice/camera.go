package ezvizservice

import (
	"fmt"
	"strings"
	"time"
)

// Camera is a convenience wrapper binding one device serial to a client.
type Camera struct {
	client *Client
	serial string
}

// NewCamera binds a serial to the given client.
func NewCamera(client *Client, serial string) *Camera {
	return &Camera{client: client, serial: serial}
}

// Serial returns the device serial this wrapper drives.
func (cam *Camera) Serial() string { return cam.serial }

// CameraStatus is the flattened status summary for one device.
type CameraStatus struct {
	Serial             string         `json:"serial"`
	Name               string         `json:"name"`
	Version            string         `json:"version"`
	Status             int            `json:"status"`
	DeviceCategory     string         `json:"device_category"`
	DeviceSubCategory  string         `json:"device_sub_category"`
	UpgradeAvailable   bool           `json:"upgrade_available"`
	Sleep              bool           `json:"sleep"`
	Privacy            bool           `json:"privacy"`
	Audio              bool           `json:"audio"`
	IrLed              bool           `json:"ir_led"`
	StateLed           bool           `json:"state_led"`
	FollowMove         bool           `json:"follow_move"`
	AlarmNotify        bool           `json:"alarm_notify"`
	AlarmSchedules     bool           `json:"alarm_schedules_enabled"`
	Encrypted          bool           `json:"encrypted"`
	LocalIP            string         `json:"local_ip"`
	WanIP              string         `json:"wan_ip"`
	LocalRtspPort      int            `json:"local_rtsp_port"`
	SupportedChannels  int            `json:"supported_channels"`
	BatteryLevel       string         `json:"battery_level"`
	PirStatus          int            `json:"pir_status"`
	MotionTrigger      bool           `json:"motion_trigger"`
	SecondsLastTrigger float64        `json:"seconds_last_trigger"`
	LastAlarmTime      string         `json:"last_alarm_time"`
	LastAlarmPic       string         `json:"last_alarm_pic"`
	Switches           map[int]bool   `json:"switches"`
}

// supportedCategory reports whether the wrapper knows how to summarize this
// device kind. Connected HikVision boxes ride the COMMON category.
func supportedCategory(info DeviceInfo) bool {
	switch info.DeviceCategory {
	case CategoryCamera, CategoryBatteryCamera, CategoryDoorbell, CategoryBaseStation:
		return true
	case CategoryCommon:
		return info.Hik
	}
	return false
}

// Status assembles the flattened summary for this serial from the pagelist
// sections plus the latest alarm entry.
func (cam *Camera) Status() (*CameraStatus, error) {
	pageList, err := cam.client.GetFullPageList()
	if err != nil {
		return nil, err
	}

	var device *DeviceInfo
	for i := range pageList.DeviceInfos {
		if pageList.DeviceInfos[i].DeviceSerial == cam.serial {
			device = &pageList.DeviceInfos[i]
			break
		}
	}
	if device == nil {
		return nil, fmt.Errorf("device %s not found in pagelist", cam.serial)
	}

	switches := make(map[int]bool)
	for _, sw := range pageList.SwitchStatusInfos[cam.serial] {
		switches[sw.Type] = sw.Enable
	}

	status := pageList.StatusInfos[cam.serial]
	connection := pageList.ConnectionInfos[cam.serial]

	result := &CameraStatus{
		Serial:            cam.serial,
		Name:              device.Name,
		Version:           device.Version,
		Status:            device.Status,
		DeviceCategory:    device.DeviceCategory,
		DeviceSubCategory: device.DeviceSubCategory,
		UpgradeAvailable:  status.UpgradeAvailable != 0,
		Sleep:             switches[SwitchSleep] || switches[SwitchAutoSleep],
		Privacy:           switches[SwitchPrivacy],
		Audio:             switches[SwitchSound],
		IrLed:             switches[SwitchInfraredLight],
		StateLed:          switches[SwitchLight],
		FollowMove:        switches[SwitchMobileTracking],
		AlarmNotify:       status.GlobalStatus != 0,
		AlarmSchedules:    alarmSchedulesEnabled(pageList.TimePlanInfos[cam.serial]),
		Encrypted:         status.IsEncrypted != 0,
		LocalIP:           localIP(pageList.WifiInfos[cam.serial], connection),
		WanIP:             wanIP(connection),
		LocalRtspPort:     connection.LocalRtspPort,
		SupportedChannels: device.ChannelNumber,
		BatteryLevel:      status.Optionals.PowerRemaining.String(),
		PirStatus:         status.PirStatus,
		Switches:          switches,
	}

	alarmInfo, err := cam.client.GetAlarmInfo(cam.serial)
	if err != nil {
		return nil, err
	}
	if alarmInfo.Page.TotalResults > 0 && len(alarmInfo.Alarms) > 0 {
		result.LastAlarmTime = alarmInfo.Alarms[0].AlarmStartTimeStr
		result.LastAlarmPic = alarmInfo.Alarms[0].PicURL
		result.MotionTrigger, result.SecondsLastTrigger = motionTrigger(result.LastAlarmTime, time.Now())
	}

	return result, nil
}

// alarmSchedulesEnabled checks the type 2 time plan, which carries the
// defence schedule toggle.
func alarmSchedulesEnabled(plans []TimePlan) bool {
	for _, plan := range plans {
		if plan.Type == 2 {
			return plan.Enable != 0
		}
	}
	return false
}

// localIP prefers the wifi-reported address, some cameras return none or
// 0.0.0.0 on the connection record.
func localIP(wifi WifiInfo, connection ConnectionInfo) string {
	if wifi.Address != "" {
		return wifi.Address
	}
	if connection.LocalIP != "" {
		return connection.LocalIP
	}
	return "0.0.0.0"
}

func wanIP(connection ConnectionInfo) string {
	if connection.NetIP != "" {
		return connection.NetIP
	}
	return "0.0.0.0"
}

// motionTrigger marks the camera as recently triggered when the last alarm
// is under a minute old. Alarm times may come back with a "Today" prefix.
func motionTrigger(alarmTime string, now time.Time) (bool, float64) {
	fixed := strings.Replace(alarmTime, "Today", now.Format("2006-01-02"), 1)

	parsed, err := time.ParseInLocation("2006-01-02 15:04:05", fixed, now.Location())
	if err != nil {
		return false, 0
	}

	passed := now.Sub(parsed)
	return passed < time.Minute, passed.Seconds()
}

// Move nudges the camera one step in a direction by issuing the START/STOP
// command pair.
func (cam *Camera) Move(direction string, speed int) error {
	switch direction {
	case "up", "down", "left", "right":
	default:
		return fmt.Errorf("invalid direction: %s", direction)
	}

	command := strings.ToUpper(direction)
	if err := cam.client.PTZControl(command, cam.serial, "START", speed); err != nil {
		return err
	}
	return cam.client.PTZControl(command, cam.serial, "STOP", speed)
}

// AlarmSound sets the siren volume mode. Enable is forced on, silencing is
// expressed through the sound type.
func (cam *Camera) AlarmSound(soundType int) error {
	return cam.client.AlarmSound(cam.serial, soundType, 1)
}

// DetectionSensitivity updates the motion detection level.
func (cam *Camera) DetectionSensitivity(sensitivity, algType int) (SensitivityResult, error) {
	return cam.client.SetDetectionSensitivity(cam.serial, sensitivity, algType)
}

// SwitchAudio toggles device audio recording.
func (cam *Camera) SwitchAudio(enable int) error {
	return cam.client.SwitchStatus(cam.serial, SwitchSound, enable)
}

// SwitchStateLed toggles the status led.
func (cam *Camera) SwitchStateLed(enable int) error {
	return cam.client.SwitchStatus(cam.serial, SwitchLight, enable)
}

// SwitchIrLed toggles infrared night vision.
func (cam *Camera) SwitchIrLed(enable int) error {
	return cam.client.SwitchStatus(cam.serial, SwitchInfraredLight, enable)
}

// SwitchPrivacyMode toggles the privacy shutter.
func (cam *Camera) SwitchPrivacyMode(enable int) error {
	return cam.client.SwitchStatus(cam.serial, SwitchPrivacy, enable)
}

// SwitchSleepMode toggles device sleep.
func (cam *Camera) SwitchSleepMode(enable int) error {
	return cam.client.SwitchStatus(cam.serial, SwitchSleep, enable)
}

// SwitchFollowMove toggles motion tracking.
func (cam *Camera) SwitchFollowMove(enable int) error {
	return cam.client.SwitchStatus(cam.serial, SwitchMobileTracking, enable)
}
