package ezvizservice

import "encoding/json"

// Token is the bundle identifying an authenticated session. It is either
// fully populated or fully empty, and is always replaced wholesale.
type Token struct {
	SessionID   string
	RfSessionID string
	Username    string
	APIURL      string
	ServiceURLs *ServiceURLs
}

// Populated reports whether the token carries a usable session.
func (t Token) Populated() bool {
	return t.SessionID != "" && t.RfSessionID != "" && t.Username != "" && t.APIURL != ""
}

// ServiceURLs is the per-region service endpoint metadata, fetched once
// after a successful login.
type ServiceURLs struct {
	PushAddr string
	AuthAddr string
	SysConf  []string
}

// Switch types the API knows about. Only the subset this program drives.
const (
	SwitchAlarmTone      = 1
	SwitchLight          = 3
	SwitchPrivacy        = 7
	SwitchInfraredLight  = 10
	SwitchSleep          = 21
	SwitchSound          = 22
	SwitchMobileTracking = 25
	SwitchAutoSleep      = 32
)

// Alarm sound levels. Two is silent, don't ask why.
const (
	SoundSoft    = 0
	SoundIntense = 1
	SoundSilent  = 2
)

// Defence modes for the whole account.
const (
	DefenceModeUnset = 0
	DefenceModeHome  = 1
	DefenceModeAway  = 2
	DefenceModeSleep = 3
)

// Device categories the camera wrapper supports.
const (
	CategoryCommon        = "COMMON"
	CategoryCamera        = "IPC"
	CategoryBatteryCamera = "BatteryCamera"
	CategoryDoorbell      = "BDoorBell"
	CategoryBaseStation   = "XVR"
)

// SensitivityResult is the outcome of a sensitivity update: either accepted,
// or rejected with the service's reason code.
type SensitivityResult struct {
	OK     bool
	Reason string
}

type meta struct {
	Code int `json:"code"`
}

type loginResponse struct {
	Meta         meta `json:"meta"`
	LoginSession struct {
		SessionID   string `json:"sessionId"`
		RfSessionID string `json:"rfSessionId"`
	} `json:"loginSession"`
	LoginUser struct {
		Username string `json:"username"`
	} `json:"loginUser"`
	LoginArea struct {
		APIDomain string `json:"apiDomain"`
	} `json:"loginArea"`
}

type refreshResponse struct {
	Meta        meta `json:"meta"`
	SessionInfo struct {
		SessionID        string `json:"sessionId"`
		RefreshSessionID string `json:"refreshSessionId"`
	} `json:"sessionInfo"`
}

type serverInfoResponse struct {
	Meta             meta `json:"meta"`
	SystemConfigInfo struct {
		PushAddr string `json:"pushAddr"`
		AuthAddr string `json:"authAddr"`
		SysConf  string `json:"sysConf"`
	} `json:"systemConfigInfo"`
}

// PageList is the device inventory, broken down in sections keyed by the
// pagelist filter. Sections not requested come back nil.
type PageList struct {
	Meta              meta                       `json:"meta"`
	DeviceInfos       []DeviceInfo               `json:"deviceInfos"`
	CameraInfos       []CameraInfo               `json:"cameraInfos"`
	ConnectionInfos   map[string]ConnectionInfo  `json:"connectionInfos"`
	StatusInfos       map[string]StatusInfo      `json:"statusInfos"`
	WifiInfos         map[string]WifiInfo        `json:"wifiInfos"`
	SwitchStatusInfos map[string][]SwitchStatus  `json:"switchStatusInfos"`
	TimePlanInfos     map[string][]TimePlan      `json:"timePlanInfos"`
	P2PInfos          map[string]json.RawMessage `json:"p2pInfos"`
	KmsInfos          map[string]json.RawMessage `json:"kmsInfos"`
	NodisturbInfos    map[string]json.RawMessage `json:"alarmNodisturbInfos"`
}

type DeviceInfo struct {
	DeviceSerial      string `json:"deviceSerial"`
	Name              string `json:"name"`
	Version           string `json:"version"`
	Status            int    `json:"status"`
	DeviceCategory    string `json:"deviceCategory"`
	DeviceSubCategory string `json:"deviceSubCategory"`
	ChannelNumber     int    `json:"channelNumber"`
	Hik               bool   `json:"hik"`
}

type CameraInfo struct {
	DeviceSerial string `json:"deviceSerial"`
	ChannelNo    int    `json:"channelNo"`
	Name         string `json:"name"`
}

type ConnectionInfo struct {
	LocalIP       string `json:"localIp"`
	NetIP         string `json:"netIp"`
	LocalRtspPort int    `json:"localRtspPort"`
}

type StatusInfo struct {
	GlobalStatus     int  `json:"globalStatus"`
	PirStatus        int  `json:"pirStatus"`
	IsEncrypted      int  `json:"isEncrypted"`
	AlarmSoundMode   int  `json:"alarmSoundMode"`
	UpgradeAvailable int  `json:"upgradeAvailable"`
	Optionals        struct {
		PowerRemaining json.Number `json:"powerRemaining"`
	} `json:"optionals"`
}

type WifiInfo struct {
	Address string `json:"address"`
	Signal  int    `json:"signal"`
	SSID    string `json:"ssid"`
}

type SwitchStatus struct {
	Type   int  `json:"type"`
	Enable bool `json:"enable"`
}

type TimePlan struct {
	Type   int `json:"type"`
	Enable int `json:"enable"`
}

// AlarmInfo is the advanced alarm query result, trimmed to what we read.
type AlarmInfo struct {
	Meta meta `json:"meta"`
	Page struct {
		TotalResults int `json:"totalResults"`
	} `json:"page"`
	Alarms []Alarm `json:"alarms"`
}

type Alarm struct {
	AlarmStartTimeStr string `json:"alarmStartTimeStr"`
	AlarmType         int    `json:"alarmType"`
	PicURL            string `json:"picUrl"`
}
