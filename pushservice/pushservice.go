package pushservice

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"doorchime/ezvizservice"
)

const (
	endpointRegisterClient = "/v1/getClientId"
	endpointStartPush      = "/api/push/start"
	endpointStopPush       = "/api/push/stop"

	// App key and secret the vendor's push broker authenticates with.
	appKey    = "4c6b3cc2-b5eb-4813-a592-612c1374c1fe"
	appSecret = "17454517-cc1c-42b3-a845-99b4a15dd3e6"

	mqttPort = 1882

	// RingAlert is the alert string the cloud attaches to a doorbell press.
	RingAlert = "somebody there ring the door"
)

// PushServiceConfig is the push listener's slice of the config file.
type PushServiceConfig struct {
	TimeoutSeconds int `json:"TimeoutSeconds"`
}

// PushService subscribes to the vendor cloud push feed over MQTT. It first
// registers a push client id and opens a push session against the token's
// push address, then keeps an MQTT subscription on the session ticket.
type PushService struct {
	token      ezvizservice.Token
	httpClient *http.Client
	clientID   string
	ticket     string
	mqttClient MQTT.Client
}

// New builds a push service for an authenticated token. The token must
// carry service URLs, the push address lives there.
func New(token ezvizservice.Token, cfg PushServiceConfig) (*PushService, error) {
	if token.ServiceURLs == nil || token.ServiceURLs.PushAddr == "" {
		return nil, fmt.Errorf("token carries no push address, log in first")
	}

	timeout := 25 * time.Second
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}

	return &PushService{
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func (ps *PushService) pushURL() string {
	addr := ps.token.ServiceURLs.PushAddr
	if strings.Contains(addr, "://") {
		return addr
	}
	return "https://" + addr
}

// Start registers for push messages, opens the push session and blocks on
// the MQTT subscription. Decoded doorbell presses are handed to callBack.
func (ps *PushService) Start(callBack func(serial string)) error {
	if err := ps.registerPush(); err != nil {
		return err
	}
	if err := ps.startPush(); err != nil {
		return err
	}

	opts := MQTT.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", ps.token.ServiceURLs.PushAddr, mqttPort))
	opts.SetClientID(ps.clientID)
	opts.SetUsername(appKey)
	opts.SetPassword(appSecret)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	ps.mqttClient = MQTT.NewClient(opts)
	if token := ps.mqttClient.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("push broker connect failed: %w", token.Error())
	}
	log.Info().Msgf("Connected to push broker %s", ps.token.ServiceURLs.PushAddr)

	topic := fmt.Sprintf("%s/ticket/%s", appKey, ps.ticket)
	handler := func(client MQTT.Client, msg MQTT.Message) {
		press, ok := DecodePress(msg.Payload())
		if !ok {
			// The ticket topic carries plenty of non-doorbell traffic,
			// dropping it quietly is the normal case.
			log.Debug().Msgf("Dropping push message: %s", msg.Payload())
			return
		}
		log.Info().Msgf("Received door bell press alert from %s", press.Serial)
		callBack(press.Serial)
	}
	if token := ps.mqttClient.Subscribe(topic, 2, handler); token.Wait() && token.Error() != nil {
		return fmt.Errorf("push subscribe failed: %w", token.Error())
	}
	log.Info().Msgf("Subscribed to push topic %s", topic)

	select {}
}

// Stop tells the cloud to stop pushing and drops the MQTT connection.
func (ps *PushService) Stop() error {
	payload := url.Values{}
	payload.Set("appKey", appKey)
	payload.Set("clientId", ps.clientID)
	payload.Set("clientType", "5")
	payload.Set("sessionId", ps.token.SessionID)
	payload.Set("username", ps.token.Username)

	if _, err := ps.postForm(endpointStopPush, payload, nil); err != nil {
		return err
	}

	if ps.mqttClient != nil {
		ps.mqttClient.Disconnect(250)
	}
	return nil
}

// registerPush asks the push gateway for a client id, authenticated with
// the app key pair.
func (ps *PushService) registerPush() error {
	payload := url.Values{}
	payload.Set("appKey", appKey)
	payload.Set("clientType", "5")
	payload.Set("mac", "doorchime")
	payload.Set("token", "123456")
	payload.Set("version", "v1.3.0")

	basic := base64.StdEncoding.EncodeToString([]byte(appKey + ":" + appSecret))
	headers := map[string]string{"Authorization": "Basic " + basic}

	body, err := ps.postForm(endpointRegisterClient, payload, headers)
	if err != nil {
		return err
	}

	var result struct {
		Data struct {
			ClientID string `json:"clientId"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return &ezvizservice.ResponseError{Body: string(body), Err: err}
	}
	if result.Data.ClientID == "" {
		return fmt.Errorf("push registration returned no client id: %s", body)
	}

	ps.clientID = result.Data.ClientID
	return nil
}

// startPush opens the push session and collects the subscription ticket.
func (ps *PushService) startPush() error {
	payload := url.Values{}
	payload.Set("appKey", appKey)
	payload.Set("clientId", ps.clientID)
	payload.Set("clientType", "5")
	payload.Set("sessionId", ps.token.SessionID)
	payload.Set("username", ps.token.Username)
	payload.Set("token", "123456")

	body, err := ps.postForm(endpointStartPush, payload, nil)
	if err != nil {
		return err
	}

	var result struct {
		Ticket string `json:"ticket"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return &ezvizservice.ResponseError{Body: string(body), Err: err}
	}
	if result.Ticket == "" {
		return fmt.Errorf("push start returned no ticket: %s", body)
	}

	ps.ticket = result.Ticket
	return nil
}

func (ps *PushService) postForm(path string, payload url.Values, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequest(http.MethodPost, ps.pushURL()+path, strings.NewReader(payload.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", "okhttp/3.12.1")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := ps.httpClient.Do(req)
	if err != nil {
		return nil, &ezvizservice.InvalidHostError{Host: ps.token.ServiceURLs.PushAddr, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ezvizservice.InvalidHostError{Host: ps.token.ServiceURLs.PushAddr, Err: err}
	}
	if resp.StatusCode >= 400 {
		return nil, &ezvizservice.HTTPStatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

// DoorbellPress is one decoded doorbell press alert.
type DoorbellPress struct {
	Serial    string
	Time      string
	AlertType string
	PicURL    string
}

type pushMessage struct {
	ID    string `json:"id"`
	Alert string `json:"alert"`
	Ext   string `json:"ext"`
}

// DecodePress parses a raw push payload into a doorbell press. Payloads
// that are not JSON, not a recognized doorbell alert, or too short to carry
// a device serial come back ok=false and are meant to be dropped.
func DecodePress(payload []byte) (DoorbellPress, bool) {
	var msg pushMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return DoorbellPress{}, false
	}
	if msg.Alert != RingAlert {
		return DoorbellPress{}, false
	}

	// The ext field is a comma-joined record: time at 1, device serial at
	// 2, alert type at 4, picture url at 16 when present.
	parts := strings.Split(msg.Ext, ",")
	if len(parts) < 5 || parts[2] == "" {
		return DoorbellPress{}, false
	}

	press := DoorbellPress{
		Serial:    parts[2],
		Time:      parts[1],
		AlertType: parts[4],
	}
	if len(parts) > 16 {
		press.PicURL = parts[16]
	}
	return press, true
}
