package ezvizservice

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func loginSuccessBody(apiDomain string) map[string]any {
	return map[string]any{
		"meta": map[string]any{"code": 200},
		"loginSession": map[string]any{
			"sessionId":   "sess-1",
			"rfSessionId": "rf-1",
		},
		"loginUser": map[string]any{"username": "doorwatcher"},
		"loginArea": map[string]any{"apiDomain": apiDomain},
	}
}

func serverInfoBody() map[string]any {
	return map[string]any{
		"meta": map[string]any{"code": 200},
		"systemConfigInfo": map[string]any{
			"pushAddr": "push.example.com",
			"authAddr": "auth.example.com",
			"sysConf":  "a|b|c",
		},
	}
}

// newSessionClient builds a client whose token is already populated, so API
// calls skip the login exchange and refreshes stay on the test server.
func newSessionClient(serverURL string) *Client {
	c := NewClient(ClientConfig{Account: "user@example.com", Password: "hunter2", Region: serverURL})
	c.token = Token{
		SessionID:   "sess-1",
		RfSessionID: "rf-1",
		Username:    "doorwatcher",
		APIURL:      serverURL,
		ServiceURLs: &ServiceURLs{PushAddr: "push.example.com"},
	}
	return c
}

func TestLogin_PopulatesFullToken(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case endpointLogin:
			assert.Equal(t, http.MethodPost, r.Method)
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "user@example.com", r.FormValue("account"))
			// md5("hunter2")
			assert.Equal(t, "2ab96390c7dbe3439de74d0c9b0b1767", r.FormValue("password"))
			assert.Equal(t, featureCode, r.FormValue("featureCode"))
			writeJSON(w, loginSuccessBody(server.URL))
		case endpointServerInfo:
			assert.Equal(t, "sess-1", r.Header.Get("sessionId"))
			writeJSON(w, serverInfoBody())
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	c := NewClient(ClientConfig{Account: "user@example.com", Password: "hunter2", Region: server.URL})
	token, err := c.Login()

	require.NoError(t, err)
	assert.True(t, token.Populated())
	assert.Equal(t, "sess-1", token.SessionID)
	assert.Equal(t, "rf-1", token.RfSessionID)
	assert.Equal(t, "doorwatcher", token.Username)
	assert.Equal(t, server.URL, token.APIURL)
	require.NotNil(t, token.ServiceURLs)
	assert.Equal(t, "push.example.com", token.ServiceURLs.PushAddr)
	assert.Equal(t, []string{"a", "b", "c"}, token.ServiceURLs.SysConf)
}

func TestLogin_RegionRedirect(t *testing.T) {
	logins := 0
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case endpointLogin:
			logins++
			if logins == 1 {
				writeJSON(w, map[string]any{
					"meta":      map[string]any{"code": 1100},
					"loginArea": map[string]any{"apiDomain": server.URL},
				})
				return
			}
			writeJSON(w, loginSuccessBody(server.URL))
		case endpointServerInfo:
			writeJSON(w, serverInfoBody())
		}
	}))
	defer server.Close()

	c := NewClient(ClientConfig{Account: "user@example.com", Password: "hunter2", Region: server.URL})
	token, err := c.Login()

	require.NoError(t, err)
	assert.Equal(t, 2, logins)
	assert.True(t, token.Populated())
}

func TestLogin_RegionRedirectLoopCapped(t *testing.T) {
	logins := 0
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logins++
		writeJSON(w, map[string]any{
			"meta":      map[string]any{"code": 1100},
			"loginArea": map[string]any{"apiDomain": server.URL},
		})
	}))
	defer server.Close()

	c := NewClient(ClientConfig{Account: "user@example.com", Password: "hunter2", Region: server.URL})
	_, err := c.Login()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "region redirects")
	assert.Equal(t, maxRegionHops+1, logins)
}

func TestLogin_AuthFailures(t *testing.T) {
	cases := []struct {
		code   int
		reason AuthFailure
	}{
		{1013, AuthWrongAccount},
		{1014, AuthWrongPassword},
		{1015, AuthAccountLocked},
	}

	for _, tc := range cases {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, map[string]any{"meta": map[string]any{"code": tc.code}})
		}))

		c := NewClient(ClientConfig{Account: "user@example.com", Password: "wrong", Region: server.URL})
		_, err := c.Login()
		server.Close()

		var authErr *AuthError
		require.ErrorAs(t, err, &authErr, "code %d", tc.code)
		assert.Equal(t, tc.reason, authErr.Reason)
	}
}

func TestLogin_EmptySessionID(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := loginSuccessBody(server.URL)
		body["loginSession"] = map[string]any{"sessionId": "", "rfSessionId": ""}
		writeJSON(w, body)
	}))
	defer server.Close()

	c := NewClient(ClientConfig{Account: "user@example.com", Password: "hunter2", Region: server.URL})
	_, err := c.Login()

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, AuthEmptySession, authErr.Reason)
}

func TestLogin_UndecodableResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>definitely not json</html>"))
	}))
	defer server.Close()

	c := NewClient(ClientConfig{Account: "user@example.com", Password: "hunter2", Region: server.URL})
	_, err := c.Login()

	var respErr *ResponseError
	require.ErrorAs(t, err, &respErr)
	assert.Contains(t, respErr.Body, "definitely not json")
}

func TestEnsureSession_RefreshReplacesTokenWholesale(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, endpointRefreshSession, r.URL.Path)
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "sess-1", r.Header.Get("sessionId"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "rf-1", r.FormValue("refreshSessionId"))
		writeJSON(w, map[string]any{
			"meta": map[string]any{"code": 200},
			"sessionInfo": map[string]any{
				"sessionId":        "sess-2",
				"refreshSessionId": "rf-2",
			},
		})
	}))
	defer server.Close()

	c := newSessionClient(server.URL)
	token, err := c.EnsureSession()

	require.NoError(t, err)
	assert.True(t, token.Populated())
	assert.Equal(t, "sess-2", token.SessionID)
	assert.Equal(t, "rf-2", token.RfSessionID)
	assert.Equal(t, "doorwatcher", token.Username)
}

func TestEnsureSession_NoCredentialsNoLoginAttempt(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer server.Close()

	c := NewClient(ClientConfig{Region: server.URL})
	_, err := c.EnsureSession()

	require.ErrorIs(t, err, ErrCredentialsRequired)
	assert.Equal(t, 0, calls, "must not attempt a login without credentials")
}

func TestEnsureSession_FallsBackToLoginWithCredentials(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case endpointLogin:
			writeJSON(w, loginSuccessBody(server.URL))
		case endpointServerInfo:
			writeJSON(w, serverInfoBody())
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	c := NewClient(ClientConfig{Account: "user@example.com", Password: "hunter2", Region: server.URL})
	token, err := c.EnsureSession()

	require.NoError(t, err)
	assert.True(t, token.Populated())
}

func TestAPICall_RefreshOn401ThenSuccess(t *testing.T) {
	deviceCalls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case endpointRefreshSession:
			writeJSON(w, map[string]any{
				"meta": map[string]any{"code": 200},
				"sessionInfo": map[string]any{
					"sessionId":        "sess-2",
					"refreshSessionId": "rf-2",
				},
			})
		case endpointAlarmInfo:
			deviceCalls++
			if deviceCalls == 1 {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			assert.Equal(t, "sess-2", r.Header.Get("sessionId"))
			writeJSON(w, map[string]any{
				"meta":   map[string]any{"code": 200},
				"page":   map[string]any{"totalResults": 1},
				"alarms": []map[string]any{{"alarmStartTimeStr": "2026-08-25 10:00:00", "picUrl": "http://pic"}},
			})
		}
	}))
	defer server.Close()

	c := newSessionClient(server.URL)
	info, err := c.GetAlarmInfo("647166")

	require.NoError(t, err)
	assert.Equal(t, 2, deviceCalls)
	assert.Equal(t, 1, info.Page.TotalResults)
	assert.Equal(t, "http://pic", info.Alarms[0].PicURL)
}

func TestAPICall_MaxRetriesExceeded(t *testing.T) {
	unauthorized := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case endpointRefreshSession:
			writeJSON(w, map[string]any{
				"meta": map[string]any{"code": 200},
				"sessionInfo": map[string]any{
					"sessionId":        "sess-2",
					"refreshSessionId": "rf-2",
				},
			})
		default:
			unauthorized++
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	defer server.Close()

	c := newSessionClient(server.URL)
	err := c.SoundAlarm("647166", 1)

	require.ErrorIs(t, err, ErrMaxRetries)
	// The budget allows maxRetries refresh cycles; the call after the last
	// one is the (maxRetries+1)-th unauthorized answer.
	assert.Equal(t, defaultMaxRetries+1, unauthorized)
}

type countingTransport struct {
	calls int
	next  http.RoundTripper
}

func (t *countingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.calls++
	return t.next.RoundTrip(req)
}

func TestAPICall_ConnectionFailureNeverRetried(t *testing.T) {
	// Nothing listens on this port.
	c := newSessionClient("http://127.0.0.1:1")
	transport := &countingTransport{next: http.DefaultTransport}
	c.httpClient.Transport = transport

	_, err := c.GetAlarmInfo("647166")

	var hostErr *InvalidHostError
	require.ErrorAs(t, err, &hostErr)
	assert.Equal(t, 1, transport.calls, "a connection failure must not be retried")
}

func TestAPICall_NonAuthHTTPErrorIsFatal(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer server.Close()

	c := newSessionClient(server.URL)
	_, err := c.GetAlarmInfo("647166")

	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	assert.Equal(t, 1, calls)
}

func TestAPICall_UndecodableBodyCarriesRawBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("}{ mangled"))
	}))
	defer server.Close()

	c := newSessionClient(server.URL)
	_, err := c.GetAlarmInfo("647166")

	var respErr *ResponseError
	require.ErrorAs(t, err, &respErr)
	assert.Equal(t, "}{ mangled", respErr.Body)
}

func TestGetDevices_EmptyListIsNotStale(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		writeJSON(w, map[string]any{
			"meta":        map[string]any{"code": 200},
			"deviceInfos": []any{},
		})
	}))
	defer server.Close()

	c := newSessionClient(server.URL)
	devices, err := c.GetDevices()

	require.NoError(t, err)
	assert.Empty(t, devices)
	assert.Equal(t, 1, calls, "an authentically empty account must not trigger a relogin")
}

func TestGetDevices_MissingSectionTreatedAsStale(t *testing.T) {
	pageCalls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case endpointRefreshSession:
			writeJSON(w, map[string]any{
				"meta": map[string]any{"code": 200},
				"sessionInfo": map[string]any{
					"sessionId":        "sess-2",
					"refreshSessionId": "rf-2",
				},
			})
		case endpointPageList:
			pageCalls++
			if pageCalls == 1 {
				// Well-formed envelope with the section missing entirely.
				writeJSON(w, map[string]any{"meta": map[string]any{"code": 200}})
				return
			}
			writeJSON(w, map[string]any{
				"meta":        map[string]any{"code": 200},
				"deviceInfos": []map[string]any{{"deviceSerial": "647166", "name": "Backdoor"}},
			})
		}
	}))
	defer server.Close()

	c := newSessionClient(server.URL)
	devices, err := c.GetDevices()

	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "647166", devices[0].DeviceSerial)
	assert.Equal(t, 2, pageCalls)
}

func TestSwitchStatus_RejectedCodeIsTypedError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case endpointRefreshSession:
			writeJSON(w, map[string]any{
				"meta": map[string]any{"code": 200},
				"sessionInfo": map[string]any{
					"sessionId":        "sess-2",
					"refreshSessionId": "rf-2",
				},
			})
		default:
			writeJSON(w, map[string]any{"meta": map[string]any{"code": 500}})
		}
	}))
	defer server.Close()

	c := newSessionClient(server.URL)
	err := c.SwitchStatus("647166", SwitchSound, 1)

	var rejected *OperationRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "500", rejected.Code)
}

func TestSetDetectionSensitivity_TaggedResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"resultCode": "-1"})
	}))
	defer server.Close()

	c := newSessionClient(server.URL)
	result, err := c.SetDetectionSensitivity("647166", 3, 0)

	require.NoError(t, err)
	assert.False(t, result.OK)
	assert.Equal(t, "-1", result.Reason)
}

func TestSetDetectionSensitivity_OK(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "647166", r.FormValue("subSerial"))
		assert.Equal(t, "3", r.FormValue("value"))
		writeJSON(w, map[string]any{"resultCode": "0"})
	}))
	defer server.Close()

	c := newSessionClient(server.URL)
	result, err := c.SetDetectionSensitivity("647166", 3, 0)

	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Empty(t, result.Reason)
}

func TestSetDetectionSensitivity_RangeValidation(t *testing.T) {
	c := newSessionClient("http://127.0.0.1:1")
	_, err := c.SetDetectionSensitivity("647166", 9, 0)
	require.Error(t, err)
}

func TestClose_DropsToken(t *testing.T) {
	c := newSessionClient("http://example.invalid")
	c.Close()

	token := c.Token()
	assert.False(t, token.Populated())
	assert.Empty(t, token.SessionID)
	assert.Empty(t, token.RfSessionID)
}

func TestTokenPopulated(t *testing.T) {
	full := Token{SessionID: "s", RfSessionID: "r", Username: "u", APIURL: "a"}
	assert.True(t, full.Populated())

	partial := Token{SessionID: "s", APIURL: "a"}
	assert.False(t, partial.Populated())

	assert.False(t, Token{}.Populated())
}

func TestGetPageList_RequiresFilter(t *testing.T) {
	c := newSessionClient("http://127.0.0.1:1")
	_, err := c.GetPageList("")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrMaxRetries))
}
