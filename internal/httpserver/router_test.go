package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap/zaptest"

	"onloc/internal/auth"
	"onloc/internal/realtime"
	"onloc/internal/repository/memrepo"
	"onloc/internal/services/device"
	"onloc/internal/services/identity"
	"onloc/internal/services/location"
	"onloc/internal/services/setting"
	"onloc/internal/services/token"
)

type apiClient struct {
	t   *testing.T
	srv *httptest.Server
	hub *realtime.Hub
}

func newAPI(t *testing.T) *apiClient {
	t.Helper()
	lg := zaptest.NewLogger(t).Sugar()
	store := memrepo.New()
	hub := realtime.NewHub(lg)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	settings := setting.NewService(store, lg)
	engine := location.NewEngine(store, lg)
	deps := Deps{
		Users:     identity.NewService(store, settings, lg),
		Tokens:    token.NewService(store, store, auth.NewTokenSigner("router-test", 0), lg),
		Devices:   device.NewService(store, engine, lg),
		Locations: location.NewService(store, store, hub, lg),
		Queries:   engine,
		Settings:  settings,
		Hub:       hub,
	}
	srv := httptest.NewServer(NewRouter(deps, lg))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return &apiClient{t: t, srv: srv, hub: hub}
}

type reply struct {
	status int
	body   []byte
}

func (r reply) decode(t *testing.T, v any) {
	t.Helper()
	if err := json.Unmarshal(r.body, v); err != nil {
		t.Fatalf("decode %s: %v", r.body, err)
	}
}

func (c *apiClient) do(method, path, token string, body any) reply {
	c.t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(b)
	default:
		buf, err := json.Marshal(b)
		if err != nil {
			c.t.Fatal(err)
		}
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequest(method, c.srv.URL+path, rd)
	if err != nil {
		c.t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("User-Agent", "router-test")
	res, err := c.srv.Client().Do(req)
	if err != nil {
		c.t.Fatal(err)
	}
	defer res.Body.Close()
	out, _ := io.ReadAll(res.Body)
	return reply{status: res.StatusCode, body: out}
}

func (c *apiClient) expect(r reply, status int) reply {
	c.t.Helper()
	if r.status != status {
		c.t.Fatalf("status = %d, want %d; body %s", r.status, status, r.body)
	}
	return r
}

type authReply struct {
	User struct {
		ID      uint `json:"id"`
		IsAdmin bool `json:"is_admin"`
	} `json:"user"`
	Token string `json:"token"`
}

func (c *apiClient) register(username string) authReply {
	c.t.Helper()
	var a authReply
	c.expect(c.do(http.MethodPost, "/api/register", "", map[string]string{
		"username": username, "password": "password1", "password_confirmation": "password1",
	}), http.StatusCreated).decode(c.t, &a)
	return a
}

func TestStatusAndRegistrationGate(t *testing.T) {
	api := newAPI(t)

	var st map[string]bool
	api.expect(api.do(http.MethodGet, "/api/status", "", nil), http.StatusOK).decode(t, &st)
	if st["is_setup"] || st["registration"] {
		t.Errorf("fresh status = %v", st)
	}

	admin := api.register("admin")
	if !admin.User.IsAdmin || admin.Token == "" {
		t.Fatalf("first registration = %+v", admin)
	}

	api.expect(api.do(http.MethodPost, "/api/register", "", map[string]string{
		"username": "bob", "password": "password1", "password_confirmation": "password1",
	}), http.StatusForbidden)

	api.expect(api.do(http.MethodPost, "/api/settings", admin.Token, map[string]string{
		"key": "registration", "value": "true",
	}), http.StatusCreated)

	bob := api.register("bob")
	if bob.User.IsAdmin {
		t.Error("second user is admin")
	}
	api.expect(api.do(http.MethodGet, "/api/settings", bob.Token, nil), http.StatusForbidden)

	api.expect(api.do(http.MethodPost, "/api/register", "", map[string]string{
		"username": "bob", "password": "password1", "password_confirmation": "password1",
	}), http.StatusConflict)
	api.expect(api.do(http.MethodPost, "/api/register", "", map[string]string{
		"username": "carol", "password": "short", "password_confirmation": "short",
	}), http.StatusUnprocessableEntity)

	api.expect(api.do(http.MethodGet, "/api/status", "", nil), http.StatusOK).decode(t, &st)
	if !st["is_setup"] || !st["registration"] {
		t.Errorf("status after setup = %v", st)
	}
}

func TestAuthenticationFlow(t *testing.T) {
	api := newAPI(t)
	alice := api.register("alice")

	api.expect(api.do(http.MethodGet, "/api/user", "", nil), http.StatusUnauthorized)
	api.expect(api.do(http.MethodGet, "/api/user", "bogus", nil), http.StatusUnauthorized)
	api.expect(api.do(http.MethodGet, "/api/user", alice.Token, nil), http.StatusOK)

	api.expect(api.do(http.MethodPost, "/api/login", "", map[string]string{
		"username": "alice", "password": "wrong-password",
	}), http.StatusUnauthorized)
	api.expect(api.do(http.MethodPost, "/api/login", "", map[string]string{}), http.StatusUnprocessableEntity)

	var second authReply
	api.expect(api.do(http.MethodPost, "/api/login", "", map[string]string{
		"username": "alice", "password": "password1", "token_name": "cli",
	}), http.StatusOK).decode(t, &second)

	var tokens []struct {
		ID   uint   `json:"id"`
		Name string `json:"name"`
	}
	api.expect(api.do(http.MethodGet, "/api/user/tokens", second.Token, nil), http.StatusOK).decode(t, &tokens)
	if len(tokens) != 2 || tokens[0].Name != "router-test" || tokens[1].Name != "cli" {
		t.Fatalf("tokens = %+v", tokens)
	}
	if strings.Contains(string(api.do(http.MethodGet, "/api/user/tokens", second.Token, nil).body), "token_hash") {
		t.Error("token hash exposed")
	}

	api.expect(api.do(http.MethodDelete, "/api/user/tokens/999", second.Token, nil), http.StatusNotFound)
	api.expect(api.do(http.MethodDelete, fmt.Sprintf("/api/user/tokens/%d", tokens[0].ID), second.Token, nil), http.StatusOK)
	api.expect(api.do(http.MethodGet, "/api/user", alice.Token, nil), http.StatusUnauthorized)

	api.expect(api.do(http.MethodPost, "/api/logout", second.Token, nil), http.StatusOK)
	api.expect(api.do(http.MethodGet, "/api/user", second.Token, nil), http.StatusUnauthorized)
}

func TestDeviceAndLocationRoutes(t *testing.T) {
	api := newAPI(t)
	alice := api.register("alice")
	api.expect(api.do(http.MethodPost, "/api/settings", alice.Token, map[string]string{
		"key": "registration", "value": "1",
	}), http.StatusCreated)
	bob := api.register("bob")

	var phone struct {
		ID uint `json:"id"`
	}
	api.expect(api.do(http.MethodPost, "/api/devices", alice.Token, map[string]string{"name": "phone"}), http.StatusCreated).decode(t, &phone)
	api.expect(api.do(http.MethodPost, "/api/devices", alice.Token, map[string]string{"name": "phone"}), http.StatusConflict)
	api.expect(api.do(http.MethodPost, "/api/devices", bob.Token, map[string]string{"name": "phone"}), http.StatusCreated)
	api.expect(api.do(http.MethodPost, "/api/devices", alice.Token, `{"name":`), http.StatusUnprocessableEntity)
	api.expect(api.do(http.MethodPost, "/api/devices", alice.Token, `{"name": 5}`), http.StatusUnprocessableEntity)

	devPath := fmt.Sprintf("/api/devices/%d", phone.ID)
	api.expect(api.do(http.MethodGet, devPath, bob.Token, nil), http.StatusForbidden)
	api.expect(api.do(http.MethodGet, "/api/devices/999", bob.Token, nil), http.StatusNotFound)
	api.expect(api.do(http.MethodGet, "/api/devices/abc", bob.Token, nil), http.StatusNotFound)

	sample := map[string]any{"device_id": phone.ID, "latitude": 48.1, "longitude": 11.5, "created_at": "1999-01-01T00:00:00Z"}
	api.expect(api.do(http.MethodPost, "/api/locations", bob.Token, sample), http.StatusForbidden)
	api.expect(api.do(http.MethodPost, "/api/locations", alice.Token, map[string]any{"device_id": 999, "latitude": 1, "longitude": 1}), http.StatusNotFound)
	api.expect(api.do(http.MethodPost, "/api/locations", alice.Token, map[string]any{"device_id": phone.ID}), http.StatusUnprocessableEntity)

	var created struct {
		ID        uint      `json:"id"`
		CreatedAt time.Time `json:"created_at"`
	}
	api.expect(api.do(http.MethodPost, "/api/locations", alice.Token, sample), http.StatusCreated).decode(t, &created)
	if created.CreatedAt.Year() == 1999 {
		t.Error("client timestamp was honoured")
	}

	locPath := fmt.Sprintf("/api/locations/%d", created.ID)
	api.expect(api.do(http.MethodGet, locPath, bob.Token, nil), http.StatusForbidden)
	api.expect(api.do(http.MethodPatch, locPath, alice.Token, map[string]any{"latitude": 100}), http.StatusUnprocessableEntity)
	api.expect(api.do(http.MethodPatch, locPath, alice.Token, map[string]any{"speed": 2.5}), http.StatusOK)

	var groups []struct {
		DeviceID  uint `json:"device_id"`
		Locations []struct {
			ID uint `json:"id"`
		} `json:"locations"`
	}
	api.expect(api.do(http.MethodGet, "/api/locations?latest=true", alice.Token, nil), http.StatusOK).decode(t, &groups)
	if len(groups) != 1 || groups[0].DeviceID != phone.ID || groups[0].Locations[0].ID != created.ID {
		t.Errorf("groups = %+v", groups)
	}
	api.expect(api.do(http.MethodGet, "/api/locations", bob.Token, nil), http.StatusOK).decode(t, &groups)
	if len(groups) != 0 {
		t.Errorf("bob sees %+v", groups)
	}
	if r := api.expect(api.do(http.MethodGet, "/api/locations", bob.Token, nil), http.StatusOK); strings.TrimSpace(string(r.body)) != "[]" {
		t.Errorf("empty result encoded as %s", r.body)
	}

	var verr struct {
		Errors map[string]string `json:"errors"`
	}
	api.expect(api.do(http.MethodGet, "/api/locations?start_date=nope&latest=perhaps", alice.Token, nil), http.StatusUnprocessableEntity).decode(t, &verr)
	if verr.Errors["start_date"] == "" || verr.Errors["latest"] == "" {
		t.Errorf("validation errors = %v", verr.Errors)
	}

	var dates []string
	api.expect(api.do(http.MethodGet, "/api/locations/dates", alice.Token, nil), http.StatusOK).decode(t, &dates)
	if len(dates) != 1 || dates[0] != created.CreatedAt.UTC().Format("2006-01-02") {
		t.Errorf("dates = %v", dates)
	}
	api.expect(api.do(http.MethodGet, "/api/locations/dates?device_id=x", alice.Token, nil), http.StatusUnprocessableEntity)

	var devices []struct {
		ID             uint `json:"id"`
		LatestLocation *struct {
			ID uint `json:"id"`
		} `json:"latest_location"`
	}
	api.expect(api.do(http.MethodGet, "/api/devices", alice.Token, nil), http.StatusOK).decode(t, &devices)
	if len(devices) != 1 || devices[0].LatestLocation == nil || devices[0].LatestLocation.ID != created.ID {
		t.Errorf("devices = %+v", devices)
	}

	api.expect(api.do(http.MethodDelete, devPath, bob.Token, nil), http.StatusForbidden)
	api.expect(api.do(http.MethodDelete, devPath, alice.Token, nil), http.StatusOK)
	api.expect(api.do(http.MethodGet, locPath, alice.Token, nil), http.StatusNotFound)
}

func TestLiveFeedRoute(t *testing.T) {
	api := newAPI(t)
	alice := api.register("alice")

	wsURL := "ws" + strings.TrimPrefix(api.srv.URL, "http") + "/api/ws"
	if _, res, err := websocket.DefaultDialer.Dial(wsURL, nil); err == nil || res == nil || res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated dial: err=%v res=%v", err, res)
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?token="+alice.Token, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for api.hub.ConnectionCount(alice.User.ID) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("live connection never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	var d struct {
		ID uint `json:"id"`
	}
	api.expect(api.do(http.MethodPost, "/api/devices", alice.Token, map[string]string{"name": "phone"}), http.StatusCreated).decode(t, &d)
	api.expect(api.do(http.MethodPost, "/api/locations", alice.Token, map[string]any{"device_id": d.ID, "latitude": 1, "longitude": 2}), http.StatusCreated)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev struct {
		Type string `json:"type"`
		Data struct {
			DeviceID uint `json:"device_id"`
		} `json:"data"`
	}
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	if ev.Type != "location" || ev.Data.DeviceID != d.ID {
		t.Errorf("event = %+v", ev)
	}
}

func TestHealthz(t *testing.T) {
	api := newAPI(t)
	api.expect(api.do(http.MethodGet, "/healthz", "", nil), http.StatusOK)
}
