package admin

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"treasury-systemv1/internal/auth"
	"treasury-systemv1/internal/controller"
	"treasury-systemv1/internal/feed"
	"treasury-systemv1/internal/indicator"
	"treasury-systemv1/internal/journal"
	"treasury-systemv1/internal/treasury"
	"treasury-systemv1/internal/venue"
)

const testSecret = "JBSWY3DPEHPK3PXP"

type env struct {
	ts     *httptest.Server
	engine *indicator.Engine
	ctrl   *controller.Controller
}

func newEnv(t *testing.T) *env {
	t.Helper()

	assetFeed := feed.NewManualFeed("asset/base", 8)
	reserveFeed := feed.NewManualFeed("reserve/base", 8)
	engine, err := indicator.New(assetFeed, reserveFeed, 10*time.Hour, time.Hour)
	if err != nil {
		t.Fatalf("indicator.New: %v", err)
	}

	ctrl, err := controller.New(engine, treasury.NewPaperMinter(),
		treasury.NewPaperTreasury(map[string]float64{"RESERVE": 1e9}),
		venue.NewPaperVenue(time.Hour),
		controller.Config{
			Self:            "admin-test",
			ReserveAsset:    "RESERVE",
			EpochDuration:   24 * time.Hour,
			BidCapacity:     1000,
			AskCapacity:     1000,
			MaxBandMultiple: 2,
			MinPctThreshold: 0.05,
		})
	if err != nil {
		t.Fatalf("controller.New: %v", err)
	}

	jrnl, err := journal.New(":memory:")
	if err != nil {
		t.Fatalf("journal.New: %v", err)
	}
	t.Cleanup(func() { jrnl.Close() })

	keeper := auth.NewKeeper(testSecret, time.Hour)
	s := New("127.0.0.1:0", keeper, engine, ctrl, jrnl)
	ts := httptest.NewServer(s.srv.Handler)
	t.Cleanup(ts.Close)

	return &env{ts: ts, engine: engine, ctrl: ctrl}
}

func (e *env) login(t *testing.T) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(testSecret, time.Now().UTC(), totp.ValidateOpts{
		Period: 30,
		Skew:   1,
		Digits: otp.DigitsSix,
	})
	if err != nil {
		t.Fatalf("generate passcode: %v", err)
	}

	resp := e.post(t, "/admin/login", "", map[string]string{"passcode": code})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status=%d", resp.StatusCode)
	}
	var body struct {
		Capability string `json:"capability"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if body.Capability == "" {
		t.Fatal("empty capability")
	}
	return body.Capability
}

func (e *env) post(t *testing.T, path, capToken string, payload interface{}) *http.Response {
	t.Helper()
	buf, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, e.ts.URL+path, bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if capToken != "" {
		req.Header.Set("X-Capability", capToken)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func TestLogin_BadPasscode(t *testing.T) {
	e := newEnv(t)

	resp := e.post(t, "/admin/login", "", map[string]string{"passcode": "000000"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status=%d, want 401", resp.StatusCode)
	}
}

func TestGatedRoutes_RejectMissingCapability(t *testing.T) {
	e := newEnv(t)

	paths := []string{
		"/admin/engine/initialize",
		"/admin/engine/duration",
		"/admin/engine/frequency",
		"/admin/controller/epoch",
		"/admin/controller/bid-capacity",
		"/admin/controller/ask-capacity",
		"/admin/controller/band-multiple",
		"/admin/controller/threshold",
	}
	for _, path := range paths {
		resp := e.post(t, path, "", map[string]string{})
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("%s: status=%d, want 401", path, resp.StatusCode)
		}
	}
}

func TestGatedRoutes_RejectGet(t *testing.T) {
	e := newEnv(t)
	capToken := e.login(t)

	req, _ := http.NewRequest(http.MethodGet, e.ts.URL+"/admin/controller/epoch", nil)
	req.Header.Set("X-Capability", capToken)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status=%d, want 405", resp.StatusCode)
	}
}

func TestInitialize_Route(t *testing.T) {
	e := newEnv(t)
	capToken := e.login(t)

	seed := make([]float64, 10)
	for i := range seed {
		seed[i] = 100
	}
	payload := map[string]interface{}{
		"seed":                  seed,
		"last_observation_time": time.Now().UTC().Add(-time.Minute).Format(time.RFC3339),
	}

	resp := e.post(t, "/admin/engine/initialize", capToken, payload)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d, want 200", resp.StatusCode)
	}
	if !e.engine.Initialized() {
		t.Error("engine not initialized after route call")
	}

	// Second initialize conflicts.
	resp = e.post(t, "/admin/engine/initialize", capToken, payload)
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("re-initialize status=%d, want 409", resp.StatusCode)
	}
}

func TestInitialize_WrongSeedLength(t *testing.T) {
	e := newEnv(t)
	capToken := e.login(t)

	payload := map[string]interface{}{
		"seed":                  []float64{100, 100, 100},
		"last_observation_time": time.Now().UTC().Format(time.RFC3339),
	}
	resp := e.post(t, "/admin/engine/initialize", capToken, payload)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status=%d, want 400", resp.StatusCode)
	}
}

func TestDurationRoutes(t *testing.T) {
	e := newEnv(t)
	capToken := e.login(t)

	cases := []struct {
		path     string
		duration string
		status   int
	}{
		{"/admin/engine/duration", "20h", http.StatusOK},
		{"/admin/engine/duration", "90m", http.StatusBadRequest}, // not divisible by 1h
		{"/admin/engine/frequency", "30m", http.StatusOK},
		{"/admin/engine/frequency", "7h", http.StatusBadRequest}, // does not divide 20h
		{"/admin/controller/epoch", "12h", http.StatusOK},
		{"/admin/controller/epoch", "-1h", http.StatusBadRequest},
		{"/admin/controller/epoch", "bogus", http.StatusBadRequest},
	}
	for _, tc := range cases {
		resp := e.post(t, tc.path, capToken, map[string]string{"duration": tc.duration})
		resp.Body.Close()
		if resp.StatusCode != tc.status {
			t.Errorf("%s %s: status=%d, want %d", tc.path, tc.duration, resp.StatusCode, tc.status)
		}
	}
	if got := e.ctrl.EpochDuration(); got != 12*time.Hour {
		t.Errorf("EpochDuration()=%s, want 12h", got)
	}
}

func TestValueRoutes(t *testing.T) {
	e := newEnv(t)
	capToken := e.login(t)

	cases := []struct {
		path   string
		value  float64
		status int
	}{
		{"/admin/controller/bid-capacity", 5000, http.StatusOK},
		{"/admin/controller/ask-capacity", 7500, http.StatusOK},
		{"/admin/controller/band-multiple", 2.5, http.StatusOK},
		{"/admin/controller/band-multiple", 5, http.StatusBadRequest},
		{"/admin/controller/threshold", 0.1, http.StatusOK},
		{"/admin/controller/threshold", 1.5, http.StatusBadRequest},
	}
	for _, tc := range cases {
		resp := e.post(t, tc.path, capToken, map[string]float64{"value": tc.value})
		resp.Body.Close()
		if resp.StatusCode != tc.status {
			t.Errorf("%s %.2f: status=%d, want %d", tc.path, tc.value, resp.StatusCode, tc.status)
		}
	}
}

func TestDecisions_Route(t *testing.T) {
	e := newEnv(t)

	// Open without a capability: read-only surface.
	resp, err := http.Get(e.ts.URL + "/admin/decisions" + fmt.Sprintf("?limit=%d", 5))
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d, want 200", resp.StatusCode)
	}
	var recs []journal.Record
	if err := json.NewDecoder(resp.Body).Decode(&recs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("len(recs)=%d, want 0", len(recs))
	}
}
