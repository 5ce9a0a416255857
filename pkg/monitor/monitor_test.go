package monitor

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lumenvr/go-lumen/pkg/altitude"
	"github.com/lumenvr/go-lumen/pkg/client"
	"github.com/lumenvr/go-lumen/pkg/pose"
)

func testSources() Sources {
	return Sources{
		Status: func() client.Status {
			return client.Status{State: "lobby", ScreenWidth: 2400, ScreenHeight: 1080}
		},
		Altitude: func() (altitude.Stats, bool) {
			return altitude.Stats{Calibrated: true, AltitudeM: 1.25, Samples: 42}, true
		},
		Motion: func() (pose.DeviceMotion, bool) {
			return pose.DeviceMotion{
				DeviceID: pose.HeadID,
				Pose: pose.HeadPose{
					Orientation: pose.Identity(),
					Position:    pose.Vec3{X: 0.1, Y: 1.5, Z: -0.2},
				},
				Timestamp: time.Now(),
			}, true
		},
	}
}

func TestStatusRoute(t *testing.T) {
	s := NewServer(":0", testSources())

	resp, err := s.app.Test(httptest.NewRequest("GET", "/api/status", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("status code: got %d, want 200", resp.StatusCode)
	}

	var got client.Status
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.State != "lobby" || got.ScreenWidth != 2400 {
		t.Errorf("status: got %+v", got)
	}
}

func TestStatusRouteUnconfigured(t *testing.T) {
	s := NewServer(":0", Sources{})

	resp, err := s.app.Test(httptest.NewRequest("GET", "/api/status", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != 503 {
		t.Errorf("status code: got %d, want 503", resp.StatusCode)
	}
}

func TestAltitudeRoute(t *testing.T) {
	s := NewServer(":0", testSources())

	resp, err := s.app.Test(httptest.NewRequest("GET", "/api/altitude", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	var got map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["enabled"] != true {
		t.Errorf("enabled: got %v, want true", got["enabled"])
	}
	if got["calibrated"] != true {
		t.Errorf("calibrated: got %v, want true", got["calibrated"])
	}
	if got["altitude_m"] != 1.25 {
		t.Errorf("altitude_m: got %v, want 1.25", got["altitude_m"])
	}
}

func TestAltitudeRouteDisabled(t *testing.T) {
	s := NewServer(":0", Sources{
		Altitude: func() (altitude.Stats, bool) { return altitude.Stats{}, false },
	})

	resp, err := s.app.Test(httptest.NewRequest("GET", "/api/altitude", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	var got map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["enabled"] != false {
		t.Errorf("enabled: got %v, want false", got["enabled"])
	}
}

func TestMotionRoute(t *testing.T) {
	s := NewServer(":0", testSources())

	resp, err := s.app.Test(httptest.NewRequest("GET", "/api/motion", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("status code: got %d, want 200", resp.StatusCode)
	}

	var got PoseUpdate
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.DeviceID != pose.HeadID {
		t.Errorf("device id: got %d, want %d", got.DeviceID, pose.HeadID)
	}
	if got.Position != [3]float32{0.1, 1.5, -0.2} {
		t.Errorf("position: got %v", got.Position)
	}
	if got.State != "lobby" {
		t.Errorf("state: got %q, want %q", got.State, "lobby")
	}
}

func TestMotionRouteNoSample(t *testing.T) {
	s := NewServer(":0", Sources{
		Motion: func() (pose.DeviceMotion, bool) { return pose.DeviceMotion{}, false },
	})

	resp, err := s.app.Test(httptest.NewRequest("GET", "/api/motion", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != 404 {
		t.Errorf("status code: got %d, want 404", resp.StatusCode)
	}
}

func waitForCount(t *testing.T, h *hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.clientCount() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("client count: got %d, want %d", h.clientCount(), want)
}

func TestHubDropsSlowClient(t *testing.T) {
	h := newHub("test")
	go h.run()
	defer h.stop()

	fast := &wsClient{hub: h, send: make(chan []byte, 8)}
	slow := &wsClient{hub: h, send: make(chan []byte, 1)}
	h.register <- fast
	h.register <- slow
	waitForCount(t, h, 2)

	// The first message fills the slow client's buffer; the second
	// finds it full and drops the client.
	if err := h.broadcastJSON(map[string]int{"n": 1}); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if err := h.broadcastJSON(map[string]int{"n": 2}); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	waitForCount(t, h, 1)

	for i := 0; i < 2; i++ {
		select {
		case msg := <-fast.send:
			if len(msg) == 0 {
				t.Error("empty broadcast message")
			}
		case <-time.After(2 * time.Second):
			t.Fatal("fast client missed a broadcast")
		}
	}
}

func TestPoseFeedOverWebSocket(t *testing.T) {
	s := NewServer(":18090", testSources())
	s.feedInterval = 10 * time.Millisecond

	s.StartAsync()
	defer s.Shutdown()
	time.Sleep(100 * time.Millisecond)

	ws, _, err := websocket.DefaultDialer.Dial("ws://localhost:18090/ws/pose", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var got PoseUpdate
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.DeviceID != pose.HeadID {
		t.Errorf("device id: got %d, want %d", got.DeviceID, pose.HeadID)
	}
	if got.State != "lobby" {
		t.Errorf("state: got %q, want %q", got.State, "lobby")
	}
}

func TestUpgradeRequiredOnPlainRequest(t *testing.T) {
	s := NewServer(":0", testSources())

	resp, err := s.app.Test(httptest.NewRequest("GET", "/ws/pose", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != 426 {
		t.Errorf("status code: got %d, want 426", resp.StatusCode)
	}
}
