package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tiroq/scribed/internal/bus"
	"github.com/tiroq/scribed/internal/store"
	"github.com/tiroq/scribed/internal/trigger"
)

type pushHandler struct {
	mu      sync.Mutex
	audio   []trigger.ObjectEvent
	results []trigger.ObjectEvent
	err     error
}

func (h *pushHandler) HandleAudio(_ context.Context, ev trigger.ObjectEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return h.err
	}
	h.audio = append(h.audio, ev)
	return nil
}

func (h *pushHandler) HandleResult(_ context.Context, ev trigger.ObjectEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return h.err
	}
	h.results = append(h.results, ev)
	return nil
}

func (h *pushHandler) lastAudio() (trigger.ObjectEvent, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.audio) == 0 {
		return trigger.ObjectEvent{}, false
	}
	return h.audio[len(h.audio)-1], true
}

func (h *pushHandler) counts() (int, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.audio), len(h.results)
}

type signingStore struct {
	objects   map[string]struct{}
	signErr   error
	existsErr error
}

func (s *signingStore) Provider() string { return "test" }

func (s *signingStore) Download(context.Context, string) (io.ReadCloser, error) {
	return nil, store.ErrNotFound
}

func (s *signingStore) Put(context.Context, string, io.Reader, store.PutOptions) error { return nil }

func (s *signingStore) Copy(context.Context, string, string) error { return nil }

func (s *signingStore) Delete(context.Context, string) error { return nil }

func (s *signingStore) Exists(_ context.Context, key string) (bool, error) {
	if s.existsErr != nil {
		return false, s.existsErr
	}
	_, ok := s.objects[key]
	return ok, nil
}

func (s *signingStore) SignedReadURL(_ context.Context, key string, _ time.Duration) (string, error) {
	if s.signErr != nil {
		return "", s.signErr
	}
	if _, ok := s.objects[key]; !ok {
		return "", store.ErrNotFound
	}
	return "https://signed.example/" + key, nil
}

func (s *signingStore) URI(key string) string { return "test://dictation/" + key }

func newTestServer(t *testing.T, h *pushHandler, st *signingStore) (*Server, *bus.Bus) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if st == nil {
		st = &signingStore{objects: map[string]struct{}{}}
	}
	b := bus.New(16, zerolog.Nop())
	t.Cleanup(b.Close)
	routes := trigger.Routes{RecordingsPrefix: "recordings/", ResultsPrefix: "results/"}
	d := trigger.NewDispatcher(routes, h, 2, zerolog.Nop())
	return NewServer(Config{Addr: ":0", SignedURLTTL: 15 * time.Minute}, st, d, b, zerolog.Nop()), b
}

func doRequest(s *Server, method, target string, body []byte) *httptest.ResponseRecorder {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestPushRawEvent(t *testing.T) {
	h := &pushHandler{}
	s, _ := newTestServer(t, h, nil)

	body := []byte(`{"store":"dictation","key":"recordings/memo.m4a","size":1024}`)
	w := doRequest(s, http.MethodPost, "/v1/events", body)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204; body %s", w.Code, w.Body.String())
	}
	ev, ok := h.lastAudio()
	if !ok {
		t.Fatal("audio handler not called")
	}
	if ev.Key != "recordings/memo.m4a" || ev.Store != "dictation" || ev.Size != 1024 {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev.Source != trigger.SourceHTTP {
		t.Fatalf("source = %q, want %q", ev.Source, trigger.SourceHTTP)
	}
}

func TestPushPubSubEnvelope(t *testing.T) {
	h := &pushHandler{}
	s, _ := newTestServer(t, h, nil)

	data, err := json.Marshal(map[string]string{
		"bucket":      "dictation",
		"name":        "recordings/standup.m4a",
		"contentType": "audio/mp4",
		"size":        "2048",
		"generation":  "17",
	})
	if err != nil {
		t.Fatal(err)
	}
	body, err := json.Marshal(map[string]any{
		"message": map[string]any{
			"data":       data,
			"attributes": map[string]string{"eventType": "OBJECT_FINALIZE"},
			"messageId":  "msg-42",
		},
		"subscription": "projects/p/subscriptions/s",
	})
	if err != nil {
		t.Fatal(err)
	}

	w := doRequest(s, http.MethodPost, "/v1/events", body)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204; body %s", w.Code, w.Body.String())
	}
	ev, ok := h.lastAudio()
	if !ok {
		t.Fatal("audio handler not called")
	}
	if ev.Key != "recordings/standup.m4a" || ev.Store != "dictation" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev.Size != 2048 || ev.Generation != "17" || ev.EventID != "msg-42" {
		t.Fatalf("metadata not carried over: %+v", ev)
	}
}

func TestPushNonCreateAcknowledged(t *testing.T) {
	h := &pushHandler{}
	s, _ := newTestServer(t, h, nil)

	body, err := json.Marshal(map[string]any{
		"message": map[string]any{
			"data":       []byte(`{"bucket":"dictation","name":"recordings/memo.m4a"}`),
			"attributes": map[string]string{"eventType": "OBJECT_DELETE"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	w := doRequest(s, http.MethodPost, "/v1/events", body)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	if a, r := h.counts(); a != 0 || r != 0 {
		t.Fatalf("handler called for a delete event: audio=%d results=%d", a, r)
	}
}

func TestPushIgnoredKeyAccepted(t *testing.T) {
	h := &pushHandler{}
	s, _ := newTestServer(t, h, nil)

	w := doRequest(s, http.MethodPost, "/v1/events", []byte(`{"key":"notes/todo.txt"}`))
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	if a, r := h.counts(); a != 0 || r != 0 {
		t.Fatalf("handler called for an ignored key: audio=%d results=%d", a, r)
	}
}

func TestPushMalformedBody(t *testing.T) {
	h := &pushHandler{}
	s, _ := newTestServer(t, h, nil)

	for name, body := range map[string][]byte{
		"not json":    []byte("not json at all"),
		"missing key": []byte(`{"store":"dictation"}`),
	} {
		w := doRequest(s, http.MethodPost, "/v1/events", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", name, w.Code)
		}
	}
	if a, r := h.counts(); a != 0 || r != 0 {
		t.Fatalf("handler called for malformed input: audio=%d results=%d", a, r)
	}
}

func TestPushTransientFailureReturns500(t *testing.T) {
	h := &pushHandler{err: io.ErrUnexpectedEOF}
	s, _ := newTestServer(t, h, nil)

	w := doRequest(s, http.MethodPost, "/v1/events", []byte(`{"key":"recordings/memo.m4a"}`))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500 so the pusher redelivers", w.Code)
	}
}

func TestSignedURL(t *testing.T) {
	st := &signingStore{objects: map[string]struct{}{"transcripts/memo.txt": {}}}
	s, _ := newTestServer(t, &pushHandler{}, st)

	w := doRequest(s, http.MethodGet, "/v1/signed-url?key=transcripts/memo.txt", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", w.Code, w.Body.String())
	}
	var resp struct {
		Key string `json:"key"`
		URL string `json:"url"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Key != "transcripts/memo.txt" {
		t.Fatalf("key = %q", resp.Key)
	}
	if resp.URL != "https://signed.example/transcripts/memo.txt" {
		t.Fatalf("url = %q", resp.URL)
	}
}

func TestSignedURLErrors(t *testing.T) {
	tests := []struct {
		name   string
		store  *signingStore
		target string
		want   int
	}{
		{"missing key param", &signingStore{}, "/v1/signed-url", http.StatusBadRequest},
		{"bad ttl", &signingStore{}, "/v1/signed-url?key=a.txt&ttl=soon", http.StatusBadRequest},
		{"object not found", &signingStore{objects: map[string]struct{}{}}, "/v1/signed-url?key=a.txt", http.StatusNotFound},
		{
			"unsupported provider",
			&signingStore{signErr: store.ErrSignedURLUnsupported},
			"/v1/signed-url?key=a.txt",
			http.StatusNotImplemented,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t, &pushHandler{}, tt.store)
			w := doRequest(s, http.MethodGet, tt.target, nil)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestHealthAndReady(t *testing.T) {
	s, _ := newTestServer(t, &pushHandler{}, nil)

	if w := doRequest(s, http.MethodGet, "/healthz", nil); w.Code != http.StatusOK {
		t.Fatalf("healthz = %d, want 200", w.Code)
	}
	if w := doRequest(s, http.MethodGet, "/readyz", nil); w.Code != http.StatusOK {
		t.Fatalf("readyz = %d, want 200", w.Code)
	}
}

func TestReadyFailsWhenStoreUnreachable(t *testing.T) {
	st := &signingStore{existsErr: io.ErrClosedPipe}
	s, _ := newTestServer(t, &pushHandler{}, st)

	if w := doRequest(s, http.MethodGet, "/readyz", nil); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz = %d, want 503", w.Code)
	}
}

func TestRequestIDEchoed(t *testing.T) {
	s, _ := newTestServer(t, &pushHandler{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "req-7")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-Id"); got != "req-7" {
		t.Fatalf("X-Request-Id = %q, want req-7", got)
	}

	w = doRequest(s, http.MethodGet, "/healthz", nil)
	if w.Header().Get("X-Request-Id") == "" {
		t.Fatal("X-Request-Id not generated")
	}
}

func TestEventStream(t *testing.T) {
	s, b := newTestServer(t, &pushHandler{}, nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/events/stream"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if resp != nil {
		resp.Body.Close()
	}

	got := make(chan bus.Event, 1)
	go func() {
		var ev bus.Event
		if err := conn.ReadJSON(&ev); err == nil {
			got <- ev
		}
	}()

	// The subscription is established server-side after the handshake, so
	// publish until the client sees an event.
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case ev := <-got:
			if ev.Type != bus.EventWritten || ev.Key != "transcripts/memo.txt" {
				t.Fatalf("unexpected event: %+v", ev)
			}
			if ev.ID == "" {
				t.Fatal("event ID not filled")
			}
			return
		case <-tick.C:
			b.Publish(bus.Event{Type: bus.EventWritten, Key: "transcripts/memo.txt"})
		case <-deadline:
			t.Fatal("no event received over websocket")
		}
	}
}
