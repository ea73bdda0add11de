package telegrambot

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/beaconlb/beacon/internal/logging"
	"github.com/beaconlb/beacon/internal/orchestrator"
	"github.com/beaconlb/beacon/internal/store"
)

// fakeTelegram serves getUpdates from a fixed script and records
// sendMessage calls, standing in for the real Telegram API.
type fakeTelegram struct {
	mu      sync.Mutex
	updates []Update
	served  bool
	sent    []string
}

func newFakeTelegram(t *testing.T, updates []Update) (*httptest.Server, *fakeTelegram) {
	t.Helper()
	f := &fakeTelegram{updates: updates}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		switch {
		case strings.HasSuffix(r.URL.Path, "/getUpdates"):
			var result []Update
			if !f.served {
				result = f.updates
				f.served = true
			}
			json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": result})
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			body, _ := io.ReadAll(r.Body)
			f.sent = append(f.sent, string(body))
			json.NewEncoder(w).Encode(map[string]any{"ok": true})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	return srv, f
}

func newTestBot(t *testing.T, srv *httptest.Server) (*Bot, *store.Store) {
	t.Helper()
	st, err := store.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	log, err := logging.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { log.Close() })

	orch := &orchestrator.Orchestrator{Store: st, Log: log}
	bot, err := New("test-token", "", 42, 30*time.Second, "xray", st, log, orch)
	if err != nil {
		t.Fatal(err)
	}
	bot.api.baseURL = srv.URL
	return bot, st
}

func TestDispatchRejectsUnauthorizedUser(t *testing.T) {
	unauthorized := &Message{Text: "/status"}
	unauthorized.From.ID = 999
	srv, fake := newFakeTelegram(t, []Update{{UpdateID: 1, Message: unauthorized}})
	defer srv.Close()

	bot, _ := newTestBot(t, srv)
	if err := bot.PollOnce(context.Background()); err != nil {
		t.Fatalf("PollOnce: %v", err)
	}
	if len(fake.sent) != 0 {
		t.Fatalf("expected no reply to unauthorized user, got %v", fake.sent)
	}
}

func TestDispatchStatusFromAllowedUser(t *testing.T) {
	msg := &Message{Text: "/status"}
	msg.From.ID = 42
	msg.Chat.ID = 42
	srv, fake := newFakeTelegram(t, []Update{{UpdateID: 1, Message: msg}})
	defer srv.Close()

	bot, _ := newTestBot(t, srv)
	if err := bot.PollOnce(context.Background()); err != nil {
		t.Fatalf("PollOnce: %v", err)
	}
	if len(fake.sent) != 1 {
		t.Fatalf("expected exactly one reply, got %v", fake.sent)
	}
}

func TestOffsetAdvancesPastProcessedUpdate(t *testing.T) {
	msg := &Message{Text: "/list"}
	msg.From.ID = 42
	msg.Chat.ID = 42
	srv, _ := newFakeTelegram(t, []Update{{UpdateID: 7, Message: msg}})
	defer srv.Close()

	bot, st := newTestBot(t, srv)
	if err := bot.PollOnce(context.Background()); err != nil {
		t.Fatalf("PollOnce: %v", err)
	}
	offset, err := st.GetBotOffset()
	if err != nil {
		t.Fatal(err)
	}
	if offset != 8 {
		t.Fatalf("offset = %d, want 8", offset)
	}
}

func TestAddFlowSpansThreeMessages(t *testing.T) {
	st, err := store.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	log, err := logging.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer log.Close()
	orch := &orchestrator.Orchestrator{Store: st, Log: log}

	srv, _ := newFakeTelegram(t, nil)
	defer srv.Close()
	bot, err := New("test-token", "", 42, 30*time.Second, "xray", st, log, orch)
	if err != nil {
		t.Fatal(err)
	}
	bot.api.baseURL = srv.URL

	msg := func(text string) *Message {
		m := &Message{Text: text}
		m.From.ID = 42
		m.Chat.ID = 42
		return m
	}

	bot.handleMessage(context.Background(), msg("/add"))
	bot.handleMessage(context.Background(), msg("us-east"))
	bot.handleMessage(context.Background(), msg("1.2.3.4"))
	bot.handleMessage(context.Background(), msg(`{"type":"vmess"}`))

	candidates, err := st.ListCandidates()
	if err != nil {
		t.Fatal(err)
	}
	if len(candidates) != 1 || candidates[0].Label != "us-east" || candidates[0].IP != "1.2.3.4" {
		t.Fatalf("candidates = %+v", candidates)
	}

	if hasSession, _ := st.LoadBotSession(int64(42), &addSession{}); hasSession {
		t.Fatal("expected session to be cleared after completing /add")
	}
}
