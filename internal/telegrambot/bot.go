package telegrambot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/beaconlb/beacon/internal/lock"
	"github.com/beaconlb/beacon/internal/logging"
	"github.com/beaconlb/beacon/internal/orchestrator"
	"github.com/beaconlb/beacon/internal/store"
)

// addSession tracks the /add multi-step flow (label, then ip, then
// outbound JSON) across three separate messages, persisted to
// state/bot_session_<user> between polls (spec §10).
type addSession struct {
	Step  string `json:"step"` // "label", "ip", "config"
	Label string `json:"label"`
	IP    string `json:"ip"`
}

// Bot long-polls the Telegram Bot API and maps recognized commands onto
// the Orchestrator's Command Surface (spec §10). It is the "thin shell"
// the spec calls for: no business logic lives here beyond parsing.
type Bot struct {
	api             *apiClient
	store           *store.Store
	log             *logging.Logger
	orch            *orchestrator.Orchestrator
	allowedUser     int64
	pollTimeout     time.Duration
	probeBinaryPath string
}

// New builds a Bot. socksProxy may be empty (direct outbound to Telegram).
func New(token, socksProxy string, allowedUser int64, pollTimeout time.Duration, probeBinaryPath string, st *store.Store, log *logging.Logger, orch *orchestrator.Orchestrator) (*Bot, error) {
	api, err := newAPIClient(token, socksProxy)
	if err != nil {
		return nil, err
	}
	return &Bot{
		api:             api,
		store:           st,
		log:             log,
		orch:            orch,
		allowedUser:     allowedUser,
		pollTimeout:     pollTimeout,
		probeBinaryPath: probeBinaryPath,
	}, nil
}

// Notify implements alert.Notifier, delivering to the configured allowed
// user's chat (spec §4.7 delivery target).
func (b *Bot) Notify(message string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return b.api.sendMessage(ctx, b.allowedUser, message)
}

// PollOnce fetches and processes a single batch of updates under the
// bot's own named lock, so a restart mid-poll can't double-process an
// update (spec §10, mirroring §4.2's Process Mutex).
func (b *Bot) PollOnce(ctx context.Context) error {
	_, err := lock.WithLock(b.store.StateDir(), "bot", func() error {
		return b.pollOnceLocked(ctx)
	})
	return err
}

func (b *Bot) pollOnceLocked(ctx context.Context) error {
	offset, err := b.store.GetBotOffset()
	if err != nil {
		return err
	}

	updates, err := b.api.getUpdates(ctx, offset, b.pollTimeout)
	if err != nil {
		return err
	}

	for _, u := range updates {
		if u.Message != nil {
			b.handleMessage(ctx, u.Message)
		}
		if u.UpdateID >= offset {
			offset = u.UpdateID + 1
		}
	}

	return b.store.SetBotOffset(offset)
}

func (b *Bot) handleMessage(ctx context.Context, msg *Message) {
	if msg.From.ID != b.allowedUser {
		b.log.Warn("telegram: ignoring message from unauthorized user %d", msg.From.ID)
		return
	}

	var session addSession
	hasSession, err := b.store.LoadBotSession(msg.From.ID, &session)
	if err != nil {
		b.log.Error("telegram: load session: %v", err)
		return
	}
	if hasSession {
		b.continueAddFlow(ctx, msg, session)
		return
	}

	if strings.TrimSpace(msg.Text) == "/add" {
		b.saveSession(msg.From.ID, addSession{Step: "label"})
		if err := b.api.sendMessage(ctx, msg.Chat.ID, "Label?"); err != nil {
			b.log.Warn("telegram: send reply failed: %v", err)
		}
		return
	}

	reply := b.dispatch(ctx, msg.Text)
	if reply == "" {
		return
	}
	if err := b.api.sendMessage(ctx, msg.Chat.ID, reply); err != nil {
		b.log.Warn("telegram: send reply failed: %v", err)
	}
}

func (b *Bot) continueAddFlow(ctx context.Context, msg *Message, session addSession) {
	text := strings.TrimSpace(msg.Text)
	var reply string

	switch session.Step {
	case "label":
		session.Label = text
		session.Step = "ip"
		reply = "IP address?"
		b.saveSession(msg.From.ID, session)
	case "ip":
		session.IP = text
		session.Step = "config"
		reply = "Outbound JSON?"
		b.saveSession(msg.From.ID, session)
	case "config":
		res, err := b.orch.AddConfig(session.Label, session.IP, []byte(text))
		if err != nil {
			reply = fmt.Sprintf("error: %v", err)
		} else {
			reply = res.Message
		}
		if err := b.store.ClearBotSession(msg.From.ID); err != nil {
			b.log.Error("telegram: clear session: %v", err)
		}
	default:
		reply = "session corrupted, starting over. Use /add again."
		b.store.ClearBotSession(msg.From.ID)
	}

	if err := b.api.sendMessage(ctx, msg.Chat.ID, reply); err != nil {
		b.log.Warn("telegram: send reply failed: %v", err)
	}
}

func (b *Bot) saveSession(userID int64, session addSession) {
	if err := b.store.SaveBotSession(userID, session); err != nil {
		b.log.Error("telegram: save session: %v", err)
	}
}

// dispatch maps a command line 1:1 onto the Command Surface (spec §10),
// returning the same human-readable text the CLI prints to stdout.
func (b *Bot) dispatch(ctx context.Context, text string) string {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 {
		return ""
	}
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "/status":
		return b.formatted(b.orch.Status())
	case "/list":
		return b.formatted(b.orch.List())
	case "/mode":
		if len(args) != 1 {
			return "usage: /mode best|rr"
		}
		return b.formatted(b.orch.SetMode(args[0]))
	case "/remove":
		if len(args) != 1 {
			return "usage: /remove <id>"
		}
		return b.formatted(b.orch.RemoveConfig(args[0]))
	case "/enable":
		if len(args) != 1 {
			return "usage: /enable <id>"
		}
		return b.formatted(b.orch.EnableConfig(args[0]))
	case "/disable":
		if len(args) != 1 {
			return "usage: /disable <id>"
		}
		return b.formatted(b.orch.DisableConfig(args[0]))
	case "/setdomain":
		if len(args) != 1 {
			return "usage: /setdomain <fqdn>"
		}
		return b.formatted(b.orch.SetDomain(ctx, args[0]))
	case "/selfcheck":
		return b.formatted(b.orch.SelfCheck(b.probeBinaryPath))
	case "/monitor":
		return b.formatted(b.orch.MonitorOnce(ctx))
	case "/rotate":
		return b.formatted(b.orch.RotateOnce(ctx))
	default:
		return "unrecognized command"
	}
}

func (b *Bot) formatted(res orchestrator.Result, err error) string {
	if err != nil {
		return fmt.Sprintf("error: %v", err)
	}
	return res.Message
}
