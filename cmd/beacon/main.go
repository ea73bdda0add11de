// Command beacon is the process entry point: it loads configuration, wires
// every core component, and dispatches to one of the Command Surface
// subcommands (spec §4.9) or runs the Telegram bot's long-poll loop.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/beaconlb/beacon/internal/alert"
	"github.com/beaconlb/beacon/internal/beaconerr"
	"github.com/beaconlb/beacon/internal/buildinfo"
	"github.com/beaconlb/beacon/internal/config"
	"github.com/beaconlb/beacon/internal/dns"
	"github.com/beaconlb/beacon/internal/dnsclient"
	"github.com/beaconlb/beacon/internal/health"
	"github.com/beaconlb/beacon/internal/logging"
	"github.com/beaconlb/beacon/internal/orchestrator"
	"github.com/beaconlb/beacon/internal/probe"
	"github.com/beaconlb/beacon/internal/store"
	"github.com/beaconlb/beacon/internal/telegrambot"
)

const hetznerDNSBaseURL = "https://dns.hetzner.com/api/v1"

func main() {
	if err := run(os.Args[1:]); err != nil {
		exitErr(err)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		return beaconerr.New(beaconerr.ConfigurationMissing, "usage: beacon <command> [args...]")
	}

	cfg, err := config.LoadEnvConfig()
	if err != nil {
		return beaconerr.Wrap(beaconerr.ConfigurationMissing, "load environment configuration", err)
	}

	st, err := store.New(cfg.BaseDir)
	if err != nil {
		return err
	}
	log, err := logging.Open(st.LogsDir())
	if err != nil {
		return err
	}
	defer log.Close()

	orch := buildOrchestrator(cfg, st, log)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cmd, rest := args[0], args[1:]
	log.Info("beacon %s (%s, built %s) starting command %q", buildinfo.Version, buildinfo.GitCommit, buildinfo.BuildTime, cmd)

	result, err := dispatch(ctx, orch, cfg, st, log, cmd, rest)
	if err != nil {
		return err
	}

	fmt.Println(result.Message)
	if !result.OK {
		return beaconerr.New(beaconerr.PolicyOutcome, result.Message)
	}
	return nil
}

func buildOrchestrator(cfg *config.EnvConfig, st *store.Store, log *logging.Logger) *orchestrator.Orchestrator {
	runner := probe.New(probe.Config{
		BinaryPath:   cfg.ProbeBinaryPath,
		TemplateDir:  filepath.Dir(st.TemplatePath()),
		LogsDir:      st.LogsDir(),
		PortMin:      cfg.ProbePortMin,
		PortMax:      cfg.ProbePortMax,
		Warmup:       cfg.ProbeWarmup,
		KillGrace:    cfg.ProbeKillGrace,
		Timeout:      cfg.CurlTimeout,
		Retries:      cfg.CurlRetries,
		LivenessURLs: cfg.LivenessURLs,
	}, nil)

	dnsAPI := dnsclient.New(hetznerDNSBaseURL, cfg.HetznerDNSAPIToken, cfg.DNSAPITimeout, cfg.DNSAPIRetries)
	reconciler := dns.New(dnsAPI, st, cfg.DNSMinUpdateInterval, cfg.DefaultTTL)

	var notifier alert.Notifier
	if cfg.TelegramBotToken != "" {
		// Only used as an alert.Notifier here (Notify never touches the
		// orchestrator field) — the bot instance that actually dispatches
		// commands is built per bot-poll invocation in runBotPoll, once the
		// Orchestrator it dispatches into already exists.
		bot, err := telegrambot.New(cfg.TelegramBotToken, cfg.TelegramProxy, cfg.TelegramAllowedUserID, cfg.PollTimeout, cfg.ProbeBinaryPath, st, log, nil)
		if err != nil {
			log.Warn("telegram bot disabled: %v", err)
		} else {
			notifier = bot
		}
	} else {
		log.Info("telegram bot not configured (TELEGRAM_BOT_TOKEN unset)")
	}
	alerter := alert.New(st, notifier, log, cfg.AlertCooldown)

	return &orchestrator.Orchestrator{
		Store:      st,
		Log:        log,
		Runner:     runner,
		Aggregator: health.New(cfg.SuccessThreshold, cfg.FailThreshold),
		Reconciler: reconciler,
		Alerter:    alerter,
		MonitorInt: cfg.MonitorInterval,
		LBInt:      cfg.LBInterval,
	}
}

func dispatch(ctx context.Context, orch *orchestrator.Orchestrator, cfg *config.EnvConfig, st *store.Store, log *logging.Logger, cmd string, args []string) (orchestrator.Result, error) {
	switch cmd {
	case "version":
		return orchestrator.Result{OK: true, Message: fmt.Sprintf("beacon %s (%s, built %s)", buildinfo.Version, buildinfo.GitCommit, buildinfo.BuildTime)}, nil
	case "monitor-once":
		return orch.MonitorOnce(ctx)
	case "rotate-once":
		return orch.RotateOnce(ctx)
	case "set-mode":
		if len(args) != 1 {
			return orchestrator.Result{}, beaconerr.New(beaconerr.ConfigurationMissing, "usage: set-mode best|rr")
		}
		return orch.SetMode(args[0])
	case "list":
		return orch.List()
	case "add-config":
		if len(args) != 3 {
			return orchestrator.Result{}, beaconerr.New(beaconerr.ConfigurationMissing, "usage: add-config <label> <ip> <outbound-json>")
		}
		if !json.Valid([]byte(args[2])) {
			return orchestrator.Result{}, beaconerr.New(beaconerr.ConfigurationMissing, "outbound-json is not valid JSON")
		}
		return orch.AddConfig(args[0], args[1], []byte(args[2]))
	case "remove-config":
		if len(args) != 1 {
			return orchestrator.Result{}, beaconerr.New(beaconerr.ConfigurationMissing, "usage: remove-config <id>")
		}
		return orch.RemoveConfig(args[0])
	case "enable-config":
		if len(args) != 1 {
			return orchestrator.Result{}, beaconerr.New(beaconerr.ConfigurationMissing, "usage: enable-config <id>")
		}
		return orch.EnableConfig(args[0])
	case "disable-config":
		if len(args) != 1 {
			return orchestrator.Result{}, beaconerr.New(beaconerr.ConfigurationMissing, "usage: disable-config <id>")
		}
		return orch.DisableConfig(args[0])
	case "set-domain":
		if len(args) != 1 {
			return orchestrator.Result{}, beaconerr.New(beaconerr.ConfigurationMissing, "usage: set-domain <fqdn>")
		}
		return orch.SetDomain(ctx, args[0])
	case "status":
		return orch.Status()
	case "self-check":
		return orch.SelfCheck(cfg.ProbeBinaryPath)
	case "bot-poll":
		return runBotPoll(ctx, cfg, st, log, orch, args)
	default:
		return orchestrator.Result{}, beaconerr.New(beaconerr.ConfigurationMissing, fmt.Sprintf("unrecognized command %q", cmd))
	}
}

// runBotPoll runs one Telegram long-poll cycle. An external timer invokes
// this repeatedly, the same way it invokes monitor-once/rotate-once (spec
// §1's non-goal: "the core exposes single-shot entry points that an
// external timer invokes").
func runBotPoll(ctx context.Context, cfg *config.EnvConfig, st *store.Store, log *logging.Logger, orch *orchestrator.Orchestrator, args []string) (orchestrator.Result, error) {
	if cfg.TelegramBotToken == "" {
		return orchestrator.Result{}, beaconerr.New(beaconerr.ConfigurationMissing, "TELEGRAM_BOT_TOKEN not set")
	}
	bot, err := telegrambot.New(cfg.TelegramBotToken, cfg.TelegramProxy, cfg.TelegramAllowedUserID, cfg.PollTimeout, cfg.ProbeBinaryPath, st, log, orch)
	if err != nil {
		return orchestrator.Result{}, err
	}
	if err := bot.PollOnce(ctx); err != nil {
		return orchestrator.Result{}, err
	}
	return orchestrator.Result{OK: true, Message: "bot poll complete"}, nil
}

func exitErr(err error) {
	fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(beaconerr.ExitCode(err))
}
