package probe

import (
	"context"
	"fmt"
	"math/rand"
	"path/filepath"
	"time"

	"github.com/zeebo/xxh3"

	"github.com/beaconlb/beacon/internal/store"
)

// Config bundles the operator-tunable knobs the Runner needs (spec §4.3, §6).
type Config struct {
	BinaryPath   string
	TemplateDir  string
	LogsDir      string
	PortMin      int
	PortMax      int
	Warmup       time.Duration
	KillGrace    time.Duration
	Timeout      time.Duration
	Retries      int
	LivenessURLs []string
}

// Runner probes a single candidate outbound by round-tripping HTTPS 204
// requests through a locally spawned probe proxy (spec §4.3).
type Runner struct {
	cfg Config
	rnd *rand.Rand
}

// New builds a Runner. rnd may be nil, in which case math/rand's
// process-global source is used.
func New(cfg Config, rnd *rand.Rand) *Runner {
	return &Runner{cfg: cfg, rnd: rnd}
}

// Probe runs the full spec §4.3 algorithm for one candidate and always
// tears down whatever subprocess it spawned, on every exit path.
func (r *Runner) Probe(ctx context.Context, candidate store.CandidateConfig) Result {
	port := r.pickPort()

	rendered, err := renderTemplate(r.templatePath(), port, candidate.ConfigJSON)
	if err != nil {
		return failure(candidate, err.Error())
	}

	tag := fmt.Sprintf("%x", xxh3.HashString(candidate.ID))
	configPath := filepath.Join(r.cfg.TemplateDir, fmt.Sprintf("probe-%s-%d.json", tag, port))
	logPath := filepath.Join(r.cfg.LogsDir, fmt.Sprintf("probe-%s-%d.log", tag, port))

	proc, err := spawnProbeProxy(r.cfg.BinaryPath, configPath, logPath, rendered)
	if err != nil {
		if _, ok := err.(*errBinaryNotFound); ok {
			return failure(candidate, "xray-not-found")
		}
		return failure(candidate, err.Error())
	}
	defer proc.teardown(r.cfg.KillGrace)

	select {
	case <-time.After(r.cfg.Warmup):
	case <-ctx.Done():
		return failure(candidate, ctx.Err().Error())
	}

	return r.checkLiveness(ctx, candidate, port)
}

// checkLiveness performs the N-attempt liveness loop (spec §4.3 step 4-5):
// each attempt probes every configured URL, and success is any probe
// succeeding; latency is the minimum observed duration across all attempts.
func (r *Runner) checkLiveness(ctx context.Context, candidate store.CandidateConfig, port int) Result {
	attempts := r.cfg.Retries
	if attempts < 1 {
		attempts = 1
	}
	var (
		success     bool
		minLatency  time.Duration
		haveLatency bool
		lastErr     string
	)

	for attempt := 0; attempt < attempts; attempt++ {
		for _, url := range r.cfg.LivenessURLs {
			d, err := fetchViaSOCKS5(ctx, port, url, r.cfg.Timeout)
			if err != nil {
				lastErr = err.Error()
				continue
			}
			success = true
			if !haveLatency || d < minLatency {
				minLatency = d
				haveLatency = true
			}
		}
	}

	if !success {
		return failure(candidate, lastErr)
	}

	ms := int(minLatency.Round(time.Millisecond) / time.Millisecond)
	return Result{
		ID:        candidate.ID,
		Label:     candidate.Label,
		IP:        candidate.IP,
		Success:   true,
		LatencyMs: &ms,
	}
}

func (r *Runner) pickPort() int {
	span := r.cfg.PortMax - r.cfg.PortMin
	if span <= 0 {
		return r.cfg.PortMin
	}
	if r.rnd == nil {
		return r.cfg.PortMin + rand.Intn(span)
	}
	return r.cfg.PortMin + r.rnd.Intn(span)
}

func (r *Runner) templatePath() string {
	return filepath.Join(r.cfg.TemplateDir, "socks-template.json")
}

func failure(candidate store.CandidateConfig, errMsg string) Result {
	return Result{
		ID:      candidate.ID,
		Label:   candidate.Label,
		IP:      candidate.IP,
		Success: false,
		Error:   errMsg,
	}
}
