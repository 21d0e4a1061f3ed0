package provider

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/washsense/washsense/internal/cue"
)

// Dispatch modes.
const (
	ModeRoundRobin = "round_robin"
	ModeEnsemble   = "ensemble"
)

// Pool fans frames out over a set of endpoints. Each endpoint runs at most
// one inference at a time; a frame submitted while every endpoint is busy
// or backed off is dropped. Results are gathered out of band with Collect.
type Pool struct {
	endpoints []Endpoint
	mode      string
	logger    *slog.Logger

	mu       sync.Mutex
	cursor   int
	inflight map[string]bool

	// Every submitted inference produces exactly one result, and the
	// endpoint stays busy until that result is collected, so the number
	// of buffered results can never exceed the number of endpoints.
	results chan result

	framesDispatched uint64
	framesDropped    uint64
}

// PoolStats reports pool counters plus per-endpoint stats.
type PoolStats struct {
	Mode             string  `json:"mode"`
	FramesDispatched uint64  `json:"frames_dispatched"`
	FramesDropped    uint64  `json:"frames_dropped"`
	Providers        []Stats `json:"providers"`
}

// NewPool creates a dispatch pool over the given endpoints.
func NewPool(endpoints []Endpoint, mode string, logger *slog.Logger) (*Pool, error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("pool needs at least one endpoint")
	}
	if mode != ModeRoundRobin && mode != ModeEnsemble {
		return nil, fmt.Errorf("unknown pool mode: %s", mode)
	}

	return &Pool{
		endpoints: endpoints,
		mode:      mode,
		logger:    logger,
		inflight:  make(map[string]bool),
		results:   make(chan result, len(endpoints)),
	}, nil
}

type result struct {
	endpoint string
	cues     cue.Map
}

// Submit dispatches a frame according to the pool mode. It returns false
// when no eligible endpoint exists and the frame was dropped. Submit never
// blocks on inference; each dispatch runs in its own goroutine.
func (p *Pool) Submit(ctx context.Context, frameB64 string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	var targets []Endpoint
	switch p.mode {
	case ModeEnsemble:
		for _, ep := range p.endpoints {
			if !p.inflight[ep.Name()] && !ep.BackedOff() {
				targets = append(targets, ep)
			}
		}
	default:
		// Scan one full rotation from the cursor so a busy or backed-off
		// endpoint never starves the rest.
		for i := 0; i < len(p.endpoints); i++ {
			ep := p.endpoints[(p.cursor+i)%len(p.endpoints)]
			if !p.inflight[ep.Name()] && !ep.BackedOff() {
				p.cursor = (p.cursor + i + 1) % len(p.endpoints)
				targets = []Endpoint{ep}
				break
			}
		}
	}

	if len(targets) == 0 {
		p.framesDropped++
		return false
	}

	for _, ep := range targets {
		p.inflight[ep.Name()] = true
		p.framesDispatched++
		go p.run(ctx, ep, frameB64)
	}
	return true
}

func (p *Pool) run(ctx context.Context, ep Endpoint, frameB64 string) {
	cues, err := ep.Infer(ctx, frameB64)
	if err != nil {
		p.logger.Error("Inference failed",
			slog.String("provider", ep.Name()),
			slog.String("error", err.Error()),
		)
		cues = cue.Fallback()
	}
	p.results <- result{endpoint: ep.Name(), cues: cues}
	// The endpoint becomes eligible again only once its result has been
	// collected; see Collect.
}

// Collect drains all currently buffered results without blocking and
// releases the endpoints they came from.
func (p *Pool) Collect() []cue.Map {
	var out []cue.Map
	var finished []string
	for {
		select {
		case res := <-p.results:
			out = append(out, res.cues)
			finished = append(finished, res.endpoint)
		default:
			if len(finished) > 0 {
				p.mu.Lock()
				for _, name := range finished {
					delete(p.inflight, name)
				}
				p.mu.Unlock()
			}
			return out
		}
	}
}

// HealthCheckAll probes every endpoint and returns reachability by name.
func (p *Pool) HealthCheckAll(ctx context.Context) map[string]bool {
	reachable := make(map[string]bool, len(p.endpoints))
	for _, ep := range p.endpoints {
		reachable[ep.Name()] = ep.HealthCheck(ctx)
	}
	return reachable
}

// Mode returns the configured dispatch mode.
func (p *Pool) Mode() string {
	return p.mode
}

// GetStats returns pool counters plus per-endpoint stats where available.
func (p *Pool) GetStats() PoolStats {
	p.mu.Lock()
	stats := PoolStats{
		Mode:             p.mode,
		FramesDispatched: p.framesDispatched,
		FramesDropped:    p.framesDropped,
	}
	p.mu.Unlock()

	for _, ep := range p.endpoints {
		if prov, ok := ep.(*Provider); ok {
			stats.Providers = append(stats.Providers, prov.GetStats())
		}
	}
	return stats
}
