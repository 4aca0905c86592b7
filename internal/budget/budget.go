// Package budget enforces the hard spending cap for a scan session.
// Callers reserve an estimated cost before each analyzer call and confirm
// the actual cost afterwards; the reserve step is atomic, so concurrent
// workers can never collectively overshoot the cap through interleaving.
package budget

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrBudgetExhausted is returned by Reserve when admitting the call would
// push the session past its cap. It is a stop signal, not a failure: work
// already completed stands.
var ErrBudgetExhausted = errors.New("scan budget exhausted")

// Pricing holds per-model token costs in USD per million tokens.
type Pricing struct {
	InputPerMTok  float64 `yaml:"input_per_mtok" json:"input_per_mtok"`
	OutputPerMTok float64 `yaml:"output_per_mtok" json:"output_per_mtok"`
}

// Cost computes the USD cost of a single call.
func (p Pricing) Cost(inputTokens, outputTokens int64) float64 {
	inputCost := float64(inputTokens) * p.InputPerMTok / 1_000_000
	outputCost := float64(outputTokens) * p.OutputPerMTok / 1_000_000
	return inputCost + outputCost
}

// DefaultPricing matches Claude Sonnet rates ($3/MTok input, $15/MTok
// output).
var DefaultPricing = Pricing{InputPerMTok: 3.0, OutputPerMTok: 15.0}

// State is a point-in-time snapshot of the guard.
type State struct {
	CapUSD      float64   `json:"cap_usd"`
	SpentUSD    float64   `json:"spent_usd"`
	ReservedUSD float64   `json:"reserved_usd"`
	TokensUsed  int64     `json:"tokens_used"`
	Halted      bool      `json:"halted"`
	StartedAt   time.Time `json:"started_at"`
	LastUpdated time.Time `json:"last_updated"`
}

// RemainingUSD returns the uncommitted, unreserved headroom.
func (s State) RemainingUSD() float64 {
	r := s.CapUSD - s.SpentUSD - s.ReservedUSD
	if r < 0 {
		return 0
	}
	return r
}

// PercentUsed returns confirmed spend as a percentage of the cap.
func (s State) PercentUsed() float64 {
	if s.CapUSD <= 0 {
		return 0
	}
	return s.SpentUSD / s.CapUSD * 100
}

// Guard is the per-session budget enforcer. A zero cap means no work is
// admitted at all. Once halted, the guard stays halted for the rest of
// the session.
type Guard struct {
	mu       sync.Mutex
	capUSD   float64
	spent    float64
	reserved float64
	tokens   int64
	halted   bool
	pricing  Pricing
	started  time.Time
	updated  time.Time
}

// NewGuard creates a guard with the given cap in USD.
func NewGuard(capUSD float64, pricing Pricing) *Guard {
	now := time.Now()
	return &Guard{
		capUSD:  capUSD,
		pricing: pricing,
		started: now,
		updated: now,
	}
}

// Reservation is an admitted claim on budget headroom. Exactly one of
// Commit or Release must be called; both are idempotent against each
// other (the second call is a no-op).
type Reservation struct {
	guard    *Guard
	estimate float64
	settled  bool
}

// Reserve atomically checks headroom and claims estimatedCost of it.
// Returns ErrBudgetExhausted when the session is already halted or the
// claim would exceed the cap.
func (g *Guard) Reserve(estimatedCost float64) (*Reservation, error) {
	if estimatedCost < 0 {
		return nil, fmt.Errorf("negative cost estimate: %f", estimatedCost)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.halted {
		return nil, ErrBudgetExhausted
	}
	if g.spent+g.reserved+estimatedCost > g.capUSD {
		// A denial halts the session: once the budget can't admit the next
		// call, the scan stops dispatching and the remaining files stay
		// gaps for the next session.
		g.halted = true
		g.updated = time.Now()
		return nil, ErrBudgetExhausted
	}

	g.reserved += estimatedCost
	g.updated = time.Now()
	return &Reservation{guard: g, estimate: estimatedCost}, nil
}

// Commit converts the reservation into confirmed spend using the actual
// token counts from the call. The actual cost may exceed the estimate;
// the overshoot is absorbed and, if it pushes spend past the cap, the
// guard halts so no further reservations are admitted.
func (r *Reservation) Commit(inputTokens, outputTokens int64) {
	g := r.guard
	g.mu.Lock()
	defer g.mu.Unlock()

	if r.settled {
		return
	}
	r.settled = true

	cost := g.pricing.Cost(inputTokens, outputTokens)
	g.reserved -= r.estimate
	g.spent += cost
	g.tokens += inputTokens + outputTokens
	g.updated = time.Now()

	if g.spent >= g.capUSD {
		g.halted = true
	}
}

// Release returns the reserved headroom without recording any spend, for
// calls that failed before consuming tokens.
func (r *Reservation) Release() {
	g := r.guard
	g.mu.Lock()
	defer g.mu.Unlock()

	if r.settled {
		return
	}
	r.settled = true

	g.reserved -= r.estimate
	g.updated = time.Now()
}

// Halted reports whether the guard has stopped admitting work.
func (g *Guard) Halted() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.halted
}

// Snapshot returns the current budget state.
func (g *Guard) Snapshot() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return State{
		CapUSD:      g.capUSD,
		SpentUSD:    g.spent,
		ReservedUSD: g.reserved,
		TokensUsed:  g.tokens,
		Halted:      g.halted,
		StartedAt:   g.started,
		LastUpdated: g.updated,
	}
}

// EstimateCost predicts the cost of analyzing content of the given size.
// Input tokens are approximated at 4 bytes per token plus prompt overhead;
// output is assumed bounded by maxOutputTokens.
func (g *Guard) EstimateCost(contentBytes int, maxOutputTokens int64) float64 {
	inputTokens := int64(contentBytes)/4 + 500
	return g.pricing.Cost(inputTokens, maxOutputTokens)
}
