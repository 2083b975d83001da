package alert

import (
	"strings"
	"time"
)

// TierPolicy is one step in a department's escalation chain.
type TierPolicy struct {
	Role        string
	BaseTimeout time.Duration
}

// Resolution is the policy answer for (department, tier, urgency).
// Exhausted means the chain has no tier at the requested depth; the caller
// holds the alert at its last tier and re-notifies at HoldCadence.
type Resolution struct {
	Role      string
	Timeout   time.Duration
	Exhausted bool
}

// Resolver is the pure escalation policy lookup. It holds no mutable state
// after construction and performs no I/O.
type Resolver struct {
	chains      map[string][]TierPolicy
	holdCadence time.Duration
}

// Urgency scales every base timeout: 1 is the most urgent and halves it,
// 5 the least urgent and stretches it by half again.
var urgencyMultiplier = map[int]float64{
	1: 0.5,
	2: 0.75,
	3: 1.0,
	4: 1.25,
	5: 1.5,
}

// DefaultHoldCadence is the re-notify interval once a chain is exhausted.
const DefaultHoldCadence = 10 * time.Minute

// defaultChains covers the standard hospital departments. Unknown
// departments fall back to the "default" chain: an alert is never dropped
// for lack of a policy row.
var defaultChains = map[string][]TierPolicy{
	"icu": {
		{Role: "nurse", BaseTimeout: 2 * time.Minute},
		{Role: "charge_nurse", BaseTimeout: 3 * time.Minute},
		{Role: "attending_physician", BaseTimeout: 5 * time.Minute},
		{Role: "department_head", BaseTimeout: 10 * time.Minute},
	},
	"er": {
		{Role: "nurse", BaseTimeout: 90 * time.Second},
		{Role: "charge_nurse", BaseTimeout: 2 * time.Minute},
		{Role: "attending_physician", BaseTimeout: 4 * time.Minute},
		{Role: "department_head", BaseTimeout: 8 * time.Minute},
	},
	"default": {
		{Role: "nurse", BaseTimeout: 5 * time.Minute},
		{Role: "charge_nurse", BaseTimeout: 10 * time.Minute},
		{Role: "department_head", BaseTimeout: 15 * time.Minute},
	},
}

// NewResolver builds a Resolver over the built-in department chains.
func NewResolver() *Resolver {
	return NewResolverWithChains(defaultChains, DefaultHoldCadence)
}

// NewResolverWithChains builds a Resolver over custom chains. The map must
// contain a "default" chain; chains and their slices are not copied and
// must not be mutated afterwards.
func NewResolverWithChains(chains map[string][]TierPolicy, holdCadence time.Duration) *Resolver {
	return &Resolver{chains: chains, holdCadence: holdCadence}
}

// Resolve returns the responsible role and timeout for the given tier.
// Tiers are 1-based. When the department's chain has no such tier, the
// returned Resolution is Exhausted with the last tier's role and the hold
// cadence as the timeout.
func (r *Resolver) Resolve(department string, tier, urgency int) Resolution {
	chain, ok := r.chains[strings.ToLower(department)]
	if !ok {
		chain = r.chains["default"]
	}
	if tier < 1 {
		tier = 1
	}
	if tier > len(chain) {
		return Resolution{
			Role:      chain[len(chain)-1].Role,
			Timeout:   r.holdCadence,
			Exhausted: true,
		}
	}
	p := chain[tier-1]
	return Resolution{Role: p.Role, Timeout: scaleTimeout(p.BaseTimeout, urgency)}
}

// HoldCadence is the re-notify interval for exhausted chains.
func (r *Resolver) HoldCadence() time.Duration { return r.holdCadence }

func scaleTimeout(base time.Duration, urgency int) time.Duration {
	m, ok := urgencyMultiplier[urgency]
	if !ok {
		m = 1.0
	}
	return time.Duration(float64(base) * m)
}
