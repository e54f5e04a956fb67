// Package feedback watches consecutive exact-backend states for degradation
// and pulls the state back when it finds any.
package feedback

import (
	"fmt"
	"math"
	"time"

	"github.com/aristath/phaselock/internal/domain"
	"github.com/aristath/phaselock/internal/modules/hamiltonian"
	"github.com/aristath/phaselock/internal/modules/metrics"
	"github.com/aristath/phaselock/internal/modules/quantum"
	"github.com/aristath/phaselock/internal/modules/state"
	"github.com/rs/zerolog"
)

// energyEpsilon absorbs rounding in energy comparisons.
const energyEpsilon = 1e-12

// Config holds the controller's thresholds and mixing weights.
type Config struct {
	// BlendWeight is the share of the new state kept by the corrective
	// blend; the rest comes from the pre-step state.
	BlendWeight float64
	// CoherenceDropRatio fires coherence_collapse when the new coherence is
	// below this fraction of the previous one.
	CoherenceDropRatio float64
	// EntanglementFloor fires entanglement_loss.
	EntanglementFloor float64
	// BoostFloor triggers the entanglement boost after blending.
	BoostFloor float64
	// RefocusFloor triggers refocusing after blending. Refocusing also runs
	// whenever the corrected state is still above the pre-step energy.
	RefocusFloor float64
	// RefocusWeight is the share of the current state kept by refocusing.
	RefocusWeight float64
	// FilterStrength is τ in the e^{−τH} filter that picks the refocusing
	// direction.
	FilterStrength float64
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		BlendWeight:        0.7,
		CoherenceDropRatio: 0.5,
		EntanglementFloor:  0.1,
		BoostFloor:         0.3,
		RefocusFloor:       0.5,
		RefocusWeight:      0.5,
		FilterStrength:     1.0,
	}
}

// Controller applies corrective feedback to exact states.
type Controller struct {
	cfg    Config
	units  int
	boost  []float64
	filter *quantum.Operator
	log    zerolog.Logger
	now    func() time.Time
}

// NewController prepares the CZ network over edges and the cost filter.
func NewController(cost *quantum.Operator, edges [][2]int, cfg Config, log zerolog.Logger) (*Controller, error) {
	for _, w := range []float64{cfg.BlendWeight, cfg.RefocusWeight} {
		if w < 0 || w > 1 {
			return nil, fmt.Errorf("%w: mixing weight %v outside [0,1]", domain.ErrInvalidProblemSpec, w)
		}
	}
	units := hamiltonian.Units(cost)
	for _, e := range edges {
		if e[0] < 0 || e[1] < 0 || e[0] >= units || e[1] >= units || e[0] == e[1] {
			return nil, fmt.Errorf("%w: edge (%d,%d) outside a %d-unit register", domain.ErrInvalidProblemSpec, e[0], e[1], units)
		}
	}

	vals, err := quantum.Eigenvalues(cost)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to diagonalize cost: %v", domain.ErrNumericInstability, err)
	}
	// shifted by the ground energy so the filter never exceeds 1
	tau, ground := cfg.FilterStrength, vals[0]
	filter, err := quantum.ApplySpectral(cost, func(x float64) float64 { return math.Exp(-tau * (x - ground)) })
	if err != nil {
		return nil, fmt.Errorf("%w: failed to build refocusing filter: %v", domain.ErrNumericInstability, err)
	}

	return &Controller{
		cfg:    cfg,
		units:  units,
		boost:  quantum.ControlledZPhases(units, edges),
		filter: filter,
		log:    log.With().Str("component", "feedback").Logger(),
		now:    time.Now,
	}, nil
}

// Triggers lists which degradation checks fire for the step prev → next.
func (c *Controller) Triggers(prev, next *state.ExactState) ([]domain.Trigger, error) {
	ePrev, err := prev.Energy()
	if err != nil {
		return nil, err
	}
	eNext, err := next.Energy()
	if err != nil {
		return nil, err
	}

	var triggers []domain.Trigger
	if eNext > ePrev+energyEpsilon {
		triggers = append(triggers, domain.TriggerEnergyIncrease)
	}
	if metrics.Coherence(next.Density()) < c.cfg.CoherenceDropRatio*metrics.Coherence(prev.Density()) {
		triggers = append(triggers, domain.TriggerCoherenceCollapse)
	}
	ent, err := metrics.Entanglement(next.Density(), c.units)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrNumericInstability, err)
	}
	if ent < c.cfg.EntanglementFloor {
		triggers = append(triggers, domain.TriggerEntanglementLoss)
	}
	return triggers, nil
}

// Apply checks the step prev → next and corrects next in place when any
// trigger fires. It returns nil when nothing fired. Every correction is a
// unitary conjugation or a convex mixture of density matrices, so next stays
// a valid state.
func (c *Controller) Apply(prev, next *state.ExactState, iteration int) (*domain.FeedbackEvent, error) {
	triggers, err := c.Triggers(prev, next)
	if err != nil || len(triggers) == 0 {
		return nil, err
	}

	ePrev, err := prev.Energy()
	if err != nil {
		return nil, err
	}
	before, err := next.Energy()
	if err != nil {
		return nil, err
	}

	w := c.cfg.BlendWeight
	rho := quantum.Combine(w, next.Density(), 1-w, prev.Density())

	event := &domain.FeedbackEvent{
		Iteration: iteration,
		Triggers:  triggers,
		Timestamp: c.now(),
	}

	ent, err := metrics.Entanglement(rho, c.units)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrNumericInstability, err)
	}
	if ent < c.cfg.BoostFloor {
		rho = quantum.ConjugateDiagonal(c.boost, rho)
		event.Boosted = true
	}

	// a blend alone never undoes an energy increase
	raised := quantum.Expectation(next.Cost(), rho) > ePrev+energyEpsilon
	if raised || metrics.Coherence(rho) < c.cfg.RefocusFloor {
		rho, err = c.refocus(rho)
		if err != nil {
			return nil, err
		}
		event.Refocused = true
	}

	next.Set(rho)
	after, err := next.Energy()
	if err != nil {
		return nil, err
	}
	event.EnergyDelta = after - before

	c.log.Debug().
		Int("iteration", iteration).
		Interface("triggers", triggers).
		Bool("boosted", event.Boosted).
		Bool("refocused", event.Refocused).
		Float64("energy_delta", event.EnergyDelta).
		Msg("Feedback applied")

	return event, nil
}

// refocus mixes in the pure state along the dominant direction of the
// low-energy filtered state e^{−τH} ρ e^{−τH}.
func (c *Controller) refocus(rho *quantum.Operator) (*quantum.Operator, error) {
	filtered := quantum.Mul(quantum.Mul(c.filter, rho), c.filter)
	v, _, err := quantum.PrincipalVector(filtered)
	if err != nil {
		return nil, fmt.Errorf("%w: refocusing failed: %v", domain.ErrNumericInstability, err)
	}
	w := c.cfg.RefocusWeight
	return quantum.Combine(w, rho, 1-w, quantum.Outer(v)), nil
}
