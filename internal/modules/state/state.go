// Package state holds the two interchangeable state representations: a full
// density matrix for small problems and a phase vector for large ones.
package state

import (
	"math"

	"github.com/aristath/phaselock/internal/domain"
)

// Model is the behaviour shared by both backends.
type Model interface {
	Backend() domain.Backend
	Units() int
	Energy() (float64, error)
	Snapshot() domain.Snapshot
}

const twoPi = 2 * math.Pi

// Wrap maps an angle into [0, 2π).
func Wrap(theta float64) float64 {
	w := math.Mod(theta, twoPi)
	if w < 0 {
		w += twoPi
	}
	// Mod of values just below a multiple of 2π can round up to 2π itself
	if w >= twoPi {
		w = 0
	}
	return w
}
