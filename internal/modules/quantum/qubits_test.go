package quantum

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBitstringRoundTrip(t *testing.T) {
	idx, err := ParseBitstring("1100")
	require.NoError(t, err)
	assert.Equal(t, 12, idx)
	assert.Equal(t, "1100", Bitstring(idx, 4))
	assert.Equal(t, "0011", Bitstring(3, 4))

	_, err = ParseBitstring("10a1")
	assert.Error(t, err)
	_, err = ParseBitstring("")
	assert.Error(t, err)
}

func TestBitAndSpin_MostSignificantFirst(t *testing.T) {
	// 12 = 1100
	assert.Equal(t, 1, Bit(12, 0, 4))
	assert.Equal(t, 1, Bit(12, 1, 4))
	assert.Equal(t, 0, Bit(12, 3, 4))
	assert.Equal(t, -1.0, Spin(12, 0, 4))
	assert.Equal(t, 1.0, Spin(12, 2, 4))
}

func TestEmbed_MatchesBitFlip(t *testing.T) {
	x0 := Embed(PauliX(), 0, 2)
	// X on unit 0 maps |00> (0) to |10> (2)
	assert.Equal(t, complex128(1), x0.At(2, 0))
	assert.Equal(t, complex128(0), x0.At(1, 0))
}

func TestPartialTraceKeep_ProductState(t *testing.T) {
	// |0><0| ⊗ |+><+|
	rho := Kron(Diagonal([]float64{1, 0}), uniformDensity(2))

	a := PartialTraceKeep(rho, 0, 2)
	assert.InDelta(t, 1.0, real(a.At(0, 0)), 1e-12)
	assert.InDelta(t, 0.0, real(a.At(1, 1)), 1e-12)

	b := PartialTraceKeep(rho, 1, 2)
	assert.InDelta(t, 0.5, real(b.At(0, 1)), 1e-12)
	assert.InDelta(t, 0.5, real(b.At(1, 1)), 1e-12)
}

func TestControlledZ_CreatesEntanglement(t *testing.T) {
	rho := uniformDensity(4)
	d := ControlledZPhases(2, [][2]int{{0, 1}})
	assert.Equal(t, []float64{1, 1, 1, -1}, d)

	graph := ConjugateDiagonal(d, rho)
	reduced := PartialTraceKeep(graph, 0, 2)
	s, err := VonNeumannEntropy(reduced)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, s, 1e-8)
	assert.InDelta(t, 1.0, real(graph.Trace()), 1e-12)
}
