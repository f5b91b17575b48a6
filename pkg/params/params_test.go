package params

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomain_Validate(t *testing.T) {
	assert.NoError(t, Number("period", 2, 50, 1).Validate())
	assert.NoError(t, Bool("use_wick").Validate())
	assert.NoError(t, Enum("side", "long", "short").Validate())

	assert.Error(t, Number("", 0, 1, 1).Validate())
	assert.Error(t, Number("x", 0, 1, 0).Validate())
	assert.Error(t, Number("x", 5, 1, 1).Validate())
	assert.Error(t, Enum("side").Validate())
	assert.Error(t, Domain{Name: "x", Kind: Kind("weird")}.Validate())
}

func TestDomain_Contains(t *testing.T) {
	d := Number("spacing", 0.2, 1.0, 0.1)

	assert.True(t, d.Contains(0.2))
	assert.True(t, d.Contains(0.5))
	assert.True(t, d.Contains(1.0))
	assert.False(t, d.Contains(0.1))  // below min
	assert.False(t, d.Contains(1.1))  // above max
	assert.False(t, d.Contains(0.55)) // off step
	assert.False(t, d.Contains("0.5"))

	b := Bool("flag")
	assert.True(t, b.Contains(true))
	assert.False(t, b.Contains(1))

	e := Enum("side", "long", "short")
	assert.True(t, e.Contains("long"))
	assert.False(t, e.Contains("flat"))
	assert.False(t, e.Contains(false))
}

func TestDomain_ContainsAcceptsIntegers(t *testing.T) {
	d := Number("period", 2, 50, 1)
	assert.True(t, d.Contains(14))
	assert.True(t, d.Contains(int64(14)))
	assert.True(t, d.Contains(14.0))
}

func TestDomain_SampleStaysInDomain(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	domains := []Domain{
		Number("period", 2, 50, 1),
		Number("spacing", 0.2, 10, 0.1),
		Bool("use_wick"),
		Enum("side", "long", "short"),
	}
	for i := 0; i < 500; i++ {
		for _, d := range domains {
			assert.True(t, d.Contains(d.Sample(rng)), "domain %s", d.Name)
		}
	}
}

func TestDomain_SampleDeterministicPerSeed(t *testing.T) {
	d := Number("period", 2, 50, 1)

	a := rand.New(rand.NewSource(7))
	b := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		assert.Equal(t, d.Sample(a), d.Sample(b))
	}
}

func TestDomain_Snap(t *testing.T) {
	d := Number("spacing", 0.2, 1.0, 0.1)

	assert.InDelta(t, 0.2, d.Snap(-5), 1e-9)
	assert.InDelta(t, 1.0, d.Snap(7), 1e-9)
	assert.InDelta(t, 0.5, d.Snap(0.52), 1e-9)
	assert.InDelta(t, 0.6, d.Snap(0.57), 1e-9)
	assert.True(t, d.Contains(d.Snap(0.734)))
}

func TestValidate_FullSet(t *testing.T) {
	domains := []Domain{
		Number("period", 2, 50, 1),
		Bool("use_wick"),
		Enum("side", "long", "short"),
	}

	ok := Set{"period": 14.0, "use_wick": true, "side": "long"}
	assert.NoError(t, Validate(domains, ok))

	missing := Set{"period": 14.0, "use_wick": true}
	assert.Error(t, Validate(domains, missing))

	outOfDomain := Set{"period": 99.0, "use_wick": true, "side": "long"}
	assert.Error(t, Validate(domains, outOfDomain))

	undeclared := ok.Clone()
	undeclared["extra"] = 1.0
	assert.Error(t, Validate(domains, undeclared))
}

func TestDefaultSet_IsValid(t *testing.T) {
	domains := []Domain{
		Number("period", 2, 50, 1),
		Bool("use_wick"),
		Enum("side", "long", "short"),
	}

	s := DefaultSet(domains)
	require.NoError(t, Validate(domains, s))
	assert.Equal(t, 2.0, s.Number("period", 0))
	assert.Equal(t, false, s.Flag("use_wick", true))
	assert.Equal(t, "long", s.Choice("side", ""))
}

func TestSampleSet_CoversAllDomains(t *testing.T) {
	domains := []Domain{
		Number("period", 2, 50, 1),
		Bool("use_wick"),
		Enum("side", "long", "short"),
	}
	rng := rand.New(rand.NewSource(1))

	s := SampleSet(domains, rng)
	require.Len(t, s, 3)
	assert.NoError(t, Validate(domains, s))
}

func TestSet_CloneIsIndependent(t *testing.T) {
	orig := Set{"a": 1.0, "b": true}
	clone := orig.Clone()
	clone["a"] = 2.0

	assert.Equal(t, 1.0, orig.Number("a", 0))
	assert.Equal(t, []string{"a", "b"}, orig.Names())
}

func TestSet_TypedAccessors(t *testing.T) {
	s := Set{"n": 3.5, "f": true, "e": "short"}

	assert.Equal(t, 3.5, s.Number("n", 0))
	assert.Equal(t, 9.0, s.Number("missing", 9))
	assert.Equal(t, true, s.Flag("f", false))
	assert.Equal(t, false, s.Flag("missing", false))
	assert.Equal(t, "short", s.Choice("e", "long"))
	assert.Equal(t, "long", s.Choice("missing", "long"))
}
