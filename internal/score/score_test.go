package score

import (
	"encoding/json"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomScore(rng *rand.Rand, kind Kind) Score {
	levels := make([]int64, len(kind.Levels()))
	for i := range levels {
		levels[i] = rng.Int63n(21) - 10
	}
	return New(kind, levels...)
}

func TestStringAndParse(t *testing.T) {
	s := HardMediumSoftOf(-2, 0, -15)
	assert.Equal(t, "-2hard/0medium/-15soft", s.String())

	parsed, err := Parse("-2hard/0medium/-15soft")
	require.NoError(t, err)
	assert.Equal(t, s, parsed)

	parsed, err = Parse("0hard/-3000soft")
	require.NoError(t, err)
	assert.Equal(t, HardSoftOf(0, -3000), parsed)
}

func TestParseRejectsMalformedText(t *testing.T) {
	for _, text := range []string{
		"",
		"0hard",
		"0hard/0soft/",
		"0soft/0hard",
		"hard/0soft",
		"1.5hard/0soft",
		"0hard/0medium",
		"0hard/0medium/0soft/0soft",
		"0Hard/0soft",
		" 0hard/0soft",
		"+1hard/0soft",
		"01hard/0soft",
		"0hard/-01soft",
		"-0hard/0soft",
		"00hard/0soft",
	} {
		_, err := Parse(text)
		assert.ErrorIs(t, err, ErrMalformedScore, "text %q", text)
	}

	_, err := ParseKind(HardSoft, "0hard/0medium/0soft")
	assert.ErrorIs(t, err, ErrMalformedScore)
}

func TestTextRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for _, kind := range []Kind{HardSoft, HardMediumSoft} {
		for i := 0; i < 200; i++ {
			s := randomScore(rng, kind)
			parsed, err := ParseKind(kind, s.String())
			require.NoError(t, err)
			assert.Equal(t, s, parsed)
		}
	}
}

func TestJSONRoundTrip(t *testing.T) {
	type payload struct {
		Score Score `json:"score"`
	}

	data, err := json.Marshal(payload{Score: HardMediumSoftOf(-1, -2, -3)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"score":"-1hard/-2medium/-3soft"}`, string(data))

	var decoded payload
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, HardMediumSoftOf(-1, -2, -3), decoded.Score)

	assert.ErrorIs(t, json.Unmarshal([]byte(`{"score":"bogus"}`), &decoded), ErrMalformedScore)
}

func TestCompareIsLexicographic(t *testing.T) {
	assert.Equal(t, 1, HardSoftOf(0, -1000).Compare(HardSoftOf(-1, 0)))
	assert.Equal(t, -1, HardMediumSoftOf(0, -1, 100).Compare(HardMediumSoftOf(0, 0, -100)))
	assert.Equal(t, 0, HardSoftOf(3, 4).Compare(HardSoftOf(3, 4)))
}

func TestCompareIsTotalOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	for i := 0; i < 1000; i++ {
		a := randomScore(rng, HardMediumSoft)
		b := randomScore(rng, HardMediumSoft)
		c := randomScore(rng, HardMediumSoft)

		// 反对称
		assert.Equal(t, a.Compare(b), -b.Compare(a))
		// 相等与 == 一致
		assert.Equal(t, a == b, a.Compare(b) == 0)
		// 传递
		if a.Compare(b) <= 0 && b.Compare(c) <= 0 {
			assert.LessOrEqual(t, a.Compare(c), 0)
		}
	}
}

func TestAdditiveInvertibility(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 1000; i++ {
		s := randomScore(rng, HardSoft)
		delta := randomScore(rng, HardSoft).Multiply(rng.Int63n(50))

		assert.Equal(t, s, s.Add(delta).Subtract(delta))
		assert.Equal(t, s, s.Add(delta).Add(delta.Negate()))
	}
}

func TestIsFeasible(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	for i := 0; i < 1000; i++ {
		s := randomScore(rng, HardMediumSoft)
		assert.Equal(t, s.Level("hard") >= 0, s.IsFeasible(), "score %s", s)
	}

	assert.True(t, HardSoftOf(0, -100).IsFeasible())
	assert.False(t, HardSoftOf(-1, 100).IsFeasible())
}

func TestOf(t *testing.T) {
	assert.Equal(t, HardMediumSoftOf(0, 0, 100), HardMediumSoft.Of("soft", 100))
	assert.Equal(t, HardSoftOf(1, 0), HardSoft.One("hard"))
	assert.True(t, HardSoft.Zero().IsZero())
	assert.Panics(t, func() { HardSoft.One("medium") })
}

func TestMixingKindsPanics(t *testing.T) {
	assert.Panics(t, func() { HardSoftOf(0, 0).Add(HardMediumSoftOf(0, 0, 0)) })
	assert.Panics(t, func() { HardSoftOf(0, 0).Compare(HardMediumSoftOf(0, 0, 0)) })
}
