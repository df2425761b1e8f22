package scoring

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/selfcheck-mqag/internal/mqag"
)

// #region helpers
var (
	pickA = mqag.Distribution{0.7, 0.1, 0.1, 0.1}
	pickB = mqag.Distribution{0.1, 0.7, 0.1, 0.1}
	pickC = mqag.Distribution{0.1, 0.1, 0.7, 0.1}
)

func observe(prob mqag.Distribution, u float64, samples ...sample) mqag.Observation {
	obs := mqag.Observation{Prob: prob, Answerability: u}
	for _, s := range samples {
		obs.SampleProbs = append(obs.SampleProbs, s.prob)
		obs.SampleAnswerability = append(obs.SampleAnswerability, s.u)
	}
	return obs
}

type sample struct {
	prob mqag.Distribution
	u    float64
}

// #endregion helpers

// #region counting-tests
func TestCounting_AllSamplesAgree(t *testing.T) {
	obs := observe(pickA, 0.9, sample{pickA, 0.8}, sample{pickA, 0.6})
	assert.Equal(t, 0.0, Counting(obs, 0.5))
}

func TestCounting_AllSamplesDisagree(t *testing.T) {
	obs := observe(pickA, 0.9, sample{pickB, 0.8}, sample{pickC, 0.6})
	assert.Equal(t, 1.0, Counting(obs, 0.5))
}

func TestCounting_IgnoresUnanswerableSamples(t *testing.T) {
	obs := observe(pickA, 0.9,
		sample{pickA, 0.9},
		sample{pickB, 0.9},
		sample{pickB, 0.1}, // below AT, not counted
	)
	assert.Equal(t, 0.5, Counting(obs, 0.5))
}

func TestCounting_MixedFraction(t *testing.T) {
	obs := observe(pickA, 0.9,
		sample{pickA, 0.9},
		sample{pickA, 0.9},
		sample{pickA, 0.9},
		sample{pickC, 0.9},
	)
	assert.Equal(t, 0.25, Counting(obs, 0.5))
}

func TestCounting_NoGoodSamples(t *testing.T) {
	obs := observe(pickA, 0.9, sample{pickB, 0.2}, sample{pickB, 0.3})
	assert.Equal(t, mqag.NeutralScore, Counting(obs, 0.5))
}

func TestCounting_AnswerabilityEqualToThresholdPasses(t *testing.T) {
	obs := observe(pickA, 0.5, sample{pickB, 0.5})
	assert.Equal(t, 1.0, Counting(obs, 0.5))
}

// #endregion counting-tests

// #region gating-tests
func TestGating_UnanswerableOnPassageIsNeutral(t *testing.T) {
	variants := []mqag.Observation{
		observe(pickA, 0.1),
		observe(pickA, 0.1, sample{pickA, 1.0}, sample{pickA, 1.0}),
		observe(pickA, 0.1, sample{pickB, 1.0}, sample{pickC, 1.0}),
	}
	for _, obs := range variants {
		assert.Equal(t, 0.5, Counting(obs, 0.5))
		assert.Equal(t, 0.5, Bayes(obs, 0.8, 0.8, 0.5))
	}
}

func TestNoSamples_AllMethodsNeutral(t *testing.T) {
	obs := observe(pickA, 0.9)
	assert.Equal(t, 0.5, Counting(obs, 0.5))
	assert.Equal(t, 0.5, Bayes(obs, 0.8, 0.8, 0.5))
	assert.Equal(t, 0.5, BayesWithAlpha(obs, 0.8, 0.8))
}

// #endregion gating-tests

// #region bayes-tests
func TestBayes_ClosedFormThreeMatches(t *testing.T) {
	obs := observe(pickA, 0.9, sample{pickA, 0.9}, sample{pickA, 0.9}, sample{pickA, 0.9})

	gamma1, _ := Gammas(0.2, 0.8)
	want := 1 / (math.Pow(gamma1, 3) + 1)

	assert.Equal(t, want, Bayes(obs, 0.2, 0.8, 0.5))
}

func TestBayes_ClosedFormMixed(t *testing.T) {
	obs := observe(pickA, 0.9,
		sample{pickA, 0.9},
		sample{pickA, 0.9},
		sample{pickB, 0.9},
		sample{pickB, 0.1}, // excluded entirely
	)
	gamma1, gamma2 := Gammas(0.8, 0.7)
	want := math.Pow(gamma2, 1) / (math.Pow(gamma1, 2) + math.Pow(gamma2, 1))

	assert.Equal(t, want, Bayes(obs, 0.8, 0.7, 0.5))
}

func TestBayes_StrictlyInsideUnitInterval(t *testing.T) {
	cases := []mqag.Observation{
		observe(pickA, 0.9, sample{pickA, 0.9}),
		observe(pickA, 0.9, sample{pickB, 0.9}),
		observe(pickA, 0.9, sample{pickA, 0.9}, sample{pickB, 0.9}, sample{pickC, 0.9}),
	}
	for _, obs := range cases {
		for _, score := range []float64{Bayes(obs, 0.8, 0.8, 0.5), BayesWithAlpha(obs, 0.8, 0.8)} {
			assert.Greater(t, score, 0.0)
			assert.Less(t, score, 1.0)
		}
	}
}

func TestBayes_TendsToExtremes(t *testing.T) {
	agree := make([]sample, 20)
	disagree := make([]sample, 20)
	for i := range agree {
		agree[i] = sample{pickA, 1.0}
		disagree[i] = sample{pickB, 1.0}
	}
	assert.Less(t, Bayes(observe(pickA, 1, agree...), 0.8, 0.8, 0.5), 1e-9)
	assert.Greater(t, Bayes(observe(pickA, 1, disagree...), 0.8, 0.8, 0.5), 1-1e-9)
}

func TestBayes_HugeCountsNeverNaN(t *testing.T) {
	score := posterior(5000, 5000, 0.9, 0.9)
	require.False(t, math.IsNaN(score))
	assert.InDelta(t, 0.5, score, 1e-12)

	score = posterior(5000, 4000, 0.9, 0.9)
	require.False(t, math.IsNaN(score))
	assert.Less(t, score, 1e-6)
}

// #endregion bayes-tests

// #region bayes-with-alpha-tests
func TestBayesWithAlpha_NoGating(t *testing.T) {
	// Low passage answerability does not short-circuit.
	obs := observe(pickA, 0.0, sample{pickB, 0.9})
	gamma1, gamma2 := Gammas(0.8, 0.8)
	want := math.Pow(gamma2, 0.9) / (math.Pow(gamma1, 0) + math.Pow(gamma2, 0.9))

	assert.Equal(t, want, BayesWithAlpha(obs, 0.8, 0.8))
	assert.NotEqual(t, 0.5, BayesWithAlpha(obs, 0.8, 0.8))
}

func TestBayesWithAlpha_SoftCounts(t *testing.T) {
	obs := observe(pickA, 0.9, sample{pickA, 0.3}, sample{pickA, 0.4}, sample{pickC, 0.25})
	gamma1, gamma2 := Gammas(0.8, 0.8)
	want := math.Pow(gamma2, 0.25) / (math.Pow(gamma1, 0.7) + math.Pow(gamma2, 0.25))

	assert.InDelta(t, want, BayesWithAlpha(obs, 0.8, 0.8), 1e-15)
}

func TestBayesWithAlpha_Monotone(t *testing.T) {
	prev := -1.0
	for _, w := range []float64{0, 0.1, 0.4, 0.7, 1.0} {
		score := BayesWithAlpha(observe(pickA, 0.9, sample{pickA, 0.5}, sample{pickB, w}), 0.8, 0.8)
		assert.GreaterOrEqual(t, score, prev, "mismatch weight %v", w)
		prev = score
	}

	prev = 2.0
	for _, w := range []float64{0, 0.1, 0.4, 0.7, 1.0} {
		score := BayesWithAlpha(observe(pickA, 0.9, sample{pickA, w}, sample{pickB, 0.5}), 0.8, 0.8)
		assert.LessOrEqual(t, score, prev, "match weight %v", w)
		prev = score
	}
}

// #endregion bayes-with-alpha-tests
