// Package scoring converts answer-agreement statistics between the original
// passage and sampled passages into an inconsistency score in [0,1].
package scoring

import (
	"math"

	"github.com/danielpatrickdp/selfcheck-mqag/internal/mqag"
)

// #region counting
// Counting returns the fraction of answerable samples whose chosen option
// disagrees with the option chosen on the original passage.
func Counting(obs mqag.Observation, at float64) float64 {
	if obs.Answerability < at {
		return mqag.NeutralScore
	}
	aDT := obs.Prob.Argmax()

	good, match := 0, 0
	for s := 0; s < obs.NumSamples(); s++ {
		if obs.SampleAnswerability[s] < at {
			continue
		}
		good++
		if obs.SampleProbs[s].Argmax() == aDT {
			match++
		}
	}
	if good == 0 {
		return mqag.NeutralScore
	}
	return float64(good-match) / float64(good)
}

// #endregion counting

// #region bayes
// Bayes returns P(non-factual | match, mismatch) under a two-hypothesis model
// where beta1 and beta2 are the class-conditional agreement rates. Samples
// that are unanswerable under AT count in neither bucket; counts are raw.
func Bayes(obs mqag.Observation, beta1, beta2, at float64) float64 {
	if obs.Answerability < at {
		return mqag.NeutralScore
	}
	aDT := obs.Prob.Argmax()

	var match, mismatch float64
	for s := 0; s < obs.NumSamples(); s++ {
		if obs.SampleAnswerability[s] < at {
			continue
		}
		if obs.SampleProbs[s].Argmax() == aDT {
			match++
		} else {
			mismatch++
		}
	}
	return posterior(match, mismatch, beta1, beta2)
}

// BayesWithAlpha is Bayes without answerability gating: every sample votes,
// weighted by its own answerability score (soft counting).
func BayesWithAlpha(obs mqag.Observation, beta1, beta2 float64) float64 {
	aDT := obs.Prob.Argmax()

	var match, mismatch float64
	for s := 0; s < obs.NumSamples(); s++ {
		w := obs.SampleAnswerability[s]
		if obs.SampleProbs[s].Argmax() == aDT {
			match += w
		} else {
			mismatch += w
		}
	}
	return posterior(match, mismatch, beta1, beta2)
}

// #endregion bayes

// #region posterior
// Gammas returns (gamma1, gamma2) for the given agreement rates.
func Gammas(beta1, beta2 float64) (float64, float64) {
	return beta2 / (1.0 - beta1), beta1 / (1.0 - beta2)
}

// posterior evaluates gamma2^mismatch / (gamma1^match + gamma2^mismatch).
// Zero counts on both sides give exactly 0.5.
func posterior(match, mismatch, beta1, beta2 float64) float64 {
	gamma1, gamma2 := Gammas(beta1, beta2)

	num := math.Pow(gamma2, mismatch)
	score := num / (math.Pow(gamma1, match) + num)
	if !math.IsNaN(score) {
		return score
	}
	// Inf/Inf or 0/0 on very large counts: same quantity in logistic form.
	return 1.0 / (1.0 + math.Exp(match*math.Log(gamma1)-mismatch*math.Log(gamma2)))
}

// #endregion posterior
