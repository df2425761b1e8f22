// Package mqag holds the value types shared by question generation,
// answering, scoring and persistence.
package mqag

import "gonum.org/v1/gonum/floats"

// NumOptions is the fixed width of every multiple-choice item.
const NumOptions = 4

// NeutralScore is returned whenever there is no usable evidence either way.
const NeutralScore = 0.5

// #region question-item
// QuestionItem is one generated multiple-choice probe about a sentence.
// Options[0] holds the generated answer; which option is "correct" on a given
// context is decided later by the answerer's argmax, never by position.
type QuestionItem struct {
	Question string             `json:"question"`
	Options  [NumOptions]string `json:"options"`
}

// #endregion question-item

// #region distribution
// Distribution is a softmax over the options of one QuestionItem, indexed
// identically to QuestionItem.Options.
type Distribution [NumOptions]float64

// Argmax returns the index of the most probable option. Ties resolve to the
// lowest index.
func (d Distribution) Argmax() int {
	return floats.MaxIdx(d[:])
}

// #endregion distribution

// #region observation
// Observation is everything the scoring methods need for one question: the
// answer distribution and answerability on the original passage, plus one
// of each per sampled passage (index-aligned).
type Observation struct {
	Prob                Distribution   `json:"prob"`
	Answerability       float64        `json:"u_score"`
	SampleProbs         []Distribution `json:"prob_s"`
	SampleAnswerability []float64      `json:"u_score_s"`
}

// NumSamples returns the number of sampled passages the observation covers.
func (o Observation) NumSamples() int {
	return len(o.SampleProbs)
}

// #endregion observation

// #region traces
// QuestionTrace records one question, its observation and the score it got.
type QuestionTrace struct {
	Item QuestionItem `json:"item"`
	Observation
	Score float64 `json:"score"`
}

// SentenceResult is the per-sentence output of a prediction run.
type SentenceResult struct {
	Index     int             `json:"index"`
	Sentence  string          `json:"sentence"`
	Score     float64         `json:"score"`
	Questions []QuestionTrace `json:"questions"`
}

// Scores extracts the sentence scores in order.
func Scores(results []SentenceResult) []float64 {
	out := make([]float64, len(results))
	for i, r := range results {
		out[i] = r.Score
	}
	return out
}

// #endregion traces
