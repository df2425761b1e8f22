// Package replay re-scores recorded question traces under a different
// scoring method or parameters without calling the inference service again.
package replay

import (
	"fmt"

	"github.com/danielpatrickdp/selfcheck-mqag/internal/mqag"
	"github.com/danielpatrickdp/selfcheck-mqag/internal/scoring"
)

// #region types
// Summary provides aggregate stats from a rescoring pass.
type Summary struct {
	Sentences int     `json:"sentences"`
	Questions int     `json:"questions"`
	Neutral   int     `json:"neutral"` // sentences with no questions
	MeanScore float64 `json:"mean_score"`
	MaxScore  float64 `json:"max_score"`
}

// #endregion types

// #region rescore
// Rescore applies method/params to every recorded observation and returns a
// fresh copy of sentences with question and sentence scores recomputed. The
// input is not modified.
func Rescore(sentences []mqag.SentenceResult, method scoring.Method, params scoring.Params) ([]mqag.SentenceResult, error) {
	scorer, err := scoring.NewScorer(method, params)
	if err != nil {
		return nil, err
	}

	out := make([]mqag.SentenceResult, len(sentences))
	for i, sr := range sentences {
		traces := make([]mqag.QuestionTrace, len(sr.Questions))
		scores := make([]float64, len(sr.Questions))
		for qi, tr := range sr.Questions {
			if err := checkTrace(tr); err != nil {
				return nil, fmt.Errorf("sentence %d question %d: %w", sr.Index, qi, err)
			}
			tr.Score = scorer.Score(tr.Observation)
			traces[qi] = tr
			scores[qi] = tr.Score
		}
		out[i] = mqag.SentenceResult{
			Index:     sr.Index,
			Sentence:  sr.Sentence,
			Score:     scoring.Aggregate(scores),
			Questions: traces,
		}
	}
	return out, nil
}

// checkTrace rejects observations whose per-sample slices disagree in length.
func checkTrace(tr mqag.QuestionTrace) error {
	if len(tr.SampleProbs) != len(tr.SampleAnswerability) {
		return fmt.Errorf("prob_s has %d entries but u_score_s has %d",
			len(tr.SampleProbs), len(tr.SampleAnswerability))
	}
	return nil
}

// Summarize computes aggregate stats from rescored sentences.
func Summarize(sentences []mqag.SentenceResult) Summary {
	s := Summary{Sentences: len(sentences)}
	scores := mqag.Scores(sentences)
	for i, sr := range sentences {
		s.Questions += len(sr.Questions)
		if len(sr.Questions) == 0 {
			s.Neutral++
		}
		if i == 0 || sr.Score > s.MaxScore {
			s.MaxScore = sr.Score
		}
	}
	if len(scores) > 0 {
		s.MeanScore = scoring.Aggregate(scores)
	}
	return s
}

// #endregion rescore
