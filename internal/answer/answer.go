// Package answer normalises the raw outputs of the multiple-choice and
// answerability models into probabilities.
package answer

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/danielpatrickdp/selfcheck-mqag/internal/mqag"
)

// #region interfaces
// ChoiceModel scores (first, second) text pairs, one raw logit per pair.
type ChoiceModel interface {
	ScoreChoices(ctx context.Context, pairs [][2]string) ([]float64, error)
}

// AnswerabilityModel returns a raw logit for a combined question/context input.
type AnswerabilityModel interface {
	ScoreAnswerability(ctx context.Context, input string) (float64, error)
}

// #endregion interfaces

// #region answerer
// Answerer picks among the four options of a question given a context.
type Answerer struct {
	model ChoiceModel
	bos   string
}

// NewAnswerer creates an answerer. bos joins context and question in the
// first segment of every pair.
func NewAnswerer(model ChoiceModel, bos string) *Answerer {
	return &Answerer{model: model, bos: bos}
}

// Answer makes exactly one model call and returns the softmax over the four options.
func (a *Answerer) Answer(ctx context.Context, question string, options [mqag.NumOptions]string, passage string) (mqag.Distribution, error) {
	logits, err := a.model.ScoreChoices(ctx, a.Pairs(question, options, passage))
	if err != nil {
		return mqag.Distribution{}, fmt.Errorf("answer: %w", err)
	}
	if len(logits) != mqag.NumOptions {
		return mqag.Distribution{}, fmt.Errorf("answer: expected %d logits, got %d", mqag.NumOptions, len(logits))
	}
	return Softmax(logits), nil
}

// Pairs builds the combined multiple-choice input.
func (a *Answerer) Pairs(question string, options [mqag.NumOptions]string, passage string) [][2]string {
	first := passage + " " + a.bos + " " + question
	pairs := make([][2]string, mqag.NumOptions)
	for i, opt := range options {
		pairs[i] = [2]string{first, opt}
	}
	return pairs
}

// #endregion answerer

// #region answerability
// AnswerabilityScorer estimates whether a question can be answered from a context.
type AnswerabilityScorer struct {
	model AnswerabilityModel
	sep   string
}

// NewAnswerabilityScorer creates a scorer that joins question and context with sep.
func NewAnswerabilityScorer(model AnswerabilityModel, sep string) *AnswerabilityScorer {
	return &AnswerabilityScorer{model: model, sep: sep}
}

// Score returns a probability in [0,1]; near 0 means unanswerable.
func (s *AnswerabilityScorer) Score(ctx context.Context, question, passage string) (float64, error) {
	logit, err := s.model.ScoreAnswerability(ctx, question+" "+s.sep+" "+passage)
	if err != nil {
		return 0, fmt.Errorf("answerability: %w", err)
	}
	return Sigmoid(logit), nil
}

// #endregion answerability

// #region transforms
// Softmax normalises logits with the log-sum-exp trick.
func Softmax(logits []float64) mqag.Distribution {
	var d mqag.Distribution
	lse := floats.LogSumExp(logits)
	for i := range d {
		d[i] = math.Exp(logits[i] - lse)
	}
	return d
}

// Sigmoid is the logistic function.
func Sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

// #endregion transforms
