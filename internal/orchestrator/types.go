package orchestrator

// #region imports
import (
	"context"
	"errors"

	"github.com/danielpatrickdp/selfcheck-mqag/internal/mqag"
	"github.com/danielpatrickdp/selfcheck-mqag/internal/scoring"
)

// #endregion

// #region interfaces

// QuestionGenerator produces up to n multiple-choice items for a sentence.
type QuestionGenerator interface {
	Generate(ctx context.Context, sentence, passage string, n int) ([]mqag.QuestionItem, error)
}

// Answerer returns the option distribution for a question on a context.
type Answerer interface {
	Answer(ctx context.Context, question string, options [mqag.NumOptions]string, passage string) (mqag.Distribution, error)
}

// AnswerabilityScorer returns the probability that a question is answerable
// from a context.
type AnswerabilityScorer interface {
	Score(ctx context.Context, question, passage string) (float64, error)
}

// #endregion

// #region request

// DefaultQuestionsPerSentence is the attempt count the config, HTTP and CLI
// layers fill in when a caller leaves it unset. Run itself takes the request
// value as given.
const DefaultQuestionsPerSentence = 5

// ErrInvalidRequest is returned for requests that cannot be run.
var ErrInvalidRequest = errors.New("invalid predict request")

// Request is one batch of sentences to score against sampled passages.
type Request struct {
	Sentences            []string
	Passage              string
	SampledPassages      []string
	QuestionsPerSentence int
	Method               scoring.Method
	Params               scoring.Params
}

// #endregion

// #region result

// Result carries sentence scores together with every question trace.
type Result struct {
	Method               scoring.Method
	Params               scoring.Params
	NumSamples           int
	QuestionsPerSentence int
	Sentences            []mqag.SentenceResult
}

// Scores returns the sentence scores in input order.
func (r Result) Scores() []float64 {
	return mqag.Scores(r.Sentences)
}

// #endregion
