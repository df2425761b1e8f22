// Package question turns a sentence into multiple-choice probes by chaining a
// question-answer generator and a distractor generator.
package question

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/selfcheck-mqag/internal/mqag"
)

// #region interfaces
// TextModel is a sampled text-to-text generator. Both the question-answer
// model and the distractor model satisfy it.
type TextModel interface {
	Generate(ctx context.Context, input string) (string, error)
}

// #endregion interfaces

// #region tokens
// Tokens are the special tokens the generators emit in their decoded output.
type Tokens struct {
	Pad string `yaml:"pad"`
	EOS string `yaml:"eos"`
	Sep string `yaml:"sep"`
}

// DefaultTokens matches the T5 generators the service ships with.
func DefaultTokens() Tokens {
	return Tokens{Pad: "<pad>", EOS: "</s>", Sep: "<sep>"}
}

var sentinel = regexp.MustCompile(`<extra\S+>`)

// #endregion tokens

// #region generator
// Generator produces QuestionItems for a sentence.
type Generator struct {
	qa          TextModel
	distractors TextModel
	tokens      Tokens
	logger      *zap.Logger
}

// NewGenerator wires the two text models together.
func NewGenerator(qa, distractors TextModel, tokens Tokens, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{qa: qa, distractors: distractors, tokens: tokens, logger: logger}
}

// Generate makes numQuestions independent attempts. An attempt whose
// question-answer output is not exactly "question <sep> answer" is dropped
// without error, so fewer items (possibly none) may come back. Items are not
// deduplicated.
func (g *Generator) Generate(ctx context.Context, sentence, passage string, numQuestions int) ([]mqag.QuestionItem, error) {
	items := make([]mqag.QuestionItem, 0, numQuestions)

	for attempt := 0; attempt < numQuestions; attempt++ {
		raw, err := g.qa.Generate(ctx, sentence)
		if err != nil {
			return nil, fmt.Errorf("question generation: %w", err)
		}
		question, answer, ok := g.ParseQuestionAnswer(raw)
		if !ok {
			g.logger.Debug("discarding malformed question", zap.Int("attempt", attempt), zap.String("raw", raw))
			continue
		}

		raw, err = g.distractors.Generate(ctx, g.DistractorInput(passage, question, answer))
		if err != nil {
			return nil, fmt.Errorf("distractor generation: %w", err)
		}

		items = append(items, mqag.QuestionItem{
			Question: question,
			Options:  BuildOptions(answer, g.ParseDistractors(raw)),
		})
	}
	return items, nil
}

// #endregion generator

// #region parsing
func (g *Generator) clean(raw string) string {
	if g.tokens.Pad != "" {
		raw = strings.ReplaceAll(raw, g.tokens.Pad, "")
	}
	if g.tokens.EOS != "" {
		raw = strings.ReplaceAll(raw, g.tokens.EOS, "")
	}
	return raw
}

// ParseQuestionAnswer splits generator output into a question and its answer.
// ok is false unless the output has exactly two separator-delimited segments.
func (g *Generator) ParseQuestionAnswer(raw string) (question, answer string, ok bool) {
	parts := strings.Split(g.clean(raw), g.tokens.Sep)
	if len(parts) != 2 {
		return "", "", false
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), true
}

// DistractorInput formats the distractor model input.
func (g *Generator) DistractorInput(passage, question, answer string) string {
	sep := " " + g.tokens.Sep + " "
	return question + sep + answer + sep + passage
}

// ParseDistractors splits distractor output into trimmed, non-empty options.
func (g *Generator) ParseDistractors(raw string) []string {
	cleaned := sentinel.ReplaceAllLiteralString(g.clean(raw), g.tokens.Sep)

	var out []string
	for _, d := range strings.Split(cleaned, g.tokens.Sep) {
		// empty segments are skipped, so padding repeats the last real option
		// rather than producing a blank one
		if d = strings.TrimSpace(d); d != "" {
			out = append(out, d)
		}
	}
	return out
}

// BuildOptions places the answer first, then the distractors, repeating the
// last option until there are exactly four. Extra distractors are dropped.
func BuildOptions(answer string, distractors []string) [mqag.NumOptions]string {
	var opts [mqag.NumOptions]string
	opts[0] = answer
	n := 1
	for _, d := range distractors {
		if n == mqag.NumOptions {
			break
		}
		opts[n] = d
		n++
	}
	for ; n < mqag.NumOptions; n++ {
		opts[n] = opts[n-1]
	}
	return opts
}

// #endregion parsing
