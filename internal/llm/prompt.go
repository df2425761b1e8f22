// Package llm serves question and distractor generation from a hosted chat
// or completion model instead of the seq2seq models behind the inference
// service. Outputs use the same separator format, so question.Generator
// parses them unchanged.
package llm

import (
	"fmt"
	"strings"
)

// Kind selects which generation task a model instance performs.
type Kind string

const (
	KindQuestionAnswer Kind = "question_answer"
	KindDistractor     Kind = "distractor"
)

// DefaultTemperature keeps generation sampled, matching the seq2seq path.
const DefaultTemperature = 1.0

// Prompt wraps a generator input in an instruction for kind. sep is the
// separator the parser expects between output segments.
func Prompt(kind Kind, sep, input string) (string, error) {
	var b strings.Builder
	switch kind {
	case KindQuestionAnswer:
		fmt.Fprintf(&b, "Write one factual question that is answered by the sentence below, followed by its short answer.\n")
		fmt.Fprintf(&b, "Reply with a single line in the form: QUESTION %s ANSWER\n", sep)
		fmt.Fprintf(&b, "Do not add anything else.\n\nSentence: %s", input)
	case KindDistractor:
		fmt.Fprintf(&b, "The input contains a question, its correct answer and a passage, separated by %s.\n", sep)
		fmt.Fprintf(&b, "Write three plausible but incorrect answers to the question.\n")
		fmt.Fprintf(&b, "Reply with a single line in the form: WRONG1 %s WRONG2 %s WRONG3\n", sep, sep)
		fmt.Fprintf(&b, "Do not add anything else.\n\nInput: %s", input)
	default:
		return "", fmt.Errorf("unknown generation kind %q", kind)
	}
	return b.String(), nil
}
