package store

import (
	"errors"
	"time"

	"github.com/danielpatrickdp/selfcheck-mqag/internal/mqag"
	"github.com/danielpatrickdp/selfcheck-mqag/internal/scoring"
)

// ErrRunNotFound is returned when a run ID has no stored record.
var ErrRunNotFound = errors.New("run not found")

// #region run
// Run is one persisted prediction: its configuration plus every sentence and
// question trace, enough to re-score offline.
type Run struct {
	ID                   string                `json:"id"`
	CreatedAt            time.Time             `json:"created_at"`
	Method               scoring.Method        `json:"method"`
	Params               scoring.Params        `json:"params"`
	Passage              string                `json:"passage"`
	NumSamples           int                   `json:"num_samples"`
	QuestionsPerSentence int                   `json:"questions_per_sentence"`
	Sentences            []mqag.SentenceResult `json:"sentences"`
}

// RunSummary is the listing view of a run.
type RunSummary struct {
	ID           string         `json:"id"`
	CreatedAt    time.Time      `json:"created_at"`
	Method       scoring.Method `json:"method"`
	NumSamples   int            `json:"num_samples"`
	NumSentences int            `json:"num_sentences"`
	MeanScore    float64        `json:"mean_score"`
}

// #endregion run
