package replay

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/danielpatrickdp/selfcheck-mqag/internal/mqag"
	"github.com/danielpatrickdp/selfcheck-mqag/internal/scoring"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture: recorded
// traces plus the sentence scores they are expected to produce.
type Fixture struct {
	Description    string                `json:"description"`
	Method         scoring.Method        `json:"method"`
	Params         scoring.Params        `json:"params"`
	Sentences      []mqag.SentenceResult `json:"sentences"`
	ExpectedScores []float64             `json:"expected_scores"`
}

// Mismatch describes one sentence whose rescored value drifted from the
// fixture's expectation.
type Mismatch struct {
	Index    int     `json:"index"`
	Expected float64 `json:"expected"`
	Actual   float64 `json:"actual"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	if len(f.ExpectedScores) != 0 && len(f.ExpectedScores) != len(f.Sentences) {
		return nil, fmt.Errorf("fixture %s: %d expected scores for %d sentences",
			path, len(f.ExpectedScores), len(f.Sentences))
	}
	return &f, nil
}

// #endregion fixture-loader

// #region check
// Check rescores the fixture with its own method and params and reports every
// sentence whose score differs from ExpectedScores by more than tolerance.
func (f *Fixture) Check(tolerance float64) ([]Mismatch, error) {
	rescored, err := Rescore(f.Sentences, f.Method, f.Params)
	if err != nil {
		return nil, err
	}
	var out []Mismatch
	for i, want := range f.ExpectedScores {
		got := rescored[i].Score
		if math.Abs(got-want) > tolerance {
			out = append(out, Mismatch{Index: rescored[i].Index, Expected: want, Actual: got})
		}
	}
	return out, nil
}

// #endregion check
