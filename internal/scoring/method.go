package scoring

import (
	"errors"
	"fmt"

	"github.com/montanaflynn/stats"

	"github.com/danielpatrickdp/selfcheck-mqag/internal/mqag"
)

// #region errors
var (
	// ErrUnknownMethod is returned for a scoring method name that is not recognised.
	ErrUnknownMethod = errors.New("unknown scoring method")
	// ErrMissingParam is returned when a method is missing a parameter it needs.
	ErrMissingParam = errors.New("missing scoring parameter")
	// ErrInvalidParam is returned when a parameter is outside its domain.
	ErrInvalidParam = errors.New("invalid scoring parameter")
)

// #endregion errors

// #region method
// Method names one of the inconsistency scoring formulas.
type Method string

const (
	MethodCounting       Method = "counting"
	MethodBayes          Method = "bayes"
	MethodBayesWithAlpha Method = "bayes_with_alpha"
)

// Methods lists every supported method.
var Methods = []Method{MethodCounting, MethodBayes, MethodBayesWithAlpha}

// ParseMethod validates a method name.
func ParseMethod(name string) (Method, error) {
	for _, m := range Methods {
		if string(m) == name {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMethod, name)
}

// #endregion method

// #region params
// Params carries the method-specific parameters. A nil field means the
// caller did not supply it.
//
// Beta1 and Beta2 must lie strictly inside (0,1); AT must lie in [0,1].
type Params struct {
	AT    *float64 `json:"AT,omitempty" yaml:"at,omitempty"`
	Beta1 *float64 `json:"beta1,omitempty" yaml:"beta1,omitempty"`
	Beta2 *float64 `json:"beta2,omitempty" yaml:"beta2,omitempty"`
}

// Float returns a pointer to v, for building Params literals.
func Float(v float64) *float64 {
	return &v
}

// Merge returns p with every unset field taken from fallback.
func (p Params) Merge(fallback Params) Params {
	if p.AT == nil {
		p.AT = fallback.AT
	}
	if p.Beta1 == nil {
		p.Beta1 = fallback.Beta1
	}
	if p.Beta2 == nil {
		p.Beta2 = fallback.Beta2
	}
	return p
}

func requireParam(m Method, name string, v *float64) (float64, error) {
	if v == nil {
		return 0, fmt.Errorf("%w: %s requires %s", ErrMissingParam, m, name)
	}
	return *v, nil
}

func openUnit(name string, v float64) error {
	if !(v > 0 && v < 1) {
		return fmt.Errorf("%w: %s=%v must be in (0,1)", ErrInvalidParam, name, v)
	}
	return nil
}

// #endregion params

// #region scorer
// Scorer applies one configured method to observations.
type Scorer struct {
	method Method
	at     float64
	beta1  float64
	beta2  float64
}

// NewScorer checks that params cover everything method needs and returns a
// ready scorer. Parameters the method does not use are ignored.
func NewScorer(method Method, params Params) (*Scorer, error) {
	s := &Scorer{method: method}
	var err error

	switch method {
	case MethodCounting, MethodBayes:
		if s.at, err = requireParam(method, "AT", params.AT); err != nil {
			return nil, err
		}
		if s.at < 0 || s.at > 1 {
			return nil, fmt.Errorf("%w: AT=%v must be in [0,1]", ErrInvalidParam, s.at)
		}
	case MethodBayesWithAlpha:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}

	if method == MethodBayes || method == MethodBayesWithAlpha {
		if s.beta1, err = requireParam(method, "beta1", params.Beta1); err != nil {
			return nil, err
		}
		if s.beta2, err = requireParam(method, "beta2", params.Beta2); err != nil {
			return nil, err
		}
		if err := openUnit("beta1", s.beta1); err != nil {
			return nil, err
		}
		if err := openUnit("beta2", s.beta2); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Method returns the configured method.
func (s *Scorer) Method() Method {
	return s.method
}

// Score computes the inconsistency score of one question.
func (s *Scorer) Score(obs mqag.Observation) float64 {
	switch s.method {
	case MethodCounting:
		return Counting(obs, s.at)
	case MethodBayes:
		return Bayes(obs, s.beta1, s.beta2, s.at)
	default:
		return BayesWithAlpha(obs, s.beta1, s.beta2)
	}
}

// #endregion scorer

// #region aggregate
// Aggregate averages per-question scores into a sentence score. A sentence
// with no usable questions gets the neutral score.
func Aggregate(scores []float64) float64 {
	mean, err := stats.Mean(scores)
	if err != nil {
		return mqag.NeutralScore
	}
	return mean
}

// #endregion aggregate
