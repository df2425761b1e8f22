package orchestrator

// #region imports
import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/selfcheck-mqag/internal/mqag"
	"github.com/danielpatrickdp/selfcheck-mqag/internal/scoring"
)

// #endregion

// #region orchestrator-struct

// Orchestrator drives question generation, answering and answerability
// checks for every sentence and turns them into inconsistency scores.
type Orchestrator struct {
	generator     QuestionGenerator
	answerer      Answerer
	answerability AnswerabilityScorer
	workers       int
	logger        *zap.Logger
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithWorkers lets up to n sampled-passage lookups for one question run at
// once. n <= 1 keeps every inference call sequential.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) { o.workers = n }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// #endregion

// #region constructor

// New creates an orchestrator over the given collaborators.
func New(gen QuestionGenerator, ans Answerer, u AnswerabilityScorer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		generator:     gen,
		answerer:      ans,
		answerability: u,
		workers:       1,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// #endregion

// #region predict

// Predict returns one inconsistency score per sentence, in input order.
func (o *Orchestrator) Predict(ctx context.Context, req Request) ([]float64, error) {
	res, err := o.Run(ctx, req)
	if err != nil {
		return nil, err
	}
	return res.Scores(), nil
}

// Run is Predict with full per-question traces. The method and its
// parameters are validated before any inference call; any collaborator
// failure aborts the whole batch. Zero questions per sentence makes no
// attempts and scores every sentence 0.5.
func (o *Orchestrator) Run(ctx context.Context, req Request) (Result, error) {
	if req.QuestionsPerSentence < 0 {
		return Result{}, fmt.Errorf("%w: questions per sentence %d is negative", ErrInvalidRequest, req.QuestionsPerSentence)
	}
	scorer, err := scoring.NewScorer(req.Method, req.Params)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Method:               req.Method,
		Params:               req.Params,
		NumSamples:           len(req.SampledPassages),
		QuestionsPerSentence: req.QuestionsPerSentence,
		Sentences:            make([]mqag.SentenceResult, 0, len(req.Sentences)),
	}

	for i, sentence := range req.Sentences {
		sr, err := o.scoreSentence(ctx, scorer, req, i, sentence)
		if err != nil {
			return Result{}, fmt.Errorf("sentence %d: %w", i, err)
		}
		res.Sentences = append(res.Sentences, sr)
	}
	return res, nil
}

// #endregion

// #region sentence

func (o *Orchestrator) scoreSentence(ctx context.Context, scorer *scoring.Scorer, req Request, idx int, sentence string) (mqag.SentenceResult, error) {
	var items []mqag.QuestionItem
	if req.QuestionsPerSentence > 0 {
		var err error
		if items, err = o.generator.Generate(ctx, sentence, req.Passage, req.QuestionsPerSentence); err != nil {
			return mqag.SentenceResult{}, err
		}
	}

	traces := make([]mqag.QuestionTrace, 0, len(items))
	scores := make([]float64, 0, len(items))
	for qi, item := range items {
		obs, err := o.observe(ctx, item, req.Passage, req.SampledPassages)
		if err != nil {
			return mqag.SentenceResult{}, fmt.Errorf("question %d: %w", qi, err)
		}
		score := scorer.Score(obs)
		o.logger.Debug("question scored",
			zap.Int("sentence", idx),
			zap.Int("question", qi),
			zap.String("text", item.Question),
			zap.Int("answer", obs.Prob.Argmax()),
			zap.Float64("u_score", obs.Answerability),
			zap.Float64("score", score))

		traces = append(traces, mqag.QuestionTrace{Item: item, Observation: obs, Score: score})
		scores = append(scores, score)
	}

	sentScore := scoring.Aggregate(scores)
	o.logger.Info("sentence scored",
		zap.Int("sentence", idx),
		zap.Int("questions", len(items)),
		zap.Int("requested", req.QuestionsPerSentence),
		zap.String("method", string(scorer.Method())),
		zap.Float64("score", sentScore))

	return mqag.SentenceResult{
		Index:     idx,
		Sentence:  sentence,
		Score:     sentScore,
		Questions: traces,
	}, nil
}

// #endregion

// #region observe

// observe answers one item against the passage and every sampled passage.
// The same options array is passed to every call so argmax indices compare.
func (o *Orchestrator) observe(ctx context.Context, item mqag.QuestionItem, passage string, samples []string) (mqag.Observation, error) {
	var obs mqag.Observation
	var err error

	if obs.Prob, err = o.answerer.Answer(ctx, item.Question, item.Options, passage); err != nil {
		return obs, err
	}
	if obs.Answerability, err = o.answerability.Score(ctx, item.Question, passage); err != nil {
		return obs, err
	}

	obs.SampleProbs = make([]mqag.Distribution, len(samples))
	obs.SampleAnswerability = make([]float64, len(samples))

	if o.workers <= 1 {
		for s, sampled := range samples {
			if err := o.observeSample(ctx, item, sampled, s, &obs); err != nil {
				return obs, err
			}
		}
		return obs, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)
	for s, sampled := range samples {
		g.Go(func() error {
			return o.observeSample(gctx, item, sampled, s, &obs)
		})
	}
	return obs, g.Wait()
}

// observeSample fills slot s; slots are disjoint so concurrent writers are safe.
func (o *Orchestrator) observeSample(ctx context.Context, item mqag.QuestionItem, sampled string, s int, obs *mqag.Observation) error {
	prob, err := o.answerer.Answer(ctx, item.Question, item.Options, sampled)
	if err != nil {
		return fmt.Errorf("sample %d: %w", s, err)
	}
	u, err := o.answerability.Score(ctx, item.Question, sampled)
	if err != nil {
		return fmt.Errorf("sample %d: %w", s, err)
	}
	obs.SampleProbs[s] = prob
	obs.SampleAnswerability[s] = u
	return nil
}

// #endregion
