package main

import (
	"encoding/json"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/danielpatrickdp/selfcheck-mqag/internal/answer"
	"github.com/danielpatrickdp/selfcheck-mqag/internal/codec"
	"github.com/danielpatrickdp/selfcheck-mqag/internal/config"
	"github.com/danielpatrickdp/selfcheck-mqag/internal/llm"
	"github.com/danielpatrickdp/selfcheck-mqag/internal/logging"
	"github.com/danielpatrickdp/selfcheck-mqag/internal/orchestrator"
	"github.com/danielpatrickdp/selfcheck-mqag/internal/question"
	"github.com/danielpatrickdp/selfcheck-mqag/internal/store"
)

// #region pipeline
// buildOrchestrator connects to the inference service and assembles the
// scoring pipeline. The returned func closes the connection.
func (a *app) buildOrchestrator(reg prometheus.Registerer) (*orchestrator.Orchestrator, func() error, error) {
	metrics := codec.NewMetrics(reg)
	client, err := codec.NewClient(a.cfg.Infer.Addr,
		[]grpc.DialOption{metrics.DialOption()},
		codec.WithMaxNewTokens(a.cfg.Infer.MaxNewTokens),
		codec.WithMaxLength(a.cfg.Infer.MaxLength),
		codec.WithLogger(a.logger),
	)
	if err != nil {
		return nil, nil, err
	}

	qa, distractors, err := a.textModels(client)
	if err != nil {
		client.Close()
		return nil, nil, err
	}

	gen := question.NewGenerator(qa, distractors, a.cfg.Tokens.Tokens, a.logger)
	orch := orchestrator.New(gen,
		answer.NewAnswerer(client, a.cfg.Tokens.BOS),
		answer.NewAnswerabilityScorer(client, a.cfg.Tokens.Sep),
		orchestrator.WithWorkers(a.cfg.Workers),
		orchestrator.WithLogger(a.logger),
	)
	return orch, client.Close, nil
}

// textModels picks the question and distractor generators for the
// configured backend.
func (a *app) textModels(client *codec.Client) (question.TextModel, question.TextModel, error) {
	g := a.cfg.Gen
	sep := a.cfg.Tokens.Sep

	switch g.Backend {
	case config.BackendOllama:
		oc, err := llm.NewOllamaClient(g.OllamaHost)
		if err != nil {
			return nil, nil, err
		}
		return llm.NewOllamaModel(oc, g.OllamaModel, llm.KindQuestionAnswer, sep, a.logger),
			llm.NewOllamaModel(oc, g.OllamaModel, llm.KindDistractor, sep, a.logger), nil
	case config.BackendOpenAI:
		oc := llm.NewOpenAIClient(g.OpenAIKey, g.OpenAIBaseURL)
		return llm.NewOpenAIModel(oc, g.OpenAIModel, llm.KindQuestionAnswer, sep, a.logger),
			llm.NewOpenAIModel(oc, g.OpenAIModel, llm.KindDistractor, sep, a.logger), nil
	case config.BackendGRPC:
		return client.TextModel(codec.ModelQuestionAnswer), client.TextModel(codec.ModelDistractor), nil
	default:
		return nil, nil, fmt.Errorf("unknown generator backend %q", g.Backend)
	}
}

// #endregion pipeline

// #region audit
func (a *app) openStore() (*store.Store, error) {
	st, err := store.NewStore(a.cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", a.cfg.DBPath, err)
	}
	return st, nil
}

// audit records an invocation in run_log; a failure is only logged.
func (a *app) audit(st *store.Store, runID, event string, runErr error, detail any) {
	e := logging.Event{RunID: runID, Event: event, Outcome: logging.OutcomeOK}
	if runErr != nil {
		e.Outcome = logging.OutcomeFailed
		e.Reason = runErr.Error()
	}
	if detail != nil {
		if b, err := json.Marshal(detail); err == nil {
			e.DetailJSON = string(b)
		}
	}
	if err := logging.LogEvent(st.DB(), e); err != nil {
		a.logger.Warn("audit log failed", zap.Error(err))
	}
}

// #endregion audit
