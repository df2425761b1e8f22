package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/selfcheck-mqag/internal/logging"
	"github.com/danielpatrickdp/selfcheck-mqag/internal/mqag"
	"github.com/danielpatrickdp/selfcheck-mqag/internal/orchestrator"
	"github.com/danielpatrickdp/selfcheck-mqag/internal/replay"
	"github.com/danielpatrickdp/selfcheck-mqag/internal/scoring"
	"github.com/danielpatrickdp/selfcheck-mqag/internal/store"
)

// #region types
// PredictRequest is the body of POST /v1/predict.
type PredictRequest struct {
	Sentences           []string       `json:"sentences"`
	Passage             string         `json:"passage"`
	SampledPassages     []string       `json:"sampled_passages"`
	NumQuestionsPerSent int            `json:"num_questions_per_sent"`
	ScoringMethod       string         `json:"scoring_method"`
	Params              scoring.Params `json:"params"`
	Persist             bool           `json:"persist"`
}

// RescoreRequest is the body of POST /v1/runs/:id/rescore.
type RescoreRequest struct {
	ScoringMethod string         `json:"scoring_method"`
	Params        scoring.Params `json:"params"`
}

// ScoresResponse carries one score per sentence, in input order.
type ScoresResponse struct {
	RunID  string         `json:"run_id,omitempty"`
	Method scoring.Method `json:"method"`
	Scores []float64      `json:"scores"`
}

// ErrorResponse is returned on every non-2xx answer.
type ErrorResponse struct {
	Error string `json:"error"`
}

// #endregion types

// #region predict
func (s *Server) handlePredict(c *gin.Context) {
	var req PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	if req.Persist && s.store == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "persistence is not configured"})
		return
	}

	oreq := orchestrator.Request{
		Sentences:            req.Sentences,
		Passage:              req.Passage,
		SampledPassages:      req.SampledPassages,
		QuestionsPerSentence: req.NumQuestionsPerSent,
		Method:               s.method(req.ScoringMethod),
		Params:               req.Params.Merge(s.defaults.Params),
	}
	if oreq.QuestionsPerSentence <= 0 {
		oreq.QuestionsPerSentence = s.defaults.QuestionsPerSentence
	}

	res, err := s.predictor.Run(c.Request.Context(), oreq)
	if err != nil {
		s.audit("", "predict", logging.OutcomeFailed, err.Error(), nil)
		if isValidation(err) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
		s.logger.Error("predict failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: err.Error()})
		return
	}

	resp := ScoresResponse{Method: res.Method, Scores: res.Scores()}
	if req.Persist {
		run, err := s.store.SaveRun(store.Run{
			Method:               res.Method,
			Params:               res.Params,
			Passage:              req.Passage,
			NumSamples:           res.NumSamples,
			QuestionsPerSentence: res.QuestionsPerSentence,
			Sentences:            res.Sentences,
		})
		if err != nil {
			s.logger.Error("save run failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
			return
		}
		resp.RunID = run.ID
	}
	s.audit(resp.RunID, "predict", logging.OutcomeOK, "", map[string]any{
		"sentences": len(req.Sentences),
		"samples":   res.NumSamples,
		"method":    res.Method,
	})
	c.JSON(http.StatusOK, resp)
}

// #endregion predict

// #region runs
func (s *Server) handleListRuns(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}
	limit := 20
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}
	runs, err := s.store.ListRuns(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	if runs == nil {
		runs = []store.RunSummary{}
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *Server) handleGetRun(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}
	run, err := s.store.GetRun(c.Param("id"))
	if err != nil {
		s.runError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Server) handleRescore(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}
	var req RescoreRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	id := c.Param("id")
	run, err := s.store.GetRun(id)
	if err != nil {
		s.audit(id, "rescore", logging.OutcomeFailed, err.Error(), nil)
		s.runError(c, err)
		return
	}

	method := run.Method
	if req.ScoringMethod != "" {
		method = scoring.Method(req.ScoringMethod)
	}
	params := req.Params.Merge(run.Params).Merge(s.defaults.Params)

	rescored, err := replay.Rescore(run.Sentences, method, params)
	if err != nil {
		s.audit(id, "rescore", logging.OutcomeFailed, err.Error(), nil)
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	s.audit(id, "rescore", logging.OutcomeOK, "", map[string]any{"method": method})
	c.JSON(http.StatusOK, ScoresResponse{RunID: id, Method: method, Scores: mqag.Scores(rescored)})
}

// #endregion runs

// #region helpers
func (s *Server) method(name string) scoring.Method {
	if name == "" {
		return s.defaults.Method
	}
	return scoring.Method(name)
}

func (s *Server) requireStore(c *gin.Context) bool {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "persistence is not configured"})
		return false
	}
	return true
}

func (s *Server) runError(c *gin.Context, err error) {
	if errors.Is(err, store.ErrRunNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
}

// audit writes a run_log row; failures are logged and otherwise ignored.
func (s *Server) audit(runID, event, outcome, reason string, detail map[string]any) {
	if s.store == nil {
		return
	}
	var detailJSON string
	if detail != nil {
		if b, err := json.Marshal(detail); err == nil {
			detailJSON = string(b)
		}
	}
	err := logging.LogEvent(s.store.DB(), logging.Event{
		RunID:      runID,
		Event:      event,
		Outcome:    outcome,
		DetailJSON: detailJSON,
		Reason:     reason,
	})
	if err != nil {
		s.logger.Warn("audit log failed", zap.Error(err))
	}
}

func isValidation(err error) bool {
	return errors.Is(err, orchestrator.ErrInvalidRequest) ||
		errors.Is(err, scoring.ErrUnknownMethod) ||
		errors.Is(err, scoring.ErrMissingParam) ||
		errors.Is(err, scoring.ErrInvalidParam)
}

// #endregion helpers
