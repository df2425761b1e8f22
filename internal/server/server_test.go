package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/selfcheck-mqag/internal/config"
	"github.com/danielpatrickdp/selfcheck-mqag/internal/mqag"
	"github.com/danielpatrickdp/selfcheck-mqag/internal/orchestrator"
	"github.com/danielpatrickdp/selfcheck-mqag/internal/scoring"
	"github.com/danielpatrickdp/selfcheck-mqag/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// #region fakes
// fakePredictor scores every sentence with one recorded question whose
// samples all disagree with the original passage.
type fakePredictor struct {
	err  error
	last orchestrator.Request
}

func (f *fakePredictor) Run(_ context.Context, req orchestrator.Request) (orchestrator.Result, error) {
	f.last = req
	if _, err := scoring.NewScorer(req.Method, req.Params); err != nil {
		return orchestrator.Result{}, err
	}
	if f.err != nil {
		return orchestrator.Result{}, f.err
	}
	scorer, _ := scoring.NewScorer(req.Method, req.Params)

	res := orchestrator.Result{
		Method:               req.Method,
		Params:               req.Params,
		NumSamples:           len(req.SampledPassages),
		QuestionsPerSentence: req.QuestionsPerSentence,
	}
	for i, s := range req.Sentences {
		obs := mqag.Observation{
			Prob:          mqag.Distribution{0.7, 0.1, 0.1, 0.1},
			Answerability: 1,
		}
		for range req.SampledPassages {
			obs.SampleProbs = append(obs.SampleProbs, mqag.Distribution{0.1, 0.7, 0.1, 0.1})
			obs.SampleAnswerability = append(obs.SampleAnswerability, 1)
		}
		tr := mqag.QuestionTrace{Item: mqag.QuestionItem{Question: "q?"}, Observation: obs, Score: scorer.Score(obs)}
		res.Sentences = append(res.Sentences, mqag.SentenceResult{
			Index: i, Sentence: s, Score: tr.Score, Questions: []mqag.QuestionTrace{tr},
		})
	}
	return res, nil
}

func newTestServer(t *testing.T, p Predictor, withStore bool) (*gin.Engine, *store.Store) {
	t.Helper()
	var st *store.Store
	if withStore {
		var err error
		st, err = store.NewStore(":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { st.Close() })
	}
	srv := New(p, st, config.Default().Scoring, prometheus.NewRegistry(), nil)
	return srv.Router(), st
}

func do(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func auditRows(t *testing.T, st *store.Store, event, outcome string) int {
	t.Helper()
	var n int
	require.NoError(t, st.DB().QueryRow(
		"SELECT COUNT(*) FROM run_log WHERE event = ? AND outcome = ?", event, outcome,
	).Scan(&n))
	return n
}

// #endregion fakes

// #region predict
func TestPredict_ReturnsOneScorePerSentence(t *testing.T) {
	p := &fakePredictor{}
	r, _ := newTestServer(t, p, false)

	w := do(r, http.MethodPost, "/v1/predict", PredictRequest{
		Sentences:       []string{"a.", "b.", "c."},
		Passage:         "a. b. c.",
		SampledPassages: []string{"x", "y"},
		ScoringMethod:   "counting",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp ScoresResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []float64{1, 1, 1}, resp.Scores)
	assert.Equal(t, scoring.MethodCounting, resp.Method)
	assert.Empty(t, resp.RunID)
}

func TestPredict_AppliesDefaults(t *testing.T) {
	p := &fakePredictor{}
	r, _ := newTestServer(t, p, false)

	w := do(r, http.MethodPost, "/v1/predict", PredictRequest{
		Sentences: []string{"a."},
		Params:    scoring.Params{Beta1: scoring.Float(0.6)},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.Equal(t, scoring.MethodBayesWithAlpha, p.last.Method)
	assert.Equal(t, 5, p.last.QuestionsPerSentence)
	assert.InDelta(t, 0.6, *p.last.Params.Beta1, 1e-12)
	assert.InDelta(t, 0.8, *p.last.Params.Beta2, 1e-12)
}

func TestPredict_ValidationIsBadRequest(t *testing.T) {
	r, _ := newTestServer(t, &fakePredictor{}, false)

	w := do(r, http.MethodPost, "/v1/predict", PredictRequest{Sentences: []string{"a."}, ScoringMethod: "median"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/v1/predict", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPredict_DefaultsQuestionCount(t *testing.T) {
	p := &fakePredictor{}
	r, _ := newTestServer(t, p, false)

	w := do(r, http.MethodPost, "/v1/predict", PredictRequest{Sentences: []string{"a."}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, config.Default().Scoring.QuestionsPerSentence, p.last.QuestionsPerSentence)

	p.err = fmt.Errorf("sentence 0: %w", orchestrator.ErrInvalidRequest)
	w = do(r, http.MethodPost, "/v1/predict", PredictRequest{Sentences: []string{"a."}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPredict_InferenceFailureIsBadGateway(t *testing.T) {
	p := &fakePredictor{err: fmt.Errorf("sentence 0: %w", errors.New("connection refused"))}
	r, st := newTestServer(t, p, true)

	w := do(r, http.MethodPost, "/v1/predict", PredictRequest{Sentences: []string{"a."}})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, 1, auditRows(t, st, "predict", "failed"))
}

func TestPredict_PersistWithoutStore(t *testing.T) {
	r, _ := newTestServer(t, &fakePredictor{}, false)
	w := do(r, http.MethodPost, "/v1/predict", PredictRequest{Sentences: []string{"a."}, Persist: true})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

// #endregion predict

// #region runs
func TestPersistInspectRescore(t *testing.T) {
	r, st := newTestServer(t, &fakePredictor{}, true)

	w := do(r, http.MethodPost, "/v1/predict", PredictRequest{
		Sentences:       []string{"a.", "b."},
		SampledPassages: []string{"x", "y", "z"},
		ScoringMethod:   "counting",
		Persist:         true,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var pred ScoresResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pred))
	require.NotEmpty(t, pred.RunID)
	assert.Equal(t, 1, auditRows(t, st, "predict", "ok"))

	// list
	w = do(r, http.MethodGet, "/v1/runs?limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Runs []store.RunSummary `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Runs, 1)
	assert.Equal(t, pred.RunID, list.Runs[0].ID)
	assert.Equal(t, 2, list.Runs[0].NumSentences)

	// get
	w = do(r, http.MethodGet, "/v1/runs/"+pred.RunID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var run store.Run
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &run))
	assert.Equal(t, 3, run.NumSamples)
	require.Len(t, run.Sentences, 2)
	assert.Len(t, run.Sentences[0].Questions, 1)

	// rescore: three full-weight mismatches under beta1=beta2=0.8 give 64/65
	w = do(r, http.MethodPost, "/v1/runs/"+pred.RunID+"/rescore", RescoreRequest{
		ScoringMethod: "bayes_with_alpha",
		Params:        scoring.Params{Beta1: scoring.Float(0.8), Beta2: scoring.Float(0.8)},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var rescored ScoresResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rescored))
	require.Len(t, rescored.Scores, 2)
	assert.InDelta(t, 64.0/65.0, rescored.Scores[0], 1e-12)
	assert.Equal(t, 1, auditRows(t, st, "rescore", "ok"))

	// rescore with no body keeps the stored method
	w = do(r, http.MethodPost, "/v1/runs/"+pred.RunID+"/rescore", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rescored))
	assert.Equal(t, scoring.MethodCounting, rescored.Method)
	assert.Equal(t, []float64{1, 1}, rescored.Scores)
}

func TestRuns_NotFound(t *testing.T) {
	r, st := newTestServer(t, &fakePredictor{}, true)

	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/v1/runs/nope", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodPost, "/v1/runs/nope/rescore", RescoreRequest{}).Code)
	assert.Equal(t, 1, auditRows(t, st, "rescore", "failed"))
}

func TestRuns_BadLimit(t *testing.T) {
	r, _ := newTestServer(t, &fakePredictor{}, true)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/v1/runs?limit=0", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/v1/runs?limit=ten", nil).Code)
}

func TestRuns_EmptyList(t *testing.T) {
	r, _ := newTestServer(t, &fakePredictor{}, true)
	w := do(r, http.MethodGet, "/v1/runs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"runs":[]}`, w.Body.String())
}

func TestRuns_NoStore(t *testing.T) {
	r, _ := newTestServer(t, &fakePredictor{}, false)
	assert.Equal(t, http.StatusServiceUnavailable, do(r, http.MethodGet, "/v1/runs", nil).Code)
}

// #endregion runs

func TestHealthAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "selfcheck_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	r := New(&fakePredictor{}, nil, config.Default().Scoring, reg, nil).Router()

	w := do(r, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = do(r, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "selfcheck_test_total 1")
}
