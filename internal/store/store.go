package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/selfcheck-mqag/internal/mqag"
	"github.com/danielpatrickdp/selfcheck-mqag/internal/scoring"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id                 TEXT PRIMARY KEY,
	method                 TEXT NOT NULL,
	params_json            TEXT NOT NULL,
	passage                TEXT NOT NULL,
	num_samples            INTEGER NOT NULL,
	questions_per_sentence INTEGER NOT NULL,
	created_at             TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sentence_scores (
	run_id       TEXT NOT NULL,
	sentence_idx INTEGER NOT NULL,
	sentence     TEXT NOT NULL,
	score        REAL NOT NULL,
	PRIMARY KEY (run_id, sentence_idx),
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);

CREATE TABLE IF NOT EXISTS question_traces (
	run_id       TEXT NOT NULL,
	sentence_idx INTEGER NOT NULL,
	question_idx INTEGER NOT NULL,
	trace_json   TEXT NOT NULL,
	score        REAL NOT NULL,
	PRIMARY KEY (run_id, sentence_idx, question_idx),
	FOREIGN KEY (run_id, sentence_idx) REFERENCES sentence_scores(run_id, sentence_idx)
);

CREATE TABLE IF NOT EXISTS run_log (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT,
	event       TEXT NOT NULL,
	outcome     TEXT NOT NULL,
	detail_json TEXT,
	reason      TEXT,
	created_at  TEXT NOT NULL
);
`

// #endregion schema

// #region store-struct
// Store persists prediction runs in SQLite.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := migrate(db, dbPath); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func migrate(db *sql.DB, dbPath string) error {
	if dbPath == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages (e.g. logging).
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion close

// #region save-run
// SaveRun stores a run atomically. An empty ID is filled with a new UUID and
// a zero CreatedAt with the current time; the stored run is returned.
func (s *Store) SaveRun(run Run) (Run, error) {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	paramsJSON, err := json.Marshal(run.Params)
	if err != nil {
		return Run{}, fmt.Errorf("marshal params: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return Run{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO runs (run_id, method, params_json, passage, num_samples, questions_per_sentence, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, string(run.Method), string(paramsJSON), run.Passage,
		run.NumSamples, run.QuestionsPerSentence, run.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Run{}, fmt.Errorf("insert run: %w", err)
	}

	for _, sr := range run.Sentences {
		_, err = tx.Exec(
			`INSERT INTO sentence_scores (run_id, sentence_idx, sentence, score) VALUES (?, ?, ?, ?)`,
			run.ID, sr.Index, sr.Sentence, sr.Score,
		)
		if err != nil {
			return Run{}, fmt.Errorf("insert sentence %d: %w", sr.Index, err)
		}
		for qi, trace := range sr.Questions {
			traceJSON, err := json.Marshal(trace)
			if err != nil {
				return Run{}, fmt.Errorf("marshal trace: %w", err)
			}
			_, err = tx.Exec(
				`INSERT INTO question_traces (run_id, sentence_idx, question_idx, trace_json, score) VALUES (?, ?, ?, ?, ?)`,
				run.ID, sr.Index, qi, string(traceJSON), trace.Score,
			)
			if err != nil {
				return Run{}, fmt.Errorf("insert trace %d/%d: %w", sr.Index, qi, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return Run{}, fmt.Errorf("commit: %w", err)
	}
	return run, nil
}

// #endregion save-run

// #region get-run
// GetRun loads a run with all its sentences and traces.
func (s *Store) GetRun(id string) (Run, error) {
	var run Run
	var method, paramsJSON, createdStr string

	err := s.db.QueryRow(
		`SELECT run_id, method, params_json, passage, num_samples, questions_per_sentence, created_at
		 FROM runs WHERE run_id = ?`, id,
	).Scan(&run.ID, &method, &paramsJSON, &run.Passage, &run.NumSamples, &run.QuestionsPerSentence, &createdStr)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("get run %s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("get run %s: %w", id, err)
	}
	run.Method = scoring.Method(method)
	if err := json.Unmarshal([]byte(paramsJSON), &run.Params); err != nil {
		return Run{}, fmt.Errorf("unmarshal params: %w", err)
	}
	if run.CreatedAt, err = parseTime(createdStr); err != nil {
		return Run{}, fmt.Errorf("get run %s: %w", id, err)
	}

	if run.Sentences, err = s.sentences(id); err != nil {
		return Run{}, err
	}
	return run, nil
}

func (s *Store) sentences(runID string) ([]mqag.SentenceResult, error) {
	rows, err := s.db.Query(
		`SELECT sentence_idx, sentence, score FROM sentence_scores WHERE run_id = ? ORDER BY sentence_idx`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query sentences: %w", err)
	}
	defer rows.Close()

	var out []mqag.SentenceResult
	for rows.Next() {
		var sr mqag.SentenceResult
		if err := rows.Scan(&sr.Index, &sr.Sentence, &sr.Score); err != nil {
			return nil, fmt.Errorf("scan sentence: %w", err)
		}
		out = append(out, sr)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		if out[i].Questions, err = s.traces(runID, out[i].Index); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) traces(runID string, sentenceIdx int) ([]mqag.QuestionTrace, error) {
	rows, err := s.db.Query(
		`SELECT trace_json FROM question_traces WHERE run_id = ? AND sentence_idx = ? ORDER BY question_idx`,
		runID, sentenceIdx,
	)
	if err != nil {
		return nil, fmt.Errorf("query traces: %w", err)
	}
	defer rows.Close()

	out := []mqag.QuestionTrace{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan trace: %w", err)
		}
		var tr mqag.QuestionTrace
		if err := json.Unmarshal([]byte(raw), &tr); err != nil {
			return nil, fmt.Errorf("unmarshal trace: %w", err)
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

// #endregion get-run

// #region list-runs
// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(limit int) ([]RunSummary, error) {
	rows, err := s.db.Query(
		`SELECT r.run_id, r.method, r.num_samples, r.created_at,
		        COUNT(ss.sentence_idx), COALESCE(AVG(ss.score), 0)
		 FROM runs r LEFT JOIN sentence_scores ss ON ss.run_id = r.run_id
		 GROUP BY r.run_id
		 ORDER BY r.created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var rs RunSummary
		var method, createdStr string
		if err := rows.Scan(&rs.ID, &method, &rs.NumSamples, &createdStr, &rs.NumSentences, &rs.MeanScore); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		rs.Method = scoring.Method(method)
		if rs.CreatedAt, err = parseTime(createdStr); err != nil {
			return nil, fmt.Errorf("run %s: %w", rs.ID, err)
		}
		out = append(out, rs)
	}
	return out, rows.Err()
}

// #endregion list-runs

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse created_at %q: %w", s, err)
	}
	return t, nil
}
