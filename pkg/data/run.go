package data

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mchmarny/chimera/pkg/model"
)

const defaultRunLimit = 20

var (
	insertRun = `INSERT INTO training_run (id, created_at, batch, samples, seed, params,
		roc_auc, accuracy, precision, recall, f1, cv_mean, cv_std, model_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectRuns = `SELECT id, created_at, batch, samples, seed, params,
		roc_auc, accuracy, precision, recall, f1, cv_mean, cv_std, model_path
		FROM training_run ORDER BY created_at DESC, id LIMIT ?`

	selectRun = `SELECT id, created_at, batch, samples, seed, params,
		roc_auc, accuracy, precision, recall, f1, cv_mean, cv_std, model_path
		FROM training_run WHERE id = ?`
)

// ErrRunNotFound is returned by GetRun for unknown IDs.
var ErrRunNotFound = errors.New("training run not found")

// TrainingRun records one execution of the train command.
type TrainingRun struct {
	ID        string       `json:"id" yaml:"id"`
	CreatedAt time.Time    `json:"created_at" yaml:"created_at"`
	Batch     string       `json:"batch" yaml:"batch"`
	Samples   int          `json:"samples" yaml:"samples"`
	Seed      uint64       `json:"seed" yaml:"seed"`
	Params    model.Params `json:"params" yaml:"params"`
	AUC       float64      `json:"roc_auc" yaml:"roc_auc"`
	Accuracy  float64      `json:"accuracy" yaml:"accuracy"`
	Precision float64      `json:"precision" yaml:"precision"`
	Recall    float64      `json:"recall" yaml:"recall"`
	F1        float64      `json:"f1" yaml:"f1"`
	CVMean    float64      `json:"cv_mean" yaml:"cv_mean"`
	CVStd     float64      `json:"cv_std" yaml:"cv_std"`
	ModelPath string       `json:"model_path" yaml:"model_path"`
}

// SaveRun inserts r, assigning an ID and timestamp when they are unset.
func SaveRun(db *sql.DB, r *TrainingRun) error {
	if db == nil {
		return errDBNotInitialized
	}
	if r == nil {
		return errors.New("training run required")
	}

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	params, err := json.Marshal(r.Params)
	if err != nil {
		return fmt.Errorf("marshaling params: %w", err)
	}

	if _, err := db.Exec(insertRun, r.ID, r.CreatedAt.UnixMilli(), r.Batch, r.Samples, int64(r.Seed), string(params),
		r.AUC, r.Accuracy, r.Precision, r.Recall, r.F1, r.CVMean, r.CVStd, r.ModelPath); err != nil {
		return fmt.Errorf("inserting training run %s: %w", r.ID, err)
	}
	return nil
}

// ListRuns returns up to limit runs, newest first.
func ListRuns(db *sql.DB, limit int) ([]*TrainingRun, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}
	if limit <= 0 {
		limit = defaultRunLimit
	}

	rows, err := db.Query(selectRuns, limit)
	if err != nil {
		return nil, fmt.Errorf("querying training runs: %w", err)
	}
	defer rows.Close()

	list := make([]*TrainingRun, 0)
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating training runs: %w", err)
	}
	return list, nil
}

// GetRun returns the run with id or ErrRunNotFound.
func GetRun(db *sql.DB, id string) (*TrainingRun, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	r, err := scanRun(db.QueryRow(selectRun, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	return r, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*TrainingRun, error) {
	var (
		r       TrainingRun
		created int64
		seed    int64
		params  string
	)
	if err := row.Scan(&r.ID, &created, &r.Batch, &r.Samples, &seed, &params,
		&r.AUC, &r.Accuracy, &r.Precision, &r.Recall, &r.F1, &r.CVMean, &r.CVStd, &r.ModelPath); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning training run: %w", err)
	}

	if err := json.Unmarshal([]byte(params), &r.Params); err != nil {
		return nil, fmt.Errorf("decoding params of run %s: %w", r.ID, err)
	}
	r.CreatedAt = time.UnixMilli(created).UTC()
	r.Seed = uint64(seed)
	return &r, nil
}
