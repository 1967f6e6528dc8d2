package data

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mchmarny/chimera/pkg/model"
	"github.com/mchmarny/chimera/pkg/score"
	"github.com/samber/lo"
)

const sampleBatchSize = 500

var (
	insertSample = `INSERT INTO sample (batch, pitch_strength_score, identity_model_score, momentum_tracker_score, funded)
		VALUES (?, ?, ?, ?, ?)`

	selectSamples = `SELECT pitch_strength_score, identity_model_score, momentum_tracker_score, funded
		FROM sample WHERE batch = ? ORDER BY id`

	countSamples = `SELECT COUNT(*) FROM sample WHERE batch = ?`

	deleteSamples = `DELETE FROM sample WHERE batch = ?`
)

// SaveSamples replaces the rows stored under batch with list.
func SaveSamples(db *sql.DB, batch string, list []model.Sample) error {
	if db == nil {
		return errDBNotInitialized
	}
	if batch == "" {
		return errors.New("batch required")
	}

	if _, err := db.Exec(deleteSamples, batch); err != nil {
		return fmt.Errorf("clearing batch %s: %w", batch, err)
	}

	for _, chunk := range lo.Chunk(list, sampleBatchSize) {
		if err := saveSampleChunk(db, batch, chunk); err != nil {
			return err
		}
	}
	return nil
}

func saveSampleChunk(db *sql.DB, batch string, chunk []model.Sample) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	stmt, err := tx.Prepare(insertSample)
	if err != nil {
		rollbackTransaction(tx)
		return fmt.Errorf("preparing sample insert statement: %w", err)
	}
	defer stmt.Close()

	for _, s := range chunk {
		if _, err := stmt.Exec(batch, s.Input.Pitch, s.Input.Identity, s.Input.Momentum, s.Funded); err != nil {
			rollbackTransaction(tx)
			return fmt.Errorf("inserting sample: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing samples: %w", err)
	}
	return nil
}

// GetSamples returns the rows of batch in insertion order.
func GetSamples(db *sql.DB, batch string) ([]model.Sample, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	rows, err := db.Query(selectSamples, batch)
	if err != nil {
		return nil, fmt.Errorf("querying samples: %w", err)
	}
	defer rows.Close()

	list := make([]model.Sample, 0)
	for rows.Next() {
		var in score.Input
		var funded bool
		if err := rows.Scan(&in.Pitch, &in.Identity, &in.Momentum, &funded); err != nil {
			return nil, fmt.Errorf("scanning sample: %w", err)
		}
		list = append(list, model.Sample{Input: in, Funded: funded})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating samples: %w", err)
	}
	return list, nil
}

// CountSamples returns the number of rows in batch.
func CountSamples(db *sql.DB, batch string) (int, error) {
	if db == nil {
		return 0, errDBNotInitialized
	}

	var n int
	if err := db.QueryRow(countSamples, batch).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting samples: %w", err)
	}
	return n, nil
}

func rollbackTransaction(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		slog.Error("failed to rollback transaction", "error", err)
	}
}
