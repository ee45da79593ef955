package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/inference-worker/internal/installer/domain"
	"github.com/cuongbtq/inference-worker/internal/installer/model"
	"github.com/jmoiron/sqlx"
)

// PostgresStore keeps install requests in the model_install_requests table
type PostgresStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

func NewPostgresStore(db *sqlx.DB, logger *slog.Logger) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: logger,
	}
}

func (s *PostgresStore) Create(ctx context.Context, req *model.InstallRequest) error {
	query := `
		INSERT INTO model_install_requests (
			request_id, model_path, callback_url, status, message, callback_error
		) VALUES (
			$1, $2, $3, $4, $5, $6
		)
		RETURNING created_at, updated_at
	`

	err := s.db.QueryRowxContext(ctx, query,
		req.RequestID,
		req.ModelPath,
		req.CallbackURL,
		req.Status,
		req.Message,
		req.CallbackError,
	).Scan(&req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create install request: %w", err)
	}

	return nil
}

func (s *PostgresStore) Get(ctx context.Context, requestID string) (*model.InstallRequest, error) {
	query := `
		SELECT
			request_id, model_path, callback_url, status,
			message, callback_error, created_at, updated_at
		FROM model_install_requests
		WHERE request_id = $1
	`

	var req model.InstallRequest
	if err := s.db.GetContext(ctx, &req, query, requestID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRequestNotFound
		}
		return nil, fmt.Errorf("failed to get install request: %w", err)
	}

	return &req, nil
}

func (s *PostgresStore) Complete(ctx context.Context, requestID, status, message, callbackErr string) error {
	query := `
		UPDATE model_install_requests
		SET status = $1,
		    message = $2,
		    callback_error = $3,
		    updated_at = NOW()
		WHERE request_id = $4
	`

	result, err := s.db.ExecContext(ctx, query, status, message, callbackErr, requestID)
	if err != nil {
		return fmt.Errorf("failed to update install request: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrRequestNotFound
	}

	s.logger.Info("Install request updated",
		slog.String("request_id", requestID),
		slog.String("status", status),
	)

	return nil
}

func (s *PostgresStore) List(ctx context.Context, filter Filter) ([]model.InstallRequest, error) {
	query := `
		SELECT
			request_id, model_path, callback_url, status,
			message, callback_error, created_at, updated_at
		FROM model_install_requests
		WHERE 1=1
	`
	args := []interface{}{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, request_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.RequestID)
		argIdx += 2
	}

	query += " ORDER BY created_at DESC, request_id DESC"

	// One extra row tells the caller whether there is a next page
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var reqs []model.InstallRequest
	if err := s.db.SelectContext(ctx, &reqs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list install requests: %w", err)
	}

	return reqs, nil
}
