// SPDX-License-Identifier: Apache-2.0

package repository

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/adiadia/approval-engine/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DirectoryRepository resolves employee numbers against the org directory.
type DirectoryRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewDirectoryRepository(pool *pgxpool.Pool, logger *slog.Logger) *DirectoryRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &DirectoryRepository{
		pool:   pool,
		logger: logger,
	}
}

// Lookup never fails on an unknown user: the raw id stands in for the name.
func (r *DirectoryRepository) Lookup(ctx context.Context, userID string) (domain.Person, error) {
	person := domain.Person{ID: userID, Name: userID}
	if strings.TrimSpace(userID) == "" {
		return person, nil
	}

	err := r.pool.QueryRow(ctx,
		`SELECT name, dept_cd, dept_name FROM employee_directory WHERE emp_no=$1`,
		userID,
	).Scan(&person.Name, &person.DeptCode, &person.DeptName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Person{ID: userID, Name: userID}, nil
		}
		r.logger.Error("directory lookup failed", "user_id", userID, "error", err)
		return domain.Person{}, err
	}

	if person.Name == "" {
		person.Name = userID
	}
	return person, nil
}
