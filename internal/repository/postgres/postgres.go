package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/EasyAdvertisers/alfreyaa-app/internal/domain"
	"github.com/EasyAdvertisers/alfreyaa-app/internal/repository"
)

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ensure Repository satisfies interfaces.
var (
	_ repository.UserRepository       = (*Repository)(nil)
	_ repository.TurnRepository       = (*Repository)(nil)
	_ repository.DeploymentRepository = (*Repository)(nil)
)

// CreateUser inserts a user.
func (r *Repository) CreateUser(ctx context.Context, user *domain.User) error {
	const query = `INSERT INTO users (id, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4)`
	_, err := r.pool.Exec(ctx, query, user.ID, user.Email, user.PasswordHash, user.CreatedAt)
	return err
}

// GetUserByEmail fetches a user by email.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	const query = `SELECT id, email, password_hash, created_at FROM users WHERE email = $1`
	row := r.pool.QueryRow(ctx, query, email)
	var u domain.User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// GetUserByID retrieves a user by identifier.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	const query = `SELECT id, email, password_hash, created_at FROM users WHERE id = $1`
	row := r.pool.QueryRow(ctx, query, id)
	var u domain.User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// AppendTurn stores one transcript entry.
func (r *Repository) AppendTurn(ctx context.Context, turn *domain.Turn) error {
	const query = `INSERT INTO turns (id, session_id, role, kind, text, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.pool.Exec(ctx, query, turn.ID, turn.SessionID, turn.Role, turn.Kind, turn.Text, turn.Payload, turn.CreatedAt)
	return err
}

// ListTurnsBySession returns the most recent turns, oldest first.
func (r *Repository) ListTurnsBySession(ctx context.Context, sessionID string, limit int) ([]domain.Turn, error) {
	const query = `SELECT id, session_id, role, kind, text, payload, created_at FROM (
			SELECT id, session_id, role, kind, text, payload, created_at
			FROM turns WHERE session_id = $1
			ORDER BY created_at DESC LIMIT $2
		) recent ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []domain.Turn
	for rows.Next() {
		var t domain.Turn
		if err := rows.Scan(&t.ID, &t.SessionID, &t.Role, &t.Kind, &t.Text, &t.Payload, &t.CreatedAt); err != nil {
			return nil, err
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// CreateRun inserts a deployment run.
func (r *Repository) CreateRun(ctx context.Context, run *domain.DeploymentRun) error {
	const query = `INSERT INTO deployment_runs
		(id, session_id, repo_name, status, message, url, error, started_at, completed_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.pool.Exec(ctx, query,
		run.ID, run.SessionID, run.RepoName, run.Status, run.Message,
		run.URL, run.Error, run.StartedAt, run.CompletedAt, run.UpdatedAt)
	return err
}

// UpdateRun persists pipeline progress.
func (r *Repository) UpdateRun(ctx context.Context, run *domain.DeploymentRun) error {
	const query = `UPDATE deployment_runs SET
			repo_name = $2, status = $3, message = $4, url = $5,
			error = $6, completed_at = $7, updated_at = $8
		WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query,
		run.ID, run.RepoName, run.Status, run.Message, run.URL,
		run.Error, run.CompletedAt, run.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// GetRunByID fetches one deployment run.
func (r *Repository) GetRunByID(ctx context.Context, runID string) (*domain.DeploymentRun, error) {
	const query = `SELECT id, session_id, repo_name, status, message, url, error, started_at, completed_at, updated_at
		FROM deployment_runs WHERE id = $1`
	row := r.pool.QueryRow(ctx, query, runID)
	var run domain.DeploymentRun
	if err := row.Scan(&run.ID, &run.SessionID, &run.RepoName, &run.Status, &run.Message,
		&run.URL, &run.Error, &run.StartedAt, &run.CompletedAt, &run.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &run, nil
}

// ListRunsBySession returns recent runs for a session, newest first.
func (r *Repository) ListRunsBySession(ctx context.Context, sessionID string, limit int) ([]domain.DeploymentRun, error) {
	const query = `SELECT id, session_id, repo_name, status, message, url, error, started_at, completed_at, updated_at
		FROM deployment_runs WHERE session_id = $1 ORDER BY started_at DESC LIMIT $2`
	rows, err := r.pool.Query(ctx, query, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []domain.DeploymentRun
	for rows.Next() {
		var run domain.DeploymentRun
		if err := rows.Scan(&run.ID, &run.SessionID, &run.RepoName, &run.Status, &run.Message,
			&run.URL, &run.Error, &run.StartedAt, &run.CompletedAt, &run.UpdatedAt); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
