package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/itsrifathridoy/talenthium/internal/errs"
	"github.com/itsrifathridoy/talenthium/internal/model"
)

// IsUniqueViolation reports whether err is a Postgres unique constraint
// violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Postgres implements Store on a pgx connection pool.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewPostgres(pool *pgxpool.Pool, logger *slog.Logger) *Postgres {
	return &Postgres{pool: pool, logger: logger}
}

const installationColumns = `id, owner_id, installation_id, repositories, created_at, updated_at`

func (s *Postgres) GetInstallation(ctx context.Context, ownerID int64) (model.Installation, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+installationColumns+` FROM installations WHERE owner_id = $1`, ownerID)
	inst, err := scanInstallation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Installation{}, &errs.NotLinkedError{OwnerID: ownerID}
	}
	return inst, err
}

func (s *Postgres) FindInstallationByID(ctx context.Context, installationID string) (model.Installation, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+installationColumns+` FROM installations WHERE installation_id = $1`, installationID)
	return scanInstallation(row)
}

func (s *Postgres) SaveInstallation(ctx context.Context, installationID string, ownerID int64, repositories json.RawMessage) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO installations (owner_id, installation_id, repositories)
		VALUES ($1, $2, $3)
		ON CONFLICT (owner_id) DO UPDATE
		SET installation_id = EXCLUDED.installation_id,
		    repositories    = EXCLUDED.repositories,
		    updated_at      = now()`,
		ownerID, installationID, repositories)
	if err != nil {
		return fmt.Errorf("saving installation for owner %d: %w", ownerID, err)
	}
	return nil
}

func (s *Postgres) DeleteInstallation(ctx context.Context, ownerID int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM installations WHERE owner_id = $1`, ownerID)
	return err
}

const projectColumns = `id, owner_id, name, git_link, default_branch, live_link, created_at`

func (s *Postgres) CreateProject(ctx context.Context, p model.Project) (model.Project, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO projects (owner_id, name, git_link, default_branch, live_link)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+projectColumns,
		p.OwnerID, p.Name, p.GitLink, p.DefaultBranch, p.LiveLink)
	return scanProject(row)
}

func (s *Postgres) GetProject(ctx context.Context, id int64) (model.Project, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id)
	return scanProject(row)
}

func (s *Postgres) ListProjects(ctx context.Context) ([]model.Project, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return collectProjects(rows)
}

func (s *Postgres) ListProjectsByOwner(ctx context.Context, ownerID int64) ([]model.Project, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE owner_id = $1 ORDER BY id`, ownerID)
	if err != nil {
		return nil, err
	}
	return collectProjects(rows)
}

// FindProjectsByRepository matches projects against a webhook payload's
// repository full name. Git links may be stored bare ("acme/widgets") or as
// a full URL, so the match tolerates either side containing the other.
func (s *Postgres) FindProjectsByRepository(ctx context.Context, fullName string) ([]model.Project, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+projectColumns+` FROM projects
		WHERE git_link = $1 OR position($1 in git_link) > 0
		ORDER BY id`, fullName)
	if err != nil {
		return nil, err
	}
	return collectProjects(rows)
}

func (s *Postgres) ContributionExists(ctx context.Context, projectID int64, sha, branch string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM contributions
			WHERE project_id = $1 AND commit_sha = $2 AND branch = $3
		)`, projectID, sha, branch).Scan(&exists)
	return exists, err
}

// SaveCommit persists one commit on one branch in its own transaction. The
// contributor is resolved by (project, github username) in a single upsert,
// so two workers racing on the same new author both land on one row. The
// unique constraint on (project_id, commit_sha, branch) makes the insert a
// no-op when a concurrent worker got there first.
func (s *Postgres) SaveCommit(ctx context.Context, projectID int64, branch string, c model.Commit) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning commit transaction: %w", err)
	}
	defer tx.Rollback(ctx) // Rollback is a no-op once committed.

	var contributorID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO contributors (project_id, name, github_username, avatar_url, email, role)
		VALUES ($1, $2, $3, $4, $5, 'Contributor')
		ON CONFLICT (project_id, github_username) DO UPDATE SET name = EXCLUDED.name
		RETURNING id`,
		projectID, c.AuthorName, c.AuthorLogin, c.AvatarURL, c.AuthorEmail).Scan(&contributorID)
	if err != nil {
		return fmt.Errorf("resolving contributor %q: %w", c.AuthorLogin, err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO contributions (project_id, contributor_id, commit_sha, branch, message, committed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (project_id, commit_sha, branch) DO NOTHING`,
		projectID, contributorID, c.SHA, branch, c.Message, c.CommittedAt)
	if err != nil {
		return fmt.Errorf("inserting contribution %s: %w", c.SHA, err)
	}

	return tx.Commit(ctx)
}

func (s *Postgres) ListContributors(ctx context.Context, projectID int64) ([]model.Contributor, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, project_id, name, COALESCE(github_username, ''), COALESCE(avatar_url, ''),
		       COALESCE(email, ''), role, created_at
		FROM contributors WHERE project_id = $1 ORDER BY id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Contributor
	for rows.Next() {
		var c model.Contributor
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.Name, &c.GithubUsername, &c.AvatarURL,
			&c.Email, &c.Role, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Postgres) ListContributions(ctx context.Context, projectID int64) ([]model.Contribution, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, project_id, contributor_id, commit_sha, branch, message, committed_at, created_at
		FROM contributions WHERE project_id = $1 ORDER BY committed_at DESC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Contribution
	for rows.Next() {
		var c model.Contribution
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.ContributorID, &c.CommitSHA, &c.Branch,
			&c.Message, &c.CommittedAt, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Postgres) GetUser(ctx context.Context, userID int64) (model.User, error) {
	var u model.User
	err := s.pool.QueryRow(ctx, `
		SELECT user_id, username, email, github_username, github_id
		FROM users WHERE user_id = $1`, userID).
		Scan(&u.UserID, &u.Username, &u.Email, &u.GithubUsername, &u.GithubID)
	return u, err
}

func (s *Postgres) UpsertUser(ctx context.Context, u model.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (user_id, username, email)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET username = EXCLUDED.username, email = EXCLUDED.email`,
		u.UserID, u.Username, u.Email)
	return err
}

func (s *Postgres) UpdateUserGithubInfo(ctx context.Context, userID int64, githubUsername, githubID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE users SET github_username = $2, github_id = $3 WHERE user_id = $1`,
		userID, githubUsername, githubID)
	return err
}

func scanInstallation(row pgx.Row) (model.Installation, error) {
	var inst model.Installation
	err := row.Scan(&inst.ID, &inst.OwnerID, &inst.InstallationID, &inst.Repositories,
		&inst.CreatedAt, &inst.UpdatedAt)
	return inst, err
}

func scanProject(row pgx.Row) (model.Project, error) {
	var p model.Project
	err := row.Scan(&p.ID, &p.OwnerID, &p.Name, &p.GitLink, &p.DefaultBranch, &p.LiveLink, &p.CreatedAt)
	return p, err
}

func collectProjects(rows pgx.Rows) ([]model.Project, error) {
	defer rows.Close()
	var out []model.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
