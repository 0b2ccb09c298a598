// Package store persists installations, projects, contributors and
// contributions in Postgres.
package store

import (
	"context"
	"encoding/json"

	"github.com/itsrifathridoy/talenthium/internal/model"
)

// Store is the persistence interface consumed by the sync pipeline, webhook
// ingestor and HTTP handlers.
type Store interface {
	// Installations. An owner has at most one active installation; saving
	// again overwrites installation id and snapshot (re-install semantics).
	GetInstallation(ctx context.Context, ownerID int64) (model.Installation, error)
	FindInstallationByID(ctx context.Context, installationID string) (model.Installation, error)
	SaveInstallation(ctx context.Context, installationID string, ownerID int64, repositories json.RawMessage) error
	DeleteInstallation(ctx context.Context, ownerID int64) error

	// Projects.
	CreateProject(ctx context.Context, p model.Project) (model.Project, error)
	GetProject(ctx context.Context, id int64) (model.Project, error)
	ListProjects(ctx context.Context) ([]model.Project, error)
	ListProjectsByOwner(ctx context.Context, ownerID int64) ([]model.Project, error)
	FindProjectsByRepository(ctx context.Context, fullName string) ([]model.Project, error)

	// Commits. SaveCommit runs in its own transaction: it resolves or
	// creates the contributor and inserts the contribution, and a failure
	// rolls back only that one commit.
	ContributionExists(ctx context.Context, projectID int64, sha, branch string) (bool, error)
	SaveCommit(ctx context.Context, projectID int64, branch string, c model.Commit) error
	ListContributors(ctx context.Context, projectID int64) ([]model.Contributor, error)
	ListContributions(ctx context.Context, projectID int64) ([]model.Contribution, error)

	// Users (local replica of the account service).
	GetUser(ctx context.Context, userID int64) (model.User, error)
	UpsertUser(ctx context.Context, u model.User) error
	UpdateUserGithubInfo(ctx context.Context, userID int64, githubUsername, githubID string) error
}
