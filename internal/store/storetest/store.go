// Package storetest provides a testify mock of the store interface for use
// in handler, webhook and pipeline tests.
package storetest

import (
	"context"
	"encoding/json"

	"github.com/stretchr/testify/mock"

	"github.com/itsrifathridoy/talenthium/internal/model"
)

// MockStore is a mock of the store.Store interface.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) GetInstallation(ctx context.Context, ownerID int64) (model.Installation, error) {
	args := m.Called(ctx, ownerID)
	return args.Get(0).(model.Installation), args.Error(1)
}

func (m *MockStore) FindInstallationByID(ctx context.Context, installationID string) (model.Installation, error) {
	args := m.Called(ctx, installationID)
	return args.Get(0).(model.Installation), args.Error(1)
}

func (m *MockStore) SaveInstallation(ctx context.Context, installationID string, ownerID int64, repositories json.RawMessage) error {
	args := m.Called(ctx, installationID, ownerID, repositories)
	return args.Error(0)
}

func (m *MockStore) DeleteInstallation(ctx context.Context, ownerID int64) error {
	args := m.Called(ctx, ownerID)
	return args.Error(0)
}

func (m *MockStore) CreateProject(ctx context.Context, p model.Project) (model.Project, error) {
	args := m.Called(ctx, p)
	return args.Get(0).(model.Project), args.Error(1)
}

func (m *MockStore) GetProject(ctx context.Context, id int64) (model.Project, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(model.Project), args.Error(1)
}

func (m *MockStore) ListProjects(ctx context.Context) ([]model.Project, error) {
	args := m.Called(ctx)
	return args.Get(0).([]model.Project), args.Error(1)
}

func (m *MockStore) ListProjectsByOwner(ctx context.Context, ownerID int64) ([]model.Project, error) {
	args := m.Called(ctx, ownerID)
	return args.Get(0).([]model.Project), args.Error(1)
}

func (m *MockStore) FindProjectsByRepository(ctx context.Context, fullName string) ([]model.Project, error) {
	args := m.Called(ctx, fullName)
	return args.Get(0).([]model.Project), args.Error(1)
}

func (m *MockStore) ContributionExists(ctx context.Context, projectID int64, sha, branch string) (bool, error) {
	args := m.Called(ctx, projectID, sha, branch)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) SaveCommit(ctx context.Context, projectID int64, branch string, c model.Commit) error {
	args := m.Called(ctx, projectID, branch, c)
	return args.Error(0)
}

func (m *MockStore) ListContributors(ctx context.Context, projectID int64) ([]model.Contributor, error) {
	args := m.Called(ctx, projectID)
	return args.Get(0).([]model.Contributor), args.Error(1)
}

func (m *MockStore) ListContributions(ctx context.Context, projectID int64) ([]model.Contribution, error) {
	args := m.Called(ctx, projectID)
	return args.Get(0).([]model.Contribution), args.Error(1)
}

func (m *MockStore) GetUser(ctx context.Context, userID int64) (model.User, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(model.User), args.Error(1)
}

func (m *MockStore) UpsertUser(ctx context.Context, u model.User) error {
	args := m.Called(ctx, u)
	return args.Error(0)
}

func (m *MockStore) UpdateUserGithubInfo(ctx context.Context, userID int64, githubUsername, githubID string) error {
	args := m.Called(ctx, userID, githubUsername, githubID)
	return args.Error(0)
}
