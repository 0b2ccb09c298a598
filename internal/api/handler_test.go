package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	gogithub "github.com/google/go-github/v62/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/itsrifathridoy/talenthium/internal/config"
	"github.com/itsrifathridoy/talenthium/internal/errs"
	"github.com/itsrifathridoy/talenthium/internal/github"
	"github.com/itsrifathridoy/talenthium/internal/model"
	"github.com/itsrifathridoy/talenthium/internal/queue"
	"github.com/itsrifathridoy/talenthium/internal/store/storetest"
)

// MockGateway is a mock of the Gateway interface.
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) CreateInstallationToken(ctx context.Context, installationID int64, appJWT string) (string, error) {
	args := m.Called(ctx, installationID, appJWT)
	return args.String(0), args.Error(1)
}

func (m *MockGateway) ExchangeOAuthCode(ctx context.Context, code string) (string, error) {
	args := m.Called(ctx, code)
	return args.String(0), args.Error(1)
}

func (m *MockGateway) OAuthAuthorizationURL(state string) string {
	return m.Called(state).String(0)
}

func (m *MockGateway) GetAuthenticatedUser(ctx context.Context, token string) (github.Account, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(github.Account), args.Error(1)
}

func (m *MockGateway) ListInstallationRepos(ctx context.Context, token string) ([]model.Repository, error) {
	args := m.Called(ctx, token)
	return args.Get(0).([]model.Repository), args.Error(1)
}

func (m *MockGateway) DeleteInstallation(ctx context.Context, installationID int64, appJWT string) error {
	args := m.Called(ctx, installationID, appJWT)
	return args.Error(0)
}

func (m *MockGateway) GetAllBranches(ctx context.Context, token, repo string) ([]model.Branch, error) {
	args := m.Called(ctx, token, repo)
	return args.Get(0).([]model.Branch), args.Error(1)
}

func (m *MockGateway) GetCommits(ctx context.Context, token, repo, branch string, perPage int) ([]model.Commit, error) {
	args := m.Called(ctx, token, repo, branch, perPage)
	return args.Get(0).([]model.Commit), args.Error(1)
}

func (m *MockGateway) GetRepositoryTree(ctx context.Context, token, repo, branch string) (model.Tree, error) {
	args := m.Called(ctx, token, repo, branch)
	return args.Get(0).(model.Tree), args.Error(1)
}

func (m *MockGateway) GetFileContent(ctx context.Context, token, repo, path string) (model.FileContent, error) {
	args := m.Called(ctx, token, repo, path)
	return args.Get(0).(model.FileContent), args.Error(1)
}

func (m *MockGateway) GetBlobContent(ctx context.Context, token, repo, sha string) (model.FileContent, error) {
	args := m.Called(ctx, token, repo, sha)
	return args.Get(0).(model.FileContent), args.Error(1)
}

func (m *MockGateway) GetCommitDiff(ctx context.Context, token, repo, sha string) (*gogithub.RepositoryCommit, error) {
	args := m.Called(ctx, token, repo, sha)
	return args.Get(0).(*gogithub.RepositoryCommit), args.Error(1)
}

func (m *MockGateway) CanAccessRepository(ctx context.Context, token, repo string) bool {
	return m.Called(ctx, token, repo).Bool(0)
}

// MockSigner is a mock of the AppSigner interface.
type MockSigner struct {
	mock.Mock
}

func (m *MockSigner) SignAppAssertion() (string, error) {
	args := m.Called()
	return args.String(0), args.Error(1)
}

// MockStateSigner is a mock of the StateSigner interface.
type MockStateSigner struct {
	mock.Mock
}

func (m *MockStateSigner) Sign(userID int64) (string, error) {
	args := m.Called(userID)
	return args.String(0), args.Error(1)
}

func (m *MockStateSigner) Verify(token string) (int64, error) {
	args := m.Called(token)
	return args.Get(0).(int64), args.Error(1)
}

// MockIngestor is a mock of the Ingestor interface.
type MockIngestor struct {
	mock.Mock
}

func (m *MockIngestor) Handle(ctx context.Context, body []byte, signature, event string) error {
	args := m.Called(ctx, body, signature, event)
	return args.Error(0)
}

type testEnv struct {
	store    *storetest.MockStore
	gateway  *MockGateway
	signer   *MockSigner
	states   *MockStateSigner
	ingestor *MockIngestor
	queue    *queue.Memory
	router   http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := &config.Config{
		GithubAppSlug:        "talenthium-dev",
		OAuthClientID:        "client-id",
		OAuthRedirectURL:     "http://localhost:8084/github/oauth/callback",
		FrontendConnectedURL: "http://localhost:3000/projects/create?github=connected",
		FrontendErrorURL:     "http://localhost:3000/projects/create?error=callback_failed",
		OAuthSuccessRedirect: "http://localhost:3000/projects?github=connected",
		OAuthErrorRedirect:   "http://localhost:3000/projects?github=oauth_error",
	}
	env := &testEnv{
		store:    new(storetest.MockStore),
		gateway:  new(MockGateway),
		signer:   new(MockSigner),
		states:   new(MockStateSigner),
		ingestor: new(MockIngestor),
		queue:    queue.NewMemory(8),
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	env.router = NewRouter(cfg, env.store, env.gateway, env.signer, env.states, env.ingestor, env.queue, logger)
	return env
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestInstallCallback(t *testing.T) {
	t.Run("saves the installation and redirects to the frontend", func(t *testing.T) {
		env := newTestEnv(t)

		env.signer.On("SignAppAssertion").Return("app-jwt", nil).Once()
		env.gateway.On("CreateInstallationToken", mock.Anything, int64(123), "app-jwt").Return("ghs_tok", nil).Once()
		env.gateway.On("ListInstallationRepos", mock.Anything, "ghs_tok").
			Return([]model.Repository{{ID: 1, FullName: "acme/widgets"}}, nil).Once()
		env.store.On("SaveInstallation", mock.Anything, "123", int64(42), mock.Anything).Return(nil).Once()

		req := httptest.NewRequest(http.MethodGet, "/github/callback?installation_id=123&state=42", nil)
		rec := env.do(req)

		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "http://localhost:3000/projects/create?github=connected", rec.Header().Get("Location"))
		env.store.AssertExpectations(t)
		env.gateway.AssertExpectations(t)
	})

	t.Run("redirects to the error page when parameters are missing", func(t *testing.T) {
		env := newTestEnv(t)

		req := httptest.NewRequest(http.MethodGet, "/github/callback?installation_id=123", nil)
		rec := env.do(req)

		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "http://localhost:3000/projects/create?error=callback_failed", rec.Header().Get("Location"))
		env.store.AssertNotCalled(t, "SaveInstallation")
	})

	t.Run("redirects to the error page when the token exchange fails", func(t *testing.T) {
		env := newTestEnv(t)

		env.signer.On("SignAppAssertion").Return("app-jwt", nil).Once()
		env.gateway.On("CreateInstallationToken", mock.Anything, int64(123), "app-jwt").
			Return("", &errs.UpstreamAuthError{Status: 401}).Once()

		req := httptest.NewRequest(http.MethodGet, "/github/callback?installation_id=123&state=42", nil)
		rec := env.do(req)

		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Contains(t, rec.Header().Get("Location"), "error=callback_failed")
	})
}

func TestReceiveWebhook(t *testing.T) {
	t.Run("returns 401 on a bad signature", func(t *testing.T) {
		env := newTestEnv(t)
		env.ingestor.On("Handle", mock.Anything, mock.Anything, "sha256=bad", "push").
			Return(&errs.InvalidSignatureError{}).Once()

		req := httptest.NewRequest(http.MethodPost, "/webhooks/github", strings.NewReader(`{}`))
		req.Header.Set("X-Hub-Signature-256", "sha256=bad")
		req.Header.Set("X-GitHub-Event", "push")
		rec := env.do(req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("acknowledges a verified event", func(t *testing.T) {
		env := newTestEnv(t)
		env.ingestor.On("Handle", mock.Anything, []byte(`{"ok":true}`), "sha256=good", "push").Return(nil).Once()

		req := httptest.NewRequest(http.MethodPost, "/webhooks/github", strings.NewReader(`{"ok":true}`))
		req.Header.Set("X-Hub-Signature-256", "sha256=good")
		req.Header.Set("X-GitHub-Event", "push")
		rec := env.do(req)

		assert.Equal(t, http.StatusOK, rec.Code)
		env.ingestor.AssertExpectations(t)
	})
}

func TestCreateProject(t *testing.T) {
	t.Run("creates the project and queues the backfill", func(t *testing.T) {
		env := newTestEnv(t)

		created := model.Project{ID: 7, OwnerID: 42, Name: "widgets", GitLink: "acme/widgets", DefaultBranch: "main"}
		env.store.On("CreateProject", mock.Anything, mock.MatchedBy(func(p model.Project) bool {
			return p.OwnerID == 42 && p.Name == "widgets" && p.DefaultBranch == "main"
		})).Return(created, nil).Once()

		body := `{"name": "widgets", "gitLink": "acme/widgets"}`
		req := httptest.NewRequest(http.MethodPost, "/projects/", strings.NewReader(body))
		req.Header.Set("X-USERID", "42")
		rec := env.do(req)

		require.Equal(t, http.StatusOK, rec.Code)

		job, err := env.queue.Receive(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(7), job.ProjectID)
		assert.Equal(t, int64(42), job.UserID)
		assert.Equal(t, "acme/widgets", job.GitLink)
	})

	t.Run("rejects a body without required fields", func(t *testing.T) {
		env := newTestEnv(t)

		req := httptest.NewRequest(http.MethodPost, "/projects/", strings.NewReader(`{"name": "widgets"}`))
		req.Header.Set("X-USERID", "42")
		rec := env.do(req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		env.store.AssertNotCalled(t, "CreateProject")
	})

	t.Run("requires the user header", func(t *testing.T) {
		env := newTestEnv(t)

		req := httptest.NewRequest(http.MethodPost, "/projects/", strings.NewReader(`{}`))
		rec := env.do(req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestListFreshRepos(t *testing.T) {
	t.Run("reports not installed without an installation", func(t *testing.T) {
		env := newTestEnv(t)
		env.store.On("GetInstallation", mock.Anything, int64(42)).
			Return(model.Installation{}, &errs.NotLinkedError{OwnerID: 42}).Once()

		req := httptest.NewRequest(http.MethodGet, "/github/repos", nil)
		req.Header.Set("X-USERID", "42")
		rec := env.do(req)

		require.Equal(t, http.StatusOK, rec.Code)
		var payload map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
		assert.Equal(t, false, payload["isInstalled"])
	})

	t.Run("mints a fresh token and lists live repositories", func(t *testing.T) {
		env := newTestEnv(t)
		env.store.On("GetInstallation", mock.Anything, int64(42)).
			Return(model.Installation{OwnerID: 42, InstallationID: "555"}, nil).Once()
		env.signer.On("SignAppAssertion").Return("app-jwt", nil).Once()
		env.gateway.On("CreateInstallationToken", mock.Anything, int64(555), "app-jwt").Return("ghs_tok", nil).Once()
		env.gateway.On("ListInstallationRepos", mock.Anything, "ghs_tok").
			Return([]model.Repository{{FullName: "acme/widgets"}, {FullName: "acme/gears"}}, nil).Once()

		req := httptest.NewRequest(http.MethodGet, "/github/repos", nil)
		req.Header.Set("X-USERID", "42")
		rec := env.do(req)

		require.Equal(t, http.StatusOK, rec.Code)
		var payload map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
		assert.Equal(t, true, payload["isInstalled"])
		assert.Equal(t, float64(2), payload["count"])
	})
}

func TestGetTree_Formats(t *testing.T) {
	env := newTestEnv(t)
	env.store.On("GetInstallation", mock.Anything, int64(42)).
		Return(model.Installation{OwnerID: 42, InstallationID: "555"}, nil)
	env.signer.On("SignAppAssertion").Return("app-jwt", nil)
	env.gateway.On("CreateInstallationToken", mock.Anything, int64(555), "app-jwt").Return("ghs_tok", nil)
	env.gateway.On("GetRepositoryTree", mock.Anything, "ghs_tok", "acme/widgets", "").
		Return(model.Tree{SHA: "t", Entries: []model.TreeEntry{
			{Path: "a.go", Type: "blob", SHA: "b1", Size: 10},
			{Path: "pkg", Type: "tree", SHA: "t1"},
		}}, nil)

	t.Run("flat format lists one entry per node", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/projects/github/tree/acme/widgets?format=flat", nil)
		req.Header.Set("X-USERID", "42")
		rec := env.do(req)

		require.Equal(t, http.StatusOK, rec.Code)
		var entries []map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
		assert.Len(t, entries, 2)
	})

	t.Run("default format is the hierarchy with statistics", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/projects/github/tree/acme/widgets", nil)
		req.Header.Set("X-USERID", "42")
		rec := env.do(req)

		require.Equal(t, http.StatusOK, rec.Code)
		var payload map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
		assert.Contains(t, payload, "statistics")
		assert.Equal(t, "acme/widgets", payload["repository"])
	})
}

func TestOAuthCallback(t *testing.T) {
	t.Run("links the account and redirects on success", func(t *testing.T) {
		env := newTestEnv(t)
		env.states.On("Verify", "state-token").Return(int64(42), nil).Once()
		env.gateway.On("ExchangeOAuthCode", mock.Anything, "the-code").Return("gho_user", nil).Once()
		env.gateway.On("GetAuthenticatedUser", mock.Anything, "gho_user").
			Return(github.Account{ID: 77, Login: "janedoe"}, nil).Once()
		env.store.On("UpdateUserGithubInfo", mock.Anything, int64(42), "janedoe", "77").Return(nil).Once()

		req := httptest.NewRequest(http.MethodGet, "/github/oauth/callback?code=the-code&state=state-token", nil)
		rec := env.do(req)

		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "http://localhost:3000/projects?github=connected", rec.Header().Get("Location"))
		env.store.AssertExpectations(t)
	})

	t.Run("redirects with a reason when the state is invalid", func(t *testing.T) {
		env := newTestEnv(t)
		env.states.On("Verify", "forged").Return(int64(0), assert.AnError).Once()

		req := httptest.NewRequest(http.MethodGet, "/github/oauth/callback?code=x&state=forged", nil)
		rec := env.do(req)

		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Contains(t, rec.Header().Get("Location"), "reason=invalid_state")
	})
}

func TestUninstall(t *testing.T) {
	env := newTestEnv(t)
	env.store.On("GetInstallation", mock.Anything, int64(42)).
		Return(model.Installation{OwnerID: 42, InstallationID: "555"}, nil).Once()
	env.signer.On("SignAppAssertion").Return("app-jwt", nil).Once()
	env.gateway.On("DeleteInstallation", mock.Anything, int64(555), "app-jwt").Return(nil).Once()
	env.store.On("DeleteInstallation", mock.Anything, int64(42)).Return(nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/github/installation", nil)
	req.Header.Set("X-USERID", "42")
	rec := env.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	env.store.AssertExpectations(t)
	env.gateway.AssertExpectations(t)
}

func TestCheckCreationCapability(t *testing.T) {
	env := newTestEnv(t)
	username := "janedoe"
	env.store.On("GetUser", mock.Anything, int64(42)).
		Return(model.User{UserID: 42, GithubUsername: &username}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/projects/check-creation-capability", nil)
	req.Header.Set("X-USERID", "42")
	rec := env.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, true, payload["canCreateProject"])
}

func TestWriteGatewayError(t *testing.T) {
	h := &Handler{logger: slog.New(slog.NewJSONHandler(os.Stdout, nil))}

	t.Run("maps a statusless transport failure to 502", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.writeGatewayError(rec, &errs.UpstreamError{Message: "dial tcp 140.82.121.6:443: connect: connection refused"})
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})

	t.Run("passes an upstream status through", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.writeGatewayError(rec, &errs.UpstreamError{Status: http.StatusNotFound, Message: "repository not found"})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
