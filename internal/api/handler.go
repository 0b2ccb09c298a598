// Package api exposes the HTTP surface: webhook intake, the GitHub App
// install and OAuth flows, project CRUD and repository browsing.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	gogithub "github.com/google/go-github/v62/github"
	"github.com/jackc/pgx/v5"

	"github.com/itsrifathridoy/talenthium/internal/config"
	"github.com/itsrifathridoy/talenthium/internal/errs"
	"github.com/itsrifathridoy/talenthium/internal/github"
	"github.com/itsrifathridoy/talenthium/internal/model"
	"github.com/itsrifathridoy/talenthium/internal/queue"
	"github.com/itsrifathridoy/talenthium/internal/store"
	"github.com/itsrifathridoy/talenthium/internal/tree"
)

// Gateway is the slice of the upstream client the handlers need.
type Gateway interface {
	CreateInstallationToken(ctx context.Context, installationID int64, appJWT string) (string, error)
	ExchangeOAuthCode(ctx context.Context, code string) (string, error)
	OAuthAuthorizationURL(state string) string
	GetAuthenticatedUser(ctx context.Context, token string) (github.Account, error)
	ListInstallationRepos(ctx context.Context, token string) ([]model.Repository, error)
	DeleteInstallation(ctx context.Context, installationID int64, appJWT string) error
	GetAllBranches(ctx context.Context, token, repo string) ([]model.Branch, error)
	GetCommits(ctx context.Context, token, repo, branch string, perPage int) ([]model.Commit, error)
	GetRepositoryTree(ctx context.Context, token, repo, branch string) (model.Tree, error)
	GetFileContent(ctx context.Context, token, repo, path string) (model.FileContent, error)
	GetBlobContent(ctx context.Context, token, repo, sha string) (model.FileContent, error)
	GetCommitDiff(ctx context.Context, token, repo, sha string) (*gogithub.RepositoryCommit, error)
	CanAccessRepository(ctx context.Context, token, repo string) bool
}

// AppSigner mints short-lived app assertions.
type AppSigner interface {
	SignAppAssertion() (string, error)
}

// StateSigner signs and verifies the OAuth state parameter.
type StateSigner interface {
	Sign(userID int64) (string, error)
	Verify(token string) (int64, error)
}

// Ingestor verifies and applies inbound webhooks.
type Ingestor interface {
	Handle(ctx context.Context, body []byte, signature, event string) error
}

// Handler is the container for API dependencies.
type Handler struct {
	cfg       *config.Config
	store     store.Store
	gateway   Gateway
	signer    AppSigner
	states    StateSigner
	ingestor  Ingestor
	publisher queue.Publisher
	logger    *slog.Logger
}

// NewRouter creates and configures a new chi router with all API routes.
func NewRouter(cfg *config.Config, st store.Store, gw Gateway, signer AppSigner, states StateSigner, ing Ingestor, pub queue.Publisher, logger *slog.Logger) http.Handler {
	h := &Handler{
		cfg:       cfg,
		store:     st,
		gateway:   gw,
		signer:    signer,
		states:    states,
		ingestor:  ing,
		publisher: pub,
		logger:    logger,
	}

	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", h.healthCheck)
	r.Post("/webhooks/github", h.receiveWebhook)

	r.Route("/github", func(r chi.Router) {
		r.Get("/callback", h.installCallback)
		r.Get("/authorization-url", h.getInstallURL)
		r.Get("/oauth/authorization-url", h.getOAuthURL)
		r.Get("/oauth/callback", h.oauthCallback)
		r.Get("/repos", h.listFreshRepos)
		r.Get("/get-repos", h.listCachedRepos)
		r.Delete("/installation", h.uninstall)
		r.Post("/link-account", h.linkAccount)
	})

	r.Route("/projects", func(r chi.Router) {
		r.Post("/", h.createProject)
		r.Get("/", h.listProjects)
		r.Get("/my", h.listMyProjects)
		r.Get("/check-creation-capability", h.checkCreationCapability)
		r.Get("/{id}/details", h.getProjectDetails)
		r.Get("/{id}/commits/{sha}/diff", h.getCommitDiff)

		r.Get("/github/branches/{owner}/{repo}", h.listBranches)
		r.Get("/github/commits/{owner}/{repo}", h.listCommits)
		r.Get("/github/tree/{owner}/{repo}", h.getTree)
		r.Get("/github/content/{owner}/{repo}", h.getFileContent)
		r.Get("/github/blob/{owner}/{repo}/{sha}", h.getBlobContent)
		r.Get("/github/check-access/{owner}/{repo}", h.checkAccess)
	})

	return r
}

// healthCheck is a simple health endpoint.
func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// receiveWebhook verifies and dispatches a GitHub webhook. Once the
// signature checks out the response is always 200: the sender retries
// non-2xx responses and a retry cannot fix a downstream failure.
// POST /webhooks/github
func (h *Handler) receiveWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Unable to read request body")
		return
	}

	signature := r.Header.Get("X-Hub-Signature-256")
	event := r.Header.Get("X-GitHub-Event")

	if err := h.ingestor.Handle(r.Context(), body, signature, event); err != nil {
		var sigErr *errs.InvalidSignatureError
		if errors.As(err, &sigErr) {
			respondWithError(w, http.StatusUnauthorized, "Invalid signature")
			return
		}
		h.logger.Error("Failed to handle webhook", "event", event, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// installCallback completes the App install flow. GitHub redirects the
// browser here, so the response is always a redirect back to the frontend,
// never JSON.
// GET /github/callback?installation_id=N&state=userID
func (h *Handler) installCallback(w http.ResponseWriter, r *http.Request) {
	installationID := r.URL.Query().Get("installation_id")
	state := r.URL.Query().Get("state")

	if installationID == "" || state == "" {
		h.logger.Error("Install callback missing installation_id or state")
		redirect(w, r, h.cfg.FrontendErrorURL)
		return
	}

	userID, err := strconv.ParseInt(state, 10, 64)
	if err != nil {
		h.logger.Error("Install callback state is not a user id", "state", state)
		redirect(w, r, h.cfg.FrontendErrorURL)
		return
	}

	id, err := strconv.ParseInt(installationID, 10, 64)
	if err != nil {
		h.logger.Error("Install callback installation_id is not numeric", "installation_id", installationID)
		redirect(w, r, h.cfg.FrontendErrorURL)
		return
	}

	assertion, err := h.signer.SignAppAssertion()
	if err != nil {
		h.logger.Error("Error signing app assertion", "error", err)
		redirect(w, r, h.cfg.FrontendErrorURL)
		return
	}

	token, err := h.gateway.CreateInstallationToken(r.Context(), id, assertion)
	if err != nil {
		h.logger.Error("Error creating installation token", "error", err)
		redirect(w, r, h.cfg.FrontendErrorURL)
		return
	}

	repos, err := h.gateway.ListInstallationRepos(r.Context(), token)
	if err != nil {
		h.logger.Error("Error listing installation repositories", "error", err)
		redirect(w, r, h.cfg.FrontendErrorURL)
		return
	}

	snapshot, err := json.Marshal(repos)
	if err != nil {
		h.logger.Error("Error encoding repository snapshot", "error", err)
		redirect(w, r, h.cfg.FrontendErrorURL)
		return
	}

	if err := h.store.SaveInstallation(r.Context(), installationID, userID, snapshot); err != nil {
		h.logger.Error("Error saving installation", "error", err)
		redirect(w, r, h.cfg.FrontendErrorURL)
		return
	}

	h.logger.Info("GitHub App installed", "user_id", userID, "installation_id", installationID)
	redirect(w, r, h.cfg.FrontendConnectedURL)
}

// getInstallURL returns the App install URL carrying the caller's user id as
// state, so the install callback can map the installation back to the user.
// GET /github/authorization-url
func (h *Handler) getInstallURL(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	url := fmt.Sprintf("https://github.com/apps/%s/installations/new?state=%d", h.cfg.GithubAppSlug, userID)
	respondWithJSON(w, http.StatusOK, map[string]string{
		"authorizationUrl": url,
		"message":          "Visit this URL to authorize the GitHub App",
	})
}

// getOAuthURL begins the OAuth flow used to link a GitHub username. The
// state parameter is a short-lived signed token bound to the caller.
// GET /github/oauth/authorization-url
func (h *Handler) getOAuthURL(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	if h.cfg.OAuthClientID == "" || h.cfg.OAuthRedirectURL == "" {
		respondWithError(w, http.StatusBadRequest, "GitHub OAuth is not configured")
		return
	}

	state, err := h.states.Sign(userID)
	if err != nil {
		h.logger.Error("Error signing oauth state", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{
		"authorizationUrl": h.gateway.OAuthAuthorizationURL(state),
		"message":          "Visit this URL to authorize GitHub and link username",
	})
}

// oauthCallback exchanges the code, fetches the GitHub account and persists
// the username and id on the local user record. Browser-facing: always
// redirects.
// GET /github/oauth/callback?code=...&state=...
func (h *Handler) oauthCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")

	userID, err := h.states.Verify(state)
	if err != nil {
		h.logger.Error("Invalid oauth state token", "error", err)
		redirect(w, r, h.cfg.OAuthErrorRedirect+"&reason=invalid_state")
		return
	}

	token, err := h.gateway.ExchangeOAuthCode(r.Context(), code)
	if err != nil {
		h.logger.Error("OAuth code exchange failed", "error", err)
		redirect(w, r, h.cfg.OAuthErrorRedirect+"&reason=token_exchange_failed")
		return
	}

	account, err := h.gateway.GetAuthenticatedUser(r.Context(), token)
	if err != nil || account.Login == "" {
		h.logger.Error("OAuth user fetch failed", "error", err)
		redirect(w, r, h.cfg.OAuthErrorRedirect+"&reason=user_fetch_failed")
		return
	}

	githubID := strconv.FormatInt(account.ID, 10)
	if err := h.store.UpdateUserGithubInfo(r.Context(), userID, account.Login, githubID); err != nil {
		h.logger.Error("Error updating user github info", "error", err)
		redirect(w, r, h.cfg.OAuthErrorRedirect+"&reason=update_failed")
		return
	}

	h.logger.Info("Linked GitHub account via OAuth", "github_username", account.Login, "user_id", userID)
	redirect(w, r, h.cfg.OAuthSuccessRedirect)
}

// listFreshRepos mints a fresh installation token and fetches the live
// repository list. Absent installation is reported in the body, not as an
// error status.
// GET /github/repos
func (h *Handler) listFreshRepos(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	token, err := h.tokenForUser(r.Context(), userID)
	if err != nil {
		var notLinked *errs.NotLinkedError
		if errors.As(err, &notLinked) {
			respondWithJSON(w, http.StatusOK, map[string]any{
				"isInstalled":  false,
				"message":      "GitHub App is not installed. Please authorize first.",
				"repositories": []model.Repository{},
			})
			return
		}
		h.logger.Error("Error minting installation token", "user_id", userID, "error", err)
		respondWithError(w, http.StatusBadGateway, "Unable to reach GitHub")
		return
	}

	repos, err := h.gateway.ListInstallationRepos(r.Context(), token)
	if err != nil {
		h.writeGatewayError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{
		"isInstalled":  true,
		"repositories": repos,
		"count":        len(repos),
	})
}

// listCachedRepos serves the repository snapshot stored at install time.
// GET /github/get-repos
func (h *Handler) listCachedRepos(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	installation, err := h.store.GetInstallation(r.Context(), userID)
	if err != nil {
		var notLinked *errs.NotLinkedError
		if errors.As(err, &notLinked) {
			respondWithError(w, http.StatusNotFound, "No GitHub installation found for this user")
			return
		}
		h.logger.Error("Error loading installation", "user_id", userID, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondWithJSON(w, http.StatusOK, installation.Repositories)
}

// uninstall removes the installation upstream and locally.
// DELETE /github/installation
func (h *Handler) uninstall(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	installation, err := h.store.GetInstallation(r.Context(), userID)
	if err != nil {
		var notLinked *errs.NotLinkedError
		if errors.As(err, &notLinked) {
			respondWithJSON(w, http.StatusOK, map[string]any{
				"isInstalled": false,
				"message":     "No GitHub installation found for this user",
			})
			return
		}
		h.logger.Error("Error loading installation", "user_id", userID, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	installationID, err := strconv.ParseInt(installation.InstallationID, 10, 64)
	if err != nil {
		h.logger.Error("Stored installation id is not numeric", "installation_id", installation.InstallationID)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	assertion, err := h.signer.SignAppAssertion()
	if err != nil {
		h.logger.Error("Error signing app assertion", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	if err := h.gateway.DeleteInstallation(r.Context(), installationID, assertion); err != nil {
		h.writeGatewayError(w, err)
		return
	}

	if err := h.store.DeleteInstallation(r.Context(), userID); err != nil {
		h.logger.Error("Error deleting installation record", "user_id", userID, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{
		"isInstalled": false,
		"message":     "GitHub App uninstalled successfully",
	})
}

// linkAccount links the GitHub account behind the caller's installation to
// the local user record.
// POST /github/link-account
func (h *Handler) linkAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	token, err := h.tokenForUser(r.Context(), userID)
	if err != nil {
		var notLinked *errs.NotLinkedError
		if errors.As(err, &notLinked) {
			respondWithError(w, http.StatusBadRequest, "No GitHub installation found. Please install the GitHub App first.")
			return
		}
		h.writeGatewayError(w, err)
		return
	}

	account, err := h.gateway.GetAuthenticatedUser(r.Context(), token)
	if err != nil || account.Login == "" {
		respondWithError(w, http.StatusBadRequest, "Failed to fetch GitHub user information")
		return
	}

	githubID := strconv.FormatInt(account.ID, 10)
	if err := h.store.UpdateUserGithubInfo(r.Context(), userID, account.Login, githubID); err != nil {
		h.logger.Error("Error updating user github info", "user_id", userID, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.logger.Info("Linked GitHub account", "github_username", account.Login, "user_id", userID)
	respondWithJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"message":        "GitHub account linked successfully",
		"githubUsername": account.Login,
		"githubId":       githubID,
	})
}

// createProjectRequest is the body for project creation.
type createProjectRequest struct {
	Name          string  `json:"name"`
	GitLink       string  `json:"gitLink"`
	DefaultBranch string  `json:"defaultBranch"`
	LiveLink      *string `json:"liveLink"`
}

// createProject persists the project and enqueues the commit backfill. A
// publish failure is logged but never fails the creation.
// POST /projects
func (h *Handler) createProject(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req createProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name == "" || req.GitLink == "" {
		respondWithError(w, http.StatusBadRequest, "Fields 'name' and 'gitLink' are required")
		return
	}
	if req.DefaultBranch == "" {
		req.DefaultBranch = "main"
	}

	project, err := h.store.CreateProject(r.Context(), model.Project{
		OwnerID:       userID,
		Name:          req.Name,
		GitLink:       req.GitLink,
		DefaultBranch: req.DefaultBranch,
		LiveLink:      req.LiveLink,
	})
	if err != nil {
		if store.IsUniqueViolation(err) {
			respondWithError(w, http.StatusBadRequest, "Duplicate or invalid project data. Please check project name and repository uniqueness.")
			return
		}
		h.logger.Error("Error creating project", "user_id", userID, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	job := model.SyncJob{
		ProjectID:     project.ID,
		UserID:        userID,
		ProjectName:   project.Name,
		GitLink:       project.GitLink,
		DefaultBranch: project.DefaultBranch,
	}
	if err := h.publisher.PublishSyncJob(r.Context(), job); err != nil {
		h.logger.Warn("Failed to queue commit backfill", "project_id", project.ID, "error", err)
	} else {
		h.logger.Info("Queued commit backfill", "project_id", project.ID, "project", project.Name)
	}

	respondWithJSON(w, http.StatusOK, project)
}

// GET /projects
func (h *Handler) listProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.store.ListProjects(r.Context())
	if err != nil {
		h.logger.Error("Error listing projects", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	respondWithJSON(w, http.StatusOK, projects)
}

// GET /projects/my
func (h *Handler) listMyProjects(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	projects, err := h.store.ListProjectsByOwner(r.Context(), userID)
	if err != nil {
		h.logger.Error("Error listing projects", "user_id", userID, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	respondWithJSON(w, http.StatusOK, projects)
}

// checkCreationCapability reports whether the caller can create projects,
// which requires a linked GitHub username.
// GET /projects/check-creation-capability
func (h *Handler) checkCreationCapability(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	user, err := h.store.GetUser(r.Context(), userID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		h.logger.Error("Error loading user", "user_id", userID, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	hasUsername := user.GithubUsername != nil && *user.GithubUsername != ""
	message := "User is ready to create projects"
	if !hasUsername {
		message = "Link your GitHub account before creating projects"
	}
	respondWithJSON(w, http.StatusOK, map[string]any{
		"canCreateProject":  hasUsername,
		"hasGithubUsername": hasUsername,
		"message":           message,
	})
}

// projectDetailResponse is a project together with its ingested history.
type projectDetailResponse struct {
	Project       model.Project        `json:"project"`
	Contributors  []model.Contributor  `json:"contributors"`
	Contributions []model.Contribution `json:"contributions"`
}

// GET /projects/{id}/details
func (h *Handler) getProjectDetails(w http.ResponseWriter, r *http.Request) {
	projectID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid project id")
		return
	}

	project, err := h.store.GetProject(r.Context(), projectID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			respondWithError(w, http.StatusNotFound, "Project not found")
			return
		}
		h.logger.Error("Error loading project", "project_id", projectID, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	contributors, err := h.store.ListContributors(r.Context(), projectID)
	if err != nil {
		h.logger.Error("Error listing contributors", "project_id", projectID, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	contributions, err := h.store.ListContributions(r.Context(), projectID)
	if err != nil {
		h.logger.Error("Error listing contributions", "project_id", projectID, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondWithJSON(w, http.StatusOK, projectDetailResponse{
		Project:       project,
		Contributors:  contributors,
		Contributions: contributions,
	})
}

// getCommitDiff proxies a commit's per-file diff for a project's repository.
// GET /projects/{id}/commits/{sha}/diff
func (h *Handler) getCommitDiff(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	projectID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid project id")
		return
	}
	sha := chi.URLParam(r, "sha")

	project, err := h.store.GetProject(r.Context(), projectID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			respondWithError(w, http.StatusNotFound, "Project not found")
			return
		}
		h.logger.Error("Error loading project", "project_id", projectID, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	token, err := h.tokenForUser(r.Context(), userID)
	if err != nil {
		h.writeGatewayError(w, err)
		return
	}

	diff, err := h.gateway.GetCommitDiff(r.Context(), token, project.GitLink, sha)
	if err != nil {
		h.writeGatewayError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, diff)
}

// GET /projects/github/branches/{owner}/{repo}
func (h *Handler) listBranches(w http.ResponseWriter, r *http.Request) {
	userID, token, ok := h.repoCallSetup(w, r)
	if !ok {
		return
	}

	repo := repoParam(r)
	branches, err := h.gateway.GetAllBranches(r.Context(), token, repo)
	if err != nil {
		h.writeGatewayError(w, err)
		return
	}

	h.logger.Info("Listed branches", "repo", repo, "user_id", userID, "count", len(branches))
	respondWithJSON(w, http.StatusOK, branches)
}

// GET /projects/github/commits/{owner}/{repo}?branch=&limit=
func (h *Handler) listCommits(w http.ResponseWriter, r *http.Request) {
	_, token, ok := h.repoCallSetup(w, r)
	if !ok {
		return
	}

	limit := 30
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
		if limit <= 0 || limit > 100 {
			respondWithError(w, http.StatusBadRequest, "Invalid 'limit' parameter. Must be an integer between 1 and 100.")
			return
		}
	}

	commits, err := h.gateway.GetCommits(r.Context(), token, repoParam(r), r.URL.Query().Get("branch"), limit)
	if err != nil {
		h.writeGatewayError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, commits)
}

// getTree fetches the recursive tree and reshapes it per the format query
// parameter: hierarchy (default), flat, by-directory or nested.
// GET /projects/github/tree/{owner}/{repo}?branch=&format=
func (h *Handler) getTree(w http.ResponseWriter, r *http.Request) {
	_, token, ok := h.repoCallSetup(w, r)
	if !ok {
		return
	}

	owner := chi.URLParam(r, "owner")
	repo := chi.URLParam(r, "repo")
	branch := r.URL.Query().Get("branch")

	t, err := h.gateway.GetRepositoryTree(r.Context(), token, owner+"/"+repo, branch)
	if err != nil {
		h.writeGatewayError(w, err)
		return
	}

	formatter := tree.NewFormatter(baseURL(r))
	var payload any
	switch strings.ToLower(r.URL.Query().Get("format")) {
	case "flat":
		payload = formatter.FlatList(t, owner, repo)
	case "by-directory":
		payload = formatter.GroupedByDirectory(t, owner, repo)
	case "nested":
		payload = formatter.Nested(t, owner, repo)
	default:
		payload = formatter.Hierarchy(t, owner, repo)
	}
	respondWithJSON(w, http.StatusOK, payload)
}

// GET /projects/github/content/{owner}/{repo}?filePath=
func (h *Handler) getFileContent(w http.ResponseWriter, r *http.Request) {
	_, token, ok := h.repoCallSetup(w, r)
	if !ok {
		return
	}

	filePath := r.URL.Query().Get("filePath")
	if filePath == "" {
		respondWithError(w, http.StatusBadRequest, "Query parameter 'filePath' is required")
		return
	}

	content, err := h.gateway.GetFileContent(r.Context(), token, repoParam(r), filePath)
	if err != nil {
		h.writeGatewayError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, content)
}

// GET /projects/github/blob/{owner}/{repo}/{sha}
func (h *Handler) getBlobContent(w http.ResponseWriter, r *http.Request) {
	_, token, ok := h.repoCallSetup(w, r)
	if !ok {
		return
	}

	content, err := h.gateway.GetBlobContent(r.Context(), token, repoParam(r), chi.URLParam(r, "sha"))
	if err != nil {
		h.writeGatewayError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, content)
}

// GET /projects/github/check-access/{owner}/{repo}
func (h *Handler) checkAccess(w http.ResponseWriter, r *http.Request) {
	_, token, ok := h.repoCallSetup(w, r)
	if !ok {
		return
	}

	repo := repoParam(r)
	accessible := h.gateway.CanAccessRepository(r.Context(), token, repo)

	message := "GitHub App has access to this repository"
	if !accessible {
		message = "GitHub App does NOT have access to this repository. Please reinstall the app with access to this repo."
	}
	respondWithJSON(w, http.StatusOK, map[string]any{
		"repository": repo,
		"accessible": accessible,
		"message":    message,
	})
}

// userID extracts the internal user id injected by the gateway.
func (h *Handler) userID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.Header.Get("X-USERID")
	if raw == "" {
		respondWithError(w, http.StatusBadRequest, "Missing X-USERID header")
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid X-USERID header")
		return 0, false
	}
	return id, true
}

// tokenForUser mints a fresh installation token for the user's installation.
// Tokens are never cached; each call signs a new assertion.
func (h *Handler) tokenForUser(ctx context.Context, userID int64) (string, error) {
	installation, err := h.store.GetInstallation(ctx, userID)
	if err != nil {
		return "", err
	}

	installationID, err := strconv.ParseInt(installation.InstallationID, 10, 64)
	if err != nil {
		return "", &errs.ConfigurationError{Reason: "invalid stored installation id", Err: err}
	}

	assertion, err := h.signer.SignAppAssertion()
	if err != nil {
		return "", err
	}
	return h.gateway.CreateInstallationToken(ctx, installationID, assertion)
}

// repoCallSetup resolves the caller and mints a token for repo browsing
// endpoints, writing the error response itself on failure.
func (h *Handler) repoCallSetup(w http.ResponseWriter, r *http.Request) (int64, string, bool) {
	userID, ok := h.userID(w, r)
	if !ok {
		return 0, "", false
	}

	token, err := h.tokenForUser(r.Context(), userID)
	if err != nil {
		var notLinked *errs.NotLinkedError
		if errors.As(err, &notLinked) {
			respondWithError(w, http.StatusBadRequest, "No GitHub installation found. Please install the GitHub App first.")
			return 0, "", false
		}
		h.writeGatewayError(w, err)
		return 0, "", false
	}
	return userID, token, true
}

// writeGatewayError maps upstream and domain errors to HTTP statuses.
func (h *Handler) writeGatewayError(w http.ResponseWriter, err error) {
	var (
		authErr   *errs.UpstreamAuthError
		upstream  *errs.UpstreamError
		notLinked *errs.NotLinkedError
		badLink   *errs.InvalidRepoLinkError
	)
	switch {
	case errors.As(err, &notLinked):
		respondWithError(w, http.StatusBadRequest, "No GitHub installation found. Please install the GitHub App first.")
	case errors.As(err, &badLink):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &authErr):
		h.logger.Error("GitHub credential exchange failed", "status", authErr.Status)
		respondWithError(w, http.StatusBadGateway, "GitHub authentication failed")
	case errors.As(err, &upstream):
		// Transport-level failures carry no HTTP status; WriteHeader rejects
		// codes below 100.
		status := upstream.Status
		if status < 100 {
			status = http.StatusBadGateway
		}
		respondWithError(w, status, upstream.Message)
	default:
		h.logger.Error("Unexpected upstream error", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func repoParam(r *http.Request) string {
	return chi.URLParam(r, "owner") + "/" + chi.URLParam(r, "repo")
}

func redirect(w http.ResponseWriter, r *http.Request, url string) {
	http.Redirect(w, r, url, http.StatusFound)
}

// baseURL reconstructs the externally visible scheme and host for building
// content-fetch URLs in formatted trees.
func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host
}
