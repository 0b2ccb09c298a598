// internal/github/client.go
package github

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"unicode"

	"github.com/google/go-github/v62/github"
	"golang.org/x/oauth2"
	oauthgithub "golang.org/x/oauth2/github"

	"github.com/itsrifathridoy/talenthium/internal/errs"
	"github.com/itsrifathridoy/talenthium/internal/model"
)

// Options configures the gateway. BaseURL and OAuthEndpoint are only set in
// tests or for GitHub Enterprise; empty values mean github.com.
type Options struct {
	BaseURL           string
	OAuthClientID     string
	OAuthClientSecret string
	OAuthRedirectURL  string
	OAuthEndpoint     oauth2.Endpoint
	HTTPClient        *http.Client
}

// Client is a stateless wrapper around the GitHub REST API. It holds no
// session: every call takes the credential (installation token or app
// assertion) explicitly and builds a per-call go-github client from it.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	oauth      oauth2.Config
	logger     *slog.Logger
}

// NewClient creates and configures a new Client instance.
func NewClient(opts Options, logger *slog.Logger) (*Client, error) {
	c := &Client{
		httpClient: opts.HTTPClient,
		logger:     logger,
	}

	if opts.BaseURL != "" {
		raw := opts.BaseURL
		if !strings.HasSuffix(raw, "/") {
			raw += "/"
		}
		u, err := url.Parse(raw)
		if err != nil {
			return nil, &errs.ConfigurationError{Reason: "parsing github api base url", Err: err}
		}
		c.baseURL = u
	}

	endpoint := opts.OAuthEndpoint
	if endpoint.TokenURL == "" {
		endpoint = oauthgithub.Endpoint
	}
	c.oauth = oauth2.Config{
		ClientID:     opts.OAuthClientID,
		ClientSecret: opts.OAuthClientSecret,
		RedirectURL:  opts.OAuthRedirectURL,
		Scopes:       []string{"read:user", "user:email"},
		Endpoint:     endpoint,
	}

	return c, nil
}

// gh builds a go-github client authenticated with the given bearer token.
func (c *Client) gh(token string) *github.Client {
	client := github.NewClient(c.httpClient)
	if token != "" {
		client = client.WithAuthToken(token)
	}
	if c.baseURL != nil {
		client.BaseURL = c.baseURL
	}
	return client
}

// CreateInstallationToken exchanges an app assertion for a short-lived
// installation access token. Tokens are not cached or refreshed here: every
// sync or webhook operation requests a fresh one.
func (c *Client) CreateInstallationToken(ctx context.Context, installationID int64, appJWT string) (string, error) {
	tok, resp, err := c.gh(appJWT).Apps.CreateInstallationToken(ctx, installationID, nil)
	if err != nil {
		return "", authError(resp, err)
	}
	return tok.GetToken(), nil
}

// ExchangeOAuthCode trades an OAuth authorization code for a user access
// token.
func (c *Client) ExchangeOAuthCode(ctx context.Context, code string) (string, error) {
	if c.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	}
	tok, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		var rErr *oauth2.RetrieveError
		if errors.As(err, &rErr) && rErr.Response != nil {
			return "", &errs.UpstreamAuthError{Status: rErr.Response.StatusCode}
		}
		return "", fmt.Errorf("exchanging oauth code: %w", err)
	}
	return tok.AccessToken, nil
}

// OAuthAuthorizationURL returns the GitHub authorization URL carrying the
// signed state token.
func (c *Client) OAuthAuthorizationURL(state string) string {
	return c.oauth.AuthCodeURL(state)
}

// Account is the identity of an authenticated GitHub user.
type Account struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name,omitempty"`
	Email     string `json:"email,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// GetAuthenticatedUser fetches the user the supplied token belongs to.
func (c *Client) GetAuthenticatedUser(ctx context.Context, token string) (Account, error) {
	u, _, err := c.gh(token).Users.Get(ctx, "")
	if err != nil {
		return Account{}, wrapErr(err)
	}
	return Account{
		ID:        u.GetID(),
		Login:     u.GetLogin(),
		Name:      u.GetName(),
		Email:     u.GetEmail(),
		AvatarURL: u.GetAvatarURL(),
	}, nil
}

// ListInstallationRepos lists the repositories the installation token has
// been granted access to.
func (c *Client) ListInstallationRepos(ctx context.Context, token string) ([]model.Repository, error) {
	list, _, err := c.gh(token).Apps.ListRepos(ctx, &github.ListOptions{PerPage: 100})
	if err != nil {
		return nil, wrapErr(err)
	}
	repos := make([]model.Repository, 0, len(list.Repositories))
	for _, r := range list.Repositories {
		repos = append(repos, toRepository(r))
	}
	return repos, nil
}

// DeleteInstallation removes the App installation upstream. Requires an app
// assertion, not an installation token.
func (c *Client) DeleteInstallation(ctx context.Context, installationID int64, appJWT string) error {
	if _, err := c.gh(appJWT).Apps.DeleteInstallation(ctx, installationID); err != nil {
		return wrapErr(err)
	}
	return nil
}

// GetRepository fetches repository metadata by full name or git link.
func (c *Client) GetRepository(ctx context.Context, token, repo string) (model.Repository, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return model.Repository{}, err
	}
	r, _, err := c.gh(token).Repositories.Get(ctx, owner, name)
	if err != nil {
		return model.Repository{}, wrapErr(err)
	}
	return toRepository(r), nil
}

// GetAllBranches lists every branch of the repository.
func (c *Client) GetAllBranches(ctx context.Context, token, repo string) ([]model.Branch, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}
	list, _, err := c.gh(token).Repositories.ListBranches(ctx, owner, name, &github.BranchListOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	})
	if err != nil {
		return nil, wrapErr(err)
	}
	branches := make([]model.Branch, 0, len(list))
	for _, b := range list {
		branches = append(branches, model.Branch{Name: b.GetName(), SHA: b.GetCommit().GetSHA()})
	}
	return branches, nil
}

// GetCommits fetches the most recent commits on a branch, newest first.
func (c *Client) GetCommits(ctx context.Context, token, repo, branch string, perPage int) ([]model.Commit, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}
	list, _, err := c.gh(token).Repositories.ListCommits(ctx, owner, name, &github.CommitsListOptions{
		SHA:         branch,
		ListOptions: github.ListOptions{PerPage: perPage},
	})
	if err != nil {
		return nil, wrapErr(err)
	}
	commits := make([]model.Commit, 0, len(list))
	for _, rc := range list {
		commits = append(commits, toCommit(rc))
	}
	return commits, nil
}

// GetRepositoryTree fetches the repository's full recursive tree. With an
// empty branch it first resolves the default branch, then the head commit's
// tree SHA, then the tree itself.
func (c *Client) GetRepositoryTree(ctx context.Context, token, repo, branch string) (model.Tree, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return model.Tree{}, err
	}
	gh := c.gh(token)

	if branch == "" {
		r, _, err := gh.Repositories.Get(ctx, owner, name)
		if err != nil {
			return model.Tree{}, wrapErr(err)
		}
		branch = r.GetDefaultBranch()
		c.logger.Debug("Using repository's default branch", "repo", repo, "branch", branch)
	}

	b, _, err := gh.Repositories.GetBranch(ctx, owner, name, branch, 0)
	if err != nil {
		return model.Tree{}, wrapErr(err)
	}
	treeSHA := b.GetCommit().GetCommit().GetTree().GetSHA()
	if treeSHA == "" {
		return model.Tree{}, &errs.UpstreamError{Message: fmt.Sprintf("branch %q carries no tree sha", branch)}
	}

	t, _, err := gh.Git.GetTree(ctx, owner, name, treeSHA, true)
	if err != nil {
		return model.Tree{}, wrapErr(err)
	}

	tree := model.Tree{SHA: t.GetSHA(), Truncated: t.GetTruncated()}
	for _, e := range t.Entries {
		tree.Entries = append(tree.Entries, model.TreeEntry{
			Path: e.GetPath(),
			Type: e.GetType(),
			SHA:  e.GetSHA(),
			Size: e.GetSize(),
		})
	}
	c.logger.Debug("Fetched repository tree", "repo", repo, "branch", branch, "entries", len(tree.Entries))
	return tree, nil
}

// GetFileContent fetches and decodes a single file by path.
func (c *Client) GetFileContent(ctx context.Context, token, repo, path string) (model.FileContent, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return model.FileContent{}, err
	}
	file, dir, _, err := c.gh(token).Repositories.GetContents(ctx, owner, name, path, nil)
	if err != nil {
		return model.FileContent{}, fetchHint(wrapErr(err), repo, path)
	}
	if file == nil || dir != nil {
		return model.FileContent{}, &errs.UpstreamError{Message: fmt.Sprintf("path %q points to a directory, not a file", path)}
	}

	var raw string
	if file.Content != nil {
		raw = *file.Content
	}
	content, err := decodeBase64(raw)
	if err != nil {
		return model.FileContent{}, fmt.Errorf("decoding content of %s: %w", path, err)
	}
	return model.FileContent{
		FileName: file.GetName(),
		Path:     file.GetPath(),
		Content:  content,
		SHA:      file.GetSHA(),
		HTMLURL:  file.GetHTMLURL(),
	}, nil
}

// GetBlobContent fetches and decodes a blob by SHA, as referenced from a
// tree listing.
func (c *Client) GetBlobContent(ctx context.Context, token, repo, sha string) (model.FileContent, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return model.FileContent{}, err
	}
	blob, _, err := c.gh(token).Git.GetBlob(ctx, owner, name, sha)
	if err != nil {
		return model.FileContent{}, fetchHint(wrapErr(err), repo, sha)
	}

	content, err := decodeBase64(blob.GetContent())
	if err != nil {
		return model.FileContent{}, fmt.Errorf("decoding blob %s: %w", sha, err)
	}
	fileName := sha
	if len(fileName) > 8 {
		fileName = fileName[:8]
	}
	return model.FileContent{
		FileName: fileName,
		Path:     sha,
		Content:  content,
		SHA:      blob.GetSHA(),
		HTMLURL:  fmt.Sprintf("https://github.com/%s/git/blob/%s", model.RepoFullName(repo), sha),
	}, nil
}

// GetCommitDiff fetches a commit's detail including the per-file diff. The
// embedded signature-verification block is stripped: it is meaningless to
// downstream consumers and must not be persisted.
func (c *Client) GetCommitDiff(ctx context.Context, token, repo, sha string) (*github.RepositoryCommit, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}
	rc, _, err := c.gh(token).Repositories.GetCommit(ctx, owner, name, sha, nil)
	if err != nil {
		return nil, wrapErr(err)
	}
	if rc.Commit != nil {
		rc.Commit.Verification = nil
	}
	return rc, nil
}

// CanAccessRepository probes read access with the given token. Any failure
// reports false rather than an error; this is a diagnostic, not a gate.
func (c *Client) CanAccessRepository(ctx context.Context, token, repo string) bool {
	_, err := c.GetRepository(ctx, token, repo)
	if err != nil {
		c.logger.Warn("Cannot access repository", "repo", repo, "error", err)
		return false
	}
	return true
}

// toCommit translates a github.RepositoryCommit to our internal model.
// Username and avatar come from the top-level author object; the commit
// author's display name is the fallback when the identity has no account.
func toCommit(rc *github.RepositoryCommit) model.Commit {
	message, _, _ := strings.Cut(rc.GetCommit().GetMessage(), "\n")
	c := model.Commit{
		SHA:         rc.GetSHA(),
		Message:     message,
		AuthorName:  rc.GetCommit().GetAuthor().GetName(),
		AuthorEmail: rc.GetCommit().GetAuthor().GetEmail(),
		CommittedAt: rc.GetCommit().GetAuthor().GetDate().Time,
	}
	if author := rc.GetAuthor(); author != nil {
		c.AuthorLogin = author.GetLogin()
		c.AvatarURL = author.GetAvatarURL()
	}
	if c.AuthorLogin == "" {
		c.AuthorLogin = c.AuthorName
	}
	return c
}

func toRepository(r *github.Repository) model.Repository {
	return model.Repository{
		ID:            r.GetID(),
		Name:          r.GetName(),
		FullName:      r.GetFullName(),
		Private:       r.GetPrivate(),
		DefaultBranch: r.GetDefaultBranch(),
		HTMLURL:       r.GetHTMLURL(),
		OwnerLogin:    r.GetOwner().GetLogin(),
	}
}

func splitRepo(repo string) (owner, name string, err error) {
	owner, name, ok := model.SplitRepoFullName(repo)
	if !ok {
		return "", "", &errs.InvalidRepoLinkError{Link: repo}
	}
	return owner, name, nil
}

// decodeBase64 strips whitespace before decoding: the API wraps long base64
// payloads with line breaks, which the standard decoder rejects.
func decodeBase64(encoded string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, encoded)
	b, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// fetchHint augments a 404 on file/blob fetch with the most common causes.
// A bare status on this path gives operators nothing to act on.
func fetchHint(err error, repo, path string) error {
	var ue *errs.UpstreamError
	if errors.As(err, &ue) && ue.Status == http.StatusNotFound {
		return &errs.UpstreamError{
			Status: http.StatusNotFound,
			Message: fmt.Sprintf("%s not found in repository %s. Possible reasons: "+
				"1) the GitHub App does not have access to this repository, "+
				"2) the path is incorrect (check case sensitivity), "+
				"3) the content is on a different branch. "+
				"Verify the installation covers this repository.", path, repo),
		}
	}
	return err
}

func wrapErr(err error) error {
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) {
		status := 0
		if ghErr.Response != nil {
			status = ghErr.Response.StatusCode
		}
		return &errs.UpstreamError{Status: status, Message: ghErr.Message}
	}
	return &errs.UpstreamError{Message: err.Error()}
}

func authError(resp *github.Response, err error) error {
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		return &errs.UpstreamAuthError{Status: ghErr.Response.StatusCode}
	}
	if resp != nil {
		return &errs.UpstreamAuthError{Status: resp.StatusCode}
	}
	return fmt.Errorf("creating installation token: %w", err)
}
