// internal/github/client_test.go
package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/itsrifathridoy/talenthium/internal/errs"
)

// setupTestClient creates a httptest server and a gateway pointing to it.
func setupTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	client, err := NewClient(Options{
		BaseURL:    server.URL,
		HTTPClient: server.Client(),
		OAuthEndpoint: oauth2.Endpoint{
			AuthURL:  server.URL + "/login/oauth/authorize",
			TokenURL: server.URL + "/login/oauth/access_token",
		},
	}, logger)
	require.NoError(t, err)

	return client, server
}

func TestClient_CreateInstallationToken(t *testing.T) {
	t.Run("exchanges assertion for installation token", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/app/installations/42/access_tokens", r.URL.Path)
			assert.Equal(t, "Bearer app-jwt", r.Header.Get("Authorization"))
			w.WriteHeader(http.StatusCreated)
			fmt.Fprintln(w, `{"token": "ghs_secret", "expires_at": "2030-01-01T00:00:00Z"}`)
		})
		client, _ := setupTestClient(t, handler)

		token, err := client.CreateInstallationToken(context.Background(), 42, "app-jwt")

		require.NoError(t, err)
		assert.Equal(t, "ghs_secret", token)
	})

	t.Run("reports auth error on 401", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprintln(w, `{"message": "A JSON web token could not be decoded"}`)
		})
		client, _ := setupTestClient(t, handler)

		_, err := client.CreateInstallationToken(context.Background(), 42, "bad-jwt")

		require.Error(t, err)
		var authErr *errs.UpstreamAuthError
		require.ErrorAs(t, err, &authErr)
		assert.Equal(t, http.StatusUnauthorized, authErr.Status)
	})
}

func TestClient_ExchangeOAuthCode(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/login/oauth/access_token", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintln(w, `{"access_token": "gho_user", "token_type": "bearer"}`)
	})
	client, _ := setupTestClient(t, handler)

	token, err := client.ExchangeOAuthCode(context.Background(), "the-code")

	require.NoError(t, err)
	assert.Equal(t, "gho_user", token)
}

func TestClient_GetCommits(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/acme/widgets/commits", r.URL.Path)
		assert.Equal(t, "develop", r.URL.Query().Get("sha"))
		fmt.Fprintln(w, `[
			{"sha": "abc", "commit": {"message": "feat: add widget\n\nlong body here", "author": {"name": "Jane", "email": "jane@acme.io", "date": "2024-03-01T10:00:00Z"}}, "author": {"login": "janedoe", "avatar_url": "https://avatars.example/1"}},
			{"sha": "def", "commit": {"message": "fix typo", "author": {"name": "Drive By", "email": "drive@by.io", "date": "2024-03-02T10:00:00Z"}}}
		]`)
	})
	client, _ := setupTestClient(t, handler)

	commits, err := client.GetCommits(context.Background(), "tok", "acme/widgets", "develop", 100)

	require.NoError(t, err)
	require.Len(t, commits, 2)

	// Multi-line messages are reduced to their first line.
	assert.Equal(t, "feat: add widget", commits[0].Message)
	assert.Equal(t, "janedoe", commits[0].AuthorLogin)
	assert.Equal(t, "https://avatars.example/1", commits[0].AvatarURL)

	// No account behind the commit: the display name stands in for the login.
	assert.Equal(t, "Drive By", commits[1].AuthorLogin)
	assert.Equal(t, "drive@by.io", commits[1].AuthorEmail)
}

func TestClient_GetRepositoryTree_ResolvesDefaultBranch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"id": 1, "name": "widgets", "default_branch": "trunk"}`)
	})
	mux.HandleFunc("/repos/acme/widgets/branches/trunk", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"name": "trunk", "commit": {"sha": "head", "commit": {"tree": {"sha": "tree-sha"}}}}`)
	})
	mux.HandleFunc("/repos/acme/widgets/git/trees/tree-sha", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("recursive"))
		fmt.Fprintln(w, `{"sha": "tree-sha", "truncated": false, "tree": [
			{"path": "README.md", "type": "blob", "sha": "b1", "size": 120},
			{"path": "src", "type": "tree", "sha": "t1"},
			{"path": "src/main.go", "type": "blob", "sha": "b2", "size": 3400}
		]}`)
	})
	client, _ := setupTestClient(t, mux)

	tree, err := client.GetRepositoryTree(context.Background(), "tok", "acme/widgets", "")

	require.NoError(t, err)
	assert.Equal(t, "tree-sha", tree.SHA)
	assert.False(t, tree.Truncated)
	require.Len(t, tree.Entries, 3)
	assert.Equal(t, "src/main.go", tree.Entries[2].Path)
	assert.Equal(t, 3400, tree.Entries[2].Size)
}

func TestClient_GetFileContent(t *testing.T) {
	t.Run("decodes wrapped base64 content", func(t *testing.T) {
		// "hello world" base64-encoded with a line break in the middle, the
		// way the API returns large payloads.
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/repos/acme/widgets/contents/docs/hello.txt", r.URL.Path)
			fmt.Fprintln(w, `{"type": "file", "name": "hello.txt", "path": "docs/hello.txt", "sha": "b1", "encoding": "base64", "content": "aGVsbG8g\nd29ybGQ="}`)
		})
		client, _ := setupTestClient(t, handler)

		content, err := client.GetFileContent(context.Background(), "tok", "acme/widgets", "docs/hello.txt")

		require.NoError(t, err)
		assert.Equal(t, "hello world", content.Content)
		assert.Equal(t, "hello.txt", content.FileName)
	})

	t.Run("explains a 404 with likely causes", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprintln(w, `{"message": "Not Found"}`)
		})
		client, _ := setupTestClient(t, handler)

		_, err := client.GetFileContent(context.Background(), "tok", "acme/widgets", "missing.txt")

		require.Error(t, err)
		var upstream *errs.UpstreamError
		require.ErrorAs(t, err, &upstream)
		assert.Equal(t, http.StatusNotFound, upstream.Status)
		assert.Contains(t, upstream.Message, "Possible reasons")
		assert.Contains(t, upstream.Message, "missing.txt")
	})

	t.Run("rejects a directory path", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintln(w, `[{"type": "file", "name": "a.go", "path": "src/a.go"}]`)
		})
		client, _ := setupTestClient(t, handler)

		_, err := client.GetFileContent(context.Background(), "tok", "acme/widgets", "src")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "directory")
	})
}

func TestClient_GetCommitDiff_StripsVerification(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/acme/widgets/commits/abc123", r.URL.Path)
		fmt.Fprintln(w, `{"sha": "abc123", "commit": {"message": "m", "verification": {"verified": true, "reason": "valid"}}, "files": [{"filename": "main.go", "additions": 3, "deletions": 1}]}`)
	})
	client, _ := setupTestClient(t, handler)

	diff, err := client.GetCommitDiff(context.Background(), "tok", "acme/widgets", "abc123")

	require.NoError(t, err)
	require.NotNil(t, diff.Commit)
	assert.Nil(t, diff.Commit.Verification)
	require.Len(t, diff.Files, 1)
	assert.Equal(t, "main.go", diff.Files[0].GetFilename())
}

func TestClient_CanAccessRepository(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintln(w, `{"message": "Not Found"}`)
	})
	client, _ := setupTestClient(t, handler)

	assert.False(t, client.CanAccessRepository(context.Background(), "tok", "acme/hidden"))
}

func TestClient_SplitsGitLinks(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/acme/widgets", r.URL.Path)
		fmt.Fprintln(w, `{"id": 1, "name": "widgets", "full_name": "acme/widgets", "owner": {"login": "acme"}}`)
	})
	client, _ := setupTestClient(t, handler)

	repo, err := client.GetRepository(context.Background(), "tok", "https://github.com/acme/widgets.git")

	require.NoError(t, err)
	assert.Equal(t, "acme/widgets", repo.FullName)

	_, err = client.GetRepository(context.Background(), "tok", "not-a-repo")
	var badLink *errs.InvalidRepoLinkError
	require.ErrorAs(t, err, &badLink)
}
