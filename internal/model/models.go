// Package model holds the internal domain types persisted and passed between
// components.
package model

import (
	"encoding/json"
	"strings"
	"time"
)

// Installation maps an internal owner to a GitHub App installation and a
// cached snapshot of the repositories that installation can reach. An owner
// has at most one active installation; re-installs overwrite the row.
type Installation struct {
	ID             int64
	OwnerID        int64
	InstallationID string
	Repositories   json.RawMessage
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Project is a user-owned record pointing at one upstream repository.
// GitLink is immutable after creation; webhook payloads are resolved back to
// projects by matching it against the payload's repository full name.
type Project struct {
	ID            int64     `json:"id"`
	OwnerID       int64     `json:"ownerId"`
	Name          string    `json:"name"`
	GitLink       string    `json:"gitLink"`
	DefaultBranch string    `json:"defaultBranch"`
	LiveLink      *string   `json:"liveLink,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Contributor is a commit identity scoped to a single project. The same
// human contributing to two projects yields two rows.
type Contributor struct {
	ID             int64     `json:"id"`
	ProjectID      int64     `json:"projectId"`
	Name           string    `json:"name"`
	GithubUsername string    `json:"githubUsername,omitempty"`
	AvatarURL      string    `json:"avatarUrl,omitempty"`
	Email          string    `json:"email,omitempty"`
	Role           string    `json:"role"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Contribution is one ingested commit on one branch. Rows are append-only;
// the (project, sha, branch) triple is unique.
type Contribution struct {
	ID            int64     `json:"id"`
	ProjectID     int64     `json:"projectId"`
	ContributorID int64     `json:"contributorId"`
	CommitSHA     string    `json:"commitSha"`
	Branch        string    `json:"branch"`
	Message       string    `json:"message"`
	CommittedAt   time.Time `json:"committedAt"`
	CreatedAt     time.Time `json:"createdAt"`
}

// User is the local replica of an account-service user, kept current by the
// user-created event consumer and the OAuth link flow.
type User struct {
	UserID         int64   `json:"userId"`
	Username       string  `json:"username"`
	Email          string  `json:"email"`
	GithubUsername *string `json:"githubUsername,omitempty"`
	GithubID       *string `json:"githubId,omitempty"`
}

// Commit is the normalized commit shape handed to the store, independent of
// whether it came from the REST API or a push webhook payload.
type Commit struct {
	SHA         string
	Message     string
	AuthorName  string
	AuthorEmail string
	AuthorLogin string
	AvatarURL   string
	CommittedAt time.Time
}

// Branch is an upstream branch head.
type Branch struct {
	Name string `json:"name"`
	SHA  string `json:"sha"`
}

// Repository is the subset of upstream repository metadata the service keeps.
type Repository struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	FullName      string `json:"fullName"`
	Private       bool   `json:"private"`
	DefaultBranch string `json:"defaultBranch"`
	HTMLURL       string `json:"htmlUrl"`
	OwnerLogin    string `json:"ownerLogin"`
}

// TreeEntry is one node of a recursive git tree listing.
type TreeEntry struct {
	Path string `json:"path"`
	Type string `json:"type"` // "tree" or "blob"
	SHA  string `json:"sha"`
	Size int    `json:"size,omitempty"`
}

// Tree is a recursive repository tree as fetched from upstream.
type Tree struct {
	SHA       string      `json:"sha"`
	Truncated bool        `json:"truncated"`
	Entries   []TreeEntry `json:"entries"`
}

// FileContent is a decoded file or blob fetched from a repository.
type FileContent struct {
	FileName string `json:"fileName"`
	Path     string `json:"path"`
	Content  string `json:"content"`
	SHA      string `json:"sha"`
	HTMLURL  string `json:"htmlUrl"`
}

// SyncJob is the queue message that triggers a full commit sync for a
// freshly created project.
type SyncJob struct {
	ProjectID     int64  `json:"projectId"`
	UserID        int64  `json:"userId"`
	ProjectName   string `json:"projectName"`
	GitLink       string `json:"gitLink"`
	DefaultBranch string `json:"defaultBranch"`
}

// UserCreatedEvent is the account-service event that seeds the local user
// replica.
type UserCreatedEvent struct {
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// RepoFullName normalizes a stored git link to "owner/name". Links may be
// stored bare or as a full GitHub URL, with or without a ".git" suffix.
func RepoFullName(gitLink string) string {
	s := strings.TrimSuffix(strings.TrimSpace(gitLink), "/")
	if i := strings.Index(s, "github.com/"); i >= 0 {
		s = s[i+len("github.com/"):]
	}
	return strings.TrimSuffix(s, ".git")
}

// SplitRepoFullName splits a git link into owner and repository name. The
// third return is false when the link does not normalize to "owner/name".
func SplitRepoFullName(gitLink string) (owner, name string, ok bool) {
	parts := strings.Split(RepoFullName(gitLink), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
