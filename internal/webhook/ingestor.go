// Package webhook verifies and dispatches inbound GitHub webhooks.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/go-github/v62/github"
	"github.com/jackc/pgx/v5"

	"github.com/itsrifathridoy/talenthium/internal/errs"
	"github.com/itsrifathridoy/talenthium/internal/model"
	"github.com/itsrifathridoy/talenthium/internal/store"
)

// EventKind is the closed set of webhook event types the ingestor handles.
type EventKind int

const (
	EventUnknown EventKind = iota
	EventInstallation
	EventInstallationRepositories
	EventPush
)

// ParseEventKind maps the X-GitHub-Event header value to an EventKind.
func ParseEventKind(event string) EventKind {
	switch event {
	case "installation":
		return EventInstallation
	case "installation_repositories":
		return EventInstallationRepositories
	case "push":
		return EventPush
	default:
		return EventUnknown
	}
}

// Ingestor verifies webhook signatures and applies the events to the
// installation registry and the contribution store.
type Ingestor struct {
	secret   []byte
	store    store.Store
	logger   *slog.Logger
	handlers map[EventKind]func(ctx context.Context, body []byte) error
}

func NewIngestor(secret string, st store.Store, logger *slog.Logger) *Ingestor {
	in := &Ingestor{
		secret: []byte(secret),
		store:  st,
		logger: logger,
	}
	in.handlers = map[EventKind]func(context.Context, []byte) error{
		EventInstallation:             in.handleInstallation,
		EventInstallationRepositories: in.handleInstallationRepositories,
		EventPush:                     in.handlePush,
	}
	return in
}

// Handle verifies the signature over the raw body and dispatches by event
// type. The body must be the exact bytes received: re-serialized JSON would
// not byte-match the signature. Once verification passes, downstream
// failures are logged but never returned; the sender treats errors as retry
// signals and a raw retry cannot fix a partial ingestion failure.
func (in *Ingestor) Handle(ctx context.Context, body []byte, signature, event string) error {
	if err := github.ValidateSignature(signature, body, in.secret); err != nil {
		in.logger.Warn("Invalid webhook signature received", "event", event)
		return &errs.InvalidSignatureError{Err: err}
	}

	kind := ParseEventKind(event)
	handler, ok := in.handlers[kind]
	if !ok {
		in.logger.Info("Received unhandled webhook event", "event", event)
		return nil
	}

	in.logger.Info("Processing webhook event", "event", event)
	if err := handler(ctx, body); err != nil {
		in.logger.Error("Error processing webhook event", "event", event, "error", err)
	}
	return nil
}

// handleInstallation deletes the installation row on an uninstall. Creation
// is a no-op here: the synchronous install callback flow owns it.
func (in *Ingestor) handleInstallation(ctx context.Context, body []byte) error {
	var ev github.InstallationEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return err
	}

	switch ev.GetAction() {
	case "created":
		in.logger.Info("Installation created webhook received",
			"installation_id", ev.GetInstallation().GetID())
		return nil
	case "deleted":
		installationID := formatInstallationID(ev.GetInstallation().GetID())
		inst, err := in.store.FindInstallationByID(ctx, installationID)
		if errors.Is(err, pgx.ErrNoRows) {
			in.logger.Warn("Installation not found in database", "installation_id", installationID)
			return nil
		}
		if err != nil {
			return err
		}
		if err := in.store.DeleteInstallation(ctx, inst.OwnerID); err != nil {
			return err
		}
		in.logger.Info("Deleted installation", "installation_id", installationID, "owner_id", inst.OwnerID)
		return nil
	default:
		in.logger.Info("Unhandled installation action", "action", ev.GetAction())
		return nil
	}
}

// handleInstallationRepositories only logs the grant changes. The cached
// snapshot is refreshed lazily on the next listing call rather than patched
// incrementally.
func (in *Ingestor) handleInstallationRepositories(ctx context.Context, body []byte) error {
	var ev github.InstallationRepositoriesEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return err
	}

	installationID := ev.GetInstallation().GetID()
	for _, r := range ev.RepositoriesAdded {
		in.logger.Info("Repository added to installation",
			"installation_id", installationID, "repo", r.GetFullName())
	}
	for _, r := range ev.RepositoriesRemoved {
		in.logger.Info("Repository removed from installation",
			"installation_id", installationID, "repo", r.GetFullName())
	}
	return nil
}

// handlePush ingests the commits embedded in a push payload for every
// project tracking the repository. No installation token is needed; the
// payload carries the commit metadata.
func (in *Ingestor) handlePush(ctx context.Context, body []byte) error {
	var ev github.PushEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return err
	}

	if ev.GetDeleted() {
		in.logger.Info("Branch was deleted, skipping commit processing", "ref", ev.GetRef())
		return nil
	}

	// Tag pushes carry commits too; only branch refs are contributions.
	if !strings.HasPrefix(ev.GetRef(), "refs/heads/") {
		in.logger.Info("Ignoring push to non-branch ref", "ref", ev.GetRef())
		return nil
	}

	repoFullName := ev.GetRepo().GetFullName()
	branch := strings.TrimPrefix(ev.GetRef(), "refs/heads/")

	projects, err := in.store.FindProjectsByRepository(ctx, repoFullName)
	if err != nil {
		return err
	}
	if len(projects) == 0 {
		in.logger.Info("No projects found for repository", "repo", repoFullName)
		return nil
	}

	for _, project := range projects {
		saved, skipped := in.ingestCommits(ctx, project, branch, ev.Commits)
		in.logger.Info("Completed processing push commits",
			"project", project.Name, "branch", branch, "saved", saved, "skipped", skipped)
	}
	return nil
}

// ingestCommits mirrors the sync pipeline's per-commit behavior: dedup by
// (sha, branch), one transaction per commit, failures counted and skipped.
func (in *Ingestor) ingestCommits(ctx context.Context, project model.Project, branch string, commits []*github.HeadCommit) (saved, skipped int) {
	for _, hc := range commits {
		commit := toCommit(hc)

		exists, err := in.store.ContributionExists(ctx, project.ID, commit.SHA, branch)
		if err != nil {
			in.logger.Warn("Error checking commit existence", "sha", commit.SHA, "error", err)
			skipped++
			continue
		}
		if exists {
			skipped++
			continue
		}

		if err := in.store.SaveCommit(ctx, project.ID, branch, commit); err != nil {
			in.logger.Warn("Error saving push commit", "sha", commit.SHA, "branch", branch, "error", err)
			skipped++
			continue
		}
		saved++
	}
	return saved, skipped
}

// toCommit normalizes a push-payload commit. Push payloads tag the account
// name as "username"; when the author has none the committer's is used.
func toCommit(hc *github.HeadCommit) model.Commit {
	message, _, _ := strings.Cut(hc.GetMessage(), "\n")
	login := hc.GetAuthor().GetLogin()
	if login == "" {
		login = hc.GetCommitter().GetLogin()
	}
	if login == "" {
		login = hc.GetAuthor().GetName()
	}
	return model.Commit{
		SHA:         hc.GetID(),
		Message:     message,
		AuthorName:  hc.GetAuthor().GetName(),
		AuthorEmail: hc.GetAuthor().GetEmail(),
		AuthorLogin: login,
		CommittedAt: hc.GetTimestamp().Time,
	}
}

func formatInstallationID(id int64) string {
	return strconv.FormatInt(id, 10)
}
