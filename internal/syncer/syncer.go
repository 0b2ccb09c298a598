// Package syncer runs the asynchronous commit backfill triggered by project
// creation.
package syncer

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/itsrifathridoy/talenthium/internal/errs"
	"github.com/itsrifathridoy/talenthium/internal/model"
	"github.com/itsrifathridoy/talenthium/internal/queue"
	"github.com/itsrifathridoy/talenthium/internal/store"
)

const (
	// Commits fetched per branch in one backfill pass.
	commitsPerBranch = 100
)

// Gateway is the slice of the upstream client the pipeline needs.
type Gateway interface {
	CreateInstallationToken(ctx context.Context, installationID int64, appJWT string) (string, error)
	GetAllBranches(ctx context.Context, token, repo string) ([]model.Branch, error)
	GetCommits(ctx context.Context, token, repo, branch string, perPage int) ([]model.Commit, error)
}

// Signer mints short-lived app assertions.
type Signer interface {
	SignAppAssertion() (string, error)
}

// Pipeline consumes sync jobs and backfills commit history for freshly
// created projects.
type Pipeline struct {
	store   store.Store
	gateway Gateway
	signer  Signer
	logger  *slog.Logger
	workers int
}

func NewPipeline(st store.Store, gw Gateway, signer Signer, workers int, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		store:   st,
		gateway: gw,
		signer:  signer,
		workers: workers,
		logger:  logger,
	}
}

// Run blocks consuming jobs with a fixed pool of workers until the context
// is cancelled or the consumer is closed. Job failures never stop a worker.
func (p *Pipeline) Run(ctx context.Context, consumer queue.Consumer) error {
	p.logger.Info("Starting sync pipeline", "workers", p.workers)
	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < p.workers; i++ {
		worker := i
		g.Go(func() error {
			logger := p.logger.With("worker", worker)
			for {
				job, err := consumer.Receive(gctx)
				if errors.Is(err, queue.ErrClosed) || errors.Is(err, context.Canceled) {
					logger.Info("Sync worker shutting down")
					return nil
				}
				if err != nil {
					logger.Error("Error receiving sync job", "error", err)
					continue
				}

				summary, err := p.SyncProject(gctx, job)
				if err != nil {
					logger.Error("Failed to sync project",
						"project_id", job.ProjectID, "repo", job.GitLink, "error", err)
					continue
				}
				logger.Info("Completed project sync",
					"project_id", job.ProjectID, "repo", job.GitLink,
					"branches", summary.Branches, "saved", summary.Saved, "skipped", summary.Skipped)
			}
		})
	}

	return g.Wait()
}

// Summary reports one backfill pass.
type Summary struct {
	Branches int
	Saved    int
	Skipped  int
}

// SyncProject backfills commit history for one project: mint a fresh
// installation token for the project owner, then walk every branch saving
// commits not yet recorded. Setup failures abandon the job; per-commit
// failures are counted and skipped so one bad commit never loses the rest.
func (p *Pipeline) SyncProject(ctx context.Context, job model.SyncJob) (Summary, error) {
	logger := p.logger.With("project_id", job.ProjectID, "repo", job.GitLink)

	installation, err := p.store.GetInstallation(ctx, job.UserID)
	if err != nil {
		var notLinked *errs.NotLinkedError
		if errors.As(err, &notLinked) {
			logger.Warn("Project owner has no app installation, abandoning sync", "owner_id", job.UserID)
		}
		return Summary{}, err
	}

	installationID, err := strconv.ParseInt(installation.InstallationID, 10, 64)
	if err != nil {
		return Summary{}, &errs.ConfigurationError{Reason: "invalid stored installation id", Err: err}
	}

	assertion, err := p.signer.SignAppAssertion()
	if err != nil {
		return Summary{}, err
	}
	token, err := p.gateway.CreateInstallationToken(ctx, installationID, assertion)
	if err != nil {
		return Summary{}, err
	}

	branches, err := p.gateway.GetAllBranches(ctx, token, job.GitLink)
	if err != nil {
		return Summary{}, err
	}
	logger.Info("Fetched branches for backfill", "count", len(branches))

	summary := Summary{Branches: len(branches)}
	for _, branch := range branches {
		saved, skipped := p.syncBranch(ctx, token, job, branch.Name)
		logger.Info("Synced branch", "branch", branch.Name, "saved", saved, "skipped", skipped)
		summary.Saved += saved
		summary.Skipped += skipped
	}
	return summary, nil
}

// syncBranch fetches recent commits on one branch and persists the ones not
// yet recorded for this project and branch.
func (p *Pipeline) syncBranch(ctx context.Context, token string, job model.SyncJob, branch string) (saved, skipped int) {
	logger := p.logger.With("project_id", job.ProjectID, "branch", branch)

	commits, err := p.gateway.GetCommits(ctx, token, job.GitLink, branch, commitsPerBranch)
	if err != nil {
		logger.Warn("Error fetching branch commits", "error", err)
		return 0, 0
	}

	for _, commit := range commits {
		exists, err := p.store.ContributionExists(ctx, job.ProjectID, commit.SHA, branch)
		if err != nil {
			logger.Warn("Error checking commit existence", "sha", commit.SHA, "error", err)
			skipped++
			continue
		}
		if exists {
			skipped++
			continue
		}

		if err := p.store.SaveCommit(ctx, job.ProjectID, branch, commit); err != nil {
			logger.Warn("Error saving commit", "sha", commit.SHA, "error", err)
			skipped++
			continue
		}
		saved++
	}
	return saved, skipped
}
