package deploy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/EasyAdvertisers/alfreyaa-app/internal/domain"
	"github.com/EasyAdvertisers/alfreyaa-app/internal/github"
	"github.com/EasyAdvertisers/alfreyaa-app/internal/netlify"
	"github.com/EasyAdvertisers/alfreyaa-app/internal/repository"
)

// ErrMissingCredentials indicates the repo or site host token is absent.
var ErrMissingCredentials = errors.New("deploy: hosting credentials not configured")

// ErrRunInProgress indicates another deployment run is still active.
var ErrRunInProgress = errors.New("deploy: a deployment is already in progress")

// RepoHost creates repositories and pushes files.
type RepoHost interface {
	Configured() bool
	AuthenticatedUser(ctx context.Context) (string, error)
	CreateRepo(ctx context.Context, name, description string) (github.Repo, error)
	PutFile(ctx context.Context, owner, repo, path, message, content string) error
}

// SiteHost provisions sites from a pushed repository.
type SiteHost interface {
	Configured() bool
	CreateSite(ctx context.Context, fullName, branch string) (netlify.Site, error)
}

// Publisher delivers pipeline events to session subscribers.
type Publisher interface {
	Publish(event domain.Event)
}

// Config carries deployment tunables.
type Config struct {
	RepoBase   string
	Branch     string
	ReadyWait  time.Duration
	RunTimeout time.Duration
}

// Service walks the deployment pipeline for one run at a time.
type Service struct {
	repos  RepoHost
	sites  SiteHost
	source domain.SourceProvider
	runs   repository.DeploymentRepository
	events Publisher
	logger *slog.Logger
	cfg    Config

	mu     sync.Mutex
	active bool
}

// New creates a deployment service.
func New(repos RepoHost, sites SiteHost, source domain.SourceProvider, runs repository.DeploymentRepository, events Publisher, logger *slog.Logger, cfg Config) *Service {
	if cfg.RepoBase == "" {
		cfg.RepoBase = "alfreya-site"
	}
	if cfg.Branch == "" {
		cfg.Branch = "main"
	}
	if cfg.ReadyWait <= 0 {
		cfg.ReadyWait = 15 * time.Second
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 5 * time.Minute
	}
	return &Service{
		repos:  repos,
		sites:  sites,
		source: source,
		runs:   runs,
		events: events,
		logger: logger,
		cfg:    cfg,
	}
}

// Active reports whether a run is currently executing.
func (s *Service) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Start validates credentials, records the run, and executes the pipeline in
// the background. Before any network call is made a missing token aborts the
// run with a single error event. The done callback fires once the run reaches
// a terminal state, after its terminal event has been published.
func (s *Service) Start(ctx context.Context, sessionID, submissionID string, done func()) (domain.DeploymentRun, error) {
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return domain.DeploymentRun{}, ErrRunInProgress
	}
	s.active = true
	s.mu.Unlock()

	now := time.Now().UTC()
	run := domain.DeploymentRun{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Status:    domain.DeployStatusIdle,
		StartedAt: now,
		UpdatedAt: now,
	}

	if err := s.runs.CreateRun(ctx, &run); err != nil {
		s.release()
		return domain.DeploymentRun{}, fmt.Errorf("record deployment run: %w", err)
	}

	if !s.repos.Configured() || !s.sites.Configured() {
		s.finish(ctx, &run, submissionID, done, ErrMissingCredentials,
			"Deployment is not configured. Set the GitHub and Netlify tokens and try again.")
		return run, ErrMissingCredentials
	}

	go s.execute(context.Background(), run, submissionID, done)
	return run, nil
}

func (s *Service) execute(rootCtx context.Context, run domain.DeploymentRun, submissionID string, done func()) {
	ctx, cancel := context.WithTimeout(rootCtx, s.cfg.RunTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("deployment pipeline panicked", "run_id", run.ID, "panic", r)
			s.finish(ctx, &run, submissionID, done, fmt.Errorf("deployment aborted unexpectedly"), "The deployment stopped unexpectedly.")
		}
	}()

	s.advance(ctx, &run, submissionID, domain.DeployStatusInitializing, "Preparing your deployment.")
	run.RepoName = fmt.Sprintf("%s-%s", s.cfg.RepoBase, time.Now().UTC().Format("20060102-150405"))
	files, err := s.siteFiles(ctx)
	if err != nil {
		s.finish(ctx, &run, submissionID, done, err, "Could not read the site files.")
		return
	}

	s.advance(ctx, &run, submissionID, domain.DeployStatusCreatingRepo, "Creating the repository.")
	owner, err := s.repos.AuthenticatedUser(ctx)
	if err != nil {
		s.finish(ctx, &run, submissionID, done, err, "Could not reach the repository host.")
		return
	}
	repo, err := s.repos.CreateRepo(ctx, run.RepoName, "Site generated by Alfreya")
	if err != nil {
		s.finish(ctx, &run, submissionID, done, err, "Creating the repository failed.")
		return
	}

	s.advance(ctx, &run, submissionID, domain.DeployStatusPushingFiles, fmt.Sprintf("Pushing %d files.", len(files)))
	for _, f := range files {
		if err := s.repos.PutFile(ctx, owner, repo.Name, f.Path, "add "+f.Path, f.Content); err != nil {
			s.finish(ctx, &run, submissionID, done, fmt.Errorf("push %s: %w", f.Path, err), "Pushing the site files failed.")
			return
		}
	}

	s.advance(ctx, &run, submissionID, domain.DeployStatusCreatingSite, "Creating the site.")
	site, err := s.sites.CreateSite(ctx, repo.FullName, s.cfg.Branch)
	if err != nil {
		s.finish(ctx, &run, submissionID, done, err, "Creating the site failed.")
		return
	}
	run.URL = site.PublicURL()

	// The site host builds asynchronously without a polling endpoint on this
	// plan, so the run waits a fixed interval before declaring success.
	s.advance(ctx, &run, submissionID, domain.DeployStatusDeploying, "Waiting for the first build.")
	select {
	case <-ctx.Done():
		s.finish(ctx, &run, submissionID, done, ctx.Err(), "The deployment timed out.")
		return
	case <-time.After(s.cfg.ReadyWait):
	}

	s.finish(ctx, &run, submissionID, done, nil, "Your site is live at "+run.URL)
}

// siteFiles loads the source tree and drops empty files before upload.
func (s *Service) siteFiles(ctx context.Context) ([]domain.SourceFile, error) {
	all, err := s.source.Files(ctx)
	if err != nil {
		return nil, err
	}
	files := make([]domain.SourceFile, 0, len(all))
	for _, f := range all {
		if strings.TrimSpace(f.Content) == "" {
			s.logger.Debug("skipping empty source file", "path", f.Path)
			continue
		}
		files = append(files, f)
	}
	if len(files) == 0 {
		return nil, errors.New("no site files to deploy")
	}
	return files, nil
}

// advance moves the run to the next stage, persists it, and emits the
// progress event before the stage's work begins.
func (s *Service) advance(ctx context.Context, run *domain.DeploymentRun, submissionID string, status domain.DeploymentStatus, message string) {
	run.Status = status
	run.Message = message
	run.UpdatedAt = time.Now().UTC()
	s.persist(ctx, run)
	s.logger.Info("deployment progress", "run_id", run.ID, "status", status)
	s.publish(run, submissionID)
}

// finish records the terminal state, releases the single-run slot, and fires
// the caller's completion callback. A nil err marks success.
func (s *Service) finish(ctx context.Context, run *domain.DeploymentRun, submissionID string, done func(), err error, message string) {
	now := time.Now().UTC()
	run.UpdatedAt = now
	run.CompletedAt = &now
	run.Message = message
	if err != nil {
		run.Status = domain.DeployStatusError
		run.Error = err.Error()
		s.logger.Error("deployment failed", "run_id", run.ID, "error", err)
	} else {
		run.Status = domain.DeployStatusSuccess
		s.logger.Info("deployment succeeded", "run_id", run.ID, "url", run.URL)
	}
	s.persist(ctx, run)
	s.publish(run, submissionID)
	s.release()
	if done != nil {
		done()
	}
}

func (s *Service) persist(ctx context.Context, run *domain.DeploymentRun) {
	if run.ID == "" {
		return
	}
	if err := s.runs.UpdateRun(ctx, run); err != nil {
		s.logger.Warn("failed to persist deployment run", "run_id", run.ID, "error", err)
	}
}

func (s *Service) publish(run *domain.DeploymentRun, submissionID string) {
	s.events.Publish(domain.Event{
		SubmissionID: submissionID,
		SessionID:    run.SessionID,
		Type:         domain.EventProgress,
		Progress: &domain.ProgressEvent{
			RunID:   run.ID,
			Status:  run.Status,
			Message: run.Message,
			URL:     run.URL,
		},
	})
}

func (s *Service) release() {
	s.mu.Lock()
	s.active = false
	s.mu.Unlock()
}
