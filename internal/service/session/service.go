package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/EasyAdvertisers/alfreyaa-app/internal/capability"
	"github.com/EasyAdvertisers/alfreyaa-app/internal/domain"
	"github.com/EasyAdvertisers/alfreyaa-app/internal/extract"
	"github.com/EasyAdvertisers/alfreyaa-app/internal/gemini"
	"github.com/EasyAdvertisers/alfreyaa-app/internal/intent"
	"github.com/EasyAdvertisers/alfreyaa-app/internal/repository"
	"github.com/EasyAdvertisers/alfreyaa-app/internal/service/deploy"
)

// ErrBusy indicates the session already has a command in flight.
var ErrBusy = errors.New("session: a command is already being processed")

// ErrEmptyCommand indicates a blank submission.
var ErrEmptyCommand = errors.New("session: command is empty")

// Capabilities is the adapter set commands are dispatched to.
type Capabilities interface {
	PlainText(ctx context.Context, command string) (domain.Result, error)
	GroundedSearch(ctx context.Context, command string) (domain.Result, error)
	GenerateImage(ctx context.Context, command string) (domain.Result, error)
	AnalyzeURL(ctx context.Context, command, url string) (domain.Result, error)
	ProposeChanges(ctx context.Context, command string) (domain.Result, error)
}

// Deployer starts deployment runs.
type Deployer interface {
	Start(ctx context.Context, sessionID, submissionID string, done func()) (domain.DeploymentRun, error)
}

// Publisher delivers events to session subscribers.
type Publisher interface {
	Publish(event domain.Event)
}

// Service accepts free-text commands, classifies them, and routes each to a
// capability. A session processes one command at a time.
type Service struct {
	caps     Capabilities
	deployer Deployer
	turns    repository.TurnRepository
	events   Publisher
	logger   *slog.Logger

	mu   sync.Mutex
	busy map[string]struct{}
}

// New creates a session service.
func New(caps Capabilities, deployer Deployer, turns repository.TurnRepository, events Publisher, logger *slog.Logger) *Service {
	return &Service{
		caps:     caps,
		deployer: deployer,
		turns:    turns,
		events:   events,
		logger:   logger,
		busy:     make(map[string]struct{}),
	}
}

// Submit records the command, kicks off processing in the background, and
// returns the submission ID events will carry.
func (s *Service) Submit(ctx context.Context, sessionID, command string) (string, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return "", ErrEmptyCommand
	}
	if sessionID == "" {
		return "", fmt.Errorf("session id required")
	}

	s.mu.Lock()
	if _, inFlight := s.busy[sessionID]; inFlight {
		s.mu.Unlock()
		return "", ErrBusy
	}
	s.busy[sessionID] = struct{}{}
	s.mu.Unlock()

	submissionID := uuid.NewString()
	userTurn := &domain.Turn{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      domain.RoleUser,
		Kind:      "text",
		Text:      command,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.turns.AppendTurn(ctx, userTurn); err != nil {
		s.release(sessionID)
		return "", fmt.Errorf("record command: %w", err)
	}

	s.logger.Info("command accepted", "session_id", sessionID, "submission_id", submissionID)
	go s.process(context.Background(), sessionID, submissionID, command)
	return submissionID, nil
}

// History returns the most recent turns for a session, oldest first.
func (s *Service) History(ctx context.Context, sessionID string, limit int) ([]domain.Turn, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.turns.ListTurnsBySession(ctx, sessionID, limit)
}

func (s *Service) process(ctx context.Context, sessionID, submissionID, command string) {
	cls := intent.Classify(command)
	s.logger.Info("command classified", "session_id", sessionID, "intent", cls.Intent)

	// Deployments hold the in-flight slot until the run's terminal event;
	// the orchestrator releases it through the completion callback.
	if cls.Intent == domain.IntentDeployment {
		s.startDeployment(ctx, sessionID, submissionID)
		return
	}
	defer s.release(sessionID)

	var (
		result domain.Result
		err    error
	)
	switch cls.Intent {
	case domain.IntentGroundedSearch:
		result, err = s.caps.GroundedSearch(ctx, command)
	case domain.IntentImageGeneration:
		result, err = s.caps.GenerateImage(ctx, command)
	case domain.IntentURLAnalysis:
		result, err = s.caps.AnalyzeURL(ctx, command, cls.URL)
	case domain.IntentCodeModification:
		result, err = s.caps.ProposeChanges(ctx, command)
	default:
		result, err = s.caps.PlainText(ctx, command)
	}
	if err != nil {
		s.logger.Error("command failed", "session_id", sessionID, "intent", cls.Intent, "error", err)
		result = domain.Result{Intent: cls.Intent, Text: failureText(err), Failed: true}
	}

	s.recordResult(ctx, sessionID, result)
	s.events.Publish(domain.Event{
		SubmissionID: submissionID,
		SessionID:    sessionID,
		Type:         domain.EventResult,
		Result:       &result,
	})
}

// startDeployment hands off to the orchestrator, which owns all further
// events for the run. The session slot is released by the run's completion
// callback once a terminal event has been published, or immediately when the
// run never started.
func (s *Service) startDeployment(ctx context.Context, sessionID, submissionID string) {
	run, err := s.deployer.Start(ctx, sessionID, submissionID, func() { s.release(sessionID) })
	switch {
	case errors.Is(err, deploy.ErrRunInProgress):
		s.release(sessionID)
		result := domain.Result{
			Intent: domain.IntentDeployment,
			Text:   "A deployment is already running. Wait for it to finish before starting another.",
			Failed: true,
		}
		s.recordResult(ctx, sessionID, result)
		s.events.Publish(domain.Event{
			SubmissionID: submissionID,
			SessionID:    sessionID,
			Type:         domain.EventResult,
			Result:       &result,
		})
	case errors.Is(err, deploy.ErrMissingCredentials):
		// The orchestrator already emitted the error event and fired the
		// completion callback.
		s.recordResult(ctx, sessionID, domain.Result{
			Intent: domain.IntentDeployment,
			Text:   "Deployment is not configured on this server.",
			Failed: true,
		})
	case err != nil:
		s.release(sessionID)
		s.logger.Error("deployment start failed", "session_id", sessionID, "error", err)
		result := domain.Result{Intent: domain.IntentDeployment, Text: failureText(err), Failed: true}
		s.recordResult(ctx, sessionID, result)
		s.events.Publish(domain.Event{
			SubmissionID: submissionID,
			SessionID:    sessionID,
			Type:         domain.EventResult,
			Result:       &result,
		})
	default:
		s.recordResult(ctx, sessionID, domain.Result{
			Intent:     domain.IntentDeployment,
			Text:       "Deployment started.",
			Deployment: &domain.DeploymentOutcome{Status: run.Status},
		})
	}
}

func (s *Service) recordResult(ctx context.Context, sessionID string, result domain.Result) {
	payload, err := json.Marshal(result)
	if err != nil {
		s.logger.Error("failed to encode result payload", "session_id", sessionID, "error", err)
		payload = nil
	}
	turn := &domain.Turn{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      domain.RoleAssistant,
		Kind:      string(result.Intent),
		Text:      result.Text,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.turns.AppendTurn(ctx, turn); err != nil {
		s.logger.Error("failed to record assistant turn", "session_id", sessionID, "error", err)
	}
}

func (s *Service) release(sessionID string) {
	s.mu.Lock()
	delete(s.busy, sessionID)
	s.mu.Unlock()
}

// failureText maps infrastructure errors to a message safe to show the user.
func failureText(err error) string {
	var fetchErr *extract.FetchError
	if errors.As(err, &fetchErr) {
		return "I couldn't read that page. The site may be down or blocking requests."
	}
	if errors.Is(err, capability.ErrNoImage) {
		return "I could not generate an image for that request. Try describing the picture differently."
	}
	if errors.Is(err, gemini.ErrNoAPIKey) {
		return "The model service is not configured on this server."
	}
	var apiErr *gemini.APIError
	if errors.As(err, &apiErr) {
		return "The model service is having trouble right now. Please try again shortly."
	}
	return "Something went wrong while handling that request. Please try again."
}
