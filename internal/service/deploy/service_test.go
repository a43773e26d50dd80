package deploy

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"log/slog"

	"github.com/EasyAdvertisers/alfreyaa-app/internal/domain"
	"github.com/EasyAdvertisers/alfreyaa-app/internal/github"
	"github.com/EasyAdvertisers/alfreyaa-app/internal/netlify"
)

type fakeRepoHost struct {
	configured bool
	userErr    error
	createErr  error
	putErr     error
	failPath   string

	mu     sync.Mutex
	calls  int
	pushed []string
}

func (f *fakeRepoHost) Configured() bool { return f.configured }

func (f *fakeRepoHost) AuthenticatedUser(context.Context) (string, error) {
	f.count()
	if f.userErr != nil {
		return "", f.userErr
	}
	return "octocat", nil
}

func (f *fakeRepoHost) CreateRepo(_ context.Context, name, _ string) (github.Repo, error) {
	f.count()
	if f.createErr != nil {
		return github.Repo{}, f.createErr
	}
	return github.Repo{Name: name, FullName: "octocat/" + name}, nil
}

func (f *fakeRepoHost) PutFile(_ context.Context, _, _, path, _, _ string) error {
	f.count()
	if f.putErr != nil && (f.failPath == "" || f.failPath == path) {
		return f.putErr
	}
	f.mu.Lock()
	f.pushed = append(f.pushed, path)
	f.mu.Unlock()
	return nil
}

func (f *fakeRepoHost) count() {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
}

func (f *fakeRepoHost) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeSiteHost struct {
	configured bool
	err        error

	mu    sync.Mutex
	calls int
}

func (f *fakeSiteHost) Configured() bool { return f.configured }

func (f *fakeSiteHost) CreateSite(_ context.Context, fullName, branch string) (netlify.Site, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return netlify.Site{}, f.err
	}
	return netlify.Site{ID: "site-1", SSLURL: "https://" + branch + ".example.app"}, nil
}

func (f *fakeSiteHost) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeRunStore struct {
	mu      sync.Mutex
	created []domain.DeploymentRun
	updates []domain.DeploymentRun
}

func (f *fakeRunStore) CreateRun(_ context.Context, run *domain.DeploymentRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, *run)
	return nil
}

func (f *fakeRunStore) UpdateRun(_ context.Context, run *domain.DeploymentRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, *run)
	return nil
}

func (f *fakeRunStore) GetRunByID(context.Context, string) (*domain.DeploymentRun, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeRunStore) ListRunsBySession(context.Context, string, int) ([]domain.DeploymentRun, error) {
	return nil, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (f *fakePublisher) Publish(event domain.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakePublisher) statuses() []domain.DeploymentStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.DeploymentStatus, 0, len(f.events))
	for _, e := range f.events {
		if e.Progress != nil {
			out = append(out, e.Progress.Status)
		}
	}
	return out
}

type staticSource struct {
	files []domain.SourceFile
	err   error
}

func (s staticSource) Files(context.Context) ([]domain.SourceFile, error) {
	return s.files, s.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitTerminal(t *testing.T, pub *fakePublisher) []domain.DeploymentStatus {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		statuses := pub.statuses()
		if len(statuses) > 0 && statuses[len(statuses)-1].Terminal() {
			return statuses
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("pipeline never reached a terminal status: %v", pub.statuses())
	return nil
}

func newTestService(repos *fakeRepoHost, sites *fakeSiteHost, src staticSource, runs *fakeRunStore, pub *fakePublisher) *Service {
	return New(repos, sites, src, runs, pub, testLogger(), Config{
		RepoBase:  "alfreya-site",
		Branch:    "main",
		ReadyWait: 10 * time.Millisecond,
	})
}

func TestStartRunsFullPipeline(t *testing.T) {
	repos := &fakeRepoHost{configured: true}
	sites := &fakeSiteHost{configured: true}
	src := staticSource{files: []domain.SourceFile{
		{Path: "index.html", Content: "<html></html>"},
		{Path: "empty.txt", Content: "   "},
		{Path: "css/main.css", Content: "body {}"},
	}}
	runs := &fakeRunStore{}
	pub := &fakePublisher{}
	svc := newTestService(repos, sites, src, runs, pub)

	done := make(chan struct{})
	run, err := svc.Start(context.Background(), "session-1", "sub-1", func() { close(done) })
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if run.ID == "" {
		t.Fatal("run id not assigned")
	}

	statuses := waitTerminal(t, pub)
	want := []domain.DeploymentStatus{
		domain.DeployStatusInitializing,
		domain.DeployStatusCreatingRepo,
		domain.DeployStatusPushingFiles,
		domain.DeployStatusCreatingSite,
		domain.DeployStatusDeploying,
		domain.DeployStatusSuccess,
	}
	if len(statuses) != len(want) {
		t.Fatalf("statuses = %v", statuses)
	}
	for i := range want {
		if statuses[i] != want[i] {
			t.Fatalf("statuses[%d] = %s, want %s", i, statuses[i], want[i])
		}
	}

	repos.mu.Lock()
	pushed := append([]string(nil), repos.pushed...)
	repos.mu.Unlock()
	if len(pushed) != 2 {
		t.Fatalf("pushed files = %v", pushed)
	}

	pub.mu.Lock()
	last := pub.events[len(pub.events)-1]
	pub.mu.Unlock()
	if last.Progress.URL != "https://main.example.app" {
		t.Fatalf("final url = %q", last.Progress.URL)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("completion callback never fired")
	}

	runs.mu.Lock()
	var creating domain.DeploymentRun
	for _, u := range runs.updates {
		if u.Status == domain.DeployStatusCreatingRepo {
			creating = u
		}
	}
	runs.mu.Unlock()
	if !strings.HasPrefix(creating.RepoName, "alfreya-site-") {
		t.Fatalf("repo name not assigned during initialization: %+v", creating)
	}

	if svc.Active() {
		t.Fatal("run slot not released after success")
	}
}

func TestMissingCredentialsFireCompletionCallback(t *testing.T) {
	repos := &fakeRepoHost{configured: false}
	sites := &fakeSiteHost{configured: true}
	pub := &fakePublisher{}
	svc := newTestService(repos, sites, staticSource{}, &fakeRunStore{}, pub)

	fired := false
	_, err := svc.Start(context.Background(), "session-1", "sub-1", func() { fired = true })
	if !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("err = %v", err)
	}
	if !fired {
		t.Fatal("completion callback not fired for an aborted run")
	}
}

func TestStartWithoutCredentialsMakesNoHostCalls(t *testing.T) {
	repos := &fakeRepoHost{configured: false}
	sites := &fakeSiteHost{configured: true}
	runs := &fakeRunStore{}
	pub := &fakePublisher{}
	svc := newTestService(repos, sites, staticSource{}, runs, pub)

	_, err := svc.Start(context.Background(), "session-1", "sub-1", nil)
	if !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("err = %v", err)
	}
	if repos.callCount() != 0 || sites.callCount() != 0 {
		t.Fatal("host was called despite missing credentials")
	}
	statuses := pub.statuses()
	if len(statuses) != 1 || statuses[0] != domain.DeployStatusError {
		t.Fatalf("statuses = %v", statuses)
	}
	if svc.Active() {
		t.Fatal("run slot not released")
	}
}

func TestStartRejectsConcurrentRun(t *testing.T) {
	repos := &fakeRepoHost{configured: true}
	sites := &fakeSiteHost{configured: true}
	src := staticSource{files: []domain.SourceFile{{Path: "index.html", Content: "x"}}}
	svc := New(repos, sites, src, &fakeRunStore{}, &fakePublisher{}, testLogger(), Config{
		ReadyWait: 500 * time.Millisecond,
	})

	if _, err := svc.Start(context.Background(), "session-1", "sub-1", nil); err != nil {
		t.Fatalf("first Start returned error: %v", err)
	}
	if _, err := svc.Start(context.Background(), "session-1", "sub-2", nil); !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("second Start err = %v", err)
	}
}

func TestFailedFilePushFailsTheRun(t *testing.T) {
	repos := &fakeRepoHost{configured: true, putErr: errors.New("conflict"), failPath: "css/main.css"}
	sites := &fakeSiteHost{configured: true}
	src := staticSource{files: []domain.SourceFile{
		{Path: "index.html", Content: "<html></html>"},
		{Path: "css/main.css", Content: "body {}"},
	}}
	pub := &fakePublisher{}
	svc := newTestService(repos, sites, src, &fakeRunStore{}, pub)

	if _, err := svc.Start(context.Background(), "session-1", "sub-1", nil); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	statuses := waitTerminal(t, pub)
	if statuses[len(statuses)-1] != domain.DeployStatusError {
		t.Fatalf("statuses = %v", statuses)
	}
	if sites.callCount() != 0 {
		t.Fatal("site was created despite failed push")
	}
}

func TestEmptySourceTreeFailsBeforeRepoCreation(t *testing.T) {
	repos := &fakeRepoHost{configured: true}
	sites := &fakeSiteHost{configured: true}
	src := staticSource{files: []domain.SourceFile{{Path: "empty.txt", Content: ""}}}
	pub := &fakePublisher{}
	svc := newTestService(repos, sites, src, &fakeRunStore{}, pub)

	if _, err := svc.Start(context.Background(), "session-1", "sub-1", nil); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	statuses := waitTerminal(t, pub)
	if statuses[len(statuses)-1] != domain.DeployStatusError {
		t.Fatalf("statuses = %v", statuses)
	}
	if repos.callCount() != 0 {
		t.Fatal("repository host was called for an empty tree")
	}
}

func TestSiteCreationFailureReported(t *testing.T) {
	repos := &fakeRepoHost{configured: true}
	sites := &fakeSiteHost{configured: true, err: errors.New("quota exceeded")}
	src := staticSource{files: []domain.SourceFile{{Path: "index.html", Content: "x"}}}
	runs := &fakeRunStore{}
	pub := &fakePublisher{}
	svc := newTestService(repos, sites, src, runs, pub)

	if _, err := svc.Start(context.Background(), "session-1", "sub-1", nil); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	statuses := waitTerminal(t, pub)
	if statuses[len(statuses)-1] != domain.DeployStatusError {
		t.Fatalf("statuses = %v", statuses)
	}

	runs.mu.Lock()
	final := runs.updates[len(runs.updates)-1]
	runs.mu.Unlock()
	if final.Error == "" || final.CompletedAt == nil {
		t.Fatalf("final run = %+v", final)
	}
}
