package capability

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/EasyAdvertisers/alfreyaa-app/internal/domain"
	"github.com/EasyAdvertisers/alfreyaa-app/internal/gemini"
)

type fakeProvider struct {
	lastPrompt string
	lastSchema map[string]any

	text       string
	sources    []gemini.WebSource
	image      *gemini.InlineData
	structured string
	err        error
}

func (f *fakeProvider) Generate(_ context.Context, _, prompt string) (string, error) {
	f.lastPrompt = prompt
	return f.text, f.err
}

func (f *fakeProvider) GenerateGrounded(_ context.Context, _, prompt string) (string, []gemini.WebSource, error) {
	f.lastPrompt = prompt
	return f.text, f.sources, f.err
}

func (f *fakeProvider) GenerateImage(_ context.Context, prompt string) (*gemini.InlineData, error) {
	f.lastPrompt = prompt
	return f.image, f.err
}

func (f *fakeProvider) GenerateStructured(_ context.Context, _, prompt string, schema map[string]any) (string, error) {
	f.lastPrompt = prompt
	f.lastSchema = schema
	return f.structured, f.err
}

type fakeExtractor struct {
	content string
	err     error
	lastURL string
}

func (f *fakeExtractor) Extract(_ context.Context, url string) (string, error) {
	f.lastURL = url
	return f.content, f.err
}

type fakeSource struct {
	files []domain.SourceFile
	err   error
}

func (f fakeSource) Files(context.Context) ([]domain.SourceFile, error) {
	return f.files, f.err
}

func TestPlainText(t *testing.T) {
	p := &fakeProvider{text: "hi there"}
	a := New(p, nil, nil, nil)

	res, err := a.PlainText(context.Background(), "hello")
	if err != nil {
		t.Fatalf("PlainText returned error: %v", err)
	}
	if res.Intent != domain.IntentPlainText || res.Text != "hi there" {
		t.Fatalf("result = %+v", res)
	}
}

func TestGroundedSearchDedupesSources(t *testing.T) {
	p := &fakeProvider{
		text: "answer",
		sources: []gemini.WebSource{
			{URI: "https://a.example", Title: "first"},
			{URI: "https://b.example", Title: "other"},
			{URI: "https://a.example", Title: "updated"},
		},
	}
	a := New(p, nil, nil, nil)

	res, err := a.GroundedSearch(context.Background(), "what is new")
	if err != nil {
		t.Fatalf("GroundedSearch returned error: %v", err)
	}
	if len(res.Sources) != 2 {
		t.Fatalf("sources = %+v", res.Sources)
	}
	if res.Sources[0].URI != "https://a.example" || res.Sources[0].Title != "updated" {
		t.Fatalf("first source = %+v", res.Sources[0])
	}
	if res.Sources[1].URI != "https://b.example" {
		t.Fatalf("second source = %+v", res.Sources[1])
	}
}

func TestGenerateImageStripsTrigger(t *testing.T) {
	p := &fakeProvider{image: &gemini.InlineData{MimeType: "image/png", Data: "aGk="}}
	a := New(p, nil, nil, nil)

	res, err := a.GenerateImage(context.Background(), "generate image of a lighthouse at dusk")
	if err != nil {
		t.Fatalf("GenerateImage returned error: %v", err)
	}
	if p.lastPrompt != "a lighthouse at dusk" {
		t.Fatalf("prompt = %q", p.lastPrompt)
	}
	if res.Image == nil || res.Image.MimeType != "image/png" {
		t.Fatalf("result = %+v", res)
	}
}

func TestGenerateImageWithoutImageReturnsSentinel(t *testing.T) {
	a := New(&fakeProvider{}, nil, nil, nil)

	_, err := a.GenerateImage(context.Background(), "show me a picture of rain")
	if !errors.Is(err, ErrNoImage) {
		t.Fatalf("err = %v, want ErrNoImage", err)
	}
}

func TestAnalyzeURLFeedsPageText(t *testing.T) {
	p := &fakeProvider{text: "a summary"}
	ex := &fakeExtractor{content: "page body"}
	a := New(p, ex, nil, nil)

	res, err := a.AnalyzeURL(context.Background(), "summarize https://example.com", "https://example.com")
	if err != nil {
		t.Fatalf("AnalyzeURL returned error: %v", err)
	}
	if ex.lastURL != "https://example.com" {
		t.Fatalf("extracted url = %q", ex.lastURL)
	}
	if !strings.Contains(p.lastPrompt, "page body") {
		t.Fatalf("prompt missing page text: %q", p.lastPrompt)
	}
	if res.AnalyzedURL != "https://example.com" || res.Text != "a summary" {
		t.Fatalf("result = %+v", res)
	}
}

func TestAnalyzeURLPropagatesFetchFailure(t *testing.T) {
	wantErr := errors.New("unreachable")
	a := New(&fakeProvider{}, &fakeExtractor{err: wantErr}, nil, nil)

	_, err := a.AnalyzeURL(context.Background(), "read it", "https://example.com")
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v", err)
	}
}

func TestProposeChangesParsesProposal(t *testing.T) {
	p := &fakeProvider{structured: `{"explanation":"add a dark theme","changes":[{"file":"style.css","reason":"define dark palette"}]}`}
	src := fakeSource{files: []domain.SourceFile{{Path: "style.css", Content: "body {}"}}}
	a := New(p, nil, src, nil)

	res, err := a.ProposeChanges(context.Background(), "add a dark theme")
	if err != nil {
		t.Fatalf("ProposeChanges returned error: %v", err)
	}
	if p.lastSchema == nil {
		t.Fatal("schema not passed to provider")
	}
	if !strings.Contains(p.lastPrompt, "style.css") || !strings.Contains(p.lastPrompt, "body {}") {
		t.Fatalf("prompt missing source tree: %q", p.lastPrompt)
	}
	if res.Proposal == nil || len(res.Proposal.Changes) != 1 || res.Proposal.Changes[0].File != "style.css" {
		t.Fatalf("proposal = %+v", res.Proposal)
	}
	if res.Text != "add a dark theme" {
		t.Fatalf("text = %q", res.Text)
	}
}

func TestProposeChangesFallsBackOnMalformedJSON(t *testing.T) {
	p := &fakeProvider{structured: `not json at all`}
	a := New(p, nil, fakeSource{}, nil)

	res, err := a.ProposeChanges(context.Background(), "change your header")
	if err != nil {
		t.Fatalf("ProposeChanges returned error: %v", err)
	}
	if res.Proposal == nil || len(res.Proposal.Changes) != 0 {
		t.Fatalf("proposal = %+v", res.Proposal)
	}
	if res.Proposal.Explanation == "" {
		t.Fatal("fallback proposal missing explanation")
	}
}

func TestParseProposalRejectsEmptyFile(t *testing.T) {
	_, err := parseProposal(`{"explanation":"x","changes":[{"file":"","reason":"y"}]}`)
	if !errors.Is(err, ErrMalformedProposal) {
		t.Fatalf("err = %v", err)
	}
}
