package capability

import (
	"context"
	"log/slog"

	"github.com/EasyAdvertisers/alfreyaa-app/internal/domain"
	"github.com/EasyAdvertisers/alfreyaa-app/internal/gemini"
)

// persona is the system instruction shared by every text-producing capability.
const persona = "You are Alfreya, a friendly conversational assistant. " +
	"Answer clearly and helpfully, keep responses concise, and never invent facts you are not sure about."

// Provider generates model output for the adapters.
type Provider interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
	GenerateGrounded(ctx context.Context, system, prompt string) (string, []gemini.WebSource, error)
	GenerateImage(ctx context.Context, prompt string) (*gemini.InlineData, error)
	GenerateStructured(ctx context.Context, system, prompt string, schema map[string]any) (string, error)
}

// Extractor fetches a URL and returns its readable text.
type Extractor interface {
	Extract(ctx context.Context, url string) (string, error)
}

// Adapters holds one handler per classified intent.
type Adapters struct {
	provider  Provider
	extractor Extractor
	source    domain.SourceProvider
	logger    *slog.Logger
}

// New constructs the adapter set.
func New(provider Provider, extractor Extractor, source domain.SourceProvider, logger *slog.Logger) Adapters {
	return Adapters{
		provider:  provider,
		extractor: extractor,
		source:    source,
		logger:    logger,
	}
}
