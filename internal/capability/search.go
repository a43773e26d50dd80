package capability

import (
	"context"

	"github.com/EasyAdvertisers/alfreyaa-app/internal/domain"
	"github.com/EasyAdvertisers/alfreyaa-app/internal/gemini"
)

// GroundedSearch answers with web grounding and returns deduplicated sources.
func (a Adapters) GroundedSearch(ctx context.Context, command string) (domain.Result, error) {
	text, sources, err := a.provider.GenerateGrounded(ctx, persona, command)
	if err != nil {
		return domain.Result{}, err
	}
	return domain.Result{
		Intent:  domain.IntentGroundedSearch,
		Text:    text,
		Sources: dedupeSources(sources),
	}, nil
}

// dedupeSources keeps one entry per URI. The provider may cite the same page
// from several passages; the first position wins, the last title wins.
func dedupeSources(sources []gemini.WebSource) []domain.Source {
	if len(sources) == 0 {
		return nil
	}
	index := make(map[string]int, len(sources))
	out := make([]domain.Source, 0, len(sources))
	for _, s := range sources {
		if i, ok := index[s.URI]; ok {
			out[i].Title = s.Title
			continue
		}
		index[s.URI] = len(out)
		out = append(out, domain.Source{URI: s.URI, Title: s.Title})
	}
	return out
}
