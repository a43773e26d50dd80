package capability

import (
	"context"
	"fmt"

	"github.com/EasyAdvertisers/alfreyaa-app/internal/domain"
)

// AnalyzeURL fetches the page behind url and summarizes it in terms of the
// user's command.
func (a Adapters) AnalyzeURL(ctx context.Context, command, url string) (domain.Result, error) {
	content, err := a.extractor.Extract(ctx, url)
	if err != nil {
		return domain.Result{}, fmt.Errorf("fetch %s: %w", url, err)
	}
	prompt := fmt.Sprintf(
		"The user asked: %q\n\nHere is the readable text of %s:\n\n%s\n\nSummarize the page and answer the user's request.",
		command, url, content,
	)
	text, err := a.provider.Generate(ctx, persona, prompt)
	if err != nil {
		return domain.Result{}, err
	}
	return domain.Result{
		Intent:      domain.IntentURLAnalysis,
		Text:        text,
		AnalyzedURL: url,
	}, nil
}
