package capability

import (
	"context"

	"github.com/EasyAdvertisers/alfreyaa-app/internal/domain"
)

// PlainText answers a free-form message with no tools attached.
func (a Adapters) PlainText(ctx context.Context, command string) (domain.Result, error) {
	text, err := a.provider.Generate(ctx, persona, command)
	if err != nil {
		return domain.Result{}, err
	}
	return domain.Result{Intent: domain.IntentPlainText, Text: text}, nil
}
