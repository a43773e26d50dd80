package capability

import (
	"context"
	"errors"
	"strings"

	"github.com/EasyAdvertisers/alfreyaa-app/internal/domain"
)

// ErrNoImage indicates the model answered with text only and produced no
// image parts.
var ErrNoImage = errors.New("capability: model returned no image")

var imageTriggerPhrases = []string{
	"generate image of",
	"generate image",
	"show me a picture of",
	"show me a picture",
}

// GenerateImage produces a picture for the command.
func (a Adapters) GenerateImage(ctx context.Context, command string) (domain.Result, error) {
	img, err := a.provider.GenerateImage(ctx, imageSubject(command))
	if err != nil {
		return domain.Result{}, err
	}
	if img == nil {
		return domain.Result{}, ErrNoImage
	}
	return domain.Result{
		Intent: domain.IntentImageGeneration,
		Text:   "Here is the image you asked for.",
		Image:  &domain.ImageRef{MimeType: img.MimeType, Data: img.Data},
	}, nil
}

// imageSubject strips the trigger phrase so the model sees only the subject.
func imageSubject(command string) string {
	trimmed := strings.TrimSpace(command)
	lower := strings.ToLower(trimmed)
	for _, phrase := range imageTriggerPhrases {
		if i := strings.Index(lower, phrase); i >= 0 {
			subject := strings.TrimSpace(trimmed[:i] + trimmed[i+len(phrase):])
			if subject != "" {
				return subject
			}
		}
	}
	return trimmed
}
