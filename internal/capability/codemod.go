package capability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/EasyAdvertisers/alfreyaa-app/internal/domain"
)

// ErrMalformedProposal indicates the model returned JSON that does not match
// the change proposal schema.
var ErrMalformedProposal = errors.New("capability: malformed change proposal")

var proposalSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"explanation": map[string]any{"type": "string"},
		"changes": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"file":   map[string]any{"type": "string"},
					"reason": map[string]any{"type": "string"},
				},
				"required": []string{"file", "reason"},
			},
		},
	},
	"required": []string{"explanation", "changes"},
}

// ProposeChanges asks the model to plan code changes against the current
// source tree. It only ever proposes; nothing is written to disk.
func (a Adapters) ProposeChanges(ctx context.Context, command string) (domain.Result, error) {
	files, err := a.source.Files(ctx)
	if err != nil {
		return domain.Result{}, fmt.Errorf("read source tree: %w", err)
	}
	raw, err := a.provider.GenerateStructured(ctx, persona, proposalPrompt(command, files), proposalSchema)
	if err != nil {
		return domain.Result{}, err
	}
	proposal, err := parseProposal(raw)
	if err != nil {
		if a.logger != nil {
			a.logger.Warn("discarding unparseable change proposal", "error", err)
		}
		proposal = &domain.ChangeProposal{
			Explanation: "I drafted a plan but could not express it as a structured proposal. Please rephrase the request.",
		}
	}
	return domain.Result{
		Intent:   domain.IntentCodeModification,
		Text:     proposal.Explanation,
		Proposal: proposal,
	}, nil
}

func proposalPrompt(command string, files []domain.SourceFile) string {
	var b strings.Builder
	b.WriteString("You are planning changes to a small web project. The user asked: ")
	fmt.Fprintf(&b, "%q\n\nCurrent files:\n", command)
	for _, f := range files {
		fmt.Fprintf(&b, "\n--- %s ---\n%s\n", f.Path, f.Content)
	}
	b.WriteString("\nRespond with JSON describing which files to change and why. Do not include file contents.")
	return b.String()
}

func parseProposal(raw string) (*domain.ChangeProposal, error) {
	var proposal domain.ChangeProposal
	if err := json.Unmarshal([]byte(raw), &proposal); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedProposal, err)
	}
	if strings.TrimSpace(proposal.Explanation) == "" {
		return nil, fmt.Errorf("%w: missing explanation", ErrMalformedProposal)
	}
	for _, c := range proposal.Changes {
		if strings.TrimSpace(c.File) == "" {
			return nil, fmt.Errorf("%w: change entry without file", ErrMalformedProposal)
		}
	}
	return &proposal, nil
}
