package intent

import (
	"regexp"
	"strings"

	"github.com/EasyAdvertisers/alfreyaa-app/internal/domain"
)

// Classification is the outcome of routing one command.
type Classification struct {
	Intent domain.Intent
	// URL carries the first matched URL when Intent is IntentURLAnalysis.
	URL string
}

var urlPattern = regexp.MustCompile(`[a-zA-Z][a-zA-Z0-9+.-]*://\S+`)

// Phrase sets are matched against the lowercased command. Order of the rule
// list below is a contract: earlier rules win on overlap (a command holding
// both a URL and a search phrase is URL analysis, not search).
var (
	modificationPrefixes = []string{
		"change your",
		"modify the",
		"update the",
		"add a feature",
		"implement a",
		"rewrite the",
	}
	imagePhrases = []string{
		"generate image",
		"show me a picture",
	}
	searchPhrases = []string{
		"search for",
		"what is",
		"who is",
		"find out",
		"latest",
		"look up",
		"tell me about",
		"what's new",
	}
	deployPhrases = []string{
		"deploy",
		"publish",
		"go live",
	}
)

type rule struct {
	match  func(lowered string) bool
	intent domain.Intent
}

var rules = []rule{
	{matchPrefixAny(modificationPrefixes), domain.IntentCodeModification},
	{matchContainsAny(imagePhrases), domain.IntentImageGeneration},
	{func(s string) bool { return urlPattern.MatchString(s) }, domain.IntentURLAnalysis},
	{matchContainsAny(searchPhrases), domain.IntentGroundedSearch},
	{matchContainsAny(deployPhrases), domain.IntentDeployment},
}

// Classify maps a raw command to the capability it invokes. Deterministic and
// case-insensitive; the first matching rule wins, falling back to plain text.
func Classify(command string) Classification {
	lowered := strings.ToLower(strings.TrimSpace(command))
	for _, r := range rules {
		if !r.match(lowered) {
			continue
		}
		c := Classification{Intent: r.intent}
		if r.intent == domain.IntentURLAnalysis {
			// Match against the original text so the URL keeps its casing.
			c.URL = strings.TrimSpace(urlPattern.FindString(command))
		}
		return c
	}
	return Classification{Intent: domain.IntentPlainText}
}

func matchPrefixAny(phrases []string) func(string) bool {
	return func(lowered string) bool {
		for _, p := range phrases {
			if strings.HasPrefix(lowered, p) {
				return true
			}
		}
		return false
	}
}

func matchContainsAny(phrases []string) func(string) bool {
	return func(lowered string) bool {
		for _, p := range phrases {
			if strings.Contains(lowered, p) {
				return true
			}
		}
		return false
	}
}
