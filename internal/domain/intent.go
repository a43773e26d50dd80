package domain

// Intent describes the capability a free-text command invokes.
type Intent string

const (
	IntentPlainText        Intent = "plain_text"
	IntentGroundedSearch   Intent = "grounded_search"
	IntentImageGeneration  Intent = "image_generation"
	IntentURLAnalysis      Intent = "url_analysis"
	IntentCodeModification Intent = "code_modification"
	IntentDeployment       Intent = "deployment"
)
