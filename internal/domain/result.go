package domain

// Source is a cited document backing a grounded answer.
type Source struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

// ImageRef points at a generated image.
type ImageRef struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"` // base64 payload as returned by the provider
}

// CodeChange names one file a modification proposal would touch.
type CodeChange struct {
	File   string `json:"file"`
	Reason string `json:"reason"`
}

// ChangeProposal summarizes a self-modification request. It carries only
// proposal metadata, never file contents.
type ChangeProposal struct {
	Explanation string       `json:"explanation"`
	Changes     []CodeChange `json:"changes"`
}

// DeploymentOutcome records the terminal state of a deployment submission.
type DeploymentOutcome struct {
	Status DeploymentStatus `json:"status"`
	URL    string           `json:"url,omitempty"`
}

// Result is the normalized outcome of one capability invocation. The variant
// is keyed by Intent; exactly one payload field beyond Text is populated.
type Result struct {
	Intent      Intent             `json:"intent"`
	Text        string             `json:"text,omitempty"`
	Sources     []Source           `json:"sources,omitempty"`
	Image       *ImageRef          `json:"image,omitempty"`
	AnalyzedURL string             `json:"analyzed_url,omitempty"`
	Proposal    *ChangeProposal    `json:"proposal,omitempty"`
	Deployment  *DeploymentOutcome `json:"deployment,omitempty"`
	Failed      bool               `json:"failed,omitempty"`
}
