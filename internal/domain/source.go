package domain

import "context"

// SourceFile is one project file handed to the code-modification adapter and
// the deployment push step.
type SourceFile struct {
	Path    string
	Content string
}

// SourceProvider supplies the project file set. The core never introspects
// its own tree; the host wires a provider in.
type SourceProvider interface {
	Files(ctx context.Context) ([]SourceFile, error)
}
