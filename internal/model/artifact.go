package model

import "time"

// ArtifactKind is the pane type of a rendered artifact.
type ArtifactKind string

const (
	// ArtifactKindCode is a syntax-highlighted editor pane.
	ArtifactKindCode ArtifactKind = "code"
	// ArtifactKindTerminal is a console pane with captured output.
	ArtifactKindTerminal ArtifactKind = "terminal"
	// ArtifactKindBrowser is a browser-framed server response or page.
	ArtifactKindBrowser ArtifactKind = "browser"
)

// Artifact is an addressable rendered image plus the textual content it was
// derived from. Artifacts are write-once and never back-reference the task
// that produced them; tasks reference artifacts by ID.
type Artifact struct {
	ID    string
	Kind  ArtifactKind
	Theme Theme
	// Label is a short human-readable tag (file name, route, "terminal").
	Label string
	// Ref is the storage reference of the rendered image.
	Ref string
	// SourceText is the text the image was rendered from.
	SourceText string

	CreatedAt time.Time
}
