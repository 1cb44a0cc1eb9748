package domain

import "context"

// Generator is the AI collaborator. Its output is untrusted text.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// EquationConverter turns a LaTeX span into a native equation object.
// A nil result means conversion failed; it never returns an error.
type EquationConverter interface {
	ToEquationObject(ctx context.Context, latex string) *EquationObject
}

// ImageGenerator draws an illustration from a text description.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, description string) (*Image, error)
}

// ProgressSink receives progress events from the supervisor.
type ProgressSink interface {
	Publish(ctx context.Context, event ProgressEvent) error
}
