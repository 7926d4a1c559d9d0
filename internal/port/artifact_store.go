package port

import "context"

// Artifact is an intermediate pipeline product (result archive,
// flattened text) kept for debug introspection.
type Artifact struct {
	Key         string
	ContentType string
	Data        []byte
}

// ArtifactStore abstracts storage of intermediate artifacts.
type ArtifactStore interface {
	Put(ctx context.Context, artifact Artifact) error
	Get(ctx context.Context, key string) (*Artifact, error)
}
