// Package inference declares the capability the nutrition pipelines need from
// a multimodal model provider: uploading an image, running a schema
// constrained prompt against it and releasing the remote copy afterwards.
package inference

import "context"

// Asset is a remote handle to an uploaded file. It is only valid for the
// dish run that created it.
type Asset struct {
	Name     string
	URI      string
	MIMEType string
}

// Part is one element of a multimodal prompt. Exactly one of Text or Asset
// is set.
type Part struct {
	Text  string
	Asset *Asset
}

// Text returns a text prompt part.
func Text(s string) Part {
	return Part{Text: s}
}

// File returns a prompt part referencing an uploaded asset.
func File(a Asset) Part {
	return Part{Asset: &a}
}

// Client is implemented by providers. Upload failures wrap domain.ErrUpload,
// Infer failures wrap domain.ErrInference.
type Client interface {
	Upload(ctx context.Context, path string) (Asset, error)
	Infer(ctx context.Context, parts []Part, schema *Schema) (string, error)
	Release(ctx context.Context, asset Asset) error
}
