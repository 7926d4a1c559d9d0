package port

import (
	"context"

	"medbill/internal/domain"
)

// StructureOutput contains the validated record plus audit details from
// the language-model call.
type StructureOutput struct {
	Record      *domain.InvoiceRecord
	RawResponse string
	ModelUsed   string
	PromptUsed  string
}

// Structurer abstracts LLM-based structuring of flattened document text.
type Structurer interface {
	Structure(ctx context.Context, text string) (*StructureOutput, error)
}
