// Package categorize suggests a category for a transaction description using
// Gemini, constrained to the owner's own category list. It is a convenience
// for data entry; nothing in the engine depends on it.
package categorize

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/dvloznov/budget-tracker/internal/domain"
)

// DefaultModelName is the default Gemini model used for suggestions.
const DefaultModelName = "gemini-2.5-flash"

// Suggester asks Gemini to pick the best-fitting category for a description.
type Suggester struct {
	model string
}

// NewSuggester creates a Suggester. An empty model name selects the default.
func NewSuggester(model string) *Suggester {
	if model == "" {
		model = DefaultModelName
	}
	return &Suggester{model: model}
}

// Suggest returns the name of the category that best fits the description.
// The model may only answer with one of the provided category names; anything
// else is rejected.
func (s *Suggester) Suggest(ctx context.Context, description string, categories []*domain.Category) (string, error) {
	if len(categories) == 0 {
		return "", fmt.Errorf("Suggest: no categories to choose from")
	}

	prompt := buildPrompt(description, categories)

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return "", fmt.Errorf("Suggest: create genai client: %w", err)
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: prompt},
			},
		},
	}

	resp, err := client.Models.GenerateContent(ctx, s.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("Suggest: generate content: %w", err)
	}

	answer := strings.TrimSpace(resp.Text())
	if answer == "" {
		return "", fmt.Errorf("Suggest: empty response from model")
	}

	// The model occasionally decorates the answer; match case-insensitively
	// against the allowed list rather than trusting raw output.
	for _, c := range categories {
		if strings.EqualFold(answer, c.Name) {
			return c.Name, nil
		}
	}
	return "", fmt.Errorf("Suggest: model answered %q, not a known category", answer)
}

// buildPrompt lists the allowed categories and constrains the output format.
func buildPrompt(description string, categories []*domain.Category) string {
	var b strings.Builder
	b.WriteString("You are a personal finance assistant.\n\n")
	b.WriteString("Task: pick the single best category for this transaction description:\n")
	b.WriteString("  " + description + "\n\n")
	b.WriteString("Use ONLY one of the following categories:\n")
	for _, c := range categories {
		b.WriteString("  - " + c.Name + "\n")
	}
	b.WriteString("\nRules:\n")
	b.WriteString("1. Answer with EXACTLY one category name from the list above.\n")
	b.WriteString("2. Do not add punctuation, quotes, or any other text.\n")
	b.WriteString("3. If nothing fits well, answer with the closest match anyway.\n")
	return b.String()
}
