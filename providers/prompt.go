package providers

import (
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/tmc/langchaingo/prompts"
)

// SystemPrompt frames every generation call.
const SystemPrompt = `You are a helpful assistant that answers questions about documents the user has uploaded.
Answer only from the provided context. Do not invent information. If the context does not contain the answer, say that you don't know.`

const qaTemplate = `Use the following pieces of context to answer the question at the end. If you don't know the answer, just say that you don't know, don't try to make up an answer.

{{.context}}

Question: {{.question}}
Helpful Answer:`

var qaPrompt = prompts.NewPromptTemplate(qaTemplate, []string{"context", "question"})

// QAPrompt renders the retrieval QA prompt for one question.
func QAPrompt(promptContext, question string) (string, error) {
	out, err := qaPrompt.Format(map[string]any{
		"context":  promptContext,
		"question": question,
	})
	if err != nil {
		return "", fmt.Errorf("render qa prompt: %w", err)
	}
	return out, nil
}

// ImageMIME sniffs the MIME type of an image payload, defaulting to PNG when
// the bytes are not a recognised image.
func ImageMIME(image []byte) string {
	if mt := mimetype.Detect(image); strings.HasPrefix(mt.String(), "image/") {
		return mt.String()
	}
	return "image/png"
}
