// Package translate renders chat messages into other languages.
package translate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

var ErrEmptyTranslation = errors.New("translate: empty translation")

type generateFunc func(ctx context.Context, prompt string) (string, error)

// Gemini translates with a Gemini model.
type Gemini struct {
	client   *genai.Client
	generate generateFunc
}

func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	m := client.GenerativeModel(model)
	m.SetTemperature(0.1)
	m.SystemInstruction = genai.NewUserContent(genai.Text(
		"You translate chat messages between renters and vehicle owners. " +
			"Reply with the translated text only, keep names, numbers and links unchanged."))
	return &Gemini{
		client: client,
		generate: func(ctx context.Context, prompt string) (string, error) {
			resp, err := m.GenerateContent(ctx, genai.Text(prompt))
			if err != nil {
				return "", fmt.Errorf("gemini generation error: %w", err)
			}
			if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
				return "", ErrEmptyTranslation
			}
			var out strings.Builder
			for _, part := range resp.Candidates[0].Content.Parts {
				if txt, ok := part.(genai.Text); ok {
					out.WriteString(string(txt))
				}
			}
			return out.String(), nil
		},
	}, nil
}

func (g *Gemini) Translate(ctx context.Context, text, targetLanguage string) (string, error) {
	prompt := fmt.Sprintf("Translate into the language with ISO code %q:\n\n%s", targetLanguage, text)
	out, err := g.generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", ErrEmptyTranslation
	}
	return out, nil
}

func (g *Gemini) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}
