package openai

import (
	"context"
	"fmt"
	"strings"
)

const translateTaskTemplate = "You are a highly skilled and concise professional translator. " +
	"When you receive a sentence in %s, your task is to translate it into %s. " +
	"VERY IMPORTANT: Do not output any notes, explanations, alternatives or comments " +
	"after or before the translation."

var languageNames = map[string]string{
	"da": "Danish",
	"de": "German",
	"en": "English",
	"es": "Spanish",
	"fi": "Finnish",
	"fr": "French",
	"it": "Italian",
	"nb": "Norwegian",
	"nl": "Dutch",
	"no": "Norwegian",
	"pl": "Polish",
	"pt": "Portuguese",
	"ru": "Russian",
	"sv": "Swedish",
	"uk": "Ukrainian",
}

// Translate translates text between two-letter language codes via chat
// completion with a fixed translator prompt.
func (c *Client) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("translation input is empty")
	}
	task := fmt.Sprintf(translateTaskTemplate, languageName(sourceLang), languageName(targetLang))
	return c.Complete(ctx, task, text)
}

func languageName(code string) string {
	normalized := strings.ToLower(strings.TrimSpace(code))
	if name, ok := languageNames[normalized]; ok {
		return name
	}
	if normalized == "" {
		return "the source language"
	}
	return normalized
}
