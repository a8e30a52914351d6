package langdetect

import (
	"strings"
	"sync"
	"unicode"

	lingua "github.com/pemistahl/lingua-go"

	"horse.fit/digest/internal/language"
)

var (
	detectorOnce sync.Once
	detector     lingua.LanguageDetector
)

// Resolve returns the language of a feed item field. A declared feed language
// wins, reduced to its primary subtag ("en-US" becomes "en"); detection only
// runs when the feed does not state one.
func Resolve(text, declared string) string {
	if code := language.NormalizeCode(declared); len(code) == 2 {
		return code
	}
	return DetectISO6391(text)
}

// DetectISO6391 detects the language of text and returns its two-letter
// ISO 639-1 code, or "" when the sample is too short to call.
func DetectISO6391(text string) string {
	sample := strings.TrimSpace(text)
	if sample == "" {
		return ""
	}

	letterCount := 0
	for _, r := range sample {
		if unicode.IsLetter(r) {
			letterCount++
		}
	}
	if letterCount < 6 {
		return ""
	}

	detected, exists := getDetector().DetectLanguageOf(sample)
	if !exists {
		return ""
	}

	code := strings.ToLower(detected.IsoCode639_1().String())
	if len(code) != 2 {
		return ""
	}
	return code
}

func getDetector() lingua.LanguageDetector {
	detectorOnce.Do(func() {
		detector = lingua.NewLanguageDetectorBuilder().
			FromAllLanguages().
			WithPreloadedLanguageModels().
			Build()
	})
	return detector
}
