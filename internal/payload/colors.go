package payload

// DefaultColorToken is used for any language without its own entry.
const DefaultColorToken = "text-300"

var colorTokens = map[string]string{
	"JavaScript": "primary-cyan",
	"TypeScript": "primary-blue",
	"Python":     "accent-lime",
	"Go":         "accent-amber",
	"Rust":       "text-100",
}

// ColorToken maps a language to its display color token.
func ColorToken(language string) string {
	if token, ok := colorTokens[language]; ok {
		return token
	}
	return DefaultColorToken
}
