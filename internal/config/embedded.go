package config

// Embedded indexer credentials injected at build time via ldflags.
// They seed the profile substitution context so a stock build can
// reach a hosted Jackett without local configuration; environment
// variables with the same names take precedence.
//
// Build with:
//   go build -ldflags "-X 'github.com/tonearm/tonearm/internal/config.EmbeddedJackettURL=https://...' \
//                      -X 'github.com/tonearm/tonearm/internal/config.EmbeddedJackettKey=yyy'"
var (
	EmbeddedJackettURL string
	EmbeddedJackettKey string
)
