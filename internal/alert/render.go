package alert

import (
	"fmt"
	"regexp"

	"github.com/ziyaaktas/tab-limiter/internal/limits"
	"github.com/ziyaaktas/tab-limiter/internal/options"
)

// tokenRe matches a single substitution token: an opening brace, optional
// whitespace, one run of non-brace non-whitespace characters, optional
// whitespace, closing brace. Anything else passes through unchanged.
var tokenRe = regexp.MustCompile(`\{\s*([^{}\s]+)\s*\}`)

// Render substitutes the {token} placeholders of a user message template.
// place/which name the exceeded scope, maxPlace/maxWhich its configured cap,
// any other token resolves against the option field of that name, falling
// back to a literal "?". Render never fails.
func Render(template string, opts options.Options, scope limits.Scope) string {
	return tokenRe.ReplaceAllStringFunc(template, func(match string) string {
		token := tokenRe.FindStringSubmatch(match)[1]
		switch token {
		case "place", "which":
			if scope == limits.ScopeWindow {
				return "one window"
			}
			return "total"
		case "maxPlace", "maxWhich":
			if scope == limits.ScopeWindow {
				return fmt.Sprint(opts.MaxWindow)
			}
			return fmt.Sprint(opts.MaxTotal)
		}
		if val, ok := opts.Field(token); ok {
			return fmt.Sprint(val)
		}
		return "?"
	})
}
