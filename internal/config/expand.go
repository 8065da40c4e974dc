package config

import (
	"os"
	"regexp"
)

var placeholderRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// Expand substitutes ${VAR} and $VAR placeholders. Unresolved placeholders are
// left verbatim, unlike os.ExpandEnv which would blank them.
func Expand(s string, lookup func(string) (string, bool)) string {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return placeholderRe.ReplaceAllStringFunc(s, func(m string) string {
		sub := placeholderRe.FindStringSubmatch(m)
		name := sub[1]
		if name == "" {
			name = sub[2]
		}
		if v, ok := lookup(name); ok {
			return v
		}
		return m
	})
}
