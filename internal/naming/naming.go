// Package naming derives identities and display names of tests.
package naming

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/raphi011/testops/internal/model"
)

// DefaultSeparator separates namespace segments of a class name.
const DefaultSeparator = `\`

// Signature returns the canonical identity of a test used by backends to
// correlate results across tools, e.g. `A\B\Test`, `m`, 10 => `A::B::Test::m:10`.
func Signature(separator string, key model.TestKey) string {
	return strings.ReplaceAll(key.ClassName, separator, "::") +
		"::" + key.MethodName + ":" + strconv.Itoa(key.Line)
}

// Suites splits a class name into its namespace segments, outer segment first.
func Suites(separator, className string) []string {
	return strings.Split(className, separator)
}

// BeautifyTitle turns camel case method names into lower case words,
// e.g. `testFooBar` => `test foo bar`. Titles without upper case letters are
// returned unchanged.
func BeautifyTitle(title string) string {
	if !strings.ContainsFunc(title, unicode.IsUpper) {
		return title
	}

	b := strings.Builder{}

	for _, r := range title {
		if unicode.IsUpper(r) {
			b.WriteRune('_')
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}

	snake := strings.TrimPrefix(b.String(), "_")

	return strings.ReplaceAll(snake, "_", " ")
}
