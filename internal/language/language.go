package language

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Output language codes used throughout the pipeline, file names, and
// context keys.
const (
	Chinese = "cn"
	English = "en"
)

type entry struct {
	code    string
	tag     language.Tag
	display string
	native  string
	aliases []string
}

var languages = []entry{
	{Chinese, language.SimplifiedChinese, "Chinese", "中文", []string{"zh", "zho", "chi", "chinese", "中文"}},
	{English, language.English, "English", "English", []string{"eng", "english"}},
}

var byAlias = func() map[string]*entry {
	index := make(map[string]*entry)
	for i := range languages {
		e := &languages[i]
		index[e.code] = e
		for _, alias := range e.aliases {
			index[strings.ToLower(alias)] = e
		}
	}
	return index
}()

func lookup(code string) *entry {
	return byAlias[strings.ToLower(strings.TrimSpace(code))]
}

// Supported returns the pipeline's output language codes in canonical
// order: primary language first.
func Supported() []string {
	return []string{Chinese, English}
}

// Normalize maps any recognized code, ISO variant, or language name to
// the canonical pipeline code. Unrecognized input yields "".
func Normalize(code string) string {
	if e := lookup(code); e != nil {
		return e.code
	}
	return ""
}

// IsSupported reports whether the input resolves to a pipeline language.
func IsSupported(code string) bool {
	return lookup(code) != nil
}

// DisplayName returns the English name of a language, or the input
// unchanged when unrecognized.
func DisplayName(code string) string {
	if e := lookup(code); e != nil {
		return e.display
	}
	return code
}

// NativeName returns the language's self-name for user-facing output.
func NativeName(code string) string {
	if e := lookup(code); e != nil {
		return e.native
	}
	return code
}

// Tag returns the BCP 47 tag for a pipeline language, defaulting to
// English for unrecognized input.
func Tag(code string) language.Tag {
	if e := lookup(code); e != nil {
		return e.tag
	}
	return language.English
}

// TitleCase renders text in title case under the language's casing rules.
func TitleCase(code, text string) string {
	return cases.Title(Tag(code)).String(text)
}
