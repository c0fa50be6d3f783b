package collect

import (
	"regexp"
	"strings"
)

// SnippetLength caps the snippet length in runes.
const SnippetLength = 300

// entityReplacer holds the fixed set of HTML entities decoded in titles and
// snippets. Anything else is left as-is.
var entityReplacer = strings.NewReplacer(
	"&nbsp;", " ",
	"&#160;", " ",
	"&amp;", "&",
	"&#38;", "&",
	"&lt;", "<",
	"&#60;", "<",
	"&gt;", ">",
	"&#62;", ">",
	"&quot;", `"`,
	"&#34;", `"`,
	"&#39;", "'",
	"&#039;", "'",
	"&apos;", "'",
	"&#x27;", "'",
	"&#x2F;", "/",
	"&#47;", "/",
	"&#8216;", "‘",
	"&#8217;", "’",
	"&rsquo;", "’",
	"&lsquo;", "‘",
	"&#8220;", "“",
	"&#8221;", "”",
	"&ldquo;", "“",
	"&rdquo;", "”",
	"&#8211;", "–",
	"&ndash;", "–",
	"&#8212;", "—",
	"&mdash;", "—",
	"&#8230;", "…",
	"&hellip;", "…",
)

var escapedTagRe = regexp.MustCompile(`(?i)&(?:lt|#60);(/?[a-z][a-z0-9]*(?:\s[^<>]*?)?/?)&(?:gt|#62);`)

// DecodeEntities decodes the fixed entity table.
func DecodeEntities(s string) string {
	return entityReplacer.Replace(s)
}

// StripHTML removes tags and collapses whitespace.
func StripHTML(text string) string {
	var result strings.Builder
	inTag := false
	for _, r := range text {
		if r == '<' {
			inTag = true
			result.WriteRune(' ')
			continue
		}
		if r == '>' {
			inTag = false
			continue
		}
		if !inTag {
			result.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(result.String()), " ")
}

// CleanText strips markup and decodes entities exactly once. Escaped tags
// (&lt;p&gt;) are unescaped first so they strip too; a bare "&lt;" in prose
// and "&amp;lt;" both survive as text.
func CleanText(s string) string {
	s = StripHTML(escapedTagRe.ReplaceAllString(s, "<$1>"))
	return strings.Join(strings.Fields(DecodeEntities(s)), " ")
}

// CleanSnippet returns plain text capped at SnippetLength runes.
func CleanSnippet(s string) string {
	return Truncate(CleanText(s), SnippetLength)
}

// Truncate caps s at n runes, ending with "..." when cut.
func Truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n <= 3 {
		return string(runes[:n])
	}
	return strings.TrimSpace(string(runes[:n-3])) + "..."
}
