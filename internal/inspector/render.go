package inspector

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
)

var headerPrefixes = []string{"tree ", "parent ", "author ", "committer "}

// commitMessage returns the message tail of a reconstructed commit's
// canonical text: every line after the last recognized header line. This
// is a display convenience only — it never feeds back into the canonical
// byte stream GetCommit returns.
func commitMessage(raw []byte) string {
	lines := strings.SplitAfter(string(raw), "\n")
	i := 0
	for ; i < len(lines); i++ {
		if !hasHeaderPrefix(lines[i]) {
			break
		}
	}
	return strings.Join(lines[i:], "")
}

func hasHeaderPrefix(line string) bool {
	for _, p := range headerPrefixes {
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	return false
}

// renderMessageHTML renders a commit message as HTML via goldmark, for
// inspector clients that want to display it as formatted text. Commit
// messages aren't Markdown, but goldmark degrades gracefully on plain
// prose (paragraphs and line breaks), which is all the inspector needs.
func renderMessageHTML(message string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(message), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
