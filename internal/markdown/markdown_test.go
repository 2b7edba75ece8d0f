package markdown

import (
	"testing"
)

func kindCount(links []Link, kind LinkKind) int {
	n := 0
	for _, l := range links {
		if l.Kind == kind {
			n++
		}
	}
	return n
}

func hasDestination(links []Link, dest string) bool {
	for _, l := range links {
		if l.Destination == dest {
			return true
		}
	}
	return false
}

func TestExtractLinks(t *testing.T) {
	body := []byte(`# Title

A [child page](child-2.md) and an image ![diagram](assets/42/diagram.png).

Visit <https://example.com/docs> for more.

A [referenced][ref] mention.

[ref]: linked-content/incident-template-30.md
`)
	links := ExtractLinks(body)

	for _, dest := range []string{
		"child-2.md",
		"assets/42/diagram.png",
		"https://example.com/docs",
		"linked-content/incident-template-30.md",
	} {
		if !hasDestination(links, dest) {
			t.Errorf("destination %q not extracted; got %+v", dest, links)
		}
	}
	if got := kindCount(links, LinkKindImage); got != 1 {
		t.Errorf("image count = %d, want 1", got)
	}
	if got := kindCount(links, LinkKindAuto); got != 1 {
		t.Errorf("autolink count = %d, want 1", got)
	}
}

func TestExtractLinksPermissiveDestinations(t *testing.T) {
	// CommonMark rejects destinations with spaces; the permissive pass
	// must still surface them.
	body := []byte("A [draft](my draft page.md) link and ![shot](screen shot.png).\n")
	links := ExtractLinks(body)

	if !hasDestination(links, "my draft page.md") {
		t.Errorf("inline destination with spaces not extracted; got %+v", links)
	}
	if !hasDestination(links, "screen shot.png") {
		t.Errorf("image destination with spaces not extracted; got %+v", links)
	}
}

func TestExtractLinksIgnoresCodeBlocks(t *testing.T) {
	body := []byte("```\n[sample](inside fence.md)\n```\n\n    [indented](code sample.md)\n")
	links := ExtractLinks(body)

	if hasDestination(links, "inside fence.md") {
		t.Errorf("fenced destination extracted: %+v", links)
	}
	if hasDestination(links, "code sample.md") {
		t.Errorf("indented code destination extracted: %+v", links)
	}
}

func TestExtractLinksIgnoresInlineCode(t *testing.T) {
	body := []byte("Use `[not a](real link.md)` as the syntax.\n")
	if links := ExtractLinks(body); hasDestination(links, "real link.md") {
		t.Errorf("code span destination extracted: %+v", links)
	}
}

func TestExtractLinksIgnoresFootnotes(t *testing.T) {
	body := []byte("[^1]: a footnote, not a link target.md\n")
	if got := kindCount(ExtractLinks(body), LinkKindReferenceDefinition); got != 0 {
		t.Errorf("footnote counted as reference definition")
	}
}

func TestVisibleLinesPreservesPositions(t *testing.T) {
	body := []byte("one\n```\ntwo\n```\nfive")
	lines := VisibleLines(body)
	if len(lines) != 5 {
		t.Fatalf("len(lines) = %d, want 5", len(lines))
	}
	if lines[0] != "one" || lines[4] != "five" {
		t.Errorf("visible lines corrupted: %q", lines)
	}
	for i := 1; i <= 3; i++ {
		if lines[i] != "" {
			t.Errorf("line %d = %q, want blank", i, lines[i])
		}
	}
}

func TestStripCodeSpans(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"no code", "plain text", "plain text"},
		{"single span", "a `b` c", "a  c"},
		{"double backticks", "a ``b `x` c`` d", "a  d"},
		{"unclosed", "a `b c", "a `b c"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripCodeSpans(tt.input); got != tt.want {
				t.Errorf("stripCodeSpans(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
