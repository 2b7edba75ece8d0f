package markdown

import "strings"

// permissiveLinks scans line by line for bracket-paren links whose
// destination contains whitespace, which the strict pass drops.
func permissiveLinks(body []byte) []Link {
	out := make([]Link, 0)
	for _, line := range VisibleLines(body) {
		clean := stripCodeSpans(line)
		out = append(out, scanLine(clean)...)
		out = append(out, scanReferenceDefinition(clean)...)
	}
	return out
}

// VisibleLines splits a document into lines with fenced and indented code
// blocks blanked out. Line positions are preserved, so offsets computed on
// the result map back to the original document.
func VisibleLines(body []byte) []string {
	lines := strings.Split(string(body), "\n")
	inFence := false
	fence := ""
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "```"):
			inFence, fence = toggleFence(inFence, fence, "```")
			lines[i] = ""
		case strings.HasPrefix(trimmed, "~~~"):
			inFence, fence = toggleFence(inFence, fence, "~~~")
			lines[i] = ""
		case inFence, strings.HasPrefix(line, "    "), strings.HasPrefix(line, "\t"):
			lines[i] = ""
		}
	}
	return lines
}

// StripCode returns the document with code blocks blanked out, for
// analyses that must not read sample markup as real markup.
func StripCode(body []byte) []byte {
	return []byte(strings.Join(VisibleLines(body), "\n"))
}

func toggleFence(open bool, active, marker string) (bool, string) {
	if !open {
		return true, marker
	}
	if active == marker {
		return false, ""
	}
	return open, active
}

// stripCodeSpans removes inline `code` spans, honoring multi-backtick
// delimiters. Unclosed spans keep their backticks.
func stripCodeSpans(line string) string {
	if !strings.Contains(line, "`") {
		return line
	}
	var b strings.Builder
	b.Grow(len(line))
	for i := 0; i < len(line); {
		if line[i] != '`' {
			b.WriteByte(line[i])
			i++
			continue
		}
		run := 1
		for i+run < len(line) && line[i+run] == '`' {
			run++
		}
		marker := line[i : i+run]
		rest := strings.Index(line[i+run:], marker)
		if rest < 0 {
			b.WriteString(marker)
			i += run
			continue
		}
		i += run + rest + run
	}
	return b.String()
}

// scanLine finds ](target) occurrences and keeps targets with whitespace.
// The byte before the opening bracket decides link versus image.
func scanLine(line string) []Link {
	var out []Link
	for i := 0; i+1 < len(line); i++ {
		if line[i] != ']' || line[i+1] != '(' {
			continue
		}
		end := strings.IndexByte(line[i+2:], ')')
		if end < 0 {
			continue
		}
		target := line[i+2 : i+2+end]
		if !strings.ContainsAny(target, " \t") {
			continue
		}
		open := strings.LastIndexByte(line[:i], '[')
		if open < 0 {
			continue
		}
		kind := LinkKindInline
		if open > 0 && line[open-1] == '!' {
			kind = LinkKindImage
		}
		out = append(out, Link{Kind: kind, Destination: target})
	}
	return out
}

// scanReferenceDefinition keeps [label]: target definitions whose target
// contains whitespace. Footnote definitions are not links.
func scanReferenceDefinition(line string) []Link {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "[^") {
		return nil
	}
	_, after, ok := strings.Cut(trimmed, "]:")
	if !ok {
		return nil
	}
	target := strings.TrimSpace(after)
	if before, _, ok := strings.Cut(target, " \""); ok {
		target = before
	} else if before, _, ok := strings.Cut(target, " '"); ok {
		target = before
	}
	target = strings.TrimSpace(target)
	if target == "" || !strings.ContainsAny(target, " \t") {
		return nil
	}
	return []Link{{Kind: LinkKindReferenceDefinition, Destination: target}}
}
