package confluence

import (
	"net/url"
	"regexp"
	"strings"
)

// Recognized URL shapes that embed a page ID directly. Checked in order;
// the first match wins.
var pageIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`/pages/(\d+)`),
	regexp.MustCompile(`[?&]pageId=(\d+)`),
	regexp.MustCompile(`/spaces/[A-Za-z0-9_\-]+/pages/(\d+)`),
	regexp.MustCompile(`/content/(\d+)`),
}

// URL fragments that suggest an indirect page reference requiring a
// network lookup to resolve (short links, alias/display paths).
var indirectHints = []string{"/x/", "/wiki/x/", "pageId=", "/display/"}

// attachmentOwnerPattern matches download URLs that name the page owning
// the attachment.
var attachmentOwnerPattern = regexp.MustCompile(`/download/(?:attachments|thumbnails)/(\d+)/`)

// ExtractPageID pulls a page ID out of a URL when one of the direct shapes
// embeds it. Returns the ID and true on a match.
func ExtractPageID(href string) (string, bool) {
	for _, re := range pageIDPatterns {
		if m := re.FindStringSubmatch(href); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// ExtractAttachmentOwner pulls the ID of the page owning an attachment out
// of a download or thumbnail URL. Returns the ID and true on a match.
func ExtractAttachmentOwner(src string) (string, bool) {
	if m := attachmentOwnerPattern.FindStringSubmatch(src); m != nil {
		return m[1], true
	}
	return "", false
}

// LooksIndirect reports whether the URL shape suggests a page reference
// whose canonical ID can only be learned by following redirects.
func LooksIndirect(href string) bool {
	for _, hint := range indirectHints {
		if strings.Contains(href, hint) {
			return true
		}
	}
	return false
}

// IsSameOrigin reports whether href points at the same host as base.
// Relative references count as same-origin.
func IsSameOrigin(href, base string) bool {
	u, err := url.Parse(href)
	if err != nil {
		return false
	}
	if u.Host == "" {
		return !strings.HasPrefix(href, "mailto:")
	}
	b, err := url.Parse(base)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Hostname(), b.Hostname())
}

// IsExternal reports whether a hyperlink must be passed through unchanged:
// different origin, mail links, or pure in-page anchors.
func IsExternal(href, base string) bool {
	if href == "" || strings.HasPrefix(href, "#") {
		return true
	}
	if strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "tel:") {
		return true
	}
	return !IsSameOrigin(href, base)
}

// IsLikelyAsset reports whether an image reference points at the remote
// origin. Relative paths (including host-relative /wiki/ and /download/
// attachment paths) default to remote-origin; absolute URLs must match the
// base host.
func IsLikelyAsset(src, base string) bool {
	if src == "" || strings.HasPrefix(src, "data:") {
		return false
	}
	u, err := url.Parse(src)
	if err != nil {
		return false
	}
	if u.Host == "" {
		return true
	}
	return IsSameOrigin(src, base)
}
