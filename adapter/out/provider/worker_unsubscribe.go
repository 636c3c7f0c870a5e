package provider

import (
	"html"
	"regexp"
	"strings"
)

var (
	angleURLPattern  = regexp.MustCompile(`<([^>]+)>`)
	directURLPattern = regexp.MustCompile(`https?://[^\s<>"]+`)
	hostPattern      = regexp.MustCompile(`https?://([^/\s"'<>]+)`)

	// checked in order, most specific first
	hrefPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?is)<a[^>]+href\s*=\s*["']([^"']*unsubscribe[^"']*)["']`),
		regexp.MustCompile(`(?is)<a[^>]+href\s*=\s*["']([^"']*opt[_-]?out[^"']*)["']`),
		regexp.MustCompile(`(?is)<a[^>]+href\s*=\s*["']([^"']*remove[^"']*)["']`),
		regexp.MustCompile(`(?is)<a[^>]+href\s*=\s*["']([^"']*manage[_-]?preferences[^"']*)["']`),
		regexp.MustCompile(`(?is)href\s*=\s*["']([^"']*unsubscribe[^"']*)["']`),
		regexp.MustCompile(`(?is)href\s*=\s*["']([^"']*opt[_-]?out[^"']*)["']`),
	}

	plainPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)https?://[^\s<>"')]+unsubscribe[^\s<>"')]*`),
		regexp.MustCompile(`(?i)https?://[^\s<>"')]+opt[_-]?out[^\s<>"')]*`),
		regexp.MustCompile(`(?i)https?://[^\s<>"')]+remove[^\s<>"')]*`),
		regexp.MustCompile(`(?i)https?://[^\s<>"')]+manage[_-]?preferences[^\s<>"')]*`),
		regexp.MustCompile(`(?i)https?://[^\s<>"')]+email[_-]?preferences[^\s<>"')]*`),
		regexp.MustCompile(`(?i)https?://[^\s<>"')]+preferences[^\s<>"')]*`),
	}

	unsubscribeKeywords = []string{"unsubscribe", "opt", "remove", "preferences"}
)

// ExtractUnsubscribeURL finds an http(s) unsubscribe link. The
// List-Unsubscribe header wins; otherwise the HTML and then the plain body
// are searched. Returns "" when nothing is found.
func ExtractUnsubscribeURL(listUnsubscribe, htmlBody, plainBody string) string {
	if u := fromListUnsubscribe(listUnsubscribe); u != "" {
		return u
	}

	for _, body := range []string{htmlBody, plainBody} {
		if body == "" {
			continue
		}
		if u := fromHref(body); u != "" {
			return u
		}
		if u := fromPlainURL(body); u != "" {
			return u
		}
	}
	return ""
}

func fromListUnsubscribe(header string) string {
	if header == "" {
		return ""
	}
	for _, m := range angleURLPattern.FindAllStringSubmatch(header, -1) {
		u := strings.TrimSpace(m[1])
		if isHTTP(u) {
			return u
		}
		// mailto: links cannot be followed
	}
	if u := directURLPattern.FindString(header); u != "" {
		return strings.TrimSpace(u)
	}
	return ""
}

func fromHref(body string) string {
	for _, p := range hrefPatterns {
		for _, m := range p.FindAllStringSubmatch(body, -1) {
			u := html.UnescapeString(strings.TrimSpace(m[1]))
			switch {
			case isHTTP(u):
				u = trimTrailing(u)
				if hasKeyword(u) {
					return u
				}
			case strings.HasPrefix(u, "/") && !strings.HasPrefix(u, "//"):
				// relative link, resolve against the first host mentioned
				if host := hostPattern.FindStringSubmatch(body); host != nil {
					return trimTrailing("https://" + host[1] + u)
				}
			}
		}
	}
	return ""
}

func fromPlainURL(body string) string {
	for _, p := range plainPatterns {
		for _, u := range p.FindAllString(body, -1) {
			u = trimTrailing(u)
			if hasKeyword(u) {
				return u
			}
		}
	}
	return ""
}

func isHTTP(u string) bool {
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}

func hasKeyword(u string) bool {
	lower := strings.ToLower(u)
	for _, k := range unsubscribeKeywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

func trimTrailing(u string) string {
	return strings.TrimRight(u, ".,;:!?)")
}
