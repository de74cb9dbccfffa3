package fetchstatic

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

const (
	minBodyBytes = 256
	minTextBytes = 200
	minTextRatio = 0.10
)

// Mount-point ids used by the common client-side frameworks. A div with
// one of these ids and nothing inside it means the page renders in the
// browser, not on the server.
var mountIDs = map[string]bool{
	"root":   true,
	"app":    true,
	"__next": true,
}

// IsSufficient reports whether a server-rendered body carries enough
// visible text to extract from directly. Shell pages that only mount a
// client app need the browser instead.
func IsSufficient(body []byte) bool {
	if len(body) < minBodyBytes {
		return false
	}
	text, shell := inspectBody(body)
	if shell || text < minTextBytes {
		return false
	}
	return float64(text)/float64(len(body)) >= minTextRatio
}

// inspectBody tokenizes the HTML once, counting visible text bytes and
// watching for shell markers: an empty framework mount div, or a
// noscript banner telling the user to enable JavaScript.
func inspectBody(body []byte) (text int, shell bool) {
	z := html.NewTokenizer(bytes.NewReader(body))
	skipTag := ""   // inside <script>, <style> or <noscript>
	openMount := "" // last-opened mount div awaiting content

	for {
		switch z.Next() {
		case html.ErrorToken:
			return text, shell

		case html.TextToken:
			raw := z.Text()
			if skipTag == "noscript" &&
				strings.Contains(strings.ToLower(string(raw)), "enable javascript") {
				shell = true
			}
			if skipTag != "" {
				continue
			}
			visible := 0
			for _, c := range raw {
				if c != ' ' && c != '\t' && c != '\n' && c != '\r' {
					visible++
				}
			}
			text += visible
			if visible > 0 {
				openMount = ""
			}

		case html.StartTagToken:
			name, hasAttr := z.TagName()
			tag := string(name)
			switch tag {
			case "script", "style", "noscript":
				if skipTag == "" {
					skipTag = tag
				}
			}
			openMount = ""
			if tag == "div" && hasAttr {
				for {
					key, val, more := z.TagAttr()
					if string(key) == "id" && mountIDs[string(val)] {
						openMount = string(val)
					}
					if !more {
						break
					}
				}
			}

		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if tag == skipTag {
				skipTag = ""
			}
			if tag == "div" && openMount != "" {
				shell = true
			}
			openMount = ""
		}
	}
}
