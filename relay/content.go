/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package relay

import (
	"strings"

	"github.com/rivo/uniseg"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxContentLength is the maximum length of a webhook message in user-perceived characters.
const MaxContentLength = 2000

// TruncatedSuffix terminates content that was cut to fit MaxContentLength.
const TruncatedSuffix = "\n…[truncated]"

const (
	maxLangLength = 20
	codeFence     = "```"
)

// BuildContent makes the webhook message text.
// A non-empty msg wins over code and is truncated only when it is too long.
// Otherwise code is normalized and put into a fenced block with the sanitized language.
// Empty msg and code give empty content.
func BuildContent(msg, code, lang string) string {
	if msg != "" {
		return truncateText(msg, MaxContentLength)
	}
	if code == "" {
		return ""
	}
	open := codeFence + sanitizeLang(lang) + "\n"
	closing := "\n" + codeFence
	room := MaxContentLength - uniseg.GraphemeClusterCount(open) - uniseg.GraphemeClusterCount(closing)
	return open + truncateText(normalizeCode(code), room) + closing
}

// TextLength returns the length of s in grapheme clusters.
func TextLength(s string) int {
	return uniseg.GraphemeClusterCount(s)
}

func sanitizeLang(lang string) string {
	var sb strings.Builder
	n := 0
	for _, r := range lang {
		if n == maxLangLength {
			break
		}
		if isLangRune(r) {
			sb.WriteRune(r)
			n++
		}
	}
	return sb.String()
}

func isLangRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	}
	return strings.ContainsRune("_.+-#", r)
}

var quotesToASCII = runes.Map(func(r rune) rune {
	switch r {
	case '‘', '’', '‚', '‛', '′':
		return '\''
	case '“', '”', '„', '‟', '″':
		return '"'
	}
	return r
})

func normalizeCode(code string) string {
	if normalized, _, err := transform.String(transform.Chain(norm.NFC, quotesToASCII), code); err == nil {
		code = normalized
	}
	return strings.ReplaceAll(code, "\r\n", "\n")
}

// truncateText cuts s at a grapheme cluster boundary so that the result
// including TruncatedSuffix is not longer than limit.
func truncateText(s string, limit int) string {
	if uniseg.GraphemeClusterCount(s) <= limit {
		return s
	}
	keep := limit - uniseg.GraphemeClusterCount(TruncatedSuffix)
	if keep <= 0 {
		return TruncatedSuffix
	}
	end := 0
	gr := uniseg.NewGraphemes(s)
	for n := 0; n < keep && gr.Next(); n++ {
		_, end = gr.Positions()
	}
	return s[:end] + TruncatedSuffix
}
