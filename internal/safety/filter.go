// Package safety implements the deterministic text filter applied to model
// thoughts, outgoing game chat, and incoming viewer messages.
package safety

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// maxChatLen caps outgoing in-game chat lines.
const maxChatLen = 200

// Placeholders substituted for violating text.
const (
	contentPlaceholder   = "[***]"
	injectionPlaceholder = "[nice try]"
)

// Result is the outcome of a filter pass.
type Result struct {
	Safe    bool
	Cleaned string
	Reason  string
}

type contentPattern struct {
	re     *regexp.Regexp
	reason string
}

// contentPatterns cover slurs, TOS violations, self-harm, and doxxing.
// Matches are replaced with the content placeholder rather than rejecting
// the whole string, so a mostly-fine thought still reaches the overlay.
var contentPatterns = []contentPattern{
	{regexp.MustCompile(`(?i)\b(n[i1]gg+[ae]r?s?|f[a4]gg?[o0]ts?|k[i1]kes?|sp[i1]cs?|ch[i1]nks?|tr[a4]nn(y|ies))\b`), "slur"},
	{regexp.MustCompile(`(?i)\b(kill\s+yourself|kys|go\s+die|neck\s+yourself)\b`), "self-harm"},
	{regexp.MustCompile(`(?i)\b(dox+\b|dox+ing|home\s+address\s+is|real\s+name\s+is\s+\w+\s+\w+\s+and\s+(he|she|they)\s+lives?)\b`), "doxxing"},
	{regexp.MustCompile(`(?i)\b(free\s+robux|free\s+v-?bucks|cheat\s+client|x-?ray\s+texture\s*pack)\b`), "tos"},
	{regexp.MustCompile(`(?i)(discord\.gg/\S+|bit\.ly/\S+)`), "link spam"},
}

type injectionPattern struct {
	re     *regexp.Regexp
	reason string
}

// injectionPatterns catch viewer attempts to hijack the strategic prompt.
var injectionPatterns = []injectionPattern{
	{regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|above|prior)\s+(instructions?|prompts?|rules?)`), "ignore previous instructions"},
	{regexp.MustCompile(`(?i)\byou\s+are\s+now\b`), "identity override"},
	{regexp.MustCompile(`(?i)\bnew\s+system\s+prompt\b`), "system prompt override"},
	{regexp.MustCompile(`(?i)forget\s+(everything|all|your)`), "memory wipe"},
	{regexp.MustCompile(`(?i)^\s*(system|assistant)\s*:`), "role marker"},
	{regexp.MustCompile(`(?i)<\s*\|?\s*(system|im_start|im_end)\s*\|?\s*>`), "chat template tag"},
}

// FilterContent scrubs model thoughts before they reach the overlay.
func FilterContent(text string) Result {
	return scrub(text)
}

// FilterChatMessage scrubs outgoing in-game chat and enforces the length
// cap.
func FilterChatMessage(text string) Result {
	r := scrub(text)
	if len(r.Cleaned) > maxChatLen {
		// Back off to a rune boundary so the cut never splits a
		// multi-byte character.
		cut := maxChatLen
		for cut > 0 && !utf8.RuneStart(r.Cleaned[cut]) {
			cut--
		}
		r.Cleaned = r.Cleaned[:cut]
	}
	return r
}

// FilterViewerMessage scrubs an incoming viewer message and rejects prompt
// injection attempts outright, replacing the whole message.
func FilterViewerMessage(text string) Result {
	for _, pat := range injectionPatterns {
		if pat.re.MatchString(text) {
			return Result{
				Safe:    false,
				Cleaned: injectionPlaceholder,
				Reason:  "prompt injection: " + pat.reason,
			}
		}
	}
	return scrub(text)
}

func scrub(text string) Result {
	cleaned := text
	var reasons []string
	for _, pat := range contentPatterns {
		if pat.re.MatchString(cleaned) {
			cleaned = pat.re.ReplaceAllString(cleaned, contentPlaceholder)
			reasons = append(reasons, pat.reason)
		}
	}
	if len(reasons) == 0 {
		return Result{Safe: true, Cleaned: cleaned}
	}
	return Result{
		Safe:    false,
		Cleaned: cleaned,
		Reason:  strings.Join(reasons, ", "),
	}
}
