// Package markers pulls in-band directives out of an agent's final answer.
//
// Two markers are recognized. An ask-user directive is one of
//
//	[ASK_USER_CONTEXT: question]
//	[ASK_USER_CONFIRM: question]
//	[ASK_USER: question]          (legacy, read as CONTEXT)
//
// and an artifacts block is a fenced JSON array:
//
//	```artifacts
//	[{"name": "...", "type": "report", "content": "...", "summary": "..."}]
//	```
package markers

import (
	"encoding/json"
	"strings"

	"github.com/dotcommander/pawject/internal/models"
)

// Result is the residual answer plus whatever markers were found in it.
type Result struct {
	Content   string
	AskUser   *models.AskUser
	Artifacts []models.Artifact
}

// Extract applies ask-user extraction and then artifact extraction. It never fails.
func Extract(text string) Result {
	content, ask := ExtractAskUser(text)
	content, artifacts := ExtractArtifacts(content)
	return Result{Content: content, AskUser: ask, Artifacts: artifacts}
}

type directive struct {
	opener string
	kind   models.AskUserKind
}

// askUserGrammar is tried in order; the first alternative present anywhere in
// the text wins, whatever its position relative to the others.
var askUserGrammar = []directive{
	{opener: "[ASK_USER_CONTEXT:", kind: models.AskUserContext},
	{opener: "[ASK_USER_CONFIRM:", kind: models.AskUserConfirm},
	{opener: "[ASK_USER:", kind: models.AskUserContext},
}

// ExtractAskUser removes the first honored ask-user directive and returns the
// trimmed remainder with the question. Without a directive the text is returned untouched.
func ExtractAskUser(text string) (string, *models.AskUser) {
	for _, d := range askUserGrammar {
		start, end, body, ok := scanDirective(text, d.opener)
		if !ok {
			continue
		}
		content := strings.TrimSpace(text[:start] + text[end:])
		return content, &models.AskUser{Question: strings.TrimSpace(body), Kind: d.kind}
	}
	return text, nil
}

// scanDirective finds the first opener and the first ']' after it. An opener
// with no closing bracket anywhere after it does not match.
func scanDirective(text, opener string) (start, end int, body string, ok bool) {
	start = strings.Index(text, opener)
	if start < 0 {
		return 0, 0, "", false
	}
	bodyStart := start + len(opener)
	closeIdx := strings.IndexByte(text[bodyStart:], ']')
	if closeIdx < 0 {
		return 0, 0, "", false
	}
	end = bodyStart + closeIdx + 1
	return start, end, text[bodyStart : bodyStart+closeIdx], true
}

const (
	fenceOpen  = "```artifacts"
	fenceClose = "\n```"
)

// ExtractArtifacts removes the first well-formed artifacts fence whose body is a
// JSON array. If the body is not valid JSON the text is returned unchanged.
func ExtractArtifacts(text string) (string, []models.Artifact) {
	start, end, body, ok := scanFence(text)
	if !ok {
		return text, nil
	}

	var artifacts []models.Artifact
	if err := json.Unmarshal([]byte(body), &artifacts); err != nil {
		return text, nil
	}
	return strings.TrimSpace(text[:start] + text[end:]), artifacts
}

// scanFence locates "```artifacts", optional whitespace ending in a newline,
// the body, then a newline and closing "```".
func scanFence(text string) (start, end int, body string, ok bool) {
	offset := 0
	for offset < len(text) {
		i := strings.Index(text[offset:], fenceOpen)
		if i < 0 {
			return 0, 0, "", false
		}
		start = offset + i
		pos := start + len(fenceOpen)

		lastNL := -1
		for pos < len(text) && isSpace(text[pos]) {
			if text[pos] == '\n' {
				lastNL = pos
			}
			pos++
		}
		if lastNL >= 0 {
			bodyStart := lastNL + 1
			if c := strings.Index(text[bodyStart:], fenceClose); c >= 0 {
				bodyEnd := bodyStart + c
				return start, bodyEnd + len(fenceClose), text[bodyStart:bodyEnd], true
			}
		}
		offset = start + len(fenceOpen)
	}
	return 0, 0, "", false
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\f', '\v':
		return true
	}
	return false
}
