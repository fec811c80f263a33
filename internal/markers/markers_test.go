package markers

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/pawject/internal/models"
)

func TestExtractAskUser(t *testing.T) {
	tests := []struct {
		name        string
		in          string
		wantContent string
		wantQ       string
		wantKind    models.AskUserKind
	}{
		{
			name:        "legacy maps to context",
			in:          "Done. [ASK_USER: which city?]",
			wantContent: "Done.",
			wantQ:       "which city?",
			wantKind:    models.AskUserContext,
		},
		{
			name:        "context beats confirm regardless of position",
			in:          "[ASK_USER_CONFIRM: ship it?] middle [ASK_USER_CONTEXT: Q]",
			wantContent: "[ASK_USER_CONFIRM: ship it?] middle",
			wantQ:       "Q",
			wantKind:    models.AskUserContext,
		},
		{
			name:        "confirm beats legacy",
			in:          "[ASK_USER: old] then [ASK_USER_CONFIRM: publish now?]",
			wantContent: "[ASK_USER: old] then",
			wantQ:       "publish now?",
			wantKind:    models.AskUserConfirm,
		},
		{
			name:        "only first directive honored",
			in:          "A [ASK_USER_CONTEXT: first] B [ASK_USER_CONTEXT: second]",
			wantContent: "A  B [ASK_USER_CONTEXT: second]",
			wantQ:       "first",
			wantKind:    models.AskUserContext,
		},
		{
			name:        "body spans lines and is trimmed",
			in:          "Report ready.\n[ASK_USER_CONTEXT:\n  budget range?\n]",
			wantContent: "Report ready.",
			wantQ:       "budget range?",
			wantKind:    models.AskUserContext,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content, ask := ExtractAskUser(tt.in)
			require.NotNil(t, ask)
			assert.Equal(t, tt.wantContent, content)
			assert.Equal(t, tt.wantQ, ask.Question)
			assert.Equal(t, tt.wantKind, ask.Kind)
		})
	}
}

func TestExtractAskUser_NoDirective(t *testing.T) {
	for _, in := range []string{
		"  plain answer  ",
		"unterminated [ASK_USER_CONTEXT: never closed",
		"[ASK_USER_CONTEXTUAL stuff]",
	} {
		content, ask := ExtractAskUser(in)
		assert.Nil(t, ask, in)
		assert.Equal(t, in, content)
	}
}

func TestExtractArtifacts(t *testing.T) {
	in := "Summary first.\n\n```artifacts\n[{\"name\":\"Weekly\",\"type\":\"report\",\"content\":\"# W\",\"summary\":\"s\"}]\n```\n"
	content, artifacts := ExtractArtifacts(in)
	assert.Equal(t, "Summary first.", content)
	require.Len(t, artifacts, 1)
	assert.Equal(t, models.Artifact{Name: "Weekly", Type: "report", Content: "# W", Summary: "s"}, artifacts[0])
}

func TestExtractArtifacts_WhitespaceAfterTag(t *testing.T) {
	in := "x ```artifacts  \t\n[]\n``` y"
	content, artifacts := ExtractArtifacts(in)
	assert.Equal(t, "x  y", content)
	assert.NotNil(t, artifacts)
	assert.Empty(t, artifacts)
}

func TestExtractArtifacts_InvalidJSONLeavesContent(t *testing.T) {
	in := "Text\n```artifacts\n[{not json}]\n```"
	content, artifacts := ExtractArtifacts(in)
	assert.Equal(t, in, content)
	assert.Nil(t, artifacts)
}

func TestExtractArtifacts_RequiresNewlineAfterTag(t *testing.T) {
	in := "```artifacts []\n```"
	content, artifacts := ExtractArtifacts(in)
	assert.Equal(t, in, content)
	assert.Nil(t, artifacts)
}

func TestExtractArtifacts_RoundTrip(t *testing.T) {
	original := []models.Artifact{
		{Name: "Plan", Type: "document", Content: "line1\nline2 with ``` inside", Summary: "the plan"},
		{Name: "Numbers", Type: "data", Content: "a,b\n1,2", Summary: ""},
	}
	body, err := json.Marshal(original)
	require.NoError(t, err)

	_, artifacts := ExtractArtifacts("Intro\n```artifacts\n" + string(body) + "\n```\nOutro")
	require.NotNil(t, artifacts)

	again, err := json.Marshal(artifacts)
	require.NoError(t, err)
	assert.JSONEq(t, string(body), string(again))
}

func TestExtract_AskUserThenArtifacts(t *testing.T) {
	in := "Draft saved. [ASK_USER_CONFIRM: publish?]\n```artifacts\n[{\"name\":\"d\",\"type\":\"code\",\"content\":\"x\",\"summary\":\"y\"}]\n```"
	r := Extract(in)
	assert.Equal(t, "Draft saved.", r.Content)
	require.NotNil(t, r.AskUser)
	assert.Equal(t, models.AskUserConfirm, r.AskUser.Kind)
	require.Len(t, r.Artifacts, 1)
	assert.Equal(t, "code", r.Artifacts[0].Type)
}
