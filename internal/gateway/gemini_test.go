package gateway

import (
	"encoding/base64"
	"testing"

	"google.golang.org/genai"

	"cypher-server/internal/model"
)

func TestBuildContents_RolesAndAttachments(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte{1, 2, 3})
	history := []model.ChatMessage{
		{Role: model.RoleUser, Content: "hi", Attachments: []model.Attachment{{Data: payload, MIMEType: "image/png"}}},
		{Role: model.RoleAssistant, Content: "hello"},
		{Role: model.RoleUser, Content: "look at this", Attachments: []model.Attachment{{Data: payload, MIMEType: "image/png"}}},
	}

	contents := buildContents(history)
	if len(contents) != 3 {
		t.Fatalf("expected 3 contents, got %d", len(contents))
	}
	if contents[0].Role != string(genai.RoleUser) || contents[1].Role != string(genai.RoleModel) {
		t.Fatalf("unexpected roles: %s, %s", contents[0].Role, contents[1].Role)
	}

	// Only the final user turn carries inline data.
	if len(contents[0].Parts) != 1 {
		t.Fatalf("expected earlier attachment dropped, got %d parts", len(contents[0].Parts))
	}
	if len(contents[2].Parts) != 2 {
		t.Fatalf("expected text+blob on final turn, got %d parts", len(contents[2].Parts))
	}
	blob := contents[2].Parts[1].InlineData
	if blob == nil || blob.MIMEType != "image/png" || len(blob.Data) != 3 {
		t.Fatalf("unexpected blob: %+v", blob)
	}
}

func TestBuildContents_EmptyTextPlaceholder(t *testing.T) {
	contents := buildContents([]model.ChatMessage{{Role: model.RoleUser}})
	if contents[0].Parts[0].Text != "..." {
		t.Fatalf("expected placeholder text, got %q", contents[0].Parts[0].Text)
	}
}

func TestDecodeAttachment_DataURI(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte("abc"))
	got, err := decodeAttachment("data:image/png;base64," + payload)
	if err != nil {
		t.Fatalf("decodeAttachment: %v", err)
	}
	if string(got) != "abc" {
		t.Fatalf("unexpected payload %q", got)
	}
}
