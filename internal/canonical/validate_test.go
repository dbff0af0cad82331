package canonical

import "testing"

func TestValidateRequest_OK(t *testing.T) {
	req := &CanonicalRequest{
		SchemaVersion: SchemaVersion,
		Model:         "gpt-4o",
		Messages: []Message{
			{Role: RoleUser, Content: []ContentPart{{Type: PartText, Text: "Hi"}}},
		},
	}
	if err := ValidateRequest(req); err != nil {
		t.Fatalf("ValidateRequest returned error for valid request: %v", err)
	}
}

func TestValidateRequest_MissingModel(t *testing.T) {
	req := &CanonicalRequest{
		Messages: []Message{{Role: RoleUser}},
	}
	if err := ValidateRequest(req); err == nil {
		t.Fatal("expected validation error for missing model")
	}
}

func TestValidateRequest_BadRole(t *testing.T) {
	req := &CanonicalRequest{
		Model:    "gpt-4o",
		Messages: []Message{{Role: "narrator"}},
	}
	if err := ValidateRequest(req); err == nil {
		t.Fatal("expected validation error for unknown role")
	}
}

func TestValidateResponse_OK(t *testing.T) {
	resp := &CanonicalResponse{
		ID:    "resp_1",
		Model: "gpt-4o",
		Choices: []Choice{
			{Index: 0, Message: Message{Role: RoleAssistant}, FinishReason: FinishStop},
		},
	}
	if err := ValidateResponse(resp); err != nil {
		t.Fatalf("ValidateResponse returned error for valid response: %v", err)
	}
}

func TestValidateResponse_NoChoices(t *testing.T) {
	resp := &CanonicalResponse{ID: "resp_1", Model: "gpt-4o"}
	if err := ValidateResponse(resp); err == nil {
		t.Fatal("expected validation error for empty choices")
	}
}

func TestUsage_Normalize(t *testing.T) {
	u := Usage{InputTokens: 100, OutputTokens: 42}
	u.Normalize()
	if u.PromptTokens != 100 || u.CompletionTokens != 42 {
		t.Fatalf("expected OpenAI vocabulary mirrored, got %+v", u)
	}
	if u.TotalTokens != 142 {
		t.Fatalf("expected TotalTokens=142, got %d", u.TotalTokens)
	}

	u2 := Usage{PromptTokens: 10, CompletionTokens: 5}
	u2.Normalize()
	if u2.InputTokens != 10 || u2.OutputTokens != 5 || u2.TotalTokens != 15 {
		t.Fatalf("expected canonical vocabulary filled in, got %+v", u2)
	}
}
