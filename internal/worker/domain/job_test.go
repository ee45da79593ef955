package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJob(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantErr    bool
		wantID     string
		wantLabel  string
		wantPrompt string
	}{
		{
			name:       "string id with prompt",
			body:       `{"conversation_id": "abc123", "prompt": "hello"}`,
			wantID:     `"abc123"`,
			wantLabel:  "abc123",
			wantPrompt: "hello",
		},
		{
			name:       "numeric id",
			body:       `{"conversation_id": 42, "prompt": "hello"}`,
			wantID:     `42`,
			wantLabel:  "42",
			wantPrompt: "hello",
		},
		{
			name:       "missing prompt",
			body:       `{"conversation_id": "abc123"}`,
			wantID:     `"abc123"`,
			wantLabel:  "abc123",
			wantPrompt: PromptPlaceholder,
		},
		{
			name:       "null prompt",
			body:       `{"conversation_id": "abc123", "prompt": null}`,
			wantID:     `"abc123"`,
			wantLabel:  "abc123",
			wantPrompt: PromptPlaceholder,
		},
		{
			name:       "extra fields ignored",
			body:       `{"conversation_id": "abc123", "prompt": "hi", "model": "llama"}`,
			wantID:     `"abc123"`,
			wantLabel:  "abc123",
			wantPrompt: "hi",
		},
		{name: "missing conversation id", body: `{"prompt": "hello"}`, wantErr: true},
		{name: "null conversation id", body: `{"conversation_id": null}`, wantErr: true},
		{name: "invalid json", body: `{`, wantErr: true},
		{name: "empty body", body: ``, wantErr: true},
		{name: "prompt wrong type", body: `{"conversation_id": "a", "prompt": 5}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job, err := ParseJob([]byte(tt.body))

			if tt.wantErr {
				require.ErrorIs(t, err, ErrProcessing)
				assert.Nil(t, job)
				return
			}

			require.NoError(t, err)
			assert.JSONEq(t, tt.wantID, string(job.ConversationID))
			assert.Equal(t, tt.wantLabel, job.ConversationLabel())
			assert.Equal(t, tt.wantPrompt, job.Prompt)
		})
	}
}

func TestResult_Marshal(t *testing.T) {
	r := &Result{
		ConversationID: json.RawMessage(`"abc123"`),
		AIContent:      `<p>"quoted" & more</p>`,
	}

	got, err := r.Marshal()
	require.NoError(t, err)
	assert.Equal(t, `{"conversation_id":"abc123","ai_content":"<p>\"quoted\" & more</p>"}`, string(got))
}

func TestAckDecision_String(t *testing.T) {
	assert.Equal(t, "acknowledge", Acknowledge.String())
	assert.Equal(t, "reject_permanently", RejectPermanently.String())
	assert.Equal(t, "delivered", Delivered.String())
	assert.Equal(t, "rejected", Rejected.String())
}
