package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// PromptPlaceholder replaces a prompt that is missing from the job message
const PromptPlaceholder = "a prompt was not provided"

// Job is a prompt message received from the queue
type Job struct {
	// ConversationID is opaque and echoed back unchanged, whatever its JSON type
	ConversationID json.RawMessage
	Prompt         string
}

// jobMessage mirrors the wire format of a queued prompt
type jobMessage struct {
	ConversationID json.RawMessage `json:"conversation_id"`
	Prompt         *string         `json:"prompt"`
}

// ParseJob decodes a message body into a Job
func ParseJob(body []byte) (*Job, error) {
	var msg jobMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("%w: invalid job JSON: %v", ErrProcessing, err)
	}

	if len(msg.ConversationID) == 0 || bytes.Equal(msg.ConversationID, []byte("null")) {
		return nil, fmt.Errorf("%w: conversation_id is required", ErrProcessing)
	}

	prompt := PromptPlaceholder
	if msg.Prompt != nil {
		prompt = *msg.Prompt
	}

	return &Job{
		ConversationID: msg.ConversationID,
		Prompt:         prompt,
	}, nil
}

// ConversationLabel renders the conversation id for log lines
func (j *Job) ConversationLabel() string {
	var s string
	if err := json.Unmarshal(j.ConversationID, &s); err == nil {
		return s
	}
	return string(j.ConversationID)
}

// Result is the callback body sent back to the originating system
type Result struct {
	ConversationID json.RawMessage `json:"conversation_id"`
	AIContent      string          `json:"ai_content"`
}

// Marshal serializes the result once; the returned bytes are both signed and sent
func (r *Result) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(r); err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
