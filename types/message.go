// Package types provides core types shared across the voicegate gateway.
// This package has ZERO dependencies on other voicegate packages to avoid circular imports.
// All other packages should import types from here.
package types

import (
	"strings"
	"time"
)

// Role represents the role of a message participant.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall represents a tool invocation request from the LLM.
//
// Arguments is the raw argument payload as sent on the wire: a string that,
// once the call is fully accumulated, contains a JSON object. While a call is
// still streaming the string may hold an arbitrary prefix of that object.
type ToolCall struct {
	Index     int    `json:"index"`
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message represents a conversation message.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content,omitempty"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Metadata   any        `json:"metadata,omitempty"`
	Timestamp  time.Time  `json:"timestamp,omitempty"`
}

// NewMessage creates a new message with the given role and content.
func NewMessage(role Role, content string) Message {
	return Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) Message {
	return NewMessage(RoleSystem, content)
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) Message {
	return NewMessage(RoleUser, content)
}

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(content string) Message {
	return NewMessage(RoleAssistant, content)
}

// NewToolMessage creates a new tool result message.
func NewToolMessage(toolCallID, name, content string) Message {
	return Message{
		Role:       RoleTool,
		Content:    content,
		Name:       name,
		ToolCallID: toolCallID,
		Timestamp:  time.Now(),
	}
}

// WordCount returns the number of whitespace-separated words in the
// message content plus every streamed tool-call argument payload.
func (m Message) WordCount() int {
	n := len(strings.Fields(m.Content))
	for _, tc := range m.ToolCalls {
		n += len(strings.Fields(tc.Arguments))
	}
	return n
}

// IsSystem reports whether the message carries the system role.
func (m Message) IsSystem() bool {
	return m.Role == RoleSystem
}
