package mocks

import (
	"context"
	"sync"

	"github.com/prohmpiriya/botfleet/internal/bot"
)

// SentMessage is one message captured by MockSender
type SentMessage struct {
	ChatID   string
	Text     string
	Keyboard *bot.Keyboard
}

// MockSender is a mock implementation of bot.Sender for testing.
type MockSender struct {
	mu        sync.Mutex
	Messages  []SentMessage
	Answered  []string
	SendErr   error
	AnswerErr error
}

func (m *MockSender) SendMessage(ctx context.Context, chatID, text string, kb *bot.Keyboard) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SendErr != nil {
		return m.SendErr
	}
	m.Messages = append(m.Messages, SentMessage{ChatID: chatID, Text: text, Keyboard: kb})
	return nil
}

func (m *MockSender) AnswerCallback(ctx context.Context, callbackID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AnswerErr != nil {
		return m.AnswerErr
	}
	m.Answered = append(m.Answered, callbackID)
	return nil
}

// Texts returns the text of every captured message
func (m *MockSender) Texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.Messages))
	for i, msg := range m.Messages {
		out[i] = msg.Text
	}
	return out
}

// Last returns the most recent message, or an empty one
func (m *MockSender) Last() SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Messages) == 0 {
		return SentMessage{}
	}
	return m.Messages[len(m.Messages)-1]
}

// Reset drops captured messages
func (m *MockSender) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Messages = nil
	m.Answered = nil
}
