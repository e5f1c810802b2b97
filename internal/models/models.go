package models

import "time"

// Thread is one imported forum discussion, stored as a single document.
type Thread struct {
	ID       string    `json:"id"`
	TID      string    `json:"tid"`
	Archived bool      `json:"archived"`
	Messages []Message `json:"messages"`
}

// Message is one post together with its nested replies.
type Message struct {
	ID       string            `json:"id"`
	Author   Author            `json:"author"`
	Subject  string            `json:"subject"`
	Date     time.Time         `json:"date"`
	Category string            `json:"category,omitempty"`
	Flags    map[string]string `json:"flags"`
	Content  string            `json:"content"`
	Messages []Message         `json:"messages"`
}

// Author describes who wrote a message. Only Name is always present.
type Author struct {
	Name     string `json:"name"`
	Email    string `json:"email,omitempty"`
	Homepage string `json:"homepage,omitempty"`
	Username string `json:"username,omitempty"`
}

// Well-known flag names.
const (
	FlagVotingGood = "votingGood"
	FlagVotingBad  = "votingBad"
	FlagInvisible  = "invisible"
)

// FirstMessage returns the first top-level message in document order.
func (t *Thread) FirstMessage() (*Message, bool) {
	if t == nil || len(t.Messages) == 0 {
		return nil, false
	}
	return &t.Messages[0], true
}

// CountMessages returns the number of messages in the thread, replies included.
func (t *Thread) CountMessages() int {
	n := 0
	for i := range t.Messages {
		n += t.Messages[i].count()
	}
	return n
}

func (m *Message) count() int {
	n := 1
	for i := range m.Messages {
		n += m.Messages[i].count()
	}
	return n
}
