package models

import "time"

// Exchange is one question/answer pair from a user's conversation.
type Exchange struct {
	CreatedAt time.Time `json:"created_at"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
}

// NewExchange creates an exchange stamped with the given time.
func NewExchange(question, answer string, at time.Time) Exchange {
	return Exchange{
		Question:  question,
		Answer:    answer,
		CreatedAt: at,
	}
}
