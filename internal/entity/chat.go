package entity

import "time"

type ChatMessage struct {
	ID         int64     `json:"id"`
	Text       string    `json:"text"`
	SenderName string    `json:"senderName"`
	Timestamp  time.Time `json:"timestamp"`
}
