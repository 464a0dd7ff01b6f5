package model

import (
	"database/sql"
	"time"
)

// TopicMessage is a message published to a topic.
//
// Durable rows live in the pubsub_message table. A row whose SubKey is NULL
// is pending: published before any subscriber existed and not yet claimed.
// The first subscribe-time migration claims all pending rows of the topic by
// setting their SubKey in one conditional update; from then on the row
// belongs to exactly one subscriber queue.
//
// Non-GD messages use the same shape but live only in the process-local
// transient store and are never persisted.
type TopicMessage struct {
	ID      int64          `json:"id"`
	MsgID   string         `json:"msgID" db:"msg_id"` // Publisher-visible message ID
	TopicID int64          `json:"topicID" db:"topic_id"`
	SubKey  sql.NullString `json:"subKey" db:"sub_key"` // NULL while pending
	HasGD   bool           `json:"hasGD" db:"has_gd"`
	Data    string         `json:"data" db:"data"`

	PubTime       int64          `json:"pubTime" db:"pub_time"`   // Unix milliseconds
	RecvTime      sql.NullInt64  `json:"recvTime" db:"recv_time"` // Unix milliseconds, set when the message enters a subscriber queue
	DeliveryCount int            `json:"deliveryCount" db:"delivery_count"`
	DeliveredAt   sql.NullTime   `json:"deliveredAt" db:"delivered_at"`
}

// TableName returns the database table name for TopicMessage.
func (m TopicMessage) TableName() string {
	return tablePrefix + "message"
}

// NewTopicMessage creates a message for the given topic. The subscriber key
// is left unset; publishers assign it when the topic already has subscribers,
// otherwise the row stays pending until the first migration.
func NewTopicMessage(msgID string, topicID int64, hasGD bool, data string) TopicMessage {
	return TopicMessage{
		ID:      0,
		MsgID:   msgID,
		TopicID: topicID,
		HasGD:   hasGD,
		Data:    data,
		PubTime: time.Now().UnixMilli(),
	}
}

// IsPending reports whether the message has not been claimed by any
// subscriber queue yet.
func (m TopicMessage) IsPending() bool {
	return !m.SubKey.Valid
}

// Claim assigns the message to a subscriber queue and stamps the time it
// entered the queue.
func (m *TopicMessage) Claim(subKey string) {
	m.SubKey = sql.NullString{String: subKey, Valid: true}
	m.RecvTime = sql.NullInt64{Int64: time.Now().UnixMilli(), Valid: true}
}

// MarkDelivered records a successful delivery.
func (m *TopicMessage) MarkDelivered() {
	m.DeliveryCount++
	m.DeliveredAt = sql.NullTime{Time: time.Now(), Valid: true}
}
