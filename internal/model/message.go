package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Message represents a chat message in MongoDB. A message is addressed either
// to a single receiver (direct) or to a group, never both.
type Message struct {
	ID            primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	SenderID      string             `json:"senderId" bson:"sender_id"`
	ReceiverID    *string            `json:"receiverId" bson:"receiver_id,omitempty"`
	GroupID       *string            `json:"groupId" bson:"group_id,omitempty"`
	Text          *string            `json:"text" bson:"text"`
	EncryptedText *EncryptedPayload  `json:"encryptedText" bson:"encrypted_text"`
	IsEncrypted   bool               `json:"isEncrypted" bson:"is_encrypted"`
	Image         string             `json:"image,omitempty" bson:"image,omitempty"`
	VoiceMessage  string             `json:"voiceMessage,omitempty" bson:"voice_message,omitempty"`
	VoiceDuration float64            `json:"voiceDuration,omitempty" bson:"voice_duration,omitempty"`
	VoiceWaveform []float64          `json:"voiceWaveform,omitempty" bson:"voice_waveform,omitempty"`
	Reactions     []Reaction         `json:"reactions" bson:"reactions"`
	Delivered     bool               `json:"delivered" bson:"delivered"`
	DeliveredAt   *time.Time         `json:"deliveredAt" bson:"delivered_at"`
	Read          bool               `json:"read" bson:"read"`
	ReadAt        *time.Time         `json:"readAt" bson:"read_at"`
	CreatedAt     time.Time          `json:"createdAt" bson:"created_at"`
	EditedAt      *time.Time         `json:"editedAt" bson:"edited_at"`
}

// EncryptedPayload is the hybrid-encrypted message body: the AES-GCM pieces
// plus the session key wrapped under the receiver's public key. All fields
// are base64.
type EncryptedPayload struct {
	Ciphertext        string `json:"ciphertext" bson:"ciphertext"`
	IV                string `json:"iv" bson:"iv"`
	AuthTag           string `json:"authTag" bson:"auth_tag"`
	WrappedSessionKey string `json:"wrappedSessionKey" bson:"wrapped_session_key"`
}

// Reaction represents a reaction on a message. A user holds at most one
// reaction per message.
type Reaction struct {
	Emoji  string `json:"emoji" bson:"emoji"`
	UserID string `json:"userId" bson:"user_id"`
}

// HasContent reports whether the message carries any body at all.
func (m *Message) HasContent() bool {
	return (m.Text != nil && *m.Text != "") || m.EncryptedText != nil ||
		m.Image != "" || m.VoiceMessage != ""
}

// IsGroup reports whether the message is addressed to a group.
func (m *Message) IsGroup() bool {
	return m.GroupID != nil && *m.GroupID != ""
}

// ErrorPayload represents an error response sent to a client via WebSocket.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
