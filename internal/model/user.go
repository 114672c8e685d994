package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User represents a user document in MongoDB. The public key is uploaded by
// the client after key generation; the matching private key only ever lives
// on the user's device as a password-wrapped blob and is never stored here.
type User struct {
	ID           primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	UserID       string             `json:"userId" bson:"user_id"`
	Email        string             `json:"email" bson:"email"`
	FullName     string             `json:"fullName" bson:"full_name"`
	ProfilePic   string             `json:"profilePic" bson:"profile_pic"`
	PublicKey    string             `json:"publicKey" bson:"public_key"`
	BlockedUsers []string           `json:"blockedUsers" bson:"blocked_users"`
	// Sidebar organisation: ids of conversation partners this user pinned
	// to the top or tucked away. Per-user, never visible to the peer.
	PinnedChats   []string `json:"pinnedChats" bson:"pinned_chats"`
	ArchivedChats []string `json:"archivedChats" bson:"archived_chats"`
	IsVerified   bool               `json:"isVerified" bson:"is_verified"`
	LastSeen     *time.Time         `json:"lastSeen" bson:"last_seen"`
	CreatedAt    time.Time          `json:"createdAt" bson:"created_at"`
	UpdatedAt    *time.Time         `json:"updatedAt" bson:"updated_at"`
}

// HasBlocked reports whether this user has blocked the given user id.
func (u *User) HasBlocked(userID string) bool {
	return containsID(u.BlockedUsers, userID)
}

// HasPinned reports whether this user pinned the chat with the given user.
func (u *User) HasPinned(userID string) bool {
	return containsID(u.PinnedChats, userID)
}

// HasArchived reports whether this user archived the chat with the given user.
func (u *User) HasArchived(userID string) bool {
	return containsID(u.ArchivedChats, userID)
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
