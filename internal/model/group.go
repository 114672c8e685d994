package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Group represents a group conversation in MongoDB. Membership administration
// (add/remove member, promote admin) happens outside this engine; the core
// only reads the member set for fanout and access checks.
type Group struct {
	ID          primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Name        string             `json:"name" bson:"name"`
	Description string             `json:"description" bson:"description"`
	CreatedBy   string             `json:"createdBy" bson:"created_by"`
	Admins      []string           `json:"admins" bson:"admins"`
	Members     []string           `json:"members" bson:"members"`
	CreatedAt   time.Time          `json:"createdAt" bson:"created_at"`
	UpdatedAt   time.Time          `json:"updatedAt" bson:"updated_at"`
}

// HasMember reports whether the given user id belongs to the group.
func (g *Group) HasMember(userID string) bool {
	for _, id := range g.Members {
		if id == userID {
			return true
		}
	}
	return false
}
