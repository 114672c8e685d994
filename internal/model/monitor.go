package model

// -----------------------------------------------------------------
// Monitor API Response Models
// -----------------------------------------------------------------

// MonitorResponse is the main response for the monitor API
type MonitorResponse struct {
	Status      string          `json:"status"`      // "healthy" or "idle"
	Connections ConnectionStats `json:"connections"` // Client connection stats
	Rooms       RoomStats       `json:"rooms"`       // Group room stats
	Clients     []ClientInfo    `json:"clients"`     // List of connected clients
}

// ConnectionStats holds connection-related statistics
type ConnectionStats struct {
	TotalConnected int `json:"totalConnected"` // Total clients currently connected
	TotalTyping    int `json:"totalTyping"`    // Users with an active typing record
}

// RoomStats holds group room statistics
type RoomStats struct {
	TotalRooms  int        `json:"totalRooms"`  // Total rooms with joined connections
	RoomDetails []RoomInfo `json:"roomDetails"` // Details of each room
}

// RoomInfo contains information about a single group room
type RoomInfo struct {
	GroupID       string   `json:"groupId"`
	JoinedMembers int      `json:"joinedMembers"` // Connections joined to the room
	MemberIDs     []string `json:"memberIds"`     // List of joined user IDs
}

// ClientInfo contains information about a connected client
type ClientInfo struct {
	ClientID    string   `json:"clientId"`
	UserID      string   `json:"userId"`
	JoinedRooms []string `json:"joinedRooms,omitempty"`
}
