package hub

import (
	"Cryptalk/internal/model"
)

// MonitorService provides methods to gather hub statistics
type MonitorService struct {
	hub *Hub
}

// NewMonitorService creates a new monitor service
func NewMonitorService(hub *Hub) *MonitorService {
	return &MonitorService{hub: hub}
}

// GetStats gathers and returns all hub statistics
func (ms *MonitorService) GetStats() model.MonitorResponse {
	connectionStats := ms.getConnectionStats()
	roomStats := ms.getRoomStats()
	clients := ms.getClientList()

	// Determine overall health status
	status := "healthy"
	if connectionStats.TotalConnected == 0 {
		status = "idle"
	}

	return model.MonitorResponse{
		Status:      status,
		Connections: connectionStats,
		Rooms:       roomStats,
		Clients:     clients,
	}
}

// getConnectionStats returns connection statistics
func (ms *MonitorService) getConnectionStats() model.ConnectionStats {
	return model.ConnectionStats{
		TotalConnected: len(ms.hub.presence.onlineIDs()),
		TotalTyping:    ms.hub.typing.count(),
	}
}

// getRoomStats returns group room statistics
func (ms *MonitorService) getRoomStats() model.RoomStats {
	stats := model.RoomStats{
		RoomDetails: make([]model.RoomInfo, 0),
	}

	// Iterate through all shards to collect room info
	for _, bucket := range ms.hub.shards {
		bucket.RLock()
		for groupID, room := range bucket.rooms {
			memberIDs := make([]string, 0, len(room))
			for _, c := range room {
				memberIDs = append(memberIDs, c.userID)
			}

			stats.RoomDetails = append(stats.RoomDetails, model.RoomInfo{
				GroupID:       groupID,
				JoinedMembers: len(room),
				MemberIDs:     memberIDs,
			})
			stats.TotalRooms++
		}
		bucket.RUnlock()
	}

	return stats
}

// getClientList returns list of all connected clients
func (ms *MonitorService) getClientList() []model.ClientInfo {
	snapshot := ms.hub.presence.snapshot()
	clients := make([]model.ClientInfo, 0, len(snapshot))

	for _, client := range snapshot {
		clients = append(clients, model.ClientInfo{
			ClientID:    client.ID,
			UserID:      client.userID,
			JoinedRooms: client.joinedRooms(),
		})
	}

	return clients
}
