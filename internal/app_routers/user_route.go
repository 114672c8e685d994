package approuters

import (
	"Cryptalk/internal/configuration"

	"github.com/gin-gonic/gin"
)

func UserRouters(router *gin.Engine, container *configuration.Container) {
	userRoute := router.Group("/ct/api/users")
	{
		userRoute.GET("/get-all-users", container.UserHandler.GetUsers)
		userRoute.GET("/public-key/:userId", container.UserHandler.GetPublicKey)
		userRoute.PUT("/public-key/:userId", container.UserHandler.SetPublicKey)

		// sidebar organisation, per requester
		userRoute.GET("/pinned/chats", container.UserHandler.GetPinnedChats)
		userRoute.POST("/pin/:peerId", container.UserHandler.PinChat)
		userRoute.POST("/unpin/:peerId", container.UserHandler.UnpinChat)
		userRoute.GET("/archived/chats", container.UserHandler.GetArchivedChats)
		userRoute.POST("/archive/:peerId", container.UserHandler.ArchiveChat)
		userRoute.POST("/unarchive/:peerId", container.UserHandler.UnarchiveChat)
	}
}
