package approuters

import (
	"Cryptalk/internal/configuration"

	"github.com/gin-gonic/gin"
)

func MessageRouters(router *gin.Engine, container *configuration.Container) {
	messageRoute := router.Group("/ct/api/messages")
	{
		messageRoute.POST("/direct/:receiverId", container.MessageHandler.SendDirectMessage)
		messageRoute.POST("/group/:groupId", container.MessageHandler.SendGroupMessage)
		messageRoute.GET("/conversation/:peerId", container.MessageHandler.GetConversation)
		messageRoute.GET("/group/:groupId", container.MessageHandler.GetGroupMessages)
		messageRoute.PATCH("/edit/:messageId", container.MessageHandler.EditMessage)
		messageRoute.DELETE("/delete/:messageId", container.MessageHandler.DeleteMessage)
		messageRoute.POST("/reactions/:messageId", container.MessageHandler.ToggleReaction)
	}
}
