package http

import (
	"github.com/gin-gonic/gin"
	"github.com/layer-3/walletauth/service"
)

// SetupRouter wires the auth endpoints and the protected API group.
func SetupRouter(handlers *AuthHandlers, verifier *service.Verifier, authOpts AuthOptions) *gin.Engine {
	router := gin.Default()

	auth := router.Group("/auth")
	{
		auth.POST("/challenge", handlers.Challenge)
		auth.POST("/verify", handlers.Verify)
		auth.POST("/refresh", handlers.Refresh)
		auth.POST("/logout", handlers.Logout)
	}

	api := router.Group("/api")
	api.Use(WalletAuth(verifier, authOpts))
	{
		api.GET("/me", handlers.Me)
		api.POST("/unlink", handlers.Unlink)
	}

	return router
}
