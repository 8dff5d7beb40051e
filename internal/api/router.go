package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"parktronic/internal/api/handler"
	"parktronic/internal/api/middleware"
	"parktronic/internal/ingest"
	"parktronic/internal/service"
)

type Services struct {
	Auth      *service.AuthService
	Occupancy *service.OccupancyService
	Favorites *service.FavoriteService
	Ingest    *ingest.Handler
}

func SetupRouter(s Services, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())

	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, DELETE")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	authMw := middleware.NewAuthMiddleware(s.Auth)

	lotH := handler.NewParkingLotHandler(s.Occupancy, s.Ingest, log.Named("lots"))
	r.POST("/parking_lot", lotH.PostSnapshot)
	lotRoutes := r.Group("/parking_lots")
	{
		lotRoutes.GET("", lotH.ListParkingLots)
		lotRoutes.GET("/:id", lotH.GetParkingLotByID)
		lotRoutes.DELETE("/:id", authMw.Authenticate(), lotH.DeleteParkingLot)
	}

	authH := handler.NewAuthHandler(s.Auth, s.Favorites, log.Named("auth"))
	authRoutes := r.Group("/auth")
	{
		authRoutes.POST("/signup", authH.Signup)
		authRoutes.POST("/login", authH.Login)
		authRoutes.POST("/logout", authH.Logout)
	}
	r.GET("/users/me", authMw.Authenticate(), authH.Me)

	favH := handler.NewFavoriteHandler(s.Favorites, log.Named("favorites"))
	favRoutes := r.Group("/favorites")
	favRoutes.Use(authMw.Authenticate())
	{
		favRoutes.GET("", favH.List)
		favRoutes.POST("/:lot_id", favH.Add)
		favRoutes.DELETE("/:lot_id", favH.Remove)
	}
	return r
}
