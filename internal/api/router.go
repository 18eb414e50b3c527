package api

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// NewRouter маршруты локального HTTP API
func NewRouter(h *Handler, logger *logrus.Logger) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(Logger(logger))

	r.GET("/healthz", h.Health)

	v1 := r.Group("/api/v1")
	{
		session := v1.Group("/session")
		{
			session.GET("", h.GetSession)
			session.POST("/checkin", h.CheckIn)
			session.POST("/checkout", h.CheckOut)
		}

		v1.POST("/location", h.PostLocation)
		v1.POST("/geofence/events", h.PostGeofenceEvent)
	}

	return r
}
