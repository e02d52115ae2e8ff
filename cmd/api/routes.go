package main

import (
	"surveydialer/internal/auth"
	"surveydialer/internal/httpapi"
	"surveydialer/internal/webhooks"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type routeDeps struct {
	auth     *auth.Manager
	webhooks webhooks.Handlers
	api      httpapi.Handlers
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, deps routeDeps) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Provider webhooks (public). The provider retries on non-2xx, so these
	// handlers always answer.
	wh := r.Group("/webhooks")
	{
		wh.POST("/event", deps.webhooks.Event)
		wh.POST("/dtmf_input", deps.webhooks.Input)
		wh.POST("/recording", deps.webhooks.Recording)
		wh.POST("/asr", deps.webhooks.ASR)
		wh.POST("/rtc_events", deps.webhooks.RTCEvents)
	}

	// Operator API. Disabled entirely without an auth manager.
	if deps.auth == nil {
		return
	}

	r.POST("/v1/auth/login", deps.api.Login)

	v1 := r.Group("/v1")
	v1.Use(auth.RequireAccessToken(deps.auth))
	{
		// Identity echo, handy for token debugging.
		v1.GET("/me", func(c *gin.Context) {
			operatorID, _ := auth.OperatorID(c.Request.Context())
			role, _ := auth.Role(c.Request.Context())
			c.JSON(200, gin.H{"operator_id": operatorID, "role": role})
		})

		v1.GET("/calls", deps.api.ListCalls)
		v1.GET("/calls/summary", deps.api.CallsSummary)
		v1.GET("/calls/:conversation_uuid", deps.api.GetCall)
		v1.GET("/surveys/summary", deps.api.SurveySummary)

		// Mutating endpoints need the operator role.
		op := v1.Group("", auth.RequireRole(auth.RoleOperator))
		{
			op.POST("/calls", deps.api.Dial)
			op.POST("/campaigns", deps.api.StartCampaign)
			op.POST("/downloads/retry", deps.api.RetryDownloads)
		}
	}
}
