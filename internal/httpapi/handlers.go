package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"surveydialer/internal/audit"
	"surveydialer/internal/auth"
	"surveydialer/internal/download"
	"surveydialer/internal/reporting"
	"surveydialer/internal/tracker"

	"github.com/gin-gonic/gin"
)

// Handlers groups the operator API handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

// CallPlacer places one outbound call; the dialer satisfies it.
type CallPlacer interface {
	PlaceCall(ctx context.Context, toNumber string) (string, error)
}

// CampaignRunner dials a target list with pacing; the campaign satisfies it.
type CampaignRunner interface {
	Run(ctx context.Context, numbers []string) (int, error)
}

type Handlers struct {
	Auth      *auth.Manager
	Tracker   *tracker.Tracker
	Dialer    CallPlacer
	Campaign  CampaignRunner
	Downloads *download.Pool
	Reports   *reporting.Service
	Audit     *audit.Service
	Log       *slog.Logger
}

func (h Handlers) log() *slog.Logger {
	if h.Log != nil {
		return h.Log
	}
	return slog.Default()
}

// recordAction appends an operator audit event. Audit is best-effort; a
// failed append is logged and never blocks the response.
func (h Handlers) recordAction(c *gin.Context, log func(ctx context.Context, operatorID, role, ip string) error) {
	if h.Audit == nil {
		return
	}
	operatorID, _ := auth.OperatorID(c.Request.Context())
	role, _ := auth.Role(c.Request.Context())
	if err := log(c.Request.Context(), operatorID, role, c.ClientIP()); err != nil {
		h.log().Warn("audit append failed", "err", err)
	}
}

// --- Auth ---

type loginRequest struct {
	OperatorID string `json:"operator_id"`
	Role       string `json:"role"`
}

// Login issues a JWT token pair.
//
// NOTE: This is a skeleton-only endpoint. Real systems must validate credentials.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.OperatorID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "operator_id, role required"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.OperatorID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Call records ---

func (h Handlers) ListCalls(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"calls": h.Tracker.List()})
}

func (h Handlers) GetCall(c *gin.Context) {
	conversationUUID := c.Param("conversation_uuid")
	if conversationUUID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "conversation_uuid required"})
		return
	}
	rec, ok := h.Tracker.GetByConversation(conversationUUID)
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown conversation"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// --- Dialing ---

type dialRequest struct {
	ToNumber string `json:"to_number"`
}

// Dial places one branded outbound call synchronously and returns the
// correlation id. Branding plus create-call can take a few seconds.
func (h Handlers) Dial(c *gin.Context) {
	if h.Dialer == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "dialer not configured"})
		return
	}
	var req dialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.ToNumber == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to_number required"})
		return
	}

	correlationID, err := h.Dialer.PlaceCall(c.Request.Context(), req.ToNumber)
	h.recordAction(c, func(ctx context.Context, operatorID, role, ip string) error {
		return h.Audit.LogDial(ctx, operatorID, role, ip, req.ToNumber, correlationID)
	})
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{
			"error":          "call placement failed",
			"correlation_id": correlationID,
		})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"correlation_id": correlationID})
}

type campaignRequest struct {
	Numbers []string `json:"numbers"`
}

// StartCampaign launches a paced dial-out over the target list. The run
// takes minutes (70 to 90 seconds between calls), so it proceeds in the
// background and the request returns immediately.
func (h Handlers) StartCampaign(c *gin.Context) {
	if h.Campaign == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "campaign not configured"})
		return
	}
	var req campaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if len(req.Numbers) == 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "numbers required"})
		return
	}

	h.recordAction(c, func(ctx context.Context, operatorID, role, ip string) error {
		return h.Audit.LogCampaign(ctx, operatorID, role, ip, len(req.Numbers))
	})

	ctx := context.WithoutCancel(c.Request.Context())
	go func() {
		placed, err := h.Campaign.Run(ctx, req.Numbers)
		if err != nil {
			h.log().Error("campaign stopped early", "placed", placed, "err", err)
			return
		}
		h.log().Info("campaign finished", "placed", placed, "targets", len(req.Numbers))
	}()

	c.JSON(http.StatusAccepted, gin.H{"accepted": len(req.Numbers)})
}

// --- Downloads ---

// RetryDownloads sweeps the failed download list once.
func (h Handlers) RetryDownloads(c *gin.Context) {
	if h.Downloads == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "downloads not configured"})
		return
	}
	h.recordAction(c, func(ctx context.Context, operatorID, role, ip string) error {
		return h.Audit.LogRetrySweep(ctx, operatorID, role, ip)
	})
	recovered, abandoned := h.Downloads.RetryFailed(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"recovered": recovered,
		"abandoned": abandoned,
		"pending":   h.Downloads.FailedCount(),
	})
}

// --- Reporting ---

func (h Handlers) CallsSummary(c *gin.Context) {
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}
	c.JSON(http.StatusOK, h.Reports.CallsSummary())
}

func (h Handlers) SurveySummary(c *gin.Context) {
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}
	c.JSON(http.StatusOK, h.Reports.SurveySummary())
}
