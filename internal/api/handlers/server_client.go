package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"rollout.io/rollout/internal/domain"
	"rollout.io/rollout/internal/pkg/logger"
)

type decideRequest struct {
	ClientID        string         `json:"clientId" binding:"required"`
	FlagKeys        []string       `json:"flagKeys" binding:"required,min=1"`
	Context         map[string]any `json:"context"`
	Environment     string         `json:"environment"`
	RecordExposures bool           `json:"recordExposures"`
}

// PostDecide handles POST /client/decide.
func (s *Server) PostDecide(c *gin.Context) {
	var req decideRequest
	if !bindJSON(c, &req) {
		return
	}
	decisions := s.decider.Decide(c.Request.Context(), domain.DecisionRequest{
		ClientID:        req.ClientID,
		FlagKeys:        req.FlagKeys,
		Context:         req.Context,
		Environment:     req.Environment,
		RecordExposures: req.RecordExposures,
	})
	c.JSON(http.StatusOK, decisions)
}

// GetDecide handles GET /client/decide and decides every known flag. A
// context parameter that is not a JSON object is treated as empty.
func (s *Server) GetDecide(c *gin.Context) {
	clientID := c.Query("clientId")
	if clientID == "" {
		_ = c.Error(requiredField("clientId"))
		return
	}

	attrs := map[string]any{}
	if raw := c.Query("context"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &attrs); err != nil || attrs == nil {
			logger.Debug("ignoring unparsable decision context",
				zap.String("client_id", clientID),
				zap.Error(err),
			)
			attrs = map[string]any{}
		}
	}

	decisions, err := s.decider.DecideAll(c.Request.Context(), clientID, attrs, c.Query("environment"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, decisions)
}
