package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rollout.io/rollout/internal/service"
)

type recordedResponse struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type exposureBatchRequest struct {
	Exposures []service.ExposureInput `json:"exposures" binding:"required"`
}

type conversionBatchRequest struct {
	Conversions []service.ConversionInput `json:"conversions" binding:"required"`
}

type batchResponse struct {
	Success bool `json:"success"`
	*service.BatchResult
}

// PostExposure handles POST /events/exposures.
func (s *Server) PostExposure(c *gin.Context) {
	var req service.ExposureInput
	if !bindJSON(c, &req) {
		return
	}
	if req.FlagKey == "" {
		_ = c.Error(requiredField("flagKey"))
		return
	}
	exp, err := s.recorder.RecordExposure(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, recordedResponse{ID: exp.ID, Success: true, Message: "exposure recorded"})
}

// PostExposureBatch handles POST /events/exposures/batch. Items succeed or
// fail independently.
func (s *Server) PostExposureBatch(c *gin.Context) {
	var req exposureBatchRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := s.recorder.RecordExposures(c.Request.Context(), req.Exposures)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, batchResponse{Success: true, BatchResult: res})
}

// PostConversion handles POST /events/conversions.
func (s *Server) PostConversion(c *gin.Context) {
	var req service.ConversionInput
	if !bindJSON(c, &req) {
		return
	}
	switch {
	case req.ExperimentID == "":
		_ = c.Error(requiredField("experimentId"))
		return
	case req.MetricKey == "":
		_ = c.Error(requiredField("metricKey"))
		return
	}
	conv, err := s.recorder.RecordConversion(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, recordedResponse{ID: conv.ID, Success: true, Message: "conversion recorded"})
}

// PostConversionBatch handles POST /events/conversions/batch.
func (s *Server) PostConversionBatch(c *gin.Context) {
	var req conversionBatchRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := s.recorder.RecordConversions(c.Request.Context(), req.Conversions)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, batchResponse{Success: true, BatchResult: res})
}
