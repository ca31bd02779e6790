package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"deepresearch/internal/config"
	"deepresearch/internal/logging"
	"deepresearch/internal/server/ports"
)

// APIHandler serves the research task endpoints.
type APIHandler struct {
	service      ports.ResearchService
	logger       logging.Logger
	maxBodyBytes int64
}

// NewAPIHandler creates a handler backed by service. maxBodyBytes <= 0 uses
// the configured default.
func NewAPIHandler(service ports.ResearchService, maxBodyBytes int64) *APIHandler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = config.DefaultMaxBodyBytes
	}
	return &APIHandler{
		service:      service,
		logger:       logging.NewComponentLogger("APIHandler"),
		maxBodyBytes: maxBodyBytes,
	}
}

// CreateResearchRequest is the body of POST /api/research.
type CreateResearchRequest struct {
	Goal string             `json:"goal"`
	Mode ports.ResearchMode `json:"mode,omitempty"`
}

// CreateResearchResponse carries the id of the freshly created task.
type CreateResearchResponse struct {
	TaskID string `json:"taskId"`
}

// ListResearchResponse wraps the task summaries.
type ListResearchResponse struct {
	Tasks []ports.TaskSummary `json:"tasks"`
}

// HandleCreateResearch handles POST /api/research. It answers 202 as soon as
// the task is stored; the pipeline runs in the background.
func (h *APIHandler) HandleCreateResearch(c *gin.Context) {
	req, status, err := h.decodeCreateRequest(c)
	if err != nil {
		message := ports.ErrInvalidRequest.Error()
		if status == http.StatusRequestEntityTooLarge {
			message = "request body too large"
		}
		writeJSONError(c, h.logger, status, message, err)
		return
	}

	task, err := h.service.CreateTask(c.Request.Context(), req.Goal, req.Mode)
	if err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusAccepted, CreateResearchResponse{TaskID: task.ID})
}

func (h *APIHandler) decodeCreateRequest(c *gin.Context) (CreateResearchRequest, int, error) {
	body := http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes)
	defer body.Close()

	var req CreateResearchRequest
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		var maxBytesErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return req, http.StatusBadRequest, errors.New("request body is empty")
		case errors.As(err, &syntaxErr):
			return req, http.StatusBadRequest, fmt.Errorf("invalid JSON at position %d", syntaxErr.Offset)
		case errors.As(err, &typeErr):
			return req, http.StatusBadRequest, fmt.Errorf("invalid value for field '%s'", typeErr.Field)
		case errors.As(err, &maxBytesErr):
			return req, http.StatusRequestEntityTooLarge, fmt.Errorf("limit is %d bytes", maxBytesErr.Limit)
		default:
			return req, http.StatusBadRequest, err
		}
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return req, http.StatusBadRequest, errors.New("request body must contain a single JSON object")
	}
	return req, http.StatusOK, nil
}

// HandleGetResearch handles GET /api/research/:id.
func (h *APIHandler) HandleGetResearch(c *gin.Context) {
	taskID, ok := h.taskIDParam(c)
	if !ok {
		return
	}
	task, err := h.service.GetTask(c.Request.Context(), taskID)
	if err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// HandleListResearch handles GET /api/research.
func (h *APIHandler) HandleListResearch(c *gin.Context) {
	tasks, err := h.service.ListTasks(c.Request.Context())
	if err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	if tasks == nil {
		tasks = []ports.TaskSummary{}
	}
	c.JSON(http.StatusOK, ListResearchResponse{Tasks: tasks})
}

// HandleDeleteResearch handles DELETE /api/research/:id.
func (h *APIHandler) HandleDeleteResearch(c *gin.Context) {
	taskID, ok := h.taskIDParam(c)
	if !ok {
		return
	}
	if err := h.service.DeleteTask(c.Request.Context(), taskID); err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleCancelResearch handles POST /api/research/:id/cancel.
func (h *APIHandler) HandleCancelResearch(c *gin.Context) {
	taskID, ok := h.taskIDParam(c)
	if !ok {
		return
	}
	if err := h.service.CancelTask(c.Request.Context(), taskID); err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"taskId": taskID, "status": "cancelling"})
}

func (h *APIHandler) taskIDParam(c *gin.Context) (string, bool) {
	taskID := c.Param("id")
	if err := validateTaskID(taskID); err != nil {
		writeJSONError(c, h.logger, http.StatusBadRequest, ports.ErrInvalidRequest.Error(), err)
		return "", false
	}
	return taskID, true
}
