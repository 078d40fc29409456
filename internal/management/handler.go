package management

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"flattener/internal/logger"
	"flattener/pkg/errors"
	"flattener/pkg/models"
)

// ChangedByHeader identifies the operator behind a config change.
const ChangedByHeader = "X-Changed-By"

const defaultChangedBy = "api"

type BaseHandler struct {
	Service StageService
	Logger  logger.Logger
}

func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	h.Logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)

	status := errors.ToHTTPStatus(err)
	response := errors.ToErrorResponse(err)

	c.JSON(status, response)
}

type Handler struct {
	BaseHandler
	events EventPublisher
}

func NewHandler(service StageService, events EventPublisher, log logger.Logger) *Handler {
	return &Handler{
		BaseHandler: BaseHandler{
			Service: service,
			Logger:  log,
		},
		events: events,
	}
}

func (h *Handler) RegisterRoutes(router gin.IRouter) {
	v1 := router.Group("/api/v1")
	{
		tr := v1.Group("/transform")
		{
			tr.GET("/config", h.GetConfig)
			tr.PUT("/config", h.UpdateConfig)
			tr.GET("/definition", h.GetDefinition)
			tr.POST("/preview", h.Preview)
		}
	}
}

// GetConfig godoc
// @Summary      Get the active transform configuration
// @Description  Returns the stage name, config source, active field name, version and predicate
// @Tags         transform
// @Produce      json
// @Success      200  {object}  stage.Snapshot
// @Router       /transform/config [get]
func (h *Handler) GetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, h.Service.Snapshot())
}

// GetDefinition godoc
// @Summary      Describe the transform options
// @Description  Lists every option the transform accepts with type, importance and documentation
// @Tags         transform
// @Produce      json
// @Success      200  {array}   transform.ConfigKey
// @Router       /transform/definition [get]
func (h *Handler) GetDefinition(c *gin.Context) {
	c.JSON(http.StatusOK, h.Service.Snapshot().Definition)
}

// UpdateConfig godoc
// @Summary      Update the transform configuration
// @Description  Validates and stores new transform options, activates them and announces the change on the config topic. The body is the option map, e.g. {"field.name": "attributes"}.
// @Tags         transform
// @Accept       json
// @Produce      json
// @Param        X-Changed-By  header    string                  false  "Operator making the change"
// @Param        options       body      map[string]interface{}  true   "Transform options"
// @Success      200           {object}  UpdateConfigResponse
// @Failure      400           {object}  map[string]interface{}
// @Failure      500           {object}  map[string]interface{}
// @Router       /transform/config [put]
func (h *Handler) UpdateConfig(c *gin.Context) {
	var props map[string]interface{}
	if err := decodeJSON(c.Request.Body, &props); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	changedBy := c.GetHeader(ChangedByHeader)
	if changedBy == "" {
		changedBy = defaultChangedBy
	}

	ctx := c.Request.Context()
	cfg, err := h.Service.Update(ctx, props, changedBy)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	resp := UpdateConfigResponse{Config: cfg}
	if h.events != nil {
		if err := h.events.PublishTransformConfigEvent(ctx, cfg, models.ActionUpdate); err != nil {
			h.Logger.WarnwCtx(ctx, "Failed to publish config event", "stage", cfg.Stage, "error", err)
			resp.EventFailed = err.Error()
		} else {
			resp.EventSent = true
		}
	}

	h.Logger.InfowCtx(ctx, "Transform config updated",
		"stage", cfg.Stage,
		"field_name", cfg.FieldName,
		"version", cfg.Version,
		"changed_by", changedBy,
	)
	c.JSON(http.StatusOK, resp)
}

// Preview godoc
// @Summary      Preview the transform on one record
// @Description  Runs one record through the active configuration without publishing it or counting it in the stage metrics
// @Tags         transform
// @Accept       json
// @Produce      json
// @Param        record  body      PreviewRequest  true  "Record to transform"
// @Success      200     {object}  PreviewResponse
// @Failure      400     {object}  map[string]interface{}
// @Failure      422     {object}  map[string]interface{}
// @Router       /transform/preview [post]
func (h *Handler) Preview(c *gin.Context) {
	var req PreviewRequest
	if err := decodeJSON(c.Request.Body, &req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	out, outcome, err := h.Service.Preview(c.Request.Context(), req.Record())
	if err != nil {
		h.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, PreviewResponse{Outcome: outcome, Record: out})
}

// decodeJSON keeps numbers as json.Number so previews echo them exactly.
func decodeJSON(body io.Reader, v interface{}) error {
	raw, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return io.ErrUnexpectedEOF
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(v)
}
