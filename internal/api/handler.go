// Package api is the HTTP control and data plane: channel, router and
// destination management plus message sending.
package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"junction/internal/channel"
	"junction/internal/logger"
	"junction/internal/router"
	"junction/pkg/errors"
)

// Response is the envelope every endpoint answers with.
type Response struct {
	Status      int         `json:"status"`
	Code        string      `json:"code"`
	Description string      `json:"description"`
	Result      interface{} `json:"result"`
}

// ErrorResponse documents the failure envelope. Result carries the error
// details, when there are any.
type ErrorResponse struct {
	Status      int                    `json:"status"`
	Code        string                 `json:"code"`
	Description string                 `json:"description"`
	Result      map[string]interface{} `json:"result,omitempty"`
}

type BaseHandler struct {
	Logger logger.Logger
}

func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	status := errors.ToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.Logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)
	} else {
		h.Logger.InfowCtx(c.Request.Context(), "Request rejected", "error", err, "path", c.Request.URL.Path)
	}

	c.JSON(status, errors.ToErrorResponse(err))
}

func (h *BaseHandler) bindError(c *gin.Context, err error) {
	h.HandleError(c, errors.ErrValidation.WithMessage("invalid request body: %v", err))
}

func respond(c *gin.Context, status int, description string, result interface{}) {
	c.JSON(status, Response{
		Status:      status,
		Code:        http.StatusText(status),
		Description: description,
		Result:      result,
	})
}

// logCount reads the "n" query parameter. Without it every retained entry
// is returned.
func logCount(c *gin.Context) (int, error) {
	raw, ok := c.GetQuery("n")
	if !ok || raw == "" {
		return logger.AllLogs, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.ErrValidation.WithMessage("n: Not a valid non-negative integer.")
	}
	return n, nil
}

type Handler struct {
	BaseHandler
	Channels *channel.Service
	Routers  *router.Service
}

func NewHandler(channels *channel.Service, routers *router.Service, log logger.Logger) *Handler {
	return &Handler{
		BaseHandler: BaseHandler{Logger: log},
		Channels:    channels,
		Routers:     routers,
	}
}

func (h *Handler) RegisterRoutes(engine *gin.Engine) {
	v1 := engine.Group("/api/v1")
	{
		channels := v1.Group("/channels")
		{
			channels.GET("", h.ListChannels)
			channels.POST("", h.CreateChannel)
			channels.GET("/:channel_id", h.GetChannel)
			channels.POST("/:channel_id", h.UpdateChannel)
			channels.DELETE("/:channel_id", h.DeleteChannel)
			channels.POST("/:channel_id/restart", h.RestartChannel)
			channels.GET("/:channel_id/logs", h.GetChannelLogs)
			channels.POST("/:channel_id/messages", h.SendChannelMessage)
			channels.GET("/:channel_id/messages/:message_id", h.GetChannelMessage)
		}

		routers := v1.Group("/routers")
		{
			routers.GET("", h.ListRouters)
			routers.POST("", h.CreateRouter)
			routers.GET("/:router_id", h.GetRouter)
			routers.PUT("/:router_id", h.ReplaceRouter)
			routers.PATCH("/:router_id", h.UpdateRouter)
			routers.DELETE("/:router_id", h.DeleteRouter)
			routers.GET("/:router_id/logs", h.GetRouterLogs)

			dests := routers.Group("/:router_id/destinations")
			{
				dests.GET("", h.ListDestinations)
				dests.POST("", h.CreateDestination)
				dests.GET("/:destination_id", h.GetDestination)
				dests.PUT("/:destination_id", h.ReplaceDestination)
				dests.PATCH("/:destination_id", h.UpdateDestination)
				dests.DELETE("/:destination_id", h.DeleteDestination)
				dests.POST("/:destination_id/messages", h.SendDestinationMessage)
				dests.GET("/:destination_id/messages/:message_id", h.GetDestinationMessage)
			}
		}
	}
}
