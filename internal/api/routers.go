package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"junction/internal/router"
	"junction/internal/sender"
	"junction/pkg/errors"
)

type RouterRequest struct {
	router.Properties
}

func (r RouterRequest) validate() error {
	if r.Type == "" {
		return errors.ErrValidation.WithMessage("type: Missing data for required field.")
	}
	if r.Config == nil {
		return errors.ErrValidation.WithMessage("config: Missing data for required field.")
	}
	return nil
}

type DestinationRequest struct {
	router.DestinationProperties
}

func (r DestinationRequest) validate() error {
	if r.Config == nil {
		return errors.ErrValidation.WithMessage("config: Missing data for required field.")
	}
	return nil
}

// ListRouters godoc
// @Summary      List routers
// @Tags         routers
// @Produce      json
// @Success      200  {object}  Response{result=[]string}
// @Failure      500  {object}  ErrorResponse
// @Router       /routers [get]
func (h *Handler) ListRouters(c *gin.Context) {
	ids, err := h.Routers.List(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	respond(c, http.StatusOK, "routers retrieved", ids)
}

// CreateRouter godoc
// @Summary      Create a router
// @Description  Create a router on a channel and start it
// @Tags         routers
// @Accept       json
// @Produce      json
// @Param        router  body      RouterRequest  true  "Router properties"
// @Success      201     {object}  Response{result=router.Report}
// @Failure      400     {object}  ErrorResponse
// @Failure      500     {object}  ErrorResponse
// @Router       /routers [post]
func (h *Handler) CreateRouter(c *gin.Context) {
	var req RouterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}
	if err := req.validate(); err != nil {
		h.HandleError(c, err)
		return
	}

	ctx := c.Request.Context()
	r, err := h.Routers.Create(ctx, "", req.Properties)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	report, err := h.Routers.Report(ctx, r.ID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	respond(c, http.StatusCreated, "router created", report)
}

// GetRouter godoc
// @Summary      Get a router
// @Tags         routers
// @Produce      json
// @Param        router_id  path      string  true  "Router ID"
// @Success      200        {object}  Response{result=router.Report}
// @Failure      404        {object}  ErrorResponse
// @Router       /routers/{router_id} [get]
func (h *Handler) GetRouter(c *gin.Context) {
	report, err := h.Routers.Report(c.Request.Context(), c.Param("router_id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	respond(c, http.StatusOK, "router found", report)
}

// ReplaceRouter godoc
// @Summary      Replace a router
// @Description  Replace the router's properties. Destinations are kept.
// @Tags         routers
// @Accept       json
// @Produce      json
// @Param        router_id  path      string         true  "Router ID"
// @Param        router     body      RouterRequest  true  "Router properties"
// @Success      200        {object}  Response{result=router.Report}
// @Failure      400        {object}  ErrorResponse
// @Failure      404        {object}  ErrorResponse
// @Router       /routers/{router_id} [put]
func (h *Handler) ReplaceRouter(c *gin.Context) {
	var req RouterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}
	if err := req.validate(); err != nil {
		h.HandleError(c, err)
		return
	}

	ctx := c.Request.Context()
	id := c.Param("router_id")
	if _, err := h.Routers.Replace(ctx, id, req.Properties); err != nil {
		h.HandleError(c, err)
		return
	}
	h.respondRouter(c, id, "router updated")
}

// UpdateRouter godoc
// @Summary      Update a router
// @Description  Merge the given fields into the router's properties
// @Tags         routers
// @Accept       json
// @Produce      json
// @Param        router_id  path      string                  true  "Router ID"
// @Param        router     body      map[string]interface{}  true  "Fields to change"
// @Success      200        {object}  Response{result=router.Report}
// @Failure      400        {object}  ErrorResponse
// @Failure      404        {object}  ErrorResponse
// @Router       /routers/{router_id} [patch]
func (h *Handler) UpdateRouter(c *gin.Context) {
	var patch map[string]interface{}
	if err := c.ShouldBindJSON(&patch); err != nil {
		h.bindError(c, err)
		return
	}

	id := c.Param("router_id")
	if _, err := h.Routers.Update(c.Request.Context(), id, patch); err != nil {
		h.HandleError(c, err)
		return
	}
	h.respondRouter(c, id, "router updated")
}

func (h *Handler) respondRouter(c *gin.Context, id, description string) {
	report, err := h.Routers.Report(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	respond(c, http.StatusOK, description, report)
}

// DeleteRouter godoc
// @Summary      Delete a router
// @Description  Stop a router and remove it with all of its destinations
// @Tags         routers
// @Produce      json
// @Param        router_id  path      string  true  "Router ID"
// @Success      200        {object}  Response
// @Failure      404        {object}  ErrorResponse
// @Router       /routers/{router_id} [delete]
func (h *Handler) DeleteRouter(c *gin.Context) {
	if err := h.Routers.Delete(c.Request.Context(), c.Param("router_id")); err != nil {
		h.HandleError(c, err)
		return
	}
	respond(c, http.StatusOK, "router deleted", map[string]interface{}{})
}

// GetRouterLogs godoc
// @Summary      Get router logs
// @Tags         routers
// @Produce      json
// @Param        router_id  path      string  true   "Router ID"
// @Param        n          query     int     false  "Number of entries"
// @Success      200        {object}  Response{result=[]map[string]interface{}}
// @Failure      400        {object}  ErrorResponse
// @Failure      404        {object}  ErrorResponse
// @Router       /routers/{router_id}/logs [get]
func (h *Handler) GetRouterLogs(c *gin.Context) {
	n, err := logCount(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	logs, err := h.Routers.GetLogs(c.Request.Context(), c.Param("router_id"), n)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	respond(c, http.StatusOK, "logs retrieved", logs)
}

// ListDestinations godoc
// @Summary      List destinations
// @Tags         destinations
// @Produce      json
// @Param        router_id  path      string  true  "Router ID"
// @Success      200        {object}  Response{result=[]router.Destination}
// @Failure      404        {object}  ErrorResponse
// @Router       /routers/{router_id}/destinations [get]
func (h *Handler) ListDestinations(c *gin.Context) {
	dests, err := h.Routers.ListDestinations(c.Request.Context(), c.Param("router_id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	respond(c, http.StatusOK, "destinations retrieved", dests)
}

// CreateDestination godoc
// @Summary      Create a destination
// @Tags         destinations
// @Accept       json
// @Produce      json
// @Param        router_id    path      string              true  "Router ID"
// @Param        destination  body      DestinationRequest  true  "Destination properties"
// @Success      201          {object}  Response{result=router.Destination}
// @Failure      400          {object}  ErrorResponse
// @Failure      404          {object}  ErrorResponse
// @Router       /routers/{router_id}/destinations [post]
func (h *Handler) CreateDestination(c *gin.Context) {
	var req DestinationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}
	if err := req.validate(); err != nil {
		h.HandleError(c, err)
		return
	}

	dest, err := h.Routers.CreateDestination(c.Request.Context(), c.Param("router_id"), "", req.DestinationProperties)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	respond(c, http.StatusCreated, "destination created", dest)
}

// GetDestination godoc
// @Summary      Get a destination
// @Tags         destinations
// @Produce      json
// @Param        router_id       path      string  true  "Router ID"
// @Param        destination_id  path      string  true  "Destination ID"
// @Success      200             {object}  Response{result=router.Destination}
// @Failure      404             {object}  ErrorResponse
// @Router       /routers/{router_id}/destinations/{destination_id} [get]
func (h *Handler) GetDestination(c *gin.Context) {
	dest, err := h.Routers.GetDestination(c.Request.Context(), c.Param("router_id"), c.Param("destination_id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	respond(c, http.StatusOK, "destination found", dest)
}

// ReplaceDestination godoc
// @Summary      Replace a destination
// @Tags         destinations
// @Accept       json
// @Produce      json
// @Param        router_id       path      string              true  "Router ID"
// @Param        destination_id  path      string              true  "Destination ID"
// @Param        destination     body      DestinationRequest  true  "Destination properties"
// @Success      200             {object}  Response{result=router.Destination}
// @Failure      400             {object}  ErrorResponse
// @Failure      404             {object}  ErrorResponse
// @Router       /routers/{router_id}/destinations/{destination_id} [put]
func (h *Handler) ReplaceDestination(c *gin.Context) {
	var req DestinationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}
	if err := req.validate(); err != nil {
		h.HandleError(c, err)
		return
	}

	dest, err := h.Routers.ReplaceDestination(c.Request.Context(), c.Param("router_id"), c.Param("destination_id"), req.DestinationProperties)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	respond(c, http.StatusOK, "destination updated", dest)
}

// UpdateDestination godoc
// @Summary      Update a destination
// @Tags         destinations
// @Accept       json
// @Produce      json
// @Param        router_id       path      string                  true  "Router ID"
// @Param        destination_id  path      string                  true  "Destination ID"
// @Param        destination     body      map[string]interface{}  true  "Fields to change"
// @Success      200             {object}  Response{result=router.Destination}
// @Failure      400             {object}  ErrorResponse
// @Failure      404             {object}  ErrorResponse
// @Router       /routers/{router_id}/destinations/{destination_id} [patch]
func (h *Handler) UpdateDestination(c *gin.Context) {
	var patch map[string]interface{}
	if err := c.ShouldBindJSON(&patch); err != nil {
		h.bindError(c, err)
		return
	}

	dest, err := h.Routers.UpdateDestination(c.Request.Context(), c.Param("router_id"), c.Param("destination_id"), patch)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	respond(c, http.StatusOK, "destination updated", dest)
}

// DeleteDestination godoc
// @Summary      Delete a destination
// @Tags         destinations
// @Produce      json
// @Param        router_id       path      string  true  "Router ID"
// @Param        destination_id  path      string  true  "Destination ID"
// @Success      200             {object}  Response
// @Failure      404             {object}  ErrorResponse
// @Router       /routers/{router_id}/destinations/{destination_id} [delete]
func (h *Handler) DeleteDestination(c *gin.Context) {
	if err := h.Routers.DeleteDestination(c.Request.Context(), c.Param("router_id"), c.Param("destination_id")); err != nil {
		h.HandleError(c, err)
		return
	}
	respond(c, http.StatusOK, "destination deleted", map[string]interface{}{})
}

// SendDestinationMessage godoc
// @Summary      Send a message from a destination
// @Description  Send a message, or a reply when reply_to is given, through the router's channel
// @Tags         messages
// @Accept       json
// @Produce      json
// @Param        router_id       path      string          true  "Router ID"
// @Param        destination_id  path      string          true  "Destination ID"
// @Param        message         body      sender.Request  true  "Message"
// @Success      201             {object}  Response{result=models.APIMessage}
// @Failure      400             {object}  ErrorResponse
// @Failure      404             {object}  ErrorResponse
// @Router       /routers/{router_id}/destinations/{destination_id}/messages [post]
func (h *Handler) SendDestinationMessage(c *gin.Context) {
	var req sender.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}

	msg, err := h.Routers.SendDestinationMessage(c.Request.Context(), c.Param("router_id"), c.Param("destination_id"), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	respond(c, http.StatusCreated, "message submitted", msg)
}

// GetDestinationMessage godoc
// @Summary      Get destination message status
// @Tags         messages
// @Produce      json
// @Param        router_id       path      string  true  "Router ID"
// @Param        destination_id  path      string  true  "Destination ID"
// @Param        message_id      path      string  true  "Message ID"
// @Success      200             {object}  Response{result=channel.MessageStatus}
// @Failure      400             {object}  ErrorResponse
// @Failure      404             {object}  ErrorResponse
// @Router       /routers/{router_id}/destinations/{destination_id}/messages/{message_id} [get]
func (h *Handler) GetDestinationMessage(c *gin.Context) {
	status, err := h.Routers.GetDestinationMessageStatus(c.Request.Context(), c.Param("router_id"), c.Param("destination_id"), c.Param("message_id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	respond(c, http.StatusOK, "message status", status)
}
