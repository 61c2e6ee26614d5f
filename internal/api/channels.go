package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"junction/internal/channel"
	"junction/internal/sender"
	"junction/pkg/errors"
)

type CreateChannelRequest struct {
	channel.Properties
}

func (r CreateChannelRequest) validate() error {
	if r.Type == "" {
		return errors.ErrValidation.WithMessage("type: Missing data for required field.")
	}
	return nil
}

// ListChannels godoc
// @Summary      List channels
// @Description  Get the ids of every channel
// @Tags         channels
// @Produce      json
// @Success      200  {object}  Response{result=[]string}
// @Failure      500  {object}  ErrorResponse
// @Router       /channels [get]
func (h *Handler) ListChannels(c *gin.Context) {
	ids, err := h.Channels.List(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	respond(c, http.StatusOK, "channels retrieved", ids)
}

// CreateChannel godoc
// @Summary      Create a channel
// @Description  Create a channel and start its workers
// @Tags         channels
// @Accept       json
// @Produce      json
// @Param        channel  body      CreateChannelRequest  true  "Channel properties"
// @Success      201      {object}  Response{result=channel.StatusReport}
// @Failure      400      {object}  ErrorResponse
// @Failure      500      {object}  ErrorResponse
// @Router       /channels [post]
func (h *Handler) CreateChannel(c *gin.Context) {
	var req CreateChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}
	if err := req.validate(); err != nil {
		h.HandleError(c, err)
		return
	}

	ctx := c.Request.Context()
	ch, err := h.Channels.Create(ctx, "", req.Properties, true)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	report, err := h.Channels.Status(ctx, ch.ID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	respond(c, http.StatusCreated, "channel created", report)
}

// GetChannel godoc
// @Summary      Get a channel
// @Description  Get a channel's properties, health and message rates
// @Tags         channels
// @Produce      json
// @Param        channel_id  path      string  true  "Channel ID"
// @Success      200         {object}  Response{result=channel.StatusReport}
// @Failure      404         {object}  ErrorResponse
// @Failure      500         {object}  ErrorResponse
// @Router       /channels/{channel_id} [get]
func (h *Handler) GetChannel(c *gin.Context) {
	report, err := h.Channels.Status(c.Request.Context(), c.Param("channel_id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	respond(c, http.StatusOK, "channel found", report)
}

// UpdateChannel godoc
// @Summary      Update a channel
// @Description  Merge the given properties into the channel and restart the affected workers
// @Tags         channels
// @Accept       json
// @Produce      json
// @Param        channel_id  path      string                  true  "Channel ID"
// @Param        channel     body      map[string]interface{}  true  "Properties to change"
// @Success      200         {object}  Response{result=channel.StatusReport}
// @Failure      400         {object}  ErrorResponse
// @Failure      404         {object}  ErrorResponse
// @Failure      500         {object}  ErrorResponse
// @Router       /channels/{channel_id} [post]
func (h *Handler) UpdateChannel(c *gin.Context) {
	var patch map[string]interface{}
	if err := c.ShouldBindJSON(&patch); err != nil {
		h.bindError(c, err)
		return
	}

	ctx := c.Request.Context()
	id := c.Param("channel_id")
	if _, err := h.Channels.Update(ctx, id, patch); err != nil {
		h.HandleError(c, err)
		return
	}

	report, err := h.Channels.Status(ctx, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	respond(c, http.StatusOK, "channel updated", report)
}

// DeleteChannel godoc
// @Summary      Delete a channel
// @Description  Stop a channel and remove everything stored for it
// @Tags         channels
// @Produce      json
// @Param        channel_id  path      string  true  "Channel ID"
// @Success      200         {object}  Response
// @Failure      404         {object}  ErrorResponse
// @Failure      500         {object}  ErrorResponse
// @Router       /channels/{channel_id} [delete]
func (h *Handler) DeleteChannel(c *gin.Context) {
	if err := h.Channels.Delete(c.Request.Context(), c.Param("channel_id")); err != nil {
		h.HandleError(c, err)
		return
	}
	respond(c, http.StatusOK, "channel deleted", map[string]interface{}{})
}

// RestartChannel godoc
// @Summary      Restart a channel
// @Tags         channels
// @Produce      json
// @Param        channel_id  path      string  true  "Channel ID"
// @Success      200         {object}  Response
// @Failure      404         {object}  ErrorResponse
// @Failure      500         {object}  ErrorResponse
// @Router       /channels/{channel_id}/restart [post]
func (h *Handler) RestartChannel(c *gin.Context) {
	if err := h.Channels.Restart(c.Request.Context(), c.Param("channel_id")); err != nil {
		h.HandleError(c, err)
		return
	}
	respond(c, http.StatusOK, "channel restarted", map[string]interface{}{})
}

// GetChannelLogs godoc
// @Summary      Get channel logs
// @Description  Get the newest entries of the channel's transport log
// @Tags         channels
// @Produce      json
// @Param        channel_id  path      string  true   "Channel ID"
// @Param        n           query     int     false  "Number of entries"
// @Success      200         {object}  Response{result=[]map[string]interface{}}
// @Failure      400         {object}  ErrorResponse
// @Failure      404         {object}  ErrorResponse
// @Router       /channels/{channel_id}/logs [get]
func (h *Handler) GetChannelLogs(c *gin.Context) {
	n, err := logCount(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	logs, err := h.Channels.GetLogs(c.Request.Context(), c.Param("channel_id"), n)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	respond(c, http.StatusOK, "logs retrieved", logs)
}

// SendChannelMessage godoc
// @Summary      Send a message
// @Description  Send a message, or a reply when reply_to is given, over the channel
// @Tags         messages
// @Accept       json
// @Produce      json
// @Param        channel_id  path      string          true  "Channel ID"
// @Param        message     body      sender.Request  true  "Message"
// @Success      201         {object}  Response{result=models.APIMessage}
// @Failure      400         {object}  ErrorResponse
// @Failure      404         {object}  ErrorResponse
// @Failure      500         {object}  ErrorResponse
// @Router       /channels/{channel_id}/messages [post]
func (h *Handler) SendChannelMessage(c *gin.Context) {
	var req sender.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}

	msg, err := h.Channels.SendMessage(c.Request.Context(), c.Param("channel_id"), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	respond(c, http.StatusCreated, "message submitted", msg)
}

// GetChannelMessage godoc
// @Summary      Get message status
// @Description  Get the delivery events recorded for an outbound message
// @Tags         messages
// @Produce      json
// @Param        channel_id  path      string  true  "Channel ID"
// @Param        message_id  path      string  true  "Message ID"
// @Success      200         {object}  Response{result=channel.MessageStatus}
// @Failure      400         {object}  ErrorResponse
// @Failure      404         {object}  ErrorResponse
// @Router       /channels/{channel_id}/messages/{message_id} [get]
func (h *Handler) GetChannelMessage(c *gin.Context) {
	status, err := h.Channels.GetMessageStatus(c.Request.Context(), c.Param("channel_id"), c.Param("message_id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	respond(c, http.StatusOK, "message status", status)
}
