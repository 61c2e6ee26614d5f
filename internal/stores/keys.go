// Package stores holds the message, rate and status stores that channels,
// routers and forwarding workers share on top of a store.Store.
package stores

import (
	jsoniter "github.com/json-iterator/go"

	"junction/internal/constants"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Bookkeeping fields of an outbound record. Every other field is an event
// keyed by its id.
const (
	fieldMessage        = "message"
	fieldEventURL       = "event_url"
	fieldEventAuthToken = "event_auth_token"
)

func isBookkeeping(field string) bool {
	return field == fieldMessage || field == fieldEventURL || field == fieldEventAuthToken
}

func inboundKey(channelID, messageID string) string {
	return channelID + ":" + constants.InboundMessagesSegment + ":" + messageID
}

func outboundKey(channelID, messageID string) string {
	return channelID + ":" + constants.OutboundMessagesSegment + ":" + messageID
}

func rateKey(channelID, label string) string {
	return channelID + ":" + constants.RatesSegment + ":" + label
}

func statusKey(channelID string) string {
	return channelID + ":" + constants.StatusSuffix
}
