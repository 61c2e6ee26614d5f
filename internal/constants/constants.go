package constants

import "time"

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	DefaultHTTPTimeout = 10 * time.Second
	HealthCheckTimeout = 5 * time.Second
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	DefaultInboundMessageTTL  = 60 * 10
	DefaultOutboundMessageTTL = 60 * 60 * 24 * 2
	DefaultMetricWindow       = 10.0
	DefaultMaxLogs            = 100
)

const (
	DefaultExchange = "vumi"
)

const (
	HTTPStatusOKMin = 200
	HTTPStatusOKMax = 300
)

// Persisted key layout.
const (
	ChannelsSetKey = "channels"
	RoutersSetKey  = "routers"

	ChannelPropertiesSuffix  = "properties"
	RouterConfigSuffix       = "config"
	RouterDestinationsSuffix = "destinations"
	InboundMessagesSegment   = "inbound_messages"
	OutboundMessagesSegment  = "outbound_messages"
	StatusSuffix             = "status"
	RatesSegment             = "rates"
)

// Routing key suffixes appended to a connector name.
const (
	RoutingInbound  = "inbound"
	RoutingOutbound = "outbound"
	RoutingEvent    = "event"
	RoutingStatus   = "status"
)

// Worker kinds understood by the supervisor.
const (
	WorkerKindApplication = "application"
	WorkerKindStatus      = "status"
	WorkerKindRouter      = "router"
)

const (
	ApplicationWorkerSuffix = "application"
	StatusWorkerSuffix      = "status"
)

const (
	RouterTypeFromAddress = "from_address"
	RouterTypeCEL         = "cel"
)

const (
	TransportTelnet = "telnet"
)
