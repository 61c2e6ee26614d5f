package broker

import (
	"fmt"

	"junction/internal/config"
	"junction/internal/logger"
)

func NewBroker(cfg config.BrokerConfig, log logger.Logger) (Broker, error) {
	switch cfg.Type {
	case "amqp":
		return NewAMQPBroker(cfg.AMQP, log)
	case "memory", "":
		return NewMemoryBroker(log), nil
	default:
		return nil, fmt.Errorf("unknown broker type: %s", cfg.Type)
	}
}
