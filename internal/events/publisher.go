package events

import (
	"fmt"

	"bidride/internal/config"
)

// New builds the publisher selected by cfg.Broker.
func New(cfg config.EventsConfig) (Publisher, error) {
	switch cfg.Broker {
	case "", config.BrokerNone:
		return Noop{}, nil
	case config.BrokerKafka:
		if len(cfg.KafkaBrokers) == 0 {
			return nil, fmt.Errorf("kafka broker selected without brokers")
		}
		return NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic), nil
	case config.BrokerAMQP:
		return NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	default:
		return nil, fmt.Errorf("unknown events broker %q", cfg.Broker)
	}
}
