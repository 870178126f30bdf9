// Package kafka wraps IBM/sarama: one Config struct, one
// BuildSaramaConfig translator, ClientInit-tagged errors on connect
// failure. It backs both the Message Extractor's poll loop (§4.D) and
// the Offset/Lag Inspector's short-lived admin clients (§4.F).
package kafka

import (
	"time"

	"github.com/IBM/sarama"
	"github.com/madcok-co/consumerd/internal/apierr"
)

// Config is the subset of a ConsumerSpec the kafka package needs to
// open a client, plus the process-wide polling knobs from §6.
type Config struct {
	Brokers  []string
	GroupID  string
	ClientID string
	Version  string

	PollTimeout    time.Duration
	SessionTimeout time.Duration
	AutoCommit     bool
}

// DefaultVersion is used when Version is empty or unparsable.
var DefaultVersion = sarama.V2_8_0_0

// BuildSaramaConfig translates Config into a *sarama.Config.
func BuildSaramaConfig(cfg Config) *sarama.Config {
	sc := sarama.NewConfig()

	version := DefaultVersion
	if cfg.Version != "" {
		if v, err := sarama.ParseKafkaVersion(cfg.Version); err == nil {
			version = v
		}
	}
	sc.Version = version

	if cfg.ClientID != "" {
		sc.ClientID = cfg.ClientID
	}

	sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	if cfg.SessionTimeout > 0 {
		sc.Consumer.Group.Session.Timeout = cfg.SessionTimeout
	}
	sc.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}

	sc.Consumer.Offsets.AutoCommit.Enable = cfg.AutoCommit
	if cfg.PollTimeout > 0 {
		sc.Consumer.MaxProcessingTime = cfg.PollTimeout
	}

	return sc
}

// NewConsumerGroup opens a sarama.ConsumerGroup, tagging any failure as
// ClientInit per §4.D's start() contract.
func NewConsumerGroup(cfg Config) (sarama.ConsumerGroup, error) {
	cg, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, BuildSaramaConfig(cfg))
	if err != nil {
		return nil, apierr.Wrap(apierr.ClientInit, "open kafka consumer group", err)
	}
	return cg, nil
}
