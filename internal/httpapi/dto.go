package httpapi

import "github.com/madcok-co/consumerd/internal/spec"

// createConsumerRequest is the POST /consumers/ body (§6).
type createConsumerRequest struct {
	BrokerHost string                 `json:"broker_host" validate:"required"`
	BrokerPort int                    `json:"broker_port" validate:"required,gt=0,lte=65535"`
	Topic      string                 `json:"topic" validate:"required"`
	GroupID    string                 `json:"group_id" validate:"required"`
	ClientID   string                 `json:"client_id"`
	AutoStart  bool                   `json:"auto_start"`
	Processors []spec.ProcessorConfig `json:"processors"`
}

func (r createConsumerRequest) toSpec() *spec.ConsumerSpec {
	return &spec.ConsumerSpec{
		BrokerHost: r.BrokerHost,
		BrokerPort: r.BrokerPort,
		Topic:      r.Topic,
		GroupID:    r.GroupID,
		ClientID:   r.ClientID,
		AutoStart:  r.AutoStart,
		Processors: r.Processors,
	}
}

// updateConsumerRequest is the PUT /consumers/{id} body — any field
// omitted (nil) is left unchanged (§6).
type updateConsumerRequest struct {
	BrokerHost *string                `json:"broker_host"`
	BrokerPort *int                   `json:"broker_port"`
	Topic      *string                `json:"topic"`
	GroupID    *string                `json:"group_id"`
	ClientID   *string                `json:"client_id"`
	Processors []spec.ProcessorConfig `json:"processors,omitempty"`
}

func (r updateConsumerRequest) toPatch() spec.Patch {
	return spec.Patch{
		BrokerHost: r.BrokerHost,
		BrokerPort: r.BrokerPort,
		Topic:      r.Topic,
		GroupID:    r.GroupID,
		ClientID:   r.ClientID,
		Processors: r.Processors,
	}
}

// statusResponse is the body of start/stop responses (§6).
type statusResponse struct {
	ID     string      `json:"id"`
	Status spec.Status `json:"status"`
}

// consumerGroupsResponse is the GET /consumergroups/ body (§6).
type consumerGroupsResponse struct {
	ConsumerGroups []string `json:"consumer_groups"`
}

// offsetEntry is one row of the GET /consumergroups/{group_id}/offsets body.
type offsetEntry struct {
	Topic         string `json:"topic"`
	Partition     int32  `json:"partition"`
	CurrentOffset int64  `json:"current_offset"`
	Metadata      string `json:"metadata"`
}

type groupOffsetsResponse struct {
	GroupID string        `json:"group_id"`
	Offsets []offsetEntry `json:"offsets"`
}
