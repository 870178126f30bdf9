package kafka

import (
	"github.com/IBM/sarama"
	"github.com/madcok-co/consumerd/internal/apierr"
)

// AdminHandle bundles the two sarama handles the Inspector needs: a
// Client for partition metadata and GetOffset, and a ClusterAdmin for
// ListConsumerGroups/ListConsumerGroupOffsets. Both are short-lived —
// opened per inspector call and closed when it returns, per §4.F.
type AdminHandle struct {
	Client sarama.Client
	Admin  sarama.ClusterAdmin
}

// NewAdminHandle opens a client and cluster admin against the same
// broker list. Any dial failure is tagged ClientInit so the inspector
// can surface it without retry loops of its own.
func NewAdminHandle(cfg Config) (*AdminHandle, error) {
	saramaCfg := BuildSaramaConfig(cfg)

	client, err := sarama.NewClient(cfg.Brokers, saramaCfg)
	if err != nil {
		return nil, apierr.Wrap(apierr.ClientInit, "open kafka client", err)
	}

	admin, err := sarama.NewClusterAdminFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, apierr.Wrap(apierr.ClientInit, "open kafka cluster admin", err)
	}

	return &AdminHandle{Client: client, Admin: admin}, nil
}

// Close releases both handles, admin first since it wraps the client.
func (h *AdminHandle) Close() error {
	_ = h.Admin.Close()
	return h.Client.Close()
}

// Partitions returns the partition IDs for a topic.
func (h *AdminHandle) Partitions(topic string) ([]int32, error) {
	parts, err := h.Client.Partitions(topic)
	if err != nil {
		return nil, apierr.Wrap(apierr.NotFound, "list partitions for "+topic, err)
	}
	return parts, nil
}

// EndOffset returns the log-end offset (high watermark) for a partition.
func (h *AdminHandle) EndOffset(topic string, partition int32) (int64, error) {
	offset, err := h.Client.GetOffset(topic, partition, sarama.OffsetNewest)
	if err != nil {
		return 0, apierr.Wrap(apierr.StoreIO, "get end offset", err)
	}
	return offset, nil
}

// ListGroups returns every consumer group known to the cluster.
func (h *AdminHandle) ListGroups() ([]string, error) {
	groups, err := h.Admin.ListConsumerGroups()
	if err != nil {
		return nil, apierr.Wrap(apierr.StoreIO, "list consumer groups", err)
	}
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	return names, nil
}

// CommittedOffsets returns the committed offset per partition for a
// group's subscription to topic.
func (h *AdminHandle) CommittedOffsets(group, topic string, partitions []int32) (map[int32]int64, error) {
	resp, err := h.Admin.ListConsumerGroupOffsets(group, map[string][]int32{topic: partitions})
	if err != nil {
		return nil, apierr.Wrap(apierr.StoreIO, "list consumer group offsets", err)
	}

	out := make(map[int32]int64, len(partitions))
	block := resp.Blocks[topic]
	for _, p := range partitions {
		if block == nil {
			out[p] = -1
			continue
		}
		if ob, ok := block[p]; ok {
			out[p] = ob.Offset
		} else {
			out[p] = -1
		}
	}
	return out, nil
}

// AllCommittedOffsets returns committed offsets across every topic the
// group has committed to, per §4.F's committed_offsets(group_id)
// contract. Passing a nil topic filter to ListConsumerGroupOffsets
// asks the broker for every topic/partition assigned to the group.
func (h *AdminHandle) AllCommittedOffsets(group string) (map[string]map[int32]int64, error) {
	resp, err := h.Admin.ListConsumerGroupOffsets(group, nil)
	if err != nil {
		return nil, apierr.Wrap(apierr.StoreIO, "list consumer group offsets", err)
	}

	out := make(map[string]map[int32]int64, len(resp.Blocks))
	for topic, partitions := range resp.Blocks {
		parts := make(map[int32]int64, len(partitions))
		for p, ob := range partitions {
			parts[p] = ob.Offset
		}
		out[topic] = parts
	}
	return out, nil
}
