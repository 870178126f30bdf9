// Package inspector implements the Offset/Lag Inspector (§4.F):
// on-demand, read-only admin queries using short-lived clients that
// never touch a live Extractor. It is orthogonal to the Supervisor by
// design (§2's data-flow note) — it opens its own connections per call.
package inspector

import (
	"context"
	"sort"
	"time"

	"github.com/madcok-co/consumerd/internal/apierr"
	"github.com/madcok-co/consumerd/internal/cache"
	"github.com/madcok-co/consumerd/internal/kafka"
	"github.com/madcok-co/consumerd/internal/spec"
)

// Scope selects the source for list_groups.
type Scope string

const (
	ScopeKnown Scope = "known"
	ScopeAll   Scope = "all"
)

const knownGroupsCacheKey = "known_groups"

// Dialer abstracts kafka.NewAdminHandle so tests can substitute a fake
// admin client without a live broker.
type Dialer func(cfg kafka.Config) (AdminHandle, error)

// AdminHandle is the narrow slice of kafka.AdminHandle the inspector
// depends on.
type AdminHandle interface {
	Close() error
	Partitions(topic string) ([]int32, error)
	EndOffset(topic string, partition int32) (int64, error)
	ListGroups() ([]string, error)
	CommittedOffsets(group, topic string, partitions []int32) (map[int32]int64, error)
	AllCommittedOffsets(group string) (map[string]map[int32]int64, error)
}

// PartitionOffsets maps partition to committed offset, per §4.F.
type PartitionOffsets map[int32]int64

// PartitionLag is one partition's lag computation result, per §8
// invariant 6 and the Lag glossary definition.
type PartitionLag struct {
	CurrentOffset int64 `json:"current_offset"`
	LogEndOffset  int64 `json:"log_end_offset"`
	Lag           int64 `json:"lag"`
}

// Inspector answers on-demand offset/lag queries. DefaultBrokers is
// used when a call does not supply bootstrap_servers (§6).
type Inspector struct {
	store          spec.Store
	dial           Dialer
	cacheDriver    cache.Cache
	cacheTTL       time.Duration
	defaultBrokers []string
	timeout        time.Duration
}

// New builds an Inspector. dial may be nil to use the real
// sarama-backed admin dialer.
func New(store spec.Store, dial Dialer, cacheDriver cache.Cache, defaultBrokers []string, timeout time.Duration) *Inspector {
	if dial == nil {
		dial = func(cfg kafka.Config) (AdminHandle, error) { return kafka.NewAdminHandle(cfg) }
	}
	return &Inspector{
		store:          store,
		dial:           dial,
		cacheDriver:    cacheDriver,
		cacheTTL:       30 * time.Second,
		defaultBrokers: defaultBrokers,
		timeout:        timeout,
	}
}

// ListGroups implements list_groups(scope) (§4.F). known returns
// distinct group_ids from the Store's current specs; all additionally
// queries the cluster and deduplicates against known (§13's Open
// Question resolution).
func (i *Inspector) ListGroups(ctx context.Context, scope Scope, bootstrapServers []string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	known, err := i.knownGroups(ctx)
	if err != nil {
		return nil, err
	}
	if scope == ScopeKnown {
		return known, nil
	}

	handle, err := i.open(bootstrapServers)
	if err != nil {
		return nil, err
	}
	defer handle.Close()

	var all []string
	done := make(chan struct{})
	var queryErr error
	go func() {
		defer close(done)
		all, queryErr = handle.ListGroups()
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return nil, apierr.New(apierr.TimedOut, "list_groups exceeded inspector timeout")
	}
	if queryErr != nil {
		return nil, queryErr
	}

	seen := make(map[string]bool, len(known))
	merged := make([]string, 0, len(known)+len(all))
	for _, g := range known {
		if !seen[g] {
			seen[g] = true
			merged = append(merged, g)
		}
	}
	for _, g := range all {
		if !seen[g] {
			seen[g] = true
			merged = append(merged, g)
		}
	}
	sort.Strings(merged)
	return merged, nil
}

// knownGroups returns the deduplicated group_ids from current specs,
// consulting the cache first (a pure optimization, never the source
// of truth — a miss always falls back to the Store).
func (i *Inspector) knownGroups(ctx context.Context) ([]string, error) {
	if i.cacheDriver != nil {
		var cached []string
		if err := i.cacheDriver.Get(ctx, knownGroupsCacheKey, &cached); err == nil {
			return cached, nil
		}
	}

	specs, err := i.store.List(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	groups := make([]string, 0, len(specs))
	for _, s := range specs {
		if !seen[s.GroupID] {
			seen[s.GroupID] = true
			groups = append(groups, s.GroupID)
		}
	}
	sort.Strings(groups)

	if i.cacheDriver != nil {
		_ = i.cacheDriver.Set(ctx, knownGroupsCacheKey, groups, i.cacheTTL)
	}
	return groups, nil
}

// CommittedOffsets implements committed_offsets(group_id) (§4.F):
// returns {topic → {partition → committed_offset}} across every topic
// the group has committed to. NotFound if the group has no committed
// offsets at all.
func (i *Inspector) CommittedOffsets(ctx context.Context, groupID string, bootstrapServers []string) (map[string]PartitionOffsets, error) {
	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	handle, err := i.open(bootstrapServers)
	if err != nil {
		return nil, err
	}
	defer handle.Close()

	type result struct {
		offsets map[string]PartitionOffsets
		err     error
	}
	resc := make(chan result, 1)
	go func() {
		raw, err := handle.AllCommittedOffsets(groupID)
		if err != nil {
			resc <- result{err: err}
			return
		}
		if len(raw) == 0 {
			resc <- result{err: apierr.New(apierr.NotFound, "no committed offsets for group "+groupID)}
			return
		}
		out := make(map[string]PartitionOffsets, len(raw))
		for topic, partitions := range raw {
			po := make(PartitionOffsets, len(partitions))
			for p, off := range partitions {
				po[p] = off
			}
			out[topic] = po
		}
		resc <- result{offsets: out}
	}()

	select {
	case res := <-resc:
		return res.offsets, res.err
	case <-ctx.Done():
		return nil, apierr.New(apierr.TimedOut, "committed_offsets exceeded inspector timeout")
	}
}

// Lag implements lag(group_id, topic) (§4.F, §8 invariant 6): for
// every partition, current_offset = -1 when uncommitted, and
// lag = max(0, log_end_offset - current_offset) with current_offset =
// -1 treated as "lag = log_end_offset".
func (i *Inspector) Lag(ctx context.Context, groupID, topic string, bootstrapServers []string) (map[int32]PartitionLag, error) {
	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	handle, err := i.open(bootstrapServers)
	if err != nil {
		return nil, err
	}
	defer handle.Close()

	type result struct {
		lag map[int32]PartitionLag
		err error
	}
	resc := make(chan result, 1)
	go func() {
		parts, err := handle.Partitions(topic)
		if err != nil {
			resc <- result{err: err}
			return
		}

		committed, err := handle.CommittedOffsets(groupID, topic, parts)
		if err != nil {
			resc <- result{err: err}
			return
		}

		out := make(map[int32]PartitionLag, len(parts))
		for _, p := range parts {
			end, err := handle.EndOffset(topic, p)
			if err != nil {
				resc <- result{err: err}
				return
			}
			current, ok := committed[p]
			if !ok {
				current = -1
			}
			lag := end
			if current >= 0 {
				lag = end - current
				if lag < 0 {
					lag = 0
				}
			}
			out[p] = PartitionLag{CurrentOffset: current, LogEndOffset: end, Lag: lag}
		}
		resc <- result{lag: out}
	}()

	select {
	case res := <-resc:
		return res.lag, res.err
	case <-ctx.Done():
		return nil, apierr.New(apierr.TimedOut, "lag exceeded inspector timeout")
	}
}

func (i *Inspector) open(bootstrapServers []string) (AdminHandle, error) {
	brokers := bootstrapServers
	if len(brokers) == 0 {
		brokers = i.defaultBrokers
	}
	return i.dial(kafka.Config{Brokers: brokers})
}
