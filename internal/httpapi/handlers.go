package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/madcok-co/consumerd/internal/inspector"
)

func (s *Server) handleListConsumers(w http.ResponseWriter, r *http.Request) {
	specs, err := s.supervisor.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, specs)
}

func (s *Server) handleCreateConsumer(w http.ResponseWriter, r *http.Request) {
	var req createConsumerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := s.validator.Struct(req); err != nil {
		writeError(w, err)
		return
	}

	created, err := s.supervisor.Create(r.Context(), req.toSpec())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetConsumer(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	found, err := s.supervisor.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, found)
}

func (s *Server) handleUpdateConsumer(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req updateConsumerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	updated, err := s.supervisor.Update(r.Context(), id, req.toPatch())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteConsumer(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.supervisor.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStartConsumer(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	updated, err := s.supervisor.Start(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{ID: updated.ID, Status: updated.Status})
}

func (s *Server) handleStopConsumer(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	updated, err := s.supervisor.Stop(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{ID: updated.ID, Status: updated.Status})
}

func (s *Server) handleListConsumerGroups(w http.ResponseWriter, r *http.Request) {
	scope := inspector.ScopeKnown
	if allGroups, _ := strconv.ParseBool(r.URL.Query().Get("all_groups")); allGroups {
		scope = inspector.ScopeAll
	}

	groups, err := s.inspector.ListGroups(r.Context(), scope, nil)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, consumerGroupsResponse{ConsumerGroups: groups})
}

func (s *Server) handleGroupOffsets(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("group_id")
	bootstrap := bootstrapServersFromQuery(r)

	offsetsByTopic, err := s.inspector.CommittedOffsets(r.Context(), groupID, bootstrap)
	if err != nil {
		writeError(w, err)
		return
	}

	entries := make([]offsetEntry, 0)
	for topic, partitions := range offsetsByTopic {
		for partition, offset := range partitions {
			entries = append(entries, offsetEntry{Topic: topic, Partition: partition, CurrentOffset: offset})
		}
	}
	writeJSON(w, http.StatusOK, groupOffsetsResponse{GroupID: groupID, Offsets: entries})
}

func (s *Server) handleMonitorOffsets(w http.ResponseWriter, r *http.Request) {
	groupID := r.URL.Query().Get("group_id")
	if groupID == "" {
		writeJSONError(w, http.StatusBadRequest, "group_id is required")
		return
	}
	bootstrap := bootstrapServersFromQuery(r)

	offsetsByTopic, err := s.inspector.CommittedOffsets(r.Context(), groupID, bootstrap)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make(map[string]map[string]int64, len(offsetsByTopic))
	for topic, partitions := range offsetsByTopic {
		partMap := make(map[string]int64, len(partitions))
		for p, off := range partitions {
			partMap[strconv.Itoa(int(p))] = off
		}
		out[topic] = partMap
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleMonitorLag(w http.ResponseWriter, r *http.Request) {
	groupID := r.URL.Query().Get("group_id")
	topic := r.URL.Query().Get("topic")
	if groupID == "" || topic == "" {
		writeJSONError(w, http.StatusBadRequest, "group_id and topic are required")
		return
	}
	bootstrap := bootstrapServersFromQuery(r)

	lag, err := s.inspector.Lag(r.Context(), groupID, topic, bootstrap)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make(map[string]inspector.PartitionLag, len(lag))
	for p, v := range lag {
		out[strconv.Itoa(int(p))] = v
	}
	writeJSON(w, http.StatusOK, out)
}

func bootstrapServersFromQuery(r *http.Request) []string {
	if v := r.URL.Query().Get("bootstrap_servers"); v != "" {
		return []string{v}
	}
	return nil
}
