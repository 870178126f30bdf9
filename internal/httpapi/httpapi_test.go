package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/madcok-co/consumerd/internal/inspector"
	"github.com/madcok-co/consumerd/internal/kafka"
	"github.com/madcok-co/consumerd/internal/logging"
	"github.com/madcok-co/consumerd/internal/processor"
	"github.com/madcok-co/consumerd/internal/spec"
	"github.com/madcok-co/consumerd/internal/supervisor"
	"github.com/madcok-co/consumerd/internal/validate"
)

type fakeCG struct {
	mu     sync.Mutex
	closed bool
}

func (f *fakeCG) Consume(ctx context.Context, topics []string, handler sarama.ConsumerGroupHandler) error {
	<-ctx.Done()
	return nil
}
func (f *fakeCG) Errors() <-chan error { return make(chan error) }
func (f *fakeCG) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func okDial(kafka.Config) (kafka.ConsumerGroup, error) { return &fakeCG{}, nil }

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store := spec.NewMemoryStore()
	factory := processor.NewFactory()
	sup := supervisor.New(store, factory, logging.Noop(),
		supervisor.Config{PollTimeout: 10 * time.Millisecond, StopTimeout: time.Second}, okDial)
	insp := inspector.New(store, nil, nil, []string{"localhost:9092"}, time.Second)
	return NewServer(sup, insp, validate.New(), logging.Noop())
}

func doRequest(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s.Handler(), http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestCreateConsumer_AutoStartFalseIsInactive(t *testing.T) {
	s := newTestServer(t)
	body := createConsumerRequest{
		BrokerHost: "h", BrokerPort: 9092, Topic: "t", GroupID: "g", AutoStart: false,
	}
	rec := doRequest(t, s.Handler(), http.MethodPost, "/consumers/", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var got spec.ConsumerSpec
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Status != spec.StatusInactive {
		t.Fatalf("expected INACTIVE, got %s", got.Status)
	}
}

func TestCreateConsumer_MissingRequiredFieldIsBadRequest(t *testing.T) {
	s := newTestServer(t)
	body := createConsumerRequest{Topic: "t", GroupID: "g"}
	rec := doRequest(t, s.Handler(), http.MethodPost, "/consumers/", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCreateConsumer_UnknownProcessorTypeIsBadRequest(t *testing.T) {
	s := newTestServer(t)
	body := createConsumerRequest{
		BrokerHost: "h", BrokerPort: 9092, Topic: "t", GroupID: "g",
		Processors: []spec.ProcessorConfig{{ID: "p1", Type: "nonexistent"}},
	}
	rec := doRequest(t, s.Handler(), http.MethodPost, "/consumers/", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestGetConsumer_MissingIsNotFound(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s.Handler(), http.MethodGet, "/consumers/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestStartStopRoundtrip(t *testing.T) {
	s := newTestServer(t)
	body := createConsumerRequest{BrokerHost: "h", BrokerPort: 9092, Topic: "t", GroupID: "g"}
	rec := doRequest(t, s.Handler(), http.MethodPost, "/consumers/", body)

	var created spec.ConsumerSpec
	json.Unmarshal(rec.Body.Bytes(), &created)

	startRec := doRequest(t, s.Handler(), http.MethodPost, "/consumers/"+created.ID+"/start", nil)
	if startRec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", startRec.Code, startRec.Body.String())
	}
	var startResp statusResponse
	json.Unmarshal(startRec.Body.Bytes(), &startResp)
	if startResp.Status != spec.StatusActive {
		t.Fatalf("expected ACTIVE, got %s", startResp.Status)
	}

	stopRec := doRequest(t, s.Handler(), http.MethodPost, "/consumers/"+created.ID+"/stop", nil)
	if stopRec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", stopRec.Code)
	}
	var stopResp statusResponse
	json.Unmarshal(stopRec.Body.Bytes(), &stopResp)
	if stopResp.Status != spec.StatusInactive {
		t.Fatalf("expected INACTIVE, got %s", stopResp.Status)
	}
}

func TestDeleteConsumer(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s.Handler(), http.MethodPost, "/consumers/", createConsumerRequest{
		BrokerHost: "h", BrokerPort: 9092, Topic: "t", GroupID: "g",
	})
	var created spec.ConsumerSpec
	json.Unmarshal(rec.Body.Bytes(), &created)

	delRec := doRequest(t, s.Handler(), http.MethodDelete, "/consumers/"+created.ID, nil)
	if delRec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", delRec.Code)
	}

	getRec := doRequest(t, s.Handler(), http.MethodGet, "/consumers/"+created.ID, nil)
	if getRec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", getRec.Code)
	}
}

func TestListConsumerGroupsKnown(t *testing.T) {
	s := newTestServer(t)
	doRequest(t, s.Handler(), http.MethodPost, "/consumers/", createConsumerRequest{
		BrokerHost: "h", BrokerPort: 9092, Topic: "t", GroupID: "g1",
	})

	rec := doRequest(t, s.Handler(), http.MethodGet, "/consumergroups/", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp consumerGroupsResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if len(resp.ConsumerGroups) != 1 || resp.ConsumerGroups[0] != "g1" {
		t.Fatalf("unexpected groups: %v", resp.ConsumerGroups)
	}
}

func TestMonitorLag_MissingParamsIsBadRequest(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s.Handler(), http.MethodGet, "/monitor/consumer-group-lag", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
