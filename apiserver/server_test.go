package apiserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/netrixframework/smscsim/config"
	"github.com/netrixframework/smscsim/context"
	"github.com/netrixframework/smscsim/dispatcher"
	"github.com/netrixframework/smscsim/log"
	"github.com/netrixframework/smscsim/smsc"
	"github.com/netrixframework/smscsim/types"
	"github.com/netrixframework/smscsim/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	api  *APIServer
	ctx  *context.RootContext
	sim  *smsc.Smsc
	disp *dispatcher.Dispatcher
}

func newTestServer(t *testing.T, mutate func(*config.Config), draws ...float64) *testServer {
	t.Helper()
	c := config.Default()
	c.Lifecycle.SweepPeriod = config.NewDuration(time.Hour)
	c.Inbound.Capacity = 1
	if mutate != nil {
		mutate(c)
	}
	logger := log.NewDiscardLogger()
	ctx, err := context.NewRootContext(c, logger,
		context.WithClock(util.NewManualClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))),
		context.WithRandomSource(util.NewSequenceSource(draws...)),
	)
	require.NoError(t, err)
	disp := dispatcher.NewDispatcher(c.Delivery, logger)
	sim := smsc.New(ctx, disp)
	t.Cleanup(ctx.Stop)
	return &testServer{
		api:  NewAPIServer(ctx, sim, disp),
		ctx:  ctx,
		sim:  sim,
		disp: disp,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.api.Handler().ServeHTTP(rec, req)

	out := make(map[string]interface{})
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestSubmitQueryAndReceipts(t *testing.T) {
	s := newTestServer(t, nil, 0, 0)
	s.sim.StartRunning()

	rec, out := s.do(t, http.MethodPost, "/submit", map[string]interface{}{
		"source_addr":         "447700900123",
		"dest_addr":           "447700900456",
		"short_message":       "hello world",
		"registered_delivery": 1,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	id, ok := out["message_id"].(string)
	require.True(t, ok)

	rec, out = s.do(t, http.MethodGet, "/messages/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "DELIVERED", out["state"])
	assert.Equal(t, id, out["message_id"])

	rec, out = s.do(t, http.MethodGet, "/receipts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	receipts, ok := out["receipts"].([]interface{})
	require.True(t, ok)
	require.Len(t, receipts, 1)
	first := receipts[0].(map[string]interface{})
	assert.Equal(t, id, first["receipted_message_id"])
	assert.Equal(t, "DELIVRD", first["message_state"])

	// drained
	_, out = s.do(t, http.MethodGet, "/receipts", nil)
	assert.Len(t, out["receipts"], 0)
}

func TestSubmitErrors(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) {
		c.Submit = config.SubmitConfig{RatePerSecond: 0.001, Burst: 1}
	})

	rec, _ := s.do(t, http.MethodPost, "/submit", map[string]interface{}{"dest_addr": "1"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	s.sim.StartRunning()
	rec, _ = s.do(t, http.MethodPost, "/submit", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/submit", bytes.NewBufferString("{not json"))
	raw := httptest.NewRecorder()
	s.api.Handler().ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)

	rec, _ = s.do(t, http.MethodPost, "/submit", map[string]interface{}{"dest_addr": "1"})
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = s.do(t, http.MethodPost, "/submit", map[string]interface{}{"dest_addr": "1"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestQueryAndCancel(t *testing.T) {
	s := newTestServer(t, nil, 0.99)
	s.sim.StartRunning()

	rec, _ := s.do(t, http.MethodGet, "/messages/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	_, out := s.do(t, http.MethodPost, "/submit", map[string]interface{}{"dest_addr": "1"})
	id := out["message_id"].(string)

	rec, out = s.do(t, http.MethodGet, "/messages/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ENROUTE", out["state"])

	rec, out = s.do(t, http.MethodDelete, "/messages/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "DELETED", out["state"])

	rec, _ = s.do(t, http.MethodDelete, "/messages/"+id, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestInjectMOAndReceiver(t *testing.T) {
	s := newTestServer(t, nil)
	s.sim.StartRunning()

	rec, _ := s.do(t, http.MethodPost, "/receiver", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = s.do(t, http.MethodPost, "/receiver", map[string]interface{}{"addr": "127.0.0.1:9999"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "127.0.0.1:9999", s.disp.Receiver())

	_, out := s.do(t, http.MethodGet, "/receiver", nil)
	assert.Equal(t, "127.0.0.1:9999", out["addr"])

	// inbound loop is not running so the queue fills up
	rec, out = s.do(t, http.MethodPost, "/mo", map[string]interface{}{"seq_no": 99, "source_addr": "447700900123", "dest_addr": "7001", "short_message": "STOP"})
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "queued", out["status"])
	assert.NotEqualValues(t, 99, out["seq_no"], "MO sequence numbers are assigned by the SMSC")

	rec, _ = s.do(t, http.MethodPost, "/mo", map[string]interface{}{"dest_addr": "7001"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	queued, ok := s.ctx.Inbound.Pop()
	require.True(t, ok)
	assert.Equal(t, []byte("STOP"), queued.ShortMessage)
}

func TestStats(t *testing.T) {
	s := newTestServer(t, nil, 0.99)
	s.sim.StartRunning()

	for i := 0; i < 3; i++ {
		s.do(t, http.MethodPost, "/submit", map[string]interface{}{"dest_addr": "1"})
	}
	rec, out := s.do(t, http.MethodGet, "/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 3, out["submitted"])
	assert.EqualValues(t, 3, out["tracked"])
	states := out["states"].(map[string]interface{})
	assert.EqualValues(t, 3, states[types.Enroute.String()])
}
