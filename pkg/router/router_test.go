package router

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tgvisor/pkg/client"
	"tgvisor/pkg/metrics"
	"tgvisor/pkg/module"
	"tgvisor/pkg/update"
)

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (c *callLog) add(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, name)
}

func (c *callLog) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

func messageHandler(log *callLog, name string, claimed bool, err error) module.Process {
	return module.NewMessage(module.MessageFunc(func(context.Context, client.Conn, *update.Message) (bool, error) {
		log.add(name)
		return claimed, err
	}))
}

func catchAll(log *callLog, name string, claimed bool) module.Process {
	return module.Update(module.UpdateFunc(func(context.Context, client.Conn, *update.Update) (bool, error) {
		log.add(name)
		return claimed, nil
	}))
}

func newRouter(t *testing.T, modules ...module.Module) *Router {
	t.Helper()
	reg, err := module.NewRegistry(modules...)
	require.NoError(t, err)
	return New(reg, nil, nil)
}

func TestDispatchFirstClaimStopsKindPass(t *testing.T) {
	log := &callLog{}
	r := newRouter(t,
		module.Module{ID: "A", Handlers: []module.Handler{
			{ID: "a1", Process: messageHandler(log, "a1", false, nil)},
			{ID: "a2", Process: messageHandler(log, "a2", true, nil)},
		}},
		module.Module{ID: "B", Handlers: []module.Handler{
			{ID: "b1", Process: messageHandler(log, "b1", true, nil)},
		}},
	)

	result := r.Dispatch(context.Background(), nil, update.NewMessage(1, &update.Message{Text: "hi"}))

	assert.Equal(t, []string{"a1", "a2"}, log.snapshot())
	assert.Equal(t, module.Claimed, result.Specific.Outcome)
	assert.Equal(t, "A", result.Specific.ModuleID)
	assert.Equal(t, "a2", result.Specific.HandlerID)
	assert.Equal(t, 2, result.Specific.Tried)
	assert.NotEmpty(t, result.DispatchID)
}

func TestDispatchUpdatePassIsIndependent(t *testing.T) {
	log := &callLog{}
	r := newRouter(t,
		module.Module{ID: "specific", Handlers: []module.Handler{
			{ID: "claim", Process: messageHandler(log, "claim", true, nil)},
		}},
		module.Module{ID: "observer", Handlers: []module.Handler{
			{ID: "all", Process: catchAll(log, "all", false)},
		}},
	)

	result := r.Dispatch(context.Background(), nil, update.NewMessage(1, &update.Message{}))

	assert.Equal(t, []string{"claim", "all"}, log.snapshot())
	assert.Equal(t, module.Claimed, result.Specific.Outcome)
	assert.Equal(t, module.NotClaimed, result.Generic.Outcome)
	assert.Equal(t, 1, result.Generic.Tried)
}

func TestDispatchUpdateClaimDoesNotBlockKindHandler(t *testing.T) {
	log := &callLog{}
	r := newRouter(t,
		module.Module{ID: "observer", Handlers: []module.Handler{
			{ID: "all", Process: catchAll(log, "all", true)},
			{ID: "all-2", Process: catchAll(log, "all-2", true)},
		}},
		module.Module{ID: "specific", Handlers: []module.Handler{
			{ID: "msg", Process: messageHandler(log, "msg", true, nil)},
		}},
	)

	result := r.Dispatch(context.Background(), nil, update.NewMessage(1, &update.Message{}))

	calls := log.snapshot()
	assert.Contains(t, calls, "msg")
	assert.Contains(t, calls, "all")
	assert.NotContains(t, calls, "all-2")
	assert.Equal(t, "all", result.Generic.HandlerID)
	assert.Equal(t, "msg", result.Specific.HandlerID)
}

func TestDispatchFailedStopsPassWithoutPropagating(t *testing.T) {
	log := &callLog{}
	boom := errors.New("boom")
	r := newRouter(t,
		module.Module{ID: "A", Handlers: []module.Handler{
			{ID: "fail", Process: messageHandler(log, "fail", false, boom)},
			{ID: "later", Process: messageHandler(log, "later", true, nil)},
			{ID: "all", Process: catchAll(log, "all", false)},
		}},
	)

	result := r.Dispatch(context.Background(), nil, update.NewMessage(1, &update.Message{}))

	assert.Equal(t, []string{"fail", "all"}, log.snapshot())
	require.Equal(t, module.Failed, result.Specific.Outcome)
	require.NotNil(t, result.Specific.Err)
	assert.ErrorIs(t, result.Specific.Err, boom)
	assert.Equal(t, "A", result.Specific.Err.ModuleID)
	assert.Equal(t, "fail", result.Specific.Err.HandlerID)
}

func TestDispatchSkipsOtherCapabilities(t *testing.T) {
	log := &callLog{}
	edited := module.MessageEdited(module.MessageFunc(func(context.Context, client.Conn, *update.Message) (bool, error) {
		log.add("edited")
		return true, nil
	}))
	r := newRouter(t,
		module.Module{ID: "A", Handlers: []module.Handler{
			{ID: "edited", Process: edited},
			{ID: "new", Process: messageHandler(log, "new", false, nil)},
		}},
	)

	result := r.Dispatch(context.Background(), nil, update.NewMessage(1, &update.Message{}))

	assert.Equal(t, []string{"new"}, log.snapshot())
	assert.Equal(t, module.NotClaimed, result.Specific.Outcome)
	assert.Empty(t, result.Specific.HandlerID)
}

func TestDispatchDoesNotCountHandlersWithoutPayload(t *testing.T) {
	log := &callLog{}
	r := newRouter(t,
		module.Module{ID: "A", Handlers: []module.Handler{
			{ID: "new", Process: messageHandler(log, "new", true, nil)},
			{ID: "all", Process: catchAll(log, "all", false)},
		}},
	)

	result := r.Dispatch(context.Background(), nil, update.NewMessage(1, nil))

	assert.Equal(t, []string{"all"}, log.snapshot())
	assert.Equal(t, module.NotClaimed, result.Specific.Outcome)
	assert.Equal(t, 0, result.Specific.Tried)
	assert.Equal(t, 1, result.Generic.Tried)
}

func TestDispatchRawRunsBothPasses(t *testing.T) {
	log := &callLog{}
	var gotRaw any
	raw := module.Raw(module.RawFunc(func(_ context.Context, _ client.Conn, payload any) (bool, error) {
		log.add("raw")
		gotRaw = payload
		return true, nil
	}))
	r := newRouter(t,
		module.Module{ID: "A", Handlers: []module.Handler{
			{ID: "raw", Process: raw},
			{ID: "all", Process: catchAll(log, "all", false)},
		}},
	)

	r.Dispatch(context.Background(), nil, update.NewRaw(9, map[string]int{"x": 1}))

	assert.Equal(t, []string{"raw", "all"}, log.snapshot())
	assert.Equal(t, map[string]int{"x": 1}, gotRaw)
}

func TestDispatchRecoversPanics(t *testing.T) {
	log := &callLog{}
	panicky := module.NewMessage(module.MessageFunc(func(context.Context, client.Conn, *update.Message) (bool, error) {
		panic("handler bug")
	}))
	r := newRouter(t,
		module.Module{ID: "A", Handlers: []module.Handler{
			{ID: "panicky", Process: panicky},
			{ID: "all", Process: catchAll(log, "all", false)},
		}},
	)

	result := r.Dispatch(context.Background(), nil, update.NewMessage(1, &update.Message{}))

	assert.Equal(t, module.Failed, result.Specific.Outcome)
	assert.ErrorContains(t, result.Specific.Err, "handler bug")
	assert.Equal(t, []string{"all"}, log.snapshot())
}

func TestDispatchRecordsOutcomeMetrics(t *testing.T) {
	m := metrics.New()
	log := &callLog{}
	reg, err := module.NewRegistry(module.Module{ID: "A", Handlers: []module.Handler{
		{ID: "a1", Process: messageHandler(log, "a1", true, nil)},
	}})
	require.NoError(t, err)

	New(reg, nil, m).Dispatch(context.Background(), nil, update.NewMessage(1, &update.Message{}))

	got := testutil.ToFloat64(m.DispatchOutcomesTotal.WithLabelValues(PassKind, "claimed", "A", "a1"))
	assert.Equal(t, float64(1), got)
}

func TestDispatchNilUpdate(t *testing.T) {
	r := newRouter(t)
	result := r.Dispatch(context.Background(), nil, nil)
	assert.Equal(t, module.NotClaimed, result.Specific.Outcome)
	assert.Equal(t, module.NotClaimed, result.Generic.Outcome)
}
