package engine

import "encoding/json"

// The engine is the handler behind the push-channel consumer. Every
// frame funnels through the delta pipeline under the store lock; a
// frame the pipeline could not apply degrades to a debounced full
// refetch instead of surfacing an error.

// HandleSync processes a sync hint. A hint carrying a revision the
// tracker already covers is a no-op; anything else schedules the
// debounced refetch.
func (en *Engine) HandleSync(revision *int64) {
	en.mu.Lock()
	defer en.mu.Unlock()

	if revision != nil && en.revs.IsStale(*revision) {
		return
	}
	en.scheduleFallbackRefresh()
}

// HandleDelta processes a single pushed delta frame.
func (en *Engine) HandleDelta(payload json.RawMessage) {
	en.mu.Lock()
	defer en.mu.Unlock()

	if !en.pipeline.DecodeAndApply(payload) {
		en.scheduleFallbackRefresh()
	}
}

// HandleDeltaBatch processes a pushed batch envelope.
func (en *Engine) HandleDeltaBatch(payload json.RawMessage) {
	en.mu.Lock()
	defer en.mu.Unlock()

	if !en.pipeline.DecodeAndApplyBatch(payload) {
		en.scheduleFallbackRefresh()
	}
}

// HandleTaskDelta processes a pushed task-scoped delta frame.
func (en *Engine) HandleTaskDelta(payload json.RawMessage) {
	en.mu.Lock()
	defer en.mu.Unlock()

	if !en.pipeline.DecodeAndApplyTask(payload) {
		en.scheduleFallbackRefresh()
	}
}

// HandleReconnect runs after the push channel re-establishes: deltas
// may have been missed while disconnected, so a full refetch is due.
func (en *Engine) HandleReconnect() {
	en.mu.Lock()
	defer en.mu.Unlock()
	en.scheduleFallbackRefresh()
}
