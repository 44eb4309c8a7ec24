package engine

import (
	"reticle/internal/detection"
	"reticle/internal/logging"
	"reticle/internal/notifications"
	"reticle/internal/search"
	"reticle/internal/services"
	"reticle/internal/workflow"
)

// resultHandler adapts the engine to pipeline.Handler without exporting the
// callbacks on Engine itself.
type resultHandler struct{ e *Engine }

func (h resultHandler) HandleResult(frame *detection.Frame, items []detection.Item) {
	h.e.handleResult(frame, items)
}

func (h resultHandler) HandleFailure(frame *detection.Frame, err error) {
	h.e.setLastError(err)
}

// handleResult runs on the loop for every completed detection.
func (e *Engine) handleResult(frame *detection.Frame, items []detection.Item) {
	state := e.machine.State()
	if !e.started.Load() || state == workflow.NotStarted {
		e.discarded.Add(1)
		return
	}
	if state.CameraFrozen(e.opts.AutoSearch) {
		e.discarded.Add(1)
		e.logger.Debug("frame result ignored while camera frozen",
			logging.Uint64(logging.FieldFrameSeq, frame.Seq),
			logging.String(logging.FieldState, state.String()),
		)
		return
	}

	visible := e.selector.Filter(items)
	synced := e.registry.Sync(visible, frame.Seq, e.now())
	if len(synced.Added) > 0 || len(synced.Removed) > 0 {
		e.logger.Debug("tracked entities changed",
			logging.Uint64(logging.FieldFrameSeq, frame.Seq),
			logging.Int("added", len(synced.Added)),
			logging.Int("removed", len(synced.Removed)),
			logging.Int("tracked", e.registry.Len()),
		)
	}

	candidate, ok := e.selector.Select(frame, visible)
	if !ok {
		e.markEntrances(visible, detection.Identity{}, false)
		if e.confirm.Miss() {
			e.confirmed = nil
			next := workflow.Detecting
			if len(visible) > 0 {
				next = workflow.Detected
			}
			e.transition(next, "no candidate selected")
		}
		e.publishProgress()
		return
	}

	var progress float64
	var crossed bool
	if e.opts.Mode == ModeBarcode {
		progress, crossed = e.confirm.Measure(candidate.Identity(), e.selector.SizeProgress(candidate, e.opts.BarcodeMinWidthPercent))
	} else {
		progress, crossed = e.confirm.Confirming(candidate.Identity())
	}
	e.markEntrances(visible, candidate.Identity(), true)
	e.publishProgress()

	switch {
	case crossed:
		e.commit(candidate)
	case e.confirm.IsConfirmed():
		// Manual mode keeps showing the confirmed candidate until it leaves.
	default:
		e.confirmed = nil
		if e.transition(workflow.Confirming, "candidate selected") {
			e.logger.Debug("confirming candidate",
				logging.Uint64(logging.FieldFrameSeq, frame.Seq),
				logging.String("identity", candidate.Identity().String()),
				logging.Float64("progress", progress),
			)
		}
	}
}

// markEntrances starts the entrance effect for tracked entities that are
// visible but not selected. Nothing new enters while a candidate is confirmed.
func (e *Engine) markEntrances(items []detection.Item, selected detection.Identity, hasSelection bool) {
	if e.confirm.IsConfirmed() {
		return
	}
	for _, item := range items {
		id := item.TrackingID
		if !id.Valid || (hasSelection && id == selected) {
			continue
		}
		if e.registry.MarkEntrancePlayed(id, nil) {
			e.entrances.Add(1)
		}
	}
}

// commit handles the first frame on which the candidate is confirmed.
func (e *Engine) commit(candidate detection.Candidate) {
	committed := candidate
	e.confirmed = &committed
	if e.machine.State() != workflow.Confirming {
		// A barcode can meet the size requirement on its first frame.
		e.transition(workflow.Confirming, "candidate selected")
	}
	if !e.transition(workflow.Confirmed, "confirmation window elapsed") {
		return
	}
	e.machine.Publish(workflow.Entity{Kind: workflow.EntityConfirmed, Candidate: committed})
	e.logger.Info("candidate confirmed",
		logging.String(logging.FieldEventType, "candidate_confirmed"),
		logging.Uint64(logging.FieldFrameSeq, frameSeq(committed.Frame)),
		logging.String("identity", committed.Identity().String()),
		logging.String("lookup_key", committed.LookupKey()),
	)
	e.notify(notifications.EventEntityConfirmed, entityPayload(committed))
	if e.opts.AutoSearch {
		e.dispatch(committed, "auto search")
	}
}

// dispatch starts the lookup for candidate and moves to SEARCHING. Loop only.
func (e *Engine) dispatch(candidate detection.Candidate, reason string) {
	job := e.dispatcher.Search(candidate)
	if !job.Live() {
		e.logger.Debug("search not dispatched after shutdown")
		return
	}
	e.transition(workflow.Searching, reason)
}

// onSearchResult receives current-generation lookup outcomes on the loop.
func (e *Engine) onSearchResult(res search.Result) {
	if state := e.machine.State(); state != workflow.Searching {
		e.discarded.Add(1)
		e.logger.Debug("search result ignored",
			logging.String(logging.FieldState, state.String()),
			logging.Uint64("generation", res.Job.Generation),
		)
		return
	}

	products := res.Products
	if res.Err != nil {
		e.setLastError(res.Err)
		products = search.Placeholders(e.opts.PlaceholderResults)
		logging.WarnWithContext(e.logger, "search failed", "search_failed",
			logging.Error(res.Err),
			logging.Uint64("generation", res.Job.Generation),
			logging.String("lookup_key", res.Job.Entity.LookupKey()),
			logging.Int("fallback_results", len(products)),
			logging.String(logging.FieldErrorHint, "check search.endpoint and network reachability"),
			logging.String(logging.FieldImpact, "fallback results shown instead of matches"),
		)
		e.notify(notifications.EventError, notifications.Payload{
			"context": "search",
			"error":   res.Err.Error(),
		})
	}
	if products == nil {
		products = []search.Product{}
	}

	if !e.transition(workflow.Searched, "search completed") {
		return
	}
	e.machine.Publish(workflow.Entity{
		Kind:       workflow.EntitySearched,
		Candidate:  res.Job.Entity,
		Products:   products,
		Err:        res.Err,
		Generation: res.Job.Generation,
	})
	e.logger.Info("search completed",
		logging.String(logging.FieldEventType, "search_completed"),
		logging.Uint64("generation", res.Job.Generation),
		logging.Int("products", len(products)),
		logging.Bool("fallback", res.Err != nil),
	)

	payload := entityPayload(res.Job.Entity)
	payload["products"] = len(products)
	payload["fallback"] = res.Err != nil
	if len(products) > 0 {
		payload["top"] = products[0].Title
	}
	e.notify(notifications.EventEntitySearched, payload)
}

// transition applies a state change and reports whether it happened. A
// rejected transition is a programming error in the session flow and is
// logged rather than propagated.
func (e *Engine) transition(to workflow.State, reason string) bool {
	changed, err := e.machine.Set(to, reason)
	if err != nil {
		err = services.Wrap(services.ErrInvalidOperation, "engine", "transition", reason, err)
		e.setLastError(err)
		logging.ErrorWithContext(e.logger, "workflow transition rejected", "transition_rejected",
			logging.Error(err),
			logging.String(logging.FieldState, e.machine.State().String()),
		)
		return false
	}
	return changed
}

func entityPayload(c detection.Candidate) notifications.Payload {
	payload := notifications.Payload{}
	if c.Item.Value != "" {
		payload["value"] = c.Item.Value
	}
	if c.Item.Label != "" {
		payload["label"] = c.Item.Label
	}
	if c.Item.Category != "" {
		payload["category"] = c.Item.Category.DisplayName()
	}
	return payload
}

func frameSeq(frame *detection.Frame) uint64 {
	if frame == nil {
		return 0
	}
	return frame.Seq
}
