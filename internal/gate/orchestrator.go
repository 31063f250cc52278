package gate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/huddlechat/gatekit/internal/domain"
)

// FlowState is one step of the popup flow state machine.
type FlowState string

const (
	FlowIdle       FlowState = "idle"
	FlowEvaluating FlowState = "evaluating"
	FlowPopupShown FlowState = "popup_shown"
	FlowProceeding FlowState = "proceeding"
)

// validFlowTransitions maps each state to its allowed successors.
var validFlowTransitions = map[FlowState][]FlowState{
	FlowIdle:       {FlowEvaluating},
	FlowEvaluating: {FlowPopupShown, FlowProceeding, FlowIdle},
	FlowPopupShown: {FlowEvaluating, FlowIdle},
	FlowProceeding: {FlowIdle},
}

// DecisionKind tells the screen controller which of the three UI states to
// render.
type DecisionKind string

const (
	// DecisionBypassed: proceed silently, no popup.
	DecisionBypassed DecisionKind = "bypassed"
	// DecisionShowPopup: show the status/upsell popup; the user may
	// confirm to proceed.
	DecisionShowPopup DecisionKind = "show_popup"
	// DecisionBlocked: show the cooldown popup; the action cannot run yet.
	DecisionBlocked DecisionKind = "blocked"
)

// Decision pairs the UI state with the result that produced it.
type Decision struct {
	Kind   DecisionKind
	Result domain.GateResult
}

// Orchestrator turns gate results into popup flows. It owns no UI: screen
// controllers drive a Flow through Confirm/Dismiss/Proceed and render from
// the returned decisions.
type Orchestrator struct {
	engine    *Engine
	committer *Committer
	logger    *slog.Logger
}

// NewOrchestrator creates an orchestrator over the engine and committer.
func NewOrchestrator(engine *Engine, committer *Committer, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		engine:    engine,
		committer: committer,
		logger:    logger,
	}
}

// Flow is one user interaction with a gated feature, from trigger to
// completion or dismissal. A Flow is driven from a single goroutine (the UI
// thread); it is not safe for concurrent use.
type Flow struct {
	o       *Orchestrator
	userID  uuid.UUID
	feature domain.FeatureKey
	state   FlowState
}

// Begin evaluates the gate and opens a flow.
//
// Bypassed callers land in the proceeding state and should call Proceed;
// gated callers land in the popup state regardless of whether they may
// proceed — showing status to gated users is deliberate product policy.
func (o *Orchestrator) Begin(ctx context.Context, userID uuid.UUID, feature domain.FeatureKey) (*Flow, Decision, error) {
	f := &Flow{o: o, userID: userID, feature: feature, state: FlowIdle}

	if err := f.transitionTo(FlowEvaluating); err != nil {
		return nil, Decision{}, err
	}

	result, err := o.engine.Evaluate(ctx, userID, feature)
	if err != nil {
		_ = f.transitionTo(FlowIdle)
		return nil, Decision{}, err
	}

	if result.Bypassed {
		if err := f.transitionTo(FlowProceeding); err != nil {
			return nil, Decision{}, err
		}
		return f, Decision{Kind: DecisionBypassed, Result: result}, nil
	}

	if err := f.transitionTo(FlowPopupShown); err != nil {
		return nil, Decision{}, err
	}

	kind := DecisionShowPopup
	if !result.CanProceed {
		kind = DecisionBlocked
	}
	o.logger.Debug("gate popup shown",
		"feature", string(feature),
		"user_id", userID,
		"kind", string(kind),
		"usage", result.CurrentUsage,
		"limit", result.Limit,
	)
	return f, Decision{Kind: kind, Result: result}, nil
}

// Confirm handles the user accepting the popup. The gate is re-evaluated
// inside the commit — the pre-popup result is never trusted, since the
// cooldown may have elapsed (or the window filled) while the popup was up.
//
// On a rate_limit outcome the flow stays at the popup so the refreshed
// cooldown can be rendered; any other failure ends the flow.
func (f *Flow) Confirm(ctx context.Context, action Action) (domain.GateResult, error) {
	if err := f.transitionTo(FlowEvaluating); err != nil {
		return domain.GateResult{}, err
	}

	result, err := f.o.committer.Commit(ctx, f.userID, f.feature, action)
	if err != nil {
		if domain.ErrorCode(err) == domain.ERATELIMIT {
			_ = f.transitionTo(FlowPopupShown)
		} else {
			_ = f.transitionTo(FlowIdle)
		}
		return result, err
	}

	if err := f.transitionTo(FlowProceeding); err != nil {
		return result, err
	}
	_ = f.transitionTo(FlowIdle)
	return result, nil
}

// Proceed runs the action for a bypassed flow. No counter is touched.
func (f *Flow) Proceed(ctx context.Context, action Action) (domain.GateResult, error) {
	if f.state != FlowProceeding {
		return domain.GateResult{}, domain.Invalid("gate.flow.proceed",
			fmt.Sprintf("cannot proceed from state %q", f.state))
	}

	result, err := f.o.committer.Commit(ctx, f.userID, f.feature, action)
	_ = f.transitionTo(FlowIdle)
	return result, err
}

// Dismiss handles the user closing the popup without proceeding.
func (f *Flow) Dismiss() error {
	if f.state != FlowPopupShown {
		return domain.Invalid("gate.flow.dismiss",
			fmt.Sprintf("cannot dismiss from state %q", f.state))
	}
	return f.transitionTo(FlowIdle)
}

// State returns the flow's current state.
func (f *Flow) State() FlowState {
	return f.state
}

// transitionTo moves the flow to the target state, rejecting transitions
// the state machine does not allow. The state does not change on error.
func (f *Flow) transitionTo(target FlowState) error {
	for _, allowed := range validFlowTransitions[f.state] {
		if allowed == target {
			f.state = target
			return nil
		}
	}
	return domain.Invalid("gate.flow.transition",
		fmt.Sprintf("cannot transition from %q to %q", f.state, target))
}
