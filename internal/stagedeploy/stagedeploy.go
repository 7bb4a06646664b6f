// Package stagedeploy binds a validation gate to an ordered list of
// deployment targets and drives the gate-then-push decision sequence.
package stagedeploy

import (
	"fmt"

	"github.com/selfimprove/control-plane/internal/gate"
)

// ParamChange is a single parameter adjustment pushed to deployment targets.
type ParamChange struct {
	Name string
	Old  float64
	New  float64
}

// DeploymentError reports a single target's failure to apply changes.
type DeploymentError struct {
	Target string
	Reason string
}

func (e DeploymentError) Error() string {
	return fmt.Sprintf("target %q: %s", e.Target, e.Reason)
}

// DeploymentTarget is a pluggable sink for deployed parameter changes.
// Implementations must not panic: apply either accepts every change or
// returns a DeploymentError.
type DeploymentTarget interface {
	Name() string
	Apply(changes []ParamChange) error
}

// DeploymentOutcome is a closed, tagged-union result of a Deploy call.
type DeploymentOutcome struct {
	kind outcomeKind

	failedChecks    []string
	changeID        string
	target          string
	reason          string
	changesApplied  int
	targetsNotified int
}

type outcomeKind int

const (
	outcomeDeployed outcomeKind = iota
	outcomeAwaitingReview
	outcomeRejected
	outcomeTargetError
	outcomeNoTargets
)

func deployed(changesApplied, targetsNotified int) DeploymentOutcome {
	return DeploymentOutcome{kind: outcomeDeployed, changesApplied: changesApplied, targetsNotified: targetsNotified}
}

func awaitingReview(changeID string) DeploymentOutcome {
	return DeploymentOutcome{kind: outcomeAwaitingReview, changeID: changeID}
}

func rejected(failedChecks []string) DeploymentOutcome {
	return DeploymentOutcome{kind: outcomeRejected, failedChecks: failedChecks}
}

func targetError(target, reason string) DeploymentOutcome {
	return DeploymentOutcome{kind: outcomeTargetError, target: target, reason: reason}
}

func noTargets() DeploymentOutcome {
	return DeploymentOutcome{kind: outcomeNoTargets}
}

func (o DeploymentOutcome) IsDeployed() bool       { return o.kind == outcomeDeployed }
func (o DeploymentOutcome) IsAwaitingReview() bool { return o.kind == outcomeAwaitingReview }
func (o DeploymentOutcome) IsRejected() bool       { return o.kind == outcomeRejected }
func (o DeploymentOutcome) IsTargetError() bool    { return o.kind == outcomeTargetError }
func (o DeploymentOutcome) IsNoTargets() bool      { return o.kind == outcomeNoTargets }

func (o DeploymentOutcome) FailedChecks() []string { return append([]string(nil), o.failedChecks...) }
func (o DeploymentOutcome) ChangeID() string       { return o.changeID }
func (o DeploymentOutcome) Target() string         { return o.target }
func (o DeploymentOutcome) Reason() string         { return o.reason }
func (o DeploymentOutcome) ChangesApplied() int    { return o.changesApplied }
func (o DeploymentOutcome) TargetsNotified() int   { return o.targetsNotified }

func (o DeploymentOutcome) String() string {
	switch o.kind {
	case outcomeDeployed:
		return fmt.Sprintf("Deployed{changes_applied=%d, targets_notified=%d}", o.changesApplied, o.targetsNotified)
	case outcomeAwaitingReview:
		return fmt.Sprintf("AwaitingReview{change_id=%s}", o.changeID)
	case outcomeRejected:
		return fmt.Sprintf("Rejected{failed_checks=%v}", o.failedChecks)
	case outcomeTargetError:
		return fmt.Sprintf("TargetError{target=%s, reason=%s}", o.target, o.reason)
	case outcomeNoTargets:
		return "NoTargets"
	default:
		return "Unknown"
	}
}

// Pipeline binds a Gate to an ordered list of DeploymentTargets.
type Pipeline struct {
	gate    *gate.Gate
	targets []DeploymentTarget
	audit   *AuditLogger
}

// New constructs an empty Pipeline over the given Gate.
func New(g *gate.Gate) *Pipeline {
	return &Pipeline{gate: g}
}

// WithAuditLogger attaches an audit logger that records every outcome.
func (p *Pipeline) WithAuditLogger(a *AuditLogger) *Pipeline {
	p.audit = a
	return p
}

// AddTarget registers a target at the end of the pipeline's call order.
func (p *Pipeline) AddTarget(t DeploymentTarget) {
	p.targets = append(p.targets, t)
}

// Targets returns the registered targets in call order.
func (p *Pipeline) Targets() []DeploymentTarget {
	return append([]DeploymentTarget(nil), p.targets...)
}

// ValidateOnly runs the gate alone, contacting no target.
func (p *Pipeline) ValidateOnly(changeID string, runner gate.CheckRunner) gate.ValidationReport {
	return p.gate.Run(changeID, runner)
}

// Deploy runs the gate for changeID, then — if the gate passes and
// recommends deployment — pushes changes to every registered target in
// order, short-circuiting on the first target error.
func (p *Pipeline) Deploy(changeID string, runner gate.CheckRunner, changes []ParamChange) DeploymentOutcome {
	report := p.gate.Run(changeID, runner)

	var outcome DeploymentOutcome
	switch {
	case !report.OverallPassed:
		outcome = rejected(report.RecommendedAction.FailedChecks())
	case report.RecommendedAction.IsAwaitReview():
		outcome = awaitingReview(changeID)
	case len(p.targets) == 0:
		outcome = noTargets()
	default:
		outcome = p.applyAll(changes)
	}

	p.logOutcome(changeID, outcome)
	return outcome
}

func (p *Pipeline) applyAll(changes []ParamChange) DeploymentOutcome {
	for _, t := range p.targets {
		if err := t.Apply(changes); err != nil {
			return targetError(t.Name(), err.Error())
		}
	}
	return deployed(len(changes), len(p.targets))
}

func (p *Pipeline) logOutcome(changeID string, outcome DeploymentOutcome) {
	if p.audit == nil {
		return
	}
	switch {
	case outcome.IsDeployed():
		p.audit.Log(AuditDeployed, changeID, outcome.String())
	case outcome.IsAwaitingReview():
		p.audit.Log(AuditAwaitingReview, changeID, outcome.String())
	case outcome.IsRejected():
		p.audit.Log(AuditRejected, changeID, outcome.String())
	case outcome.IsTargetError():
		p.audit.Log(AuditTargetError, changeID, outcome.String())
	case outcome.IsNoTargets():
		p.audit.Log(AuditNoTargets, changeID, outcome.String())
	}
}
