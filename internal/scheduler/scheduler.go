package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kodecli/kode/internal/errkind"
	"github.com/kodecli/kode/internal/permission"
	"github.com/kodecli/kode/internal/tool"
	"github.com/kodecli/kode/internal/transcript"
)

// DefaultProgressInterval is the minimum spacing between two progress events
// for the same tool-use id, excluding the first (P9).
const DefaultProgressInterval = 200 * time.Millisecond

// DefaultAbortGrace is how long a started-but-not-settled call gets to
// finish on its own (by noticing ctx cancellation) before the scheduler
// force-settles it with the interrupted sentinel.
const DefaultAbortGrace = 5 * time.Second

// editClassTools names tools ModeAcceptEdits auto-allows. Mirrors the
// teacher's tools.Registry.IsReadOnly hardcoded-by-name approach (registry.go)
// rather than adding another per-tool static flag to the Descriptor contract.
var editClassTools = map[string]bool{
	"Edit":         true,
	"Write":        true,
	"NotebookEdit": true,
}

// IsEditClass reports whether name is a file-mutating tool for the purposes
// of ModeAcceptEdits auto-allow.
func IsEditClass(name string) bool { return editClassTools[name] }

// Scheduler runs one assistant message's tool_use batch at a time.
type Scheduler struct {
	registry         *tool.Registry
	gate             *permission.Gate
	asker            Asker
	progressInterval time.Duration
	abortGrace       time.Duration
	log              *zap.Logger
}

// Option configures a Scheduler beyond its required dependencies.
type Option func(*Scheduler)

// WithProgressInterval overrides DefaultProgressInterval.
func WithProgressInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.progressInterval = d }
}

// WithAbortGrace overrides DefaultAbortGrace.
func WithAbortGrace(d time.Duration) Option {
	return func(s *Scheduler) { s.abortGrace = d }
}

// New constructs a Scheduler. asker may be nil, in which case DenyAsker is
// used (fail-closed: every Ask decision denies).
func New(registry *tool.Registry, gate *permission.Gate, asker Asker, log *zap.Logger, opts ...Option) *Scheduler {
	if asker == nil {
		asker = DenyAsker{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &Scheduler{
		registry:         registry,
		gate:             gate,
		asker:            asker,
		progressInterval: DefaultProgressInterval,
		abortGrace:       DefaultAbortGrace,
		log:              log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// runCall's state and result are guarded by the shared coordinator mutex in
// Run, not a per-call lock: barrier scheduling decisions need to observe and
// mutate many calls' state atomically together.
type runCall struct {
	req        Request
	descriptor tool.Descriptor
	safe       bool
	needsRun   bool

	state  callState
	result ResultMessage

	preflightDone chan struct{}
	forceCh       chan ResultMessage
	cancel        context.CancelFunc
}

// Run drives reqs (one assistant message's tool_use batch, in model order)
// through validation, the permission gate, and barrier-aware execution,
// emitting progress and result events on the returned channel until every
// call has settled, then closing it. Cancelling ctx aborts the batch: calls
// that never started settle immediately; calls already running get
// abortGrace to finish before being force-settled.
func (s *Scheduler) Run(ctx context.Context, reqs []Request, ictx tool.InvokeContext) <-chan Event {
	events := make(chan Event, 32)
	n := len(reqs)
	if n == 0 {
		close(events)
		return events
	}

	calls := make([]*runCall, n)
	for i, req := range reqs {
		calls[i] = &runCall{
			req:           req,
			preflightDone: make(chan struct{}),
			forceCh:       make(chan ResultMessage, 1),
		}
	}

	var mu sync.Mutex
	cond := sync.NewCond(&mu)
	runningCount := 0
	barrierActive := false

	var settleFn func(i int, result ResultMessage, wasRunning bool)
	settleFn = func(i int, result ResultMessage, wasRunning bool) {
		c := calls[i]
		mu.Lock()
		if c.state == stateSettled {
			mu.Unlock()
			return
		}
		c.state = stateSettled
		c.result = result
		if wasRunning {
			runningCount--
			if !c.safe {
				barrierActive = false
			}
		}
		cond.Broadcast()
		mu.Unlock()

		s.log.Debug("tool-use settled",
			zap.String("tool_use_id", result.ToolUseID),
			zap.Bool("is_error", result.IsError),
			zap.String("kind", string(result.Kind)))

		// A user abort settles calls as Cancelled; the abort watcher's grace
		// window handles those, not the sibling sweep.
		if result.IsError && result.Kind != errkind.Validation && result.Kind != errkind.Cancelled {
			s.sweepSiblings(calls, i, &mu, settleFn)
		}
	}

	// Preflight: validate + gate every call concurrently. Starting order is
	// enforced separately below; preflight only decides whether a call needs
	// to run at all.
	for idx, c := range calls {
		go s.preflight(ctx, idx, c, ictx, settleFn)
	}

	// Emission: drain settled calls strictly in input order (P2), streaming
	// as soon as a contiguous prefix is ready rather than buffering the
	// whole batch.
	go func() {
		for next := 0; next < n; next++ {
			c := calls[next]
			mu.Lock()
			for c.state != stateSettled {
				cond.Wait()
			}
			result := c.result
			mu.Unlock()
			events <- Event{Kind: EventResult, Result: result}
		}
		close(events)
	}()

	// Abort watcher.
	go func() {
		<-ctx.Done()
		var neverStarted, started []int
		mu.Lock()
		for i, c := range calls {
			if c.state == stateSettled {
				continue
			}
			if c.state == stateRunning {
				started = append(started, i)
			} else {
				neverStarted = append(neverStarted, i)
			}
		}
		mu.Unlock()

		for _, i := range neverStarted {
			settleFn(i, ResultMessage{
				ToolUseID:   calls[i].req.ToolUseID,
				Content:     transcript.InterruptMessageForToolUse,
				IsError:     true,
				Interrupted: true,
				Kind:        errkind.Cancelled,
			}, false)
		}
		if len(started) == 0 {
			return
		}
		timer := time.NewTimer(s.abortGrace)
		defer timer.Stop()
		<-timer.C
		for _, i := range started {
			select {
			case calls[i].forceCh <- ResultMessage{
				ToolUseID:   calls[i].req.ToolUseID,
				Content:     transcript.InterruptMessage,
				IsError:     true,
				Interrupted: true,
				Kind:        errkind.Cancelled,
			}:
			default:
			}
		}
	}()

	// Coordinator: launch calls strictly in order, respecting the barrier
	// rule (P3): a barrier only starts when nothing else is running, and
	// nothing else starts while a barrier is running.
	go func() {
		for i, c := range calls {
			<-c.preflightDone

			mu.Lock()
			if c.state == stateSettled {
				mu.Unlock()
				continue
			}
			if !c.needsRun {
				mu.Unlock()
				continue
			}

			blocked := (c.safe && barrierActive) || (!c.safe && runningCount > 0)
			if blocked {
				c.state = stateQueued
				mu.Unlock()
				events <- Event{Kind: EventProgress, Progress: ProgressMessage{
					ToolUseID: c.req.ToolUseID,
					Content:   transcript.QueuedProgressBody,
				}}
				mu.Lock()
			}

			for c.state != stateSettled && ((c.safe && barrierActive) || (!c.safe && runningCount > 0)) {
				cond.Wait()
			}
			if c.state == stateSettled {
				mu.Unlock()
				continue
			}

			c.state = stateRunning
			runningCount++
			if !c.safe {
				barrierActive = true
			}
			mu.Unlock()

			go s.runOne(ctx, i, c, ictx, events, settleFn)
		}
	}()

	return events
}

// preflight runs Validate, then (if valid) the permission gate, settling the
// call directly for any outcome that never needs to run.
func (s *Scheduler) preflight(ctx context.Context, i int, c *runCall, ictx tool.InvokeContext, settle func(int, ResultMessage, bool)) {
	defer close(c.preflightDone)

	d, ok := s.registry.Get(c.req.ToolName)
	if !ok {
		settle(i, ResultMessage{
			ToolUseID: c.req.ToolUseID,
			Content:   fmt.Sprintf("unknown tool %q", c.req.ToolName),
			IsError:   true,
			Kind:      errkind.Validation,
		}, false)
		c.needsRun = false
		return
	}
	c.descriptor = d

	if verr := d.Validate(c.req.Input); verr != nil {
		settle(i, ResultMessage{
			ToolUseID: c.req.ToolUseID,
			Content:   fmt.Sprintf("validation failed (%s): %s", verr.Kind, verr.Message),
			IsError:   true,
			Kind:      errkind.Validation,
		}, false)
		c.needsRun = false
		return
	}

	// P8: safety is only ever assessed for validated input; an invalid call
	// is settled above and never reaches this line, so it can never be
	// mistaken for a concurrency-safe participant.
	c.safe = d.IsConcurrencySafe(c.req.Input)

	needsPerm := d.NeedsPermissions(c.req.Input)
	subject := d.MatchSubject(c.req.Input)
	decision, rule := s.gate.Check(permission.CheckRequest{
		ToolName:        c.req.ToolName,
		MatchSubject:    subject,
		NeedsPermission: needsPerm,
		IsEditClass:     IsEditClass(c.req.ToolName),
	})

	if decision == permission.DecisionAsk {
		allowed, err := s.asker.Ask(ctx, c.req.ToolName, subject)
		if err != nil || !allowed {
			settle(i, ResultMessage{
				ToolUseID: c.req.ToolUseID,
				Content:   "permission denied: user declined",
				IsError:   true,
				Kind:      errkind.Permission,
			}, false)
			c.needsRun = false
			return
		}
		decision = permission.DecisionAllow
	}

	if decision == permission.DecisionDeny {
		reason := "denied by policy"
		if rule.Raw != "" {
			reason = fmt.Sprintf("denied by rule %q", rule.Raw)
		} else if s.gate.Mode() == string(permission.ModePlan) {
			reason = "denied: plan mode does not permit effectful tool calls"
		}
		settle(i, ResultMessage{
			ToolUseID: c.req.ToolUseID,
			Content:   reason,
			IsError:   true,
			Kind:      errkind.Permission,
		}, false)
		c.needsRun = false
		return
	}

	c.needsRun = true
}

// runOne invokes an already-started call and forwards its events, settling
// it exactly once: either from the tool's own terminal result, or from a
// forced cancellation (abort or sibling-sweep), whichever arrives first.
func (s *Scheduler) runOne(ctx context.Context, i int, c *runCall, ictx tool.InvokeContext, events chan<- Event, settle func(int, ResultMessage, bool)) {
	childCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	defer cancel()

	// A panicking tool must still settle exactly once. When the panic
	// coincides with this call's own context already having been cancelled
	// (abort/sweep raced the panic), report both causes rather than
	// discarding whichever one didn't win the race.
	defer func() {
		if r := recover(); r != nil {
			err := multierr.Combine(fmt.Errorf("tool panicked: %v", r), childCtx.Err())
			settle(i, ResultMessage{
				ToolUseID: c.req.ToolUseID,
				Content:   err.Error(),
				IsError:   true,
				Kind:      errkind.ToolInternal,
			}, true)
		}
	}()

	evCh, err := c.descriptor.Invoke(childCtx, c.req.Input, ictx)
	if err != nil {
		settle(i, ResultMessage{
			ToolUseID: c.req.ToolUseID,
			Content:   err.Error(),
			IsError:   true,
			Kind:      errkind.ToolInternal,
		}, true)
		return
	}

	limiter := rate.NewLimiter(rate.Every(s.progressInterval), 1)
	for {
		select {
		case forced := <-c.forceCh:
			settle(i, forced, true)
			return
		case ev, ok := <-evCh:
			if !ok {
				settle(i, ResultMessage{
					ToolUseID: c.req.ToolUseID,
					Content:   "tool closed its event stream without a result",
					IsError:   true,
					Kind:      errkind.ToolInternal,
				}, true)
				return
			}
			switch ev.Kind {
			case tool.EventProgress:
				if limiter.Allow() {
					events <- Event{Kind: EventProgress, Progress: ProgressMessage{
						ToolUseID: c.req.ToolUseID,
						Content:   transcript.WrapProgress(ev.Progress),
					}}
				}
			case tool.EventResult:
				kind := errkind.ToolInternal
				if !ev.Result.IsError {
					kind = ""
				}
				if ev.Result.Kind != "" {
					kind = ev.Result.Kind
				}
				settle(i, ResultMessage{
					ToolUseID: c.req.ToolUseID,
					Content:   ev.Result.RenderForAssistant,
					IsError:   ev.Result.IsError,
					Kind:      kind,
				}, true)
				return
			}
		}
	}
}

// sweepSiblings implements P4: once a non-validation error (other than a
// user-abort cancellation) settles call origin, every other call still
// Running or Queued is force-settled with the sibling-cancelled sentinel.
func (s *Scheduler) sweepSiblings(calls []*runCall, origin int, mu *sync.Mutex, settle func(int, ResultMessage, bool)) {
	mu.Lock()
	var toSweep []int
	for j, c := range calls {
		if j == origin {
			continue
		}
		if c.state == stateRunning || c.state == stateQueued {
			toSweep = append(toSweep, j)
		}
	}
	mu.Unlock()

	for _, j := range toSweep {
		c := calls[j]
		result := ResultMessage{
			ToolUseID: c.req.ToolUseID,
			Content:   transcript.SiblingCancelledBody,
			IsError:   true,
			Kind:      errkind.SiblingCancelled,
		}
		mu.Lock()
		alreadyRunning := c.state == stateRunning
		mu.Unlock()
		if c.cancel != nil {
			c.cancel()
		}
		if alreadyRunning {
			select {
			case c.forceCh <- result:
			default:
			}
		} else {
			settle(j, result, false)
		}
	}
}
