// Package sandbox runs untrusted player code in a throwaway,
// capability-reduced JavaScript runtime with a hard timeout.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"

	"digital.vasic.prompthunter/pkg/logging"
	"digital.vasic.prompthunter/pkg/metrics"
)

// DefaultTimeout bounds a single run.
const DefaultTimeout = 500 * time.Millisecond

// Reason classifies how a run ended.
type Reason string

const (
	ReasonPassed     Reason = "passed"
	ReasonFailed     Reason = "failed"
	ReasonTimeout    Reason = "timeout"
	ReasonNonBoolean Reason = "non_boolean"
	ReasonException  Reason = "exception"
)

// Outcome is the verdict of one run. OK is true only for
// ReasonPassed.
type Outcome struct {
	OK     bool
	Reason Reason
	Error  string
}

// Executor evaluates a predicate against player input.
type Executor interface {
	Run(ctx context.Context, code, input string) Outcome
}

// Option configures a JSExecutor.
type Option func(*JSExecutor)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(e *JSExecutor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithLogger sets the logger used for run diagnostics.
func WithLogger(l logging.Logger) Option {
	return func(e *JSExecutor) { e.logger = logging.OrNull(l) }
}

// WithMetrics sets where leaked runs are counted.
func WithMetrics(m metrics.ValidationMetrics) Option {
	return func(e *JSExecutor) { e.metrics = metrics.OrNoop(m) }
}

// JSExecutor implements Executor with goja. Each Run gets a fresh
// runtime that is discarded afterwards.
//
// Interrupt only takes effect between JS instructions. A run stuck
// inside a native call keeps its goroutine and runtime until the
// call returns; such runs are counted as leaked.
type JSExecutor struct {
	timeout time.Duration
	grace   time.Duration
	logger  logging.Logger
	metrics metrics.ValidationMetrics
	leaked  atomic.Int64

	// prepare runs on each fresh runtime after it is restricted.
	prepare func(vm *goja.Runtime) error
}

// NewJSExecutor creates a JSExecutor.
func NewJSExecutor(opts ...Option) *JSExecutor {
	e := &JSExecutor{
		timeout: DefaultTimeout,
		grace:   200 * time.Millisecond,
		logger:  logging.NullLogger{},
		metrics: metrics.NoopMetrics{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Leaked returns how many timed-out runs were still executing after
// the grace period.
func (e *JSExecutor) Leaked() int64 { return e.leaked.Load() }

// Timeout returns the configured run limit.
func (e *JSExecutor) Timeout() time.Duration { return e.timeout }

var errTimedOut = errors.New("sandbox timeout")

// Run evaluates code against input. The code is either a function
// body whose return value is the verdict, or it declares
// validate(input) whose truthiness is the verdict. Run never
// panics and never returns an error; every failure is an Outcome.
func (e *JSExecutor) Run(ctx context.Context, code, input string) Outcome {
	vm := goja.New()
	if err := restrict(vm); err != nil {
		return Outcome{Reason: ReasonException, Error: err.Error()}
	}
	if e.prepare != nil {
		if err := e.prepare(vm); err != nil {
			return Outcome{Reason: ReasonException, Error: err.Error()}
		}
	}

	done := make(chan Outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- Outcome{
					Reason: ReasonException,
					Error:  fmt.Sprintf("runtime panic: %v", r),
				}
			}
		}()
		done <- evaluate(vm, code, input)
	}()

	timer := time.NewTimer(e.timeout)
	defer timer.Stop()

	var cause error
	select {
	case out := <-done:
		return out
	case <-timer.C:
		cause = errTimedOut
	case <-ctx.Done():
		cause = ctx.Err()
	}

	vm.Interrupt(cause)
	// The late result is dropped; waiting only lets the goroutine
	// unwind before the runtime is released.
	select {
	case <-done:
	case <-time.After(e.grace):
		n := e.leaked.Add(1)
		e.metrics.RecordSandboxLeak()
		e.logger.Warn("sandbox run did not stop after interrupt",
			logging.DurationField("grace_ms", e.grace),
			logging.LogField("leaked_total", n),
		)
	}
	e.logger.Debug("sandbox run interrupted",
		logging.ErrorField(cause),
		logging.DurationField("timeout_ms", e.timeout),
	)
	return Outcome{Reason: ReasonTimeout, Error: "Timeout"}
}

// blockedGlobals are removed before player code runs.
var blockedGlobals = []string{
	"require",
	"fetch",
	"XMLHttpRequest",
	"WebSocket",
	"importScripts",
	"postMessage",
	"eval",
	"Function",
}

// functionKinds are the function literals whose prototypes carry a
// constructor that compiles source text.
var functionKinds = []string{
	"(function () {})",
	"(function* () {})",
	"(async function () {})",
	"(async function* () {})",
}

// sealPrograms removes the constructor of each function kind the
// runtime can compile. Kinds it cannot parse have no prototype to
// seal.
var sealPrograms = sync.OnceValue(func() []*goja.Program {
	var out []*goja.Program
	for _, kind := range functionKinds {
		if _, err := goja.Compile("", kind, true); err != nil {
			continue
		}
		prg, err := goja.Compile("restrict.js", `Object.defineProperty(Object.getPrototypeOf(`+kind+`), "constructor", {
  value: undefined, writable: false, configurable: false
});`, false)
		if err != nil {
			continue
		}
		out = append(out, prg)
	}
	return out
})

// restrict strips the runtime's dynamic-code and I/O surface. The
// constructor of every function kind is cut off too, so Function
// cannot be recovered through a function value or its prototype.
func restrict(vm *goja.Runtime) error {
	for _, prg := range sealPrograms() {
		if _, err := vm.RunProgram(prg); err != nil {
			return fmt.Errorf("restrict runtime: %w", err)
		}
	}
	for _, name := range blockedGlobals {
		if err := vm.Set(name, goja.Undefined()); err != nil {
			return fmt.Errorf("restrict runtime %s: %w", name, err)
		}
	}
	return nil
}

// wrap turns player code into func(input). The body runs first and
// its exception is held back. A validate function declared by the
// body then decides. Otherwise the body's return value is the
// verdict, or its exception is rethrown.
func wrap(code string) string {
	return `(function (input) {
"use strict";
var __peek, __result, __failure, __threw = false;
try {
  __result = (function () {
    __peek = function () { return typeof validate === "function" ? validate : undefined; };
` + code + `
  })();
} catch (e) {
  __threw = true;
  __failure = e;
}
var __validate;
try { __validate = __peek && __peek(); } catch (_) {}
if (__validate) {
  try { return !!__validate(input); } catch (_) { return false; }
}
if (__threw) { throw __failure; }
return __result;
})`
}

func evaluate(vm *goja.Runtime, code, input string) Outcome {
	fnValue, err := vm.RunScript("player.js", wrap(code))
	if err != nil {
		return fromError(err)
	}
	fn, ok := goja.AssertFunction(fnValue)
	if !ok {
		return Outcome{Reason: ReasonException, Error: "player code did not compile to a function"}
	}

	result, err := fn(goja.Undefined(), vm.ToValue(input))
	if err != nil {
		return fromError(err)
	}

	verdict, ok := result.Export().(bool)
	if !ok {
		return Outcome{Reason: ReasonNonBoolean, Error: "Non-boolean result"}
	}
	if verdict {
		return Outcome{OK: true, Reason: ReasonPassed}
	}
	return Outcome{Reason: ReasonFailed}
}

func fromError(err error) Outcome {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return Outcome{Reason: ReasonTimeout, Error: "Timeout"}
	}
	var exception *goja.Exception
	if errors.As(err, &exception) {
		return Outcome{Reason: ReasonException, Error: exception.Value().String()}
	}
	return Outcome{Reason: ReasonException, Error: err.Error()}
}
