// Package workflow implements the Workflow Engine (spec §4.3): a
// declarative step graph executed against live capabilities through the
// Router, with secret-scan and budget pre-execution gates, retry with
// backoff, token/cost tabulation, and a fixed two-transactions-per-
// execution persistence model.
package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/opencore/mcpgate/internal/errs"
	"github.com/opencore/mcpgate/internal/ids"
	"github.com/opencore/mcpgate/internal/logging"
	"github.com/opencore/mcpgate/internal/ratelimit"
	"github.com/opencore/mcpgate/internal/router"
	"github.com/opencore/mcpgate/internal/secretscan"
	"github.com/opencore/mcpgate/internal/storage"
	"github.com/opencore/mcpgate/internal/storage/model"
	"github.com/opencore/mcpgate/internal/workflow/tmpl"
)

// EventPublisher is the narrow slice of the Event Fabric the Engine needs.
type EventPublisher interface {
	Publish(kind string, payload any)
}

// Config configures engine-wide defaults.
type Config struct {
	DefaultTimeout         time.Duration
	DefaultRateLimitPolicy ratelimit.Policy
	Pricing                PricingTable
	EstimatedCostPerStep   float64
}

func (c Config) withDefaults() Config {
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = 5 * time.Minute
	}
	if c.Pricing == nil {
		c.Pricing = PricingTable{}
	}
	return c
}

// Engine owns in-flight Execution state exclusively; once an execution
// completes, ownership of its record passes to the durable store (spec
// §4.1's ownership rule, generalized from Connections to Executions).
type Engine struct {
	log        *logging.Logger
	workflows  storage.WorkflowStore
	executions storage.ExecutionStore
	scanner    *secretscan.Scanner
	budget     *BudgetEnforcer
	router     *router.Router
	events     EventPublisher
	cfg        Config
}

func New(log *logging.Logger, workflows storage.WorkflowStore, executions storage.ExecutionStore, scanner *secretscan.Scanner, budget *BudgetEnforcer, r *router.Router, events EventPublisher, cfg Config) *Engine {
	return &Engine{
		log: log, workflows: workflows, executions: executions,
		scanner: scanner, budget: budget, router: r, events: events, cfg: cfg.withDefaults(),
	}
}

// CreateWorkflow secret-scans the full definition before persisting it;
// a match aborts the write entirely (spec §4.3's pre-execution gate,
// applied here at creation time since that's the earliest a leaked
// credential could be caught).
func (e *Engine) CreateWorkflow(ctx context.Context, wf model.Workflow) error {
	matches, err := e.scanner.Scan(wf)
	if err != nil {
		return errs.Internal("scan workflow definition", err)
	}
	if len(matches) > 0 {
		paths := make([]string, len(matches))
		for i, m := range matches {
			paths[i] = m.JSONPath
		}
		return errs.SecretDetected(paths)
	}
	return e.workflows.Create(ctx, wf)
}

// UpdateWorkflow re-scans the full definition before persisting an update,
// same gate as creation.
func (e *Engine) UpdateWorkflow(ctx context.Context, wf model.Workflow) error {
	matches, err := e.scanner.Scan(wf)
	if err != nil {
		return errs.Internal("scan workflow definition", err)
	}
	if len(matches) > 0 {
		paths := make([]string, len(matches))
		for i, m := range matches {
			paths[i] = m.JSONPath
		}
		return errs.SecretDetected(paths)
	}
	return e.workflows.Update(ctx, wf)
}

// Execute admits, persists, and starts a workflow execution, returning
// its id synchronously with status "running"; the step graph runs in a
// background goroutine (spec §6: "execute returns execution id
// synchronously, status running").
func (e *Engine) Execute(ctx context.Context, workflowID, tenantID, triggeredBy string, input map[string]any) (string, error) {
	wf, err := e.workflows.Get(ctx, workflowID)
	if err != nil {
		return "", errs.NotFound("workflow", workflowID)
	}
	if !wf.Enabled {
		return "", errs.Conflict("workflow is disabled")
	}

	total := countSteps(wf.Steps)
	expectedCost := float64(total) * e.cfg.EstimatedCostPerStep
	if e.budget != nil {
		if err := e.budget.Admit(ctx, workflowID, tenantID, expectedCost); err != nil {
			return "", err
		}
	}

	nodes := flatten(wf.Steps)
	execID := ids.New()
	exec := model.Execution{
		ID: execID, WorkflowID: workflowID, Status: model.ExecPending,
		Input: input, TriggeredBy: triggeredBy, StartedAt: time.Now(),
	}
	steps := make([]model.ExecutionStep, len(nodes))
	for i, n := range nodes {
		steps[i] = model.ExecutionStep{
			ID: ids.New(), ExecutionID: execID, Position: n.position,
			Name: n.step.Name, Status: model.StepPending,
		}
	}
	if err := e.executions.CreateExecution(ctx, exec); err != nil {
		return "", errs.Internal("create execution", err)
	}
	if err := e.executions.PutSteps(ctx, steps); err != nil {
		return "", errs.Internal("persist initial step rows", err)
	}

	r := &runner{
		eng: e, wf: wf, execID: execID, tenantID: tenantID, callerKeyID: triggeredBy,
		execCtx: newExecutionContext(input),
		records: make(map[string]*model.ExecutionStep, len(steps)),
	}
	for i := range steps {
		r.records[steps[i].Name] = &steps[i]
	}

	go e.run(r, exec)

	return execID, nil
}

func (e *Engine) run(r *runner, exec model.Execution) {
	timeout := e.cfg.DefaultTimeout
	if r.wf.TimeoutMs > 0 {
		timeout = time.Duration(r.wf.TimeoutMs) * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	exec.Status = model.ExecRunning

	stepErr := r.runSteps(ctx, r.wf.Steps)
	timedOut := ctx.Err() == context.DeadlineExceeded

	r.mu.Lock()
	for _, rec := range r.records {
		if rec.Status == model.StepPending {
			// Untaken branches and siblings after a "stop" failure are
			// skipped; steps still pending because the workflow's
			// timeout fired are cancelled instead (spec §4.3
			// "Cancellation and timeouts").
			if timedOut {
				rec.Status = model.StepCancelled
			} else {
				rec.Status = model.StepSkipped
			}
			rec.CompletedAt = time.Now()
		}
	}
	finalSteps := make([]model.ExecutionStep, 0, len(r.records))
	var totalTokens int64
	var totalCost float64
	for _, rec := range r.records {
		finalSteps = append(finalSteps, *rec)
		totalTokens += rec.TokensUsed
		totalCost += rec.CostCredits
	}
	r.mu.Unlock()

	exec.CompletedAt = time.Now()
	if stepErr != nil {
		if ctx.Err() == context.DeadlineExceeded {
			exec.Error = "workflow execution timed out"
		} else {
			exec.Error = stepErr.Error()
		}
		exec.Status = model.ExecFailed
	} else {
		exec.Status = model.ExecCompleted
		exec.Output = r.execCtx.ToMap()
	}

	if err := e.executions.PutSteps(context.Background(), finalSteps); err != nil {
		e.log.WithError(err).Warn("failed to persist final step records")
	}
	if err := e.executions.UpdateExecution(context.Background(), exec); err != nil {
		e.log.WithError(err).Warn("failed to persist final execution record")
	}

	if e.budget != nil && totalCost > 0 {
		if err := e.budget.RecordCost(context.Background(), r.wf.ID, r.tenantID, totalCost); err != nil {
			e.log.WithError(err).Warn("failed to record workflow cost against budgets")
		}
	}

	if e.events != nil {
		kind := "workflow.completed"
		if exec.Status == model.ExecFailed {
			kind = "workflow.failed"
		}
		e.events.Publish(kind, map[string]any{
			"execution_id": exec.ID, "workflow_id": r.wf.ID, "status": string(exec.Status),
			"duration_ms": exec.CompletedAt.Sub(exec.StartedAt).Milliseconds(),
		})
	}
}

// stepNode is one entry of the definition's flattened, pre-order node
// list: every node (including condition/parallel containers and both
// branches of a condition) gets a position and a pending row up front, so
// an untaken branch naturally ends the execution still "pending" and is
// swept to "skipped" at completion.
type stepNode struct {
	step     model.Step
	position int
}

func flatten(steps []model.Step) []stepNode {
	counter := 0
	return flattenFrom(steps, &counter)
}

func flattenFrom(steps []model.Step, counter *int) []stepNode {
	var out []stepNode
	for _, s := range steps {
		out = append(out, stepNode{step: s, position: *counter})
		*counter++
		switch s.Kind {
		case model.StepCondition:
			out = append(out, flattenFrom(s.Then, counter)...)
			out = append(out, flattenFrom(s.Else, counter)...)
		case model.StepParallel:
			out = append(out, flattenFrom(s.Children, counter)...)
		}
	}
	return out
}

func countSteps(steps []model.Step) int {
	return len(flatten(steps))
}

// runner carries one execution's mutable state through the step graph.
type runner struct {
	eng         *Engine
	wf          model.Workflow
	execID      string
	tenantID    string
	callerKeyID string
	execCtx     *ExecutionContext

	mu      sync.Mutex
	records map[string]*model.ExecutionStep
}

func (r *runner) recordFor(name string) *model.ExecutionStep {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.records[name]
}

// runSteps executes a sibling list in definition order (spec §5:
// "sequential steps are observed in definition order"); the first step
// whose on-error policy is "stop" and which fails aborts the remaining
// siblings at this level.
func (r *runner) runSteps(ctx context.Context, steps []model.Step) error {
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.runStep(ctx, step); err != nil {
			return err
		}
	}
	return nil
}

func (r *runner) runStep(ctx context.Context, step model.Step) error {
	rec := r.recordFor(step.Name)

	// Generic skip-gate (spec §4.3 per-step execution, step 1): applies
	// ahead of dispatch regardless of kind. The condition kind already
	// consumes step.Condition for its own then/else branch selection, so
	// it is excluded here to avoid evaluating the same expression twice
	// with two different meanings.
	if step.Kind != model.StepCondition && step.Condition != "" {
		ok, err := evalCondition(step.Condition, r.execCtx.ToMap())
		if err != nil {
			return r.finishFailed(rec, err)
		}
		if !ok {
			r.finishSkipped(rec)
			return nil
		}
	}

	r.mu.Lock()
	rec.Status = model.StepRunning
	rec.StartedAt = time.Now()
	r.mu.Unlock()
	if r.eng.events != nil {
		r.eng.events.Publish("workflow.step.started", map[string]any{"execution_id": r.execID, "name": step.Name})
	}

	switch step.Kind {
	case model.StepCondition:
		return r.runCondition(ctx, step, rec)
	case model.StepParallel:
		return r.runParallel(ctx, step, rec)
	default:
		return r.runLeaf(ctx, step, rec)
	}
}

func (r *runner) runCondition(ctx context.Context, step model.Step, rec *model.ExecutionStep) error {
	ok, err := evalCondition(step.Condition, r.execCtx.ToMap())
	if err != nil {
		return r.finishFailed(rec, err)
	}
	branch := step.Else
	taken := "else"
	if ok {
		branch = step.Then
		taken = "then"
	}
	r.execCtx.SetOutput(step.Name, map[string]any{"branch": taken})
	r.finishSucceeded(rec, map[string]any{"branch": taken}, usageTokens{})
	return r.runSteps(ctx, branch)
}

func (r *runner) runParallel(ctx context.Context, step model.Step, rec *model.ExecutionStep) error {
	var wg sync.WaitGroup
	errCh := make(chan error, len(step.Children))
	for _, child := range step.Children {
		wg.Add(1)
		go func(child model.Step) {
			defer wg.Done()
			if err := r.runStep(ctx, child); err != nil {
				errCh <- err
			}
		}(child)
	}
	wg.Wait()
	close(errCh)

	var firstErr error
	for err := range errCh {
		if firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil && step.OnError == model.OnErrorStop {
		return r.finishFailed(rec, firstErr)
	}
	r.finishSucceeded(rec, nil, usageTokens{})
	return nil
}

// runLeaf dispatches a tool/prompt/resource step through the Router,
// applying the retry policy's geometric backoff and the on-error policy
// on exhaustion (spec §4.3's per-step execution steps 2-6).
func (r *runner) runLeaf(ctx context.Context, step model.Step, rec *model.ExecutionStep) error {
	config, err := tmpl.InterpolateConfig(step.Config, r.execCtx.ToMap())
	if err != nil {
		return r.applyOnError(step, rec, err)
	}

	maxAttempts := step.Retry.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		res := r.invoke(ctx, step, config)
		if res.Err == nil {
			usage := extractUsage(res.Raw)
			cost := r.eng.cfg.Pricing.cost(usage)
			var output any
			if jsonErr := json.Unmarshal(res.Raw, &output); jsonErr != nil {
				output = string(res.Raw)
			}
			r.execCtx.SetOutput(step.Name, output)
			r.finishSucceeded(rec, output, usage)
			r.mu.Lock()
			rec.CostCredits = cost
			rec.ModelName = usage.ModelName
			r.mu.Unlock()
			return nil
		}
		lastErr = res.Err
		if attempt == maxAttempts || !errs.Recoverable(res.Err) {
			break
		}
		wait := geometricBackoff(step.Retry.BackoffMs, attempt)
		if ge, ok := errs.As(res.Err); ok {
			if retryAfter := ge.RetryAfter(); retryAfter > wait {
				wait = retryAfter
			}
		}
		select {
		case <-ctx.Done():
			lastErr = ctx.Err()
			attempt = maxAttempts
		case <-time.After(wait):
		}
		r.mu.Lock()
		rec.RetryCount++
		r.mu.Unlock()
	}

	return r.applyOnError(step, rec, lastErr)
}

func (r *runner) invoke(ctx context.Context, step model.Step, config map[string]any) router.Result {
	switch step.Kind {
	case model.StepTool:
		name, _ := config["tool"].(string)
		params, _ := config["params"].(map[string]any)
		return r.eng.router.Invoke(ctx, router.CallSpec{
			Kind: model.CapabilityTool, Name: name, Params: params, CallerKeyID: r.callerKeyID,
		}, r.eng.cfg.DefaultRateLimitPolicy)
	case model.StepPrompt:
		name, _ := config["prompt"].(string)
		params, _ := config["params"].(map[string]any)
		return r.eng.router.Invoke(ctx, router.CallSpec{
			Kind: model.CapabilityPrompt, Name: name, Params: params, CallerKeyID: r.callerKeyID,
		}, r.eng.cfg.DefaultRateLimitPolicy)
	case model.StepResource:
		uri, _ := config["uri"].(string)
		return r.eng.router.Invoke(ctx, router.CallSpec{
			Kind: model.CapabilityResource, Name: uri, CallerKeyID: r.callerKeyID,
		}, r.eng.cfg.DefaultRateLimitPolicy)
	default:
		return router.Result{Err: fmt.Errorf("workflow: unsupported leaf step kind %q", step.Kind)}
	}
}

func (r *runner) applyOnError(step model.Step, rec *model.ExecutionStep, cause error) error {
	r.execCtx.SetError(step.Name, cause.Error())
	if r.eng.events != nil {
		r.eng.events.Publish("workflow.step.failed", map[string]any{"execution_id": r.execID, "name": step.Name, "error": cause.Error()})
	}
	switch step.OnError {
	case model.OnErrorContinue:
		r.mu.Lock()
		rec.Status = model.StepFailed
		rec.Error = cause.Error()
		rec.Output = map[string]any{"error": cause.Error()}
		rec.CompletedAt = time.Now()
		r.mu.Unlock()
		return nil
	default: // stop, retry-exhausted
		return r.finishFailed(rec, cause)
	}
}

func (r *runner) finishSkipped(rec *model.ExecutionStep) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec.Status = model.StepSkipped
	rec.CompletedAt = time.Now()
}

func (r *runner) finishFailed(rec *model.ExecutionStep, cause error) error {
	r.mu.Lock()
	rec.Status = model.StepFailed
	rec.Error = cause.Error()
	rec.CompletedAt = time.Now()
	r.mu.Unlock()
	return cause
}

func (r *runner) finishSucceeded(rec *model.ExecutionStep, output any, usage usageTokens) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec.Status = model.StepCompleted
	rec.CompletedAt = time.Now()
	if !rec.StartedAt.IsZero() {
		rec.DurationMs = rec.CompletedAt.Sub(rec.StartedAt).Milliseconds()
	}
	rec.TokensUsed = usage.PromptTokens + usage.CompletionTokens
	if r.eng.events != nil {
		r.eng.events.Publish("workflow.step.completed", map[string]any{"execution_id": r.execID, "name": rec.Name})
	}
}
