package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"deepresearch/internal/logging"
	"deepresearch/internal/observability"
	"deepresearch/internal/server/ports"
	id "deepresearch/internal/utils/id"
)

// StepHook observes every step written by the orchestrator, after the store
// accepted it.
type StepHook interface {
	OnStep(taskID string, step ports.Step)
}

// StepHookFunc adapts a function to StepHook.
type StepHookFunc func(taskID string, step ports.Step)

func (f StepHookFunc) OnStep(taskID string, step ports.Step) { f(taskID, step) }

// ResearchOrchestrator drives one task through
// planning -> gathering -> extracting -> drafting -> done, writing every
// observable event to the task store as it happens.
type ResearchOrchestrator struct {
	store    ports.TaskStore
	caps     ports.Capabilities
	profiles ports.ModeProfiles
	hooks    []StepHook
	metrics  *observability.PipelineMetrics
	tracer   *observability.TracerProvider
	logger   logging.Logger
	now      func() time.Time
}

// OrchestratorOption customizes the orchestrator.
type OrchestratorOption func(*ResearchOrchestrator)

// WithModeProfiles overrides the pipeline sizing per mode.
func WithModeProfiles(profiles ports.ModeProfiles) OrchestratorOption {
	return func(o *ResearchOrchestrator) {
		if len(profiles) > 0 {
			o.profiles = profiles
		}
	}
}

// WithStepHooks registers step observers.
func WithStepHooks(hooks ...StepHook) OrchestratorOption {
	return func(o *ResearchOrchestrator) {
		for _, hook := range hooks {
			if hook != nil {
				o.hooks = append(o.hooks, hook)
			}
		}
	}
}

// WithObservability wires pipeline metrics and tracing.
func WithObservability(obs *observability.Observability) OrchestratorOption {
	return func(o *ResearchOrchestrator) {
		if obs == nil {
			return
		}
		o.metrics = obs.Pipeline
		o.tracer = obs.Tracer
	}
}

// WithClock overrides the clock used for step timestamps.
func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *ResearchOrchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// NewResearchOrchestrator wires the pipeline to its store and adapters.
func NewResearchOrchestrator(store ports.TaskStore, caps ports.Capabilities, opts ...OrchestratorOption) *ResearchOrchestrator {
	o := &ResearchOrchestrator{
		store:    store,
		caps:     caps,
		profiles: ports.DefaultModeProfiles(),
		logger:   logging.NewComponentLogger("ResearchOrchestrator"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// taskRun carries the per-invocation state of one pipeline execution.
type taskRun struct {
	o       *ResearchOrchestrator
	task    *ports.ResearchTask
	profile ports.ModeProfile
	logger  logging.Logger
	// writeCtx outlives cancellation so the terminal status can still be recorded.
	writeCtx context.Context
	status   ports.TaskStatus
}

// Run executes the pipeline for taskID. It returns the error that ended the
// task in status=error, or nil when the task finished as done.
func (o *ResearchOrchestrator) Run(ctx context.Context, taskID string) (err error) {
	ctx = id.WithTaskID(ctx, taskID)
	task, err := o.store.Get(ctx, taskID)
	if err != nil {
		return err
	}
	if task.Status.IsTerminal() {
		return fmt.Errorf("%w: %s", ports.ErrTaskFrozen, taskID)
	}

	run := &taskRun{
		o:        o,
		task:     task,
		profile:  o.profiles.For(task.Mode),
		logger:   logging.FromContext(ctx, o.logger),
		writeCtx: context.WithoutCancel(ctx),
		status:   ports.TaskStatusError,
	}

	ctx, span := o.tracer.StartSpan(ctx, observability.SpanResearchTask,
		attribute.String(observability.AttrMode, string(task.Mode)))
	o.metrics.TaskStarted()
	defer func() {
		o.metrics.TaskFinished(run.status)
		observability.EndSpan(span, err)
	}()

	run.logger.Info("research started: mode=%s goal=%q", task.Mode, task.Goal)
	start := o.now()
	err = run.execute(ctx)
	if err != nil {
		run.logger.Warn("research ended with error after %s: %v", o.now().Sub(start), err)
		return err
	}
	run.status = ports.TaskStatusDone
	run.logger.Info("research completed in %s", o.now().Sub(start))
	return nil
}

func (r *taskRun) execute(ctx context.Context) error {
	plan, err := r.planStage(ctx)
	if err != nil {
		return err
	}
	if err := r.checkCancelled(ctx, ports.StepKindGathering); err != nil {
		return err
	}

	evidence, err := r.gatherStage(ctx, plan)
	if err != nil {
		return err
	}
	if err := r.checkCancelled(ctx, ports.StepKindExtracting); err != nil {
		return err
	}

	claims, err := r.extractStage(ctx, evidence)
	if err != nil {
		return err
	}
	if err := r.checkCancelled(ctx, ports.StepKindDrafting); err != nil {
		return err
	}

	return r.draftStage(ctx, plan, evidence, claims)
}

func (r *taskRun) planStage(ctx context.Context) ([]ports.PlanQuestion, error) {
	ctx, span := r.o.tracer.StartSpan(ctx, observability.SpanResearchStage, observability.StageAttrs(string(ports.StepKindPlanning))...)
	step := r.beginStep(ports.Step{
		ID:    string(ports.StepKindPlanning),
		Kind:  ports.StepKindPlanning,
		Label: "Planning research questions",
	})

	questions, err := r.o.caps.Planner.Plan(ctx, r.task.Goal, r.task.Mode)
	if cancelErr := cancellation(ctx); cancelErr != nil {
		observability.EndSpan(span, cancelErr)
		return nil, r.abort(step, cancelErr)
	}
	if err == nil {
		questions = normalizePlan(questions, r.profile.MaxQuestions)
		if len(questions) == 0 {
			err = errors.New("planner produced no questions")
		}
	}
	if err != nil {
		err = wrapStage(err, ports.ErrPlanningFailed)
		observability.EndSpan(span, err)
		return nil, r.abort(step, err)
	}

	r.finishStep(step, ports.StepStatusOK, fmt.Sprintf("Planned %d questions", len(questions)), "", ports.TaskPatch{Plan: questions})
	observability.EndSpan(span, nil)
	return questions, nil
}

func (r *taskRun) extractStage(ctx context.Context, evidence []ports.EvidenceCard) ([]ports.Claim, error) {
	step := r.beginStep(ports.Step{
		ID:    string(ports.StepKindExtracting),
		Kind:  ports.StepKindExtracting,
		Label: "Extracting claims",
	})
	if len(evidence) == 0 {
		r.finishStep(step, ports.StepStatusSkipped, "No evidence to extract claims from", "", ports.TaskPatch{Claims: []ports.Claim{}})
		return []ports.Claim{}, nil
	}

	ctx, span := r.o.tracer.StartSpan(ctx, observability.SpanResearchStage, observability.StageAttrs(string(ports.StepKindExtracting))...)
	claims, err := r.o.caps.Extractor.Extract(ctx, evidence)
	if cancelErr := cancellation(ctx); cancelErr != nil {
		observability.EndSpan(span, cancelErr)
		return nil, r.abort(step, cancelErr)
	}
	if err != nil {
		err = wrapStage(err, ports.ErrExtractionFailed)
		observability.EndSpan(span, err)
		r.logger.Warn("extraction failed, continuing without claims: %v", err)
		r.finishStep(step, ports.StepStatusFailed, "Claim extraction failed", err.Error(), ports.TaskPatch{Claims: []ports.Claim{}})
		return []ports.Claim{}, nil
	}

	valid, dropped := validateClaims(claims, evidence)
	if dropped > 0 {
		r.logger.Warn("dropped %d claims citing unknown or no evidence", dropped)
	}
	r.finishStep(step, ports.StepStatusOK, fmt.Sprintf("Extracted %d claims", len(valid)), "", ports.TaskPatch{Claims: valid})
	observability.EndSpan(span, nil)
	return valid, nil
}

func (r *taskRun) draftStage(ctx context.Context, plan []ports.PlanQuestion, evidence []ports.EvidenceCard, claims []ports.Claim) error {
	ctx, span := r.o.tracer.StartSpan(ctx, observability.SpanResearchStage, observability.StageAttrs(string(ports.StepKindDrafting))...)
	step := r.beginStep(ports.Step{
		ID:    string(ports.StepKindDrafting),
		Kind:  ports.StepKindDrafting,
		Label: "Drafting report",
	})

	draft, err := r.o.caps.Drafter.Draft(ctx, ports.DraftRequest{
		Goal:     r.task.Goal,
		Mode:     r.task.Mode,
		Plan:     plan,
		Claims:   claims,
		Evidence: evidence,
	})
	if cancelErr := cancellation(ctx); cancelErr != nil {
		observability.EndSpan(span, cancelErr)
		return r.abort(step, cancelErr)
	}
	if err != nil {
		err = wrapStage(err, ports.ErrDraftingFailed)
		observability.EndSpan(span, err)
		return r.abort(step, err)
	}

	r.finishStep(step, ports.StepStatusOK, "Report drafted", "", ports.TaskPatch{
		Draft:  &draft,
		Status: ports.StatusPtr(ports.TaskStatusDone),
	})
	observability.EndSpan(span, nil)
	return nil
}

// checkCancelled records a cancelled task against the stage that was about to start.
func (r *taskRun) checkCancelled(ctx context.Context, next ports.StepKind) error {
	err := cancellation(ctx)
	if err == nil {
		return nil
	}
	step := ports.Step{ID: string(next), Kind: next, Label: "Cancelled before " + string(next), StartedAt: r.o.now()}
	return r.abort(step, err)
}

// cancellation maps a done context to ErrTaskCancelled.
func cancellation(ctx context.Context) error {
	if ctx.Err() == nil {
		return nil
	}
	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, ports.ErrTaskCancelled) {
		return fmt.Errorf("%w: %v", ports.ErrTaskCancelled, cause)
	}
	return ports.ErrTaskCancelled
}

// abort fails step and ends the task in status=error with err's message.
func (r *taskRun) abort(step ports.Step, err error) error {
	message := err.Error()
	if errors.Is(err, ports.ErrTaskCancelled) {
		message = ports.ErrTaskCancelled.Error()
	}
	r.finishStep(step, ports.StepStatusFailed, step.Label, message, ports.TaskPatch{
		Status:       ports.StatusPtr(ports.TaskStatusError),
		ErrorMessage: ports.StringPtr(message),
	})
	return err
}

func (r *taskRun) beginStep(step ports.Step) ports.Step {
	step.Status = ports.StepStatusRunning
	step.StartedAt = r.o.now()
	step.FinishedAt = nil
	r.write(ports.TaskPatch{Steps: []ports.Step{step}})
	return step
}

func (r *taskRun) finishStep(step ports.Step, status ports.StepStatus, label, errMessage string, patch ports.TaskPatch) {
	finished := r.o.now()
	step.Status = status
	step.FinishedAt = &finished
	if label != "" {
		step.Label = label
	}
	step.ErrorMessage = errMessage
	patch.Steps = append(patch.Steps, step)
	r.write(patch)
}

// write applies patch and notifies hooks for every step it carried. Store
// failures are logged; the pipeline keeps going so the terminal status still
// has a chance to land.
func (r *taskRun) write(patch ports.TaskPatch) bool {
	if err := r.o.store.Update(r.writeCtx, r.task.ID, patch); err != nil {
		r.logger.Error("store update failed: %v", err)
		return false
	}
	for _, step := range patch.Steps {
		for _, hook := range r.o.hooks {
			hook.OnStep(r.task.ID, step)
		}
	}
	return true
}

// wrapStage tags err with the stage sentinel unless it already carries it.
func wrapStage(err error, sentinel error) error {
	if err == nil || errors.Is(err, sentinel) {
		return err
	}
	return fmt.Errorf("%w: %v", sentinel, err)
}

// normalizePlan drops blank questions, assigns missing or duplicate ids and
// caps the plan length.
func normalizePlan(questions []ports.PlanQuestion, limit int) []ports.PlanQuestion {
	out := make([]ports.PlanQuestion, 0, len(questions))
	seen := make(map[string]struct{}, len(questions))
	for _, q := range questions {
		text := strings.TrimSpace(q.Text)
		if text == "" {
			continue
		}
		if limit > 0 && len(out) >= limit {
			break
		}
		qid := strings.TrimSpace(q.ID)
		if _, dup := seen[qid]; qid == "" || dup {
			for n := len(out) + 1; ; n++ {
				qid = fmt.Sprintf("q%d", n)
				if _, taken := seen[qid]; !taken {
					break
				}
			}
		}
		seen[qid] = struct{}{}
		out = append(out, ports.PlanQuestion{ID: qid, Text: text})
	}
	return out
}

// validateClaims keeps claims whose every supporting id names a known card.
// Missing or repeated claim ids are replaced with the next free cN.
func validateClaims(claims []ports.Claim, evidence []ports.EvidenceCard) ([]ports.Claim, int) {
	known := make(map[string]struct{}, len(evidence))
	for _, card := range evidence {
		known[card.ID] = struct{}{}
	}

	valid := make([]ports.Claim, 0, len(claims))
	usedIDs := make(map[string]struct{}, len(claims))
	dropped := 0
	for _, claim := range claims {
		text := strings.TrimSpace(claim.Text)
		if text == "" || len(claim.SupportingEvidenceIDs) == 0 {
			dropped++
			continue
		}
		ids := make([]string, 0, len(claim.SupportingEvidenceIDs))
		seen := make(map[string]struct{}, len(claim.SupportingEvidenceIDs))
		ok := true
		for _, evID := range claim.SupportingEvidenceIDs {
			if _, exists := known[evID]; !exists {
				ok = false
				break
			}
			if _, dup := seen[evID]; dup {
				continue
			}
			seen[evID] = struct{}{}
			ids = append(ids, evID)
		}
		if !ok {
			dropped++
			continue
		}
		claimID := strings.TrimSpace(claim.ID)
		if _, dup := usedIDs[claimID]; claimID == "" || dup {
			for n := len(valid) + 1; ; n++ {
				claimID = fmt.Sprintf("c%d", n)
				if _, taken := usedIDs[claimID]; !taken {
					break
				}
			}
		}
		usedIDs[claimID] = struct{}{}
		valid = append(valid, ports.Claim{
			ID:                    claimID,
			Text:                  text,
			SupportingEvidenceIDs: ids,
			Confidence:            clampConfidence(claim.Confidence),
		})
	}
	return valid, dropped
}

func clampConfidence(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
