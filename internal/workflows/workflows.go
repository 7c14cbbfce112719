package workflows

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"leadscout/internal/activities"
	"leadscout/internal/models"
	"leadscout/internal/pipeline"
	"leadscout/internal/providers"
	"leadscout/internal/scoring"
)

const (
	QueryGetRunProgress = "GetRunProgress"

	BriefStatusGenerated = "generated"
	BriefStatusFailed    = "failed"
)

type providerState struct {
	disabledUntil map[int]time.Time
	retries       map[string]int
}

func newProviderState() providerState {
	return providerState{disabledUntil: map[int]time.Time{}, retries: map[string]int{}}
}

func activityOptions() workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    20 * time.Second,
			MaximumAttempts:    3,
		},
	}
}

// TenantRunWorkflow runs one ingestion and scoring pass for a tenant over the
// input window and returns the run summary. Configuration errors fail the
// workflow before any source is fetched.
func TenantRunWorkflow(ctx workflow.Context, input RunInput) (models.RunSummary, error) {
	if strings.TrimSpace(input.RunID) == "" {
		input.RunID = workflow.GetInfo(ctx).WorkflowExecution.ID
	}
	if input.MaxConcurrent <= 0 {
		input.MaxConcurrent = 4
	}
	summary := models.RunSummary{RunID: input.RunID, TenantID: input.TenantID, Window: input.Window, Errors: []string{}}
	progress := RunProgress{RunID: input.RunID, TenantID: input.TenantID, Stage: "resolving", Briefs: map[string]string{}}
	if err := workflow.SetQueryHandler(ctx, QueryGetRunProgress, func() (RunProgress, error) {
		progress.Summary = summary
		return progress, nil
	}); err != nil {
		return summary, err
	}
	ctx = workflow.WithActivityOptions(ctx, activityOptions())
	logger := workflow.GetLogger(ctx)

	var prof activities.ResolveProfileOutput
	if err := workflow.ExecuteActivity(ctx, "ResolveProfileActivity", activities.ResolveProfileInput{TenantID: input.TenantID}).Get(ctx, &prof); err != nil {
		progress.Stage = "rejected"
		return summary, err
	}
	if input.Briefs && input.LLMProviders <= 0 {
		progress.Stage = "rejected"
		return summary, temporal.NewNonRetryableApplicationError("briefs requested but no model is configured", activities.ErrTypeConfig, nil)
	}
	if err := workflow.ExecuteActivity(ctx, "StartRunActivity", activities.StartRunInput{TenantID: input.TenantID, RunID: input.RunID, Window: input.Window}).Get(ctx, nil); err != nil {
		return summary, err
	}

	err := runStages(ctx, input, prof.Profile, &summary, &progress)
	status := models.RunStatusCompleted
	if err != nil {
		status = models.RunStatusFailed
		summary.AddError("run aborted: %v", err)
	}

	// A cancelled run still records what it did.
	finishCtx, _ := workflow.NewDisconnectedContext(ctx)
	if werr := workflow.ExecuteActivity(finishCtx, "WriteRunSummaryActivity", activities.WriteRunSummaryInput{Summary: summary, Status: status}).Get(finishCtx, nil); werr != nil {
		logger.Error("write run summary failed", "run_id", input.RunID, "error", werr)
	}
	progress.Stage = status
	return summary, err
}

func runStages(ctx workflow.Context, input RunInput, profile models.TenantProfile, summary *models.RunSummary, progress *RunProgress) error {
	progress.Stage = "fetching"
	fetchCtx := workflow.WithStartToCloseTimeout(ctx, 10*time.Minute)
	var fetched activities.FetchSourcesOutput
	if err := workflow.ExecuteActivity(fetchCtx, "FetchSourcesActivity", activities.FetchSourcesInput{
		TenantID:      input.TenantID,
		RunID:         input.RunID,
		Window:        input.Window,
		MaxConcurrent: input.MaxConcurrent,
	}).Get(ctx, &fetched); err != nil {
		return err
	}
	summary.Errors = append(summary.Errors, fetched.Notes...)
	progress.Items = len(fetched.ItemRefs)

	progress.Stage = "ingesting"
	docs, err := ingestItems(ctx, input, fetched, summary, progress)
	if err != nil {
		return err
	}

	progress.Stage = "embedding"
	failedDocs := map[string]bool{}
	embedState := newProviderState()
	embedProviders := defaultCount(input.EmbedProviders)
	cooldown := durationOrDefault(input.CooldownSeconds, 900)
	for _, docID := range docs {
		_, err := callEmbedWithFailover(ctx, &embedState, embedProviders, cooldown, input.RunID, activities.EmbedDocumentInput{TenantID: input.TenantID, DocumentID: docID})
		if err != nil {
			if temporal.IsCanceledError(err) {
				return err
			}
			summary.AddError("embed %s: %v", docID, rootCause(err))
			failedDocs[docID] = true
			continue
		}
		progress.Embedded++
	}

	progress.Stage = "scoring"
	now := input.Window.Until
	if now.IsZero() {
		now = workflow.Now(ctx).UTC()
	}
	candidates, err := scoreDocuments(ctx, input, docs, profile, now, summary, progress, failedDocs)
	if err != nil {
		return err
	}

	progress.Stage = "upserting"
	scoring.Rank(candidates)
	var touched []string
	for _, c := range candidates {
		var res models.UpsertResult
		if err := workflow.ExecuteActivity(ctx, "UpsertLeadActivity", activities.UpsertLeadInput{TenantID: input.TenantID, Candidate: c}).Get(ctx, &res); err != nil {
			if temporal.IsCanceledError(err) {
				return err
			}
			summary.AddError("lead %q: %v", c.Title, rootCause(err))
			for _, id := range c.SourceIDs {
				failedDocs[id] = true
			}
			continue
		}
		if res.Created {
			summary.LeadsCreated++
		}
		if res.Updated {
			summary.LeadsUpdated++
		}
		if res.Created || res.Updated {
			touched = append(touched, res.LeadID)
		}
	}

	if input.Briefs {
		progress.Stage = "briefing"
		if err := runBriefs(ctx, input, touched, summary, progress); err != nil {
			return err
		}
	}

	progress.Stage = "finishing"
	for _, docID := range docs {
		if failedDocs[docID] {
			continue
		}
		if err := workflow.ExecuteActivity(ctx, "FinishDocumentActivity", activities.FinishDocumentInput{TenantID: input.TenantID, DocumentID: docID}).Get(ctx, nil); err != nil {
			if temporal.IsCanceledError(err) {
				return err
			}
			summary.AddError("finish %s: %v", docID, rootCause(err))
		}
	}
	return nil
}

// ingestItems stores staged items in batches of MaxConcurrent and returns the
// documents that still owe downstream work, in first-seen order.
func ingestItems(ctx workflow.Context, input RunInput, fetched activities.FetchSourcesOutput, summary *models.RunSummary, progress *RunProgress) ([]string, error) {
	var docs []string
	seen := map[string]bool{}
	refs := fetched.ItemRefs
	for i := 0; i < len(refs); i += input.MaxConcurrent {
		end := i + input.MaxConcurrent
		if end > len(refs) {
			end = len(refs)
		}
		futures := make([]workflow.Future, 0, end-i)
		for _, ref := range refs[i:end] {
			futures = append(futures, workflow.ExecuteActivity(ctx, "IngestItemActivity", activities.IngestItemInput{TenantID: input.TenantID, ItemRef: ref}))
		}
		for j, f := range futures {
			source := sourceAt(fetched.Sources, i+j)
			var res pipeline.IngestResult
			err := f.Get(ctx, &res)
			progress.Ingested++
			switch {
			case err != nil:
				if temporal.IsCanceledError(err) {
					return nil, err
				}
				summary.Failed++
				summary.AddError("%s: %v", source, rootCause(err))
			case res.Skipped:
				summary.Skipped++
				summary.AddError("%s: %s", source, res.Note)
			default:
				summary.Processed++
				if res.Created {
					summary.DocumentsCreated++
				}
				if res.NeedsWork && !seen[res.DocumentID] {
					seen[res.DocumentID] = true
					docs = append(docs, res.DocumentID)
				}
			}
		}
	}
	return docs, nil
}

func scoreDocuments(ctx workflow.Context, input RunInput, docs []string, profile models.TenantProfile, now time.Time, summary *models.RunSummary, progress *RunProgress, failedDocs map[string]bool) ([]models.LeadCandidate, error) {
	var out []models.LeadCandidate
	for i := 0; i < len(docs); i += input.MaxConcurrent {
		end := i + input.MaxConcurrent
		if end > len(docs) {
			end = len(docs)
		}
		futures := make([]workflow.Future, 0, end-i)
		for _, docID := range docs[i:end] {
			futures = append(futures, workflow.ExecuteActivity(ctx, "ScoreDocumentActivity", activities.ScoreDocumentInput{
				TenantID:   input.TenantID,
				DocumentID: docID,
				Profile:    profile,
				Now:        now,
			}))
		}
		for j, f := range futures {
			docID := docs[i+j]
			var res pipeline.ScoreOutcome
			if err := f.Get(ctx, &res); err != nil {
				if temporal.IsCanceledError(err) || isConfigError(err) {
					return nil, err
				}
				summary.AddError("score %s: %v", docID, rootCause(err))
				failedDocs[docID] = true
				continue
			}
			progress.Scored++
			if res.Candidate != nil {
				out = append(out, *res.Candidate)
			}
		}
	}
	return out, nil
}

// runBriefs starts one LeadBriefWorkflow child per touched lead. A failed
// brief is noted and does not fail the run.
func runBriefs(ctx workflow.Context, input RunInput, leadIDs []string, summary *models.RunSummary, progress *RunProgress) error {
	if input.BriefMaxLeads > 0 && len(leadIDs) > input.BriefMaxLeads {
		leadIDs = leadIDs[:input.BriefMaxLeads]
	}
	for i := 0; i < len(leadIDs); i += input.MaxConcurrent {
		end := i + input.MaxConcurrent
		if end > len(leadIDs) {
			end = len(leadIDs)
		}
		futures := make([]workflow.ChildWorkflowFuture, 0, end-i)
		for _, leadID := range leadIDs[i:end] {
			cctx := workflow.WithChildOptions(ctx, workflow.ChildWorkflowOptions{
				WorkflowID: fmt.Sprintf("brief-%s-%s", sanitizeID(input.RunID), sanitizeID(leadID)),
			})
			progress.Briefs[leadID] = "running"
			futures = append(futures, workflow.ExecuteChildWorkflow(cctx, LeadBriefWorkflow, LeadBriefInput{
				TenantID:        input.TenantID,
				RunID:           input.RunID,
				LeadID:          leadID,
				LLMProviders:    input.LLMProviders,
				CooldownSeconds: input.CooldownSeconds,
			}))
		}
		for j, f := range futures {
			leadID := leadIDs[i+j]
			var res LeadBriefResult
			if err := f.Get(ctx, &res); err != nil {
				if temporal.IsCanceledError(err) {
					return err
				}
				progress.Briefs[leadID] = BriefStatusFailed
				summary.AddError("brief %s: %v", leadID, rootCause(err))
				continue
			}
			progress.Briefs[leadID] = res.Status
			if res.Status == BriefStatusGenerated {
				summary.BriefsGenerated++
			} else {
				summary.AddError("brief %s: %s", leadID, res.Error)
			}
		}
	}
	return nil
}

// LeadBriefWorkflow generates the brief for one lead, failing over across
// the configured models.
func LeadBriefWorkflow(ctx workflow.Context, input LeadBriefInput) (LeadBriefResult, error) {
	ctx = workflow.WithActivityOptions(ctx, activityOptions())
	state := newProviderState()
	out, err := callBriefWithFailover(ctx, &state, defaultCount(input.LLMProviders), durationOrDefault(input.CooldownSeconds, 900), activities.GenerateBriefInput{
		TenantID: input.TenantID,
		RunID:    input.RunID,
		LeadID:   input.LeadID,
	})
	if err != nil {
		if temporal.IsCanceledError(err) {
			return LeadBriefResult{}, err
		}
		return LeadBriefResult{LeadID: input.LeadID, Status: BriefStatusFailed, Error: rootCause(err).Error()}, nil
	}
	return LeadBriefResult{
		LeadID:       input.LeadID,
		Status:       BriefStatusGenerated,
		ProviderName: out.ProviderName,
		Model:        out.Model,
		Abstained:    out.Abstained,
		Path:         out.Path,
	}, nil
}

func callEmbedWithFailover(ctx workflow.Context, state *providerState, providerCount int, cooldown time.Duration, runID string, input activities.EmbedDocumentInput) (activities.EmbedDocumentOutput, error) {
	const operation = "embed_document"
	var lastErr error
	for attempt := 0; attempt < providerCount*4; attempt++ {
		idx := attempt % providerCount
		if isProviderDisabled(ctx, state, idx) {
			continue
		}
		input.ProviderIndex = idx
		var out activities.EmbedDocumentOutput
		err := workflow.ExecuteActivity(ctx, "EmbedDocumentActivity", input).Get(ctx, &out)
		requestID := fmt.Sprintf("%s-%s-%d", operation, input.DocumentID, attempt)
		if err == nil {
			_ = workflow.ExecuteActivity(ctx, "LogLLMCallActivity", activities.LogLLMCallInput{TenantID: input.TenantID, RunID: runID, Operation: operation, ProviderName: out.ProviderName, Model: out.Model, RequestID: requestID, Status: "ok"}).Get(ctx, nil)
			return out, nil
		}
		if temporal.IsCanceledError(err) {
			return out, err
		}
		lastErr = err
		errType := classifyActivityError(err)
		_ = workflow.ExecuteActivity(ctx, "LogLLMCallActivity", activities.LogLLMCallInput{TenantID: input.TenantID, RunID: runID, Operation: operation, ProviderName: fmt.Sprintf("provider-%d", idx), RequestID: requestID, Status: "failed", ErrorType: string(errType)}).Get(ctx, nil)
		key := fmt.Sprintf("embed-%d", idx)
		state.retries[key]++
		switch errType {
		case providers.ErrorQuota:
			disableProviderUntil(ctx, state, idx, cooldown)
		case providers.ErrorRate:
			if state.retries[key] <= 2 {
				_ = workflow.Sleep(ctx, time.Duration(state.retries[key]*2)*time.Second)
				attempt--
			} else {
				disableProviderUntil(ctx, state, idx, 2*time.Minute)
			}
		case providers.ErrorTransient:
			if state.retries[key] <= 2 {
				_ = workflow.Sleep(ctx, time.Duration(state.retries[key])*time.Second)
				attempt--
			}
		default:
			disableProviderUntil(ctx, state, idx, time.Minute)
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("all embed providers exhausted")
	}
	return activities.EmbedDocumentOutput{}, lastErr
}

// callBriefWithFailover does not log calls itself; the brief generator audits
// every model request.
func callBriefWithFailover(ctx workflow.Context, state *providerState, providerCount int, cooldown time.Duration, input activities.GenerateBriefInput) (activities.GenerateBriefOutput, error) {
	var lastErr error
	for attempt := 0; attempt < providerCount*4; attempt++ {
		idx := attempt % providerCount
		if isProviderDisabled(ctx, state, idx) {
			continue
		}
		input.ProviderIndex = idx
		var out activities.GenerateBriefOutput
		err := workflow.ExecuteActivity(ctx, "GenerateBriefActivity", input).Get(ctx, &out)
		if err == nil {
			return out, nil
		}
		if temporal.IsCanceledError(err) || isConfigError(err) {
			return out, err
		}
		lastErr = err
		key := fmt.Sprintf("llm-%d", idx)
		state.retries[key]++
		switch classifyActivityError(err) {
		case providers.ErrorQuota:
			disableProviderUntil(ctx, state, idx, cooldown)
		case providers.ErrorRate:
			if state.retries[key] <= 2 {
				_ = workflow.Sleep(ctx, time.Duration(state.retries[key]*2)*time.Second)
				attempt--
			} else {
				disableProviderUntil(ctx, state, idx, 2*time.Minute)
			}
		case providers.ErrorTransient:
			if state.retries[key] <= 2 {
				_ = workflow.Sleep(ctx, time.Duration(state.retries[key])*time.Second)
				attempt--
			}
		case providers.ErrorContext:
			return out, err
		default:
			disableProviderUntil(ctx, state, idx, time.Minute)
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("all llm providers exhausted")
	}
	return activities.GenerateBriefOutput{}, lastErr
}

func isProviderDisabled(ctx workflow.Context, state *providerState, idx int) bool {
	until, ok := state.disabledUntil[idx]
	if !ok {
		return false
	}
	return workflow.Now(ctx).Before(until)
}

func disableProviderUntil(ctx workflow.Context, state *providerState, idx int, d time.Duration) {
	state.disabledUntil[idx] = workflow.Now(ctx).Add(d)
}

// rootCause strips the activity and child wrappers so notes carry the
// provider's message without the application error's type suffix.
func rootCause(err error) error {
	var actErr *temporal.ActivityError
	var childErr *temporal.ChildWorkflowExecutionError
	switch {
	case errors.As(err, &actErr) && actErr.Unwrap() != nil:
		err = actErr.Unwrap()
	case errors.As(err, &childErr) && childErr.Unwrap() != nil:
		err = childErr.Unwrap()
	}
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) && appErr.Message() != "" {
		return errors.New(appErr.Message())
	}
	return err
}

func classifyActivityError(err error) providers.ErrorType {
	var timeoutErr *temporal.TimeoutError
	if errors.As(err, &timeoutErr) {
		return providers.ErrorTransient
	}
	return providers.ClassifyError(rootCause(err))
}

func isConfigError(err error) bool {
	var appErr *temporal.ApplicationError
	return errors.As(err, &appErr) && appErr.Type() == activities.ErrTypeConfig
}

func sourceAt(sources []string, i int) string {
	if i < len(sources) {
		return sources[i]
	}
	return "unknown"
}

func sanitizeID(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "_", "-")
	s = strings.ReplaceAll(s, ".", "-")
	s = strings.ReplaceAll(s, "/", "-")
	return s
}

func durationOrDefault(seconds int, fallback int) time.Duration {
	if seconds <= 0 {
		seconds = fallback
	}
	return time.Duration(seconds) * time.Second
}

func defaultCount(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}
