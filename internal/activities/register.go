package activities

import "go.temporal.io/sdk/worker"

func Register(w worker.Worker, a *Activities) {
	w.RegisterActivity(a.ResolveProfileActivity)
	w.RegisterActivity(a.StartRunActivity)
	w.RegisterActivity(a.FetchSourcesActivity)
	w.RegisterActivity(a.IngestItemActivity)
	w.RegisterActivity(a.EmbedDocumentActivity)
	w.RegisterActivity(a.ScoreDocumentActivity)
	w.RegisterActivity(a.UpsertLeadActivity)
	w.RegisterActivity(a.GenerateBriefActivity)
	w.RegisterActivity(a.FinishDocumentActivity)
	w.RegisterActivity(a.WriteRunSummaryActivity)
	w.RegisterActivity(a.LogLLMCallActivity)
}
