// Package worker wires the audit workflow and activity into a Temporal worker.
package worker

import (
	sdkworker "go.temporal.io/sdk/worker"

	"github.com/ahrav/go-clinaudit/internal/activity"
	"github.com/ahrav/go-clinaudit/internal/workflow"
)

// Registry is the registration surface shared by sdkworker.Worker and the
// Temporal test environments.
type Registry interface {
	RegisterWorkflow(w interface{})
	RegisterActivity(a interface{})
}

var _ Registry = sdkworker.Worker(nil)

// RegisterAll registers the audit workflow and its activity. Call it once
// before starting the worker.
func RegisterAll(r Registry, acts *activity.Activities) {
	r.RegisterWorkflow(workflow.AuditWorkflow)
	r.RegisterActivity(acts.RunBatch)
}
