// Package observable decorates the circulation Workflow with logging and metrics.
//
// The core Workflow never logs or records metrics. Wrap it once at the edge of the application:
//
//	workflow, _ := circulation.NewWorkflow(store)
//	wrapped, _ := observable.NewWorkflowWrapper(workflow,
//		observable.WithContextualLogger(logger),
//		observable.WithMetrics(collector),
//	)
//
// Every operation is logged when it starts and when it completes, is rejected, or fails,
// and its duration and outcome status are recorded.
package observable
