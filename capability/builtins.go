package capability

import (
	"net/http"

	"github.com/reedworks/reedflow/engine"
	"github.com/reedworks/reedflow/workflow"
)

// Options configures the built-in capability set.
type Options struct {
	// HTTPClient is used for AI and delivery requests. Defaults to
	// http.DefaultClient.
	HTTPClient HTTPClient

	// SMTPSender is used for email delivery. Defaults to net/smtp.
	SMTPSender SMTPSender
}

// DefaultRegistry builds a registry with all four built-in capabilities
// registered under their step kinds.
func DefaultRegistry(opts Options) *engine.Registry {
	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	reg := engine.NewRegistry()
	// Registration cannot fail for the closed kind set.
	_ = reg.Register(workflow.KindDataSource, NewDataSource())
	_ = reg.Register(workflow.KindAIProcessor, NewAIProcessor(client))
	_ = reg.Register(workflow.KindTransform, NewTransform())
	_ = reg.Register(workflow.KindDelivery, NewDelivery(client, opts.SMTPSender))
	return reg
}
