package ingress

import "context"

// CodeProcessor handles a legacy request-code command. RejectRequest is
// consulted before ProcessRequest runs on
// every submission; it lets a processor shed load without an error return.
type CodeProcessor interface {
	RejectRequest() bool
	ProcessRequest(ctx context.Context, async *AsyncContext[*CodeCommand]) error
}

// EventProcessor handles a URI-routed event command. Same contract as
// CodeProcessor, over *EventWrapper instead of *CodeCommand.
type EventProcessor interface {
	RejectRequest() bool
	ProcessRequest(ctx context.Context, async *AsyncContext[*EventWrapper]) error
}
