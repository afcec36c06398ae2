package outputhandler

import (
	"github.com/venslabs/roundup/pkg/channel"
	"github.com/venslabs/roundup/pkg/diag"
	"github.com/venslabs/roundup/pkg/lifecycle"
	"github.com/venslabs/roundup/pkg/maintainer"
	"github.com/venslabs/roundup/pkg/tracker"
	"github.com/venslabs/roundup/pkg/whitelist"
)

// Report is everything one iteration decided.
type Report struct {
	Iteration   int
	Channels    channel.Set
	Decisions   []lifecycle.Decision
	Active      int
	Suppressed  []whitelist.Suppression
	Unused      []whitelist.Rule
	Suggestions []whitelist.Suggestion
	Diagnostics []diag.Diagnostic
	Pings       maintainer.PingReport
	Filed       []tracker.Filed
}

// OutputHandler consumes reports. Output is written on Close.
type OutputHandler interface {
	HandleReport(*Report) error
	Close() error
}
