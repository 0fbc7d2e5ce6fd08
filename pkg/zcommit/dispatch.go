package zcommit

import (
	"context"
	"fmt"
	"strings"
)

// Acknowledgement is the reply once every notification of a request was handled.
const Acknowledgement = "Thanks for posting!"

// BatchReport collects the per-commit outcomes of one request.
type BatchReport struct {
	Results []CommitResult
}

// Dispatch hands every translated notification to sender, one at a time and in
// order. Failures are recorded on the result and never stop the loop.
func Dispatch(ctx context.Context, sender NotificationSender, results []CommitResult) BatchReport {
	out := make([]CommitResult, len(results))
	copy(out, results)
	for i := range out {
		if out[i].Err != nil {
			continue
		}
		out[i].Dispatched = true
		if err := sender.Send(ctx, out[i].Notification); err != nil {
			out[i].Err = &CommitError{Index: out[i].Index, CommitID: out[i].Commit.ID, Err: err}
		}
	}
	return BatchReport{Results: out}
}

// Sent counts the notifications the sender accepted.
func (r BatchReport) Sent() int {
	n := 0
	for _, res := range r.Results {
		if res.Dispatched && res.Err == nil {
			n++
		}
	}
	return n
}

// Failed returns the results that were malformed or rejected.
func (r BatchReport) Failed() []CommitResult {
	var out []CommitResult
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res)
		}
	}
	return out
}

// AllFailed is true when there was at least one commit and none was sent.
func (r BatchReport) AllFailed() bool {
	return len(r.Results) > 0 && len(r.Failed()) == len(r.Results)
}

// Summary renders the reply body: the acknowledgement followed by one line per failure.
func (r BatchReport) Summary() string {
	failed := r.Failed()
	if len(failed) == 0 {
		return Acknowledgement
	}
	var b strings.Builder
	if r.AllFailed() {
		b.WriteString("No notifications were sent.")
	} else {
		b.WriteString(Acknowledgement)
	}
	fmt.Fprintf(&b, "\n%d of %d commits failed:", len(failed), len(r.Results))
	for _, res := range failed {
		b.WriteString("\n  ")
		b.WriteString(res.Err.Error())
	}
	return b.String()
}
