package zcommit

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PushEvent is the part of a version-control push payload zcommit reads.
type PushEvent struct {
	Ref        string
	Repository *Repository
	// Commits keeps each commit undecoded so one bad entry cannot fail the whole payload.
	Commits []json.RawMessage
}

// Repository identifies the pushed repository when the payload names it.
type Repository struct {
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	URL      string `json:"url"`
}

// Author is the commit author as reported by the payload.
type Author struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Commit is a single commit of a push.
type Commit struct {
	ID        string   `json:"id"`
	Author    *Author  `json:"author"`
	Message   *string  `json:"message"`
	Timestamp string   `json:"timestamp"`
	URL       string   `json:"url,omitempty"`
	Added     []string `json:"added,omitempty"`
	Removed   []string `json:"removed,omitempty"`
	Modified  []string `json:"modified,omitempty"`
}

type pushEnvelope struct {
	Ref        *string            `json:"ref"`
	Repository *Repository        `json:"repository"`
	Commits    *[]json.RawMessage `json:"commits"`
}

// ParsePushEvent decodes a push payload. It fails with ErrInvalidPayload when the
// document is not JSON or lacks ref or commits.
func ParsePushEvent(raw []byte) (*PushEvent, error) {
	var env pushEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if env.Ref == nil {
		return nil, fmt.Errorf("%w: missing ref", ErrInvalidPayload)
	}
	if env.Commits == nil {
		return nil, fmt.Errorf("%w: missing commits", ErrInvalidPayload)
	}
	return &PushEvent{
		Ref:        *env.Ref,
		Repository: env.Repository,
		Commits:    *env.Commits,
	}, nil
}

// DecodeCommit decodes and validates one commit entry.
func DecodeCommit(raw json.RawMessage) (Commit, error) {
	var c Commit
	if err := json.Unmarshal(raw, &c); err != nil {
		return c, malformedCommit("%v", err)
	}
	switch {
	case c.ID == "":
		return c, malformedCommit("missing id")
	case c.Author == nil:
		return c, malformedCommit("missing author")
	case c.Message == nil:
		return c, malformedCommit("missing message")
	}
	return c, nil
}

// ShortID is the first eight characters of the commit id, or the whole id when shorter.
func (c Commit) ShortID() string {
	runes := []rune(c.ID)
	if len(runes) > 8 {
		return string(runes[:8])
	}
	return c.ID
}

// MessageText returns the commit message, or "" when it is absent.
func (c Commit) MessageText() string {
	if c.Message == nil {
		return ""
	}
	return *c.Message
}

// Order selects the sequence in which the commits of a push are sent.
type Order string

const (
	// OrderForward sends commits in payload order. GitHub lists them oldest first.
	OrderForward Order = "forward"
	// OrderReverse sends the last commit of the payload first.
	OrderReverse Order = "reverse"
)

// ParseOrder validates a configured commit order. The empty string means OrderForward.
func ParseOrder(value string) (Order, error) {
	switch Order(strings.ToLower(strings.TrimSpace(value))) {
	case "", OrderForward:
		return OrderForward, nil
	case OrderReverse:
		return OrderReverse, nil
	default:
		return "", fmt.Errorf("unsupported commit order: %q", value)
	}
}

// CommitResult is the outcome of translating, and later dispatching, one commit.
type CommitResult struct {
	// Index is the commit's position in the payload.
	Index        int
	Commit       Commit
	Notification Notification
	// Err is a *CommitError when the commit was malformed or its dispatch failed.
	Err error
	// Dispatched is set once the notification was handed to a sender.
	Dispatched bool
}

// OK reports whether the commit produced a notification that was not rejected.
func (r CommitResult) OK() bool {
	return r.Err == nil
}

// Translator turns push payloads into notifications.
type Translator struct {
	Order Order
}

// TranslatePush parses payload and derives one result per commit, in the
// translator's order. Only request-level problems are returned as an error;
// a malformed commit is reported in its own result.
func (t Translator) TranslatePush(opts Options, payload []byte) (*PushEvent, []CommitResult, error) {
	event, err := ParsePushEvent(payload)
	if err != nil {
		return nil, nil, err
	}

	signature := opts.Signature(event.Ref)
	sender := opts.SenderOrDefault()

	results := make([]CommitResult, 0, len(event.Commits))
	for _, index := range t.indexes(len(event.Commits)) {
		result := CommitResult{Index: index}
		commit, err := DecodeCommit(event.Commits[index])
		result.Commit = commit
		if err != nil {
			result.Err = &CommitError{Index: index, CommitID: commit.ID, Err: err}
			results = append(results, result)
			continue
		}
		body, err := FormatBody(commit)
		if err != nil {
			result.Err = &CommitError{Index: index, CommitID: commit.ID, Err: err}
			results = append(results, result)
			continue
		}
		instance := opts.Instance
		if !opts.HasInstance() {
			instance = commit.ShortID()
		}
		result.Notification = Notification{
			Sender:    sender,
			Class:     opts.Class,
			Instance:  instance,
			Signature: signature,
			Body:      body,
		}
		results = append(results, result)
	}
	return event, results, nil
}

func (t Translator) indexes(n int) []int {
	out := make([]int, n)
	for i := range out {
		if t.Order == OrderReverse {
			out[i] = n - 1 - i
		} else {
			out[i] = i
		}
	}
	return out
}

// DescribePush is the reply to a GET of a push URL.
func DescribePush(opts Options) string {
	msg := "If you had sent a POST request to this URL, would have sent a zephyr to -c " + opts.Class
	if opts.HasInstance() {
		msg += " -i " + opts.Instance
	}
	return msg
}
