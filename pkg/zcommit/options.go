package zcommit

import (
	"fmt"
	"sort"
	"strings"
)

// Options carries the addressing parameters taken from a submission URL such as
// /github/class/zcommit/instance/commit.
type Options struct {
	// Class is the zephyr class. A parsed Options always carries the class key,
	// though its value may be empty.
	Class string
	// Instance overrides the per-commit instance when given.
	Instance string
	// Zsig is prepended to the branch ref in the signature when non-empty.
	Zsig string
	// Sender overrides DefaultSender when non-empty.
	Sender string
	// Extra holds keys zcommit does not interpret.
	Extra map[string]string

	hasClass    bool
	hasInstance bool
}

// ParseOptions reads path segments as alternating keys and values. A repeated
// key keeps its last value. Values are decoded as UTF-8 with invalid bytes
// replaced by U+FFFD.
func ParseOptions(segments []string) (Options, error) {
	var opts Options
	if len(segments)%2 != 0 {
		return opts, fmt.Errorf("%w: odd number of path segments (%d)", ErrMalformedRequest, len(segments))
	}
	for i := 0; i < len(segments); i += 2 {
		opts.set(lossyUTF8(segments[i]), lossyUTF8(segments[i+1]))
	}
	if !opts.hasClass {
		return opts, missingField("class")
	}
	return opts, nil
}

func (o *Options) set(key, value string) {
	switch key {
	case "class":
		o.Class = value
		o.hasClass = true
	case "instance":
		o.Instance = value
		o.hasInstance = true
	case "zsig":
		o.Zsig = value
	case "sender":
		o.Sender = value
	default:
		if o.Extra == nil {
			o.Extra = make(map[string]string)
		}
		o.Extra[key] = value
	}
}

// Map returns every key/value pair carried by the options.
func (o Options) Map() map[string]string {
	out := make(map[string]string, len(o.Extra)+4)
	for key, value := range o.Extra {
		out[key] = value
	}
	if o.Class != "" || o.hasClass {
		out["class"] = o.Class
	}
	if o.HasInstance() {
		out["instance"] = o.Instance
	}
	if o.Zsig != "" {
		out["zsig"] = o.Zsig
	}
	if o.Sender != "" {
		out["sender"] = o.Sender
	}
	return out
}

// String renders the options as sorted key=value pairs for logs.
func (o Options) String() string {
	m := o.Map()
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+"="+m[key])
	}
	return strings.Join(parts, " ")
}

// HasInstance reports whether an instance was given, even an empty one.
func (o Options) HasInstance() bool {
	return o.Instance != "" || o.hasInstance
}

// SenderOrDefault returns the sender notifications will carry.
func (o Options) SenderOrDefault() string {
	if o.Sender != "" {
		return o.Sender
	}
	return DefaultSender
}

// Signature builds the zsig line for a push to ref.
func (o Options) Signature(ref string) string {
	if o.Zsig != "" {
		return o.Zsig + ": " + ref
	}
	return ref
}

func lossyUTF8(s string) string {
	return strings.ToValidUTF8(s, "\uFFFD")
}
