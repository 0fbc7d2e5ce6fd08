package zcommit

import (
	"strings"
	"time"
)

// NoFilesChanged replaces the file summary of a commit that touched no files.
const NoFilesChanged = "Did not add/remove/modify any nonempty files."

// TimestampLayout is the canonical rendering of commit timestamps.
const TimestampLayout = "2006-01-02 15:04:05 -0700"

var timestampLayouts = []string{
	time.RFC3339,
	"2006/01/02 15:04:05 -0700",
	"2006-01-02 15:04:05 -0700",
	"2006-01-02T15:04:05-0700",
}

// NormalizeTimestamp renders a payload timestamp in TimestampLayout, keeping its UTC offset.
func NormalizeTimestamp(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", malformedCommit("missing timestamp")
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.Format(TimestampLayout), nil
		}
	}
	return "", malformedCommit("unparseable timestamp %q", value)
}

// FormatActions summarizes the files a commit added, removed and modified.
//
//	Added: a.go
//	  b.go
//	--
//	Modified: c.go
func FormatActions(c Commit) string {
	groups := make([]string, 0, 3)
	for _, group := range []struct {
		label string
		files []string
	}{
		{"Added", c.Added},
		{"Removed", c.Removed},
		{"Modified", c.Modified},
	} {
		if len(group.files) == 0 {
			continue
		}
		groups = append(groups, group.label+": "+strings.Join(group.files, "\n  ")+"\n")
	}
	if len(groups) == 0 {
		return NoFilesChanged
	}
	return strings.Join(groups, "--\n")
}

// FormatBody composes the zephyr body for a validated commit.
func FormatBody(c Commit) (string, error) {
	ts, err := NormalizeTimestamp(c.Timestamp)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	if c.URL != "" {
		b.WriteString(c.URL)
		b.WriteString("\n")
	}
	b.WriteString(c.Author.Name)
	b.WriteString(" <")
	b.WriteString(c.Author.Email)
	b.WriteString("> (")
	b.WriteString(ts)
	b.WriteString(")\n")
	for _, line := range strings.Split(strings.TrimRight(c.MessageText(), "\n"), "\n") {
		b.WriteString("> ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("--\n")
	b.WriteString(FormatActions(c))
	return b.String(), nil
}
