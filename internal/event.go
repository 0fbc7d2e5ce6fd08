package internal

import (
	"encoding/json"
	"time"

	"zcommit/pkg/zcommit"
)

// Event is the mirror record of one delivery attempt.
type Event struct {
	Source       string               `json:"source"`
	RequestID    string               `json:"request_id"`
	Ref          string               `json:"ref,omitempty"`
	Repository   string               `json:"repository,omitempty"`
	Commit       *zcommit.Commit      `json:"commit,omitempty"`
	Notification zcommit.Notification `json:"notification"`
	Status       string               `json:"status"`
	Error        string               `json:"error,omitempty"`
	Time         time.Time            `json:"time"`
	// Data is the flattened event used as rule parameters.
	Data map[string]interface{} `json:"-"`
	// RawObject is the decoded JSON form of the event, used for JSONPath rules.
	RawObject interface{} `json:"-"`
}

// NewEvent builds the mirror event and its rule views.
func NewEvent(source, requestID string, ref, repository string, commit *zcommit.Commit, n zcommit.Notification, status string, err error) Event {
	event := Event{
		Source:       source,
		RequestID:    requestID,
		Ref:          ref,
		Repository:   repository,
		Commit:       commit,
		Notification: n,
		Status:       status,
		Time:         time.Now().UTC(),
	}
	if err != nil {
		event.Error = err.Error()
	}
	event.RawObject, event.Data = ruleViews(event)
	return event
}

func ruleViews(event Event) (interface{}, map[string]interface{}) {
	raw, err := json.Marshal(event)
	if err != nil {
		return nil, map[string]interface{}{}
	}
	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, map[string]interface{}{}
	}
	objectMap, ok := out.(map[string]interface{})
	if !ok {
		return out, map[string]interface{}{}
	}
	return out, ruleParameters(objectMap)
}
