package internal

import "strings"

// ruleParameters turns the decoded mirror event into govaluate parameters.
//
// Every object is reachable under its dotted path (notification.class) and
// arrays stay whole under their own path, with their length under path.count.
// Notification fields are promoted to the top level unless an event field of
// the same name exists, so rules can say class == "demo". Two derived values
// are added: failed (the notification was not sent) and files (the number of
// paths the commit touched).
func ruleParameters(object map[string]interface{}) map[string]interface{} {
	params := make(map[string]interface{}, len(object)*2)
	for key, value := range object {
		walkParameters(params, key, value)
	}

	if n, ok := object["notification"].(map[string]interface{}); ok {
		for key, value := range n {
			if _, taken := params[key]; !taken {
				params[key] = value
			}
		}
	}

	status, _ := object["status"].(string)
	params["failed"] = status != "" && status != "sent"

	files := 0
	if commit, ok := object["commit"].(map[string]interface{}); ok {
		for _, key := range []string{"added", "removed", "modified"} {
			if list, ok := commit[key].([]interface{}); ok {
				files += len(list)
			}
		}
	}
	params["files"] = files
	return params
}

func walkParameters(params map[string]interface{}, path string, value interface{}) {
	params[path] = value
	switch typed := value.(type) {
	case map[string]interface{}:
		for key, child := range typed {
			walkParameters(params, joinPath(path, key), child)
		}
	case []interface{}:
		params[joinPath(path, "count")] = len(typed)
	}
}

func joinPath(parts ...string) string {
	return strings.Join(parts, ".")
}
