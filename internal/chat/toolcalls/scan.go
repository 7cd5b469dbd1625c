package toolcalls

import "strings"

// Scan bounds. Payloads are arbitrary nested JSON; the walk gives up rather
// than chase pathological inputs.
const (
	maxScanDepth = 6
	maxScanNodes = 200
)

// Accepted key spellings for each tool-call field, in lookup priority order.
var (
	idKeys     = []string{"toolCallId", "tool_call_id", "toolUseId", "tool_use_id", "callId", "call_id", "id"}
	nameKeys   = []string{"toolName", "tool_name", "name", "tool", "function"}
	argsKeys   = []string{"args", "arguments", "input", "params", "parameters"}
	outputKeys = []string{"output", "result", "response", "observation", "content"}
	hintKeys   = []string{"type", "stream", "kind", "event"}
	statusKeys = []string{"status", "phase", "state", "type"}
)

// observation is one tool-call sighting extracted from a payload.
type observation struct {
	id        string
	name      string
	args      interface{}
	output    interface{}
	hasOutput bool
	status    Status
	hasStatus bool
}

func lookupString(m map[string]interface{}, keys []string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func lookupAny(m map[string]interface{}, keys []string) (interface{}, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

var resultMarkers = []string{"result", "complete", "done", "finish", "error", "fail", "success"}
var startMarkers = []string{"start", "begin", "call", "invoke", "request", "use"}

// classifyStatus maps a free-text phase/type string to a status. Completion
// keywords win over start keywords; anything else is an update.
func classifyStatus(s string) (Status, bool) {
	if s == "" {
		return StatusUpdate, false
	}
	l := strings.ToLower(s)
	for _, m := range resultMarkers {
		if strings.Contains(l, m) {
			return StatusResult, true
		}
	}
	for _, m := range startMarkers {
		if strings.Contains(l, m) {
			return StatusStart, true
		}
	}
	return StatusUpdate, true
}

// looksLikeToolCall reports whether a map has tool-call shape: an id paired
// with a name, args, or output field, or an explicit tool/function hint.
func looksLikeToolCall(m map[string]interface{}) bool {
	id := lookupString(m, idKeys)
	name := lookupString(m, nameKeys)
	_, hasArgs := lookupAny(m, argsKeys)
	_, hasOutput := lookupAny(m, outputKeys)

	if id != "" && (name != "" || hasArgs || hasOutput) {
		return true
	}
	hint := strings.ToLower(lookupString(m, hintKeys))
	if (strings.Contains(hint, "tool") || strings.Contains(hint, "function")) &&
		(id != "" || name != "") {
		return true
	}
	return false
}

func extractObservation(m map[string]interface{}) observation {
	obs := observation{
		id:   lookupString(m, idKeys),
		name: lookupString(m, nameKeys),
	}
	if v, ok := lookupAny(m, argsKeys); ok {
		obs.args = v
	}
	if v, ok := lookupAny(m, outputKeys); ok {
		obs.output = v
		obs.hasOutput = true
	}
	statusText := lookupString(m, statusKeys)
	if hint := lookupString(m, hintKeys); statusText == "" {
		statusText = hint
	}
	obs.status, obs.hasStatus = classifyStatus(statusText)
	return obs
}

// scanPayload walks a payload value collecting tool-call observations.
// Recognized objects are not descended into, so nested argument maps are
// never mistaken for further tool calls.
func scanPayload(v interface{}) []observation {
	var out []observation
	nodes := 0
	var walk func(v interface{}, depth int)
	walk = func(v interface{}, depth int) {
		if depth > maxScanDepth || nodes >= maxScanNodes {
			return
		}
		nodes++
		switch t := v.(type) {
		case map[string]interface{}:
			if looksLikeToolCall(t) {
				out = append(out, extractObservation(t))
				return
			}
			for _, child := range t {
				walk(child, depth+1)
			}
		case []interface{}:
			for _, child := range t {
				walk(child, depth+1)
			}
		}
	}
	walk(v, 0)
	return out
}
