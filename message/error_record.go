package message

// Source identifies the node that raised an error.
type Source struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

// ErrorInfo is the value stored under msg.error on a catch delivery.
type ErrorInfo struct {
	Message string `json:"message"`
	Source  Source `json:"source"`
	Stack   string `json:"stack,omitempty"`
}

// AsMap renders the info in message form so downstream path helpers can
// reach error.source.id and friends.
func (e ErrorInfo) AsMap() map[string]any {
	out := map[string]any{
		"message": e.Message,
		"source": map[string]any{
			"id":   e.Source.ID,
			"type": e.Source.Type,
			"name": e.Source.Name,
		},
	}
	if e.Stack != "" {
		out["stack"] = e.Stack
	}
	return out
}

// ErrorRecord builds the message delivered to catch handlers: a deep copy of
// the triggering message without its _msgid or previous error, plus an error
// property. origin may be nil.
func ErrorRecord(origin Msg, info ErrorInfo) Msg {
	rec := Clone(origin)
	if rec == nil {
		rec = Msg{}
	}
	delete(rec, KeyID)
	delete(rec, KeyError)
	rec[KeyError] = info.AsMap()
	return rec
}
