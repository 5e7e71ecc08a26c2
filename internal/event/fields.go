package event

import "encoding/json"

// object is a decoded JSON object with "empty if absent" accessors. Producers omit,
// null out or retype fields freely, so no accessor ever fails.
type object map[string]any

func (o object) obj(key string) object {
	if m, ok := o[key].(map[string]any); ok {
		return object(m)
	}
	return object{}
}

func (o object) list(key string) []any {
	if l, ok := o[key].([]any); ok {
		return l
	}
	return nil
}

// text returns the field as a string when it is a string or a number, and "" otherwise.
func (o object) text(key string) string {
	switch v := o[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

// optText is text for nullable columns: absent, null and non-scalar values are nil.
func (o object) optText(key string) *string {
	switch v := o[key].(type) {
	case string:
		return &v
	case json.Number:
		s := v.String()
		return &s
	default:
		return nil
	}
}

func (o object) optInt(key string) *int64 {
	return toInt(o[key])
}
