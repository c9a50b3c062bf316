package behavior

import "encoding/json"

// marshalStructAsJS renders v as a JSON literal suitable for splicing
// directly into an injected expression.
func marshalStructAsJS(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
