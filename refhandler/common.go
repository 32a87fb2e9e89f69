package refhandler

import "encoding/json"

// jsonOrEmpty renders v as JSON for handlers that persist arbitrary output
// values to a file or log; it never fails the caller since this is a
// best-effort rendering path, not a validated serialization contract.
func jsonOrEmpty(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
