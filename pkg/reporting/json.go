package reporting

import (
	"encoding/json"
)

// WriteJSON marshals any report payload with indentation and writes it
// to path, creating parent directories as needed.
func WriteJSON(v any, path string) error {
	f, err := createWithDirs(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
