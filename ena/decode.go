package ena

import (
	"bytes"
	"encoding/json"
	"io"
)

// DecodeRows reads the JSON array returned by the search endpoint. An empty
// body means no rows; the portal answers that way when nothing matches.
func DecodeRows(r io.Reader) ([]Row, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}

	var rows []Row
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, err
	}

	return rows, nil
}
