package progress

import (
	"encoding/json"
	"fmt"
	"io"
)

// WriteSSE writes ev as one server-sent event frame
func WriteSSE(w io.Writer, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal progress event: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write progress event: %w", err)
	}
	return nil
}

// WriteSSEComment writes a comment frame, used as a keep-alive
func WriteSSEComment(w io.Writer, comment string) error {
	_, err := fmt.Fprintf(w, ": %s\n\n", comment)
	return err
}
