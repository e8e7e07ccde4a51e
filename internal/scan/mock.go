package scan

import (
	"bytes"
	"io"
	"time"

	"github.com/mitchross/intercept/internal/monitoring"
)

// NewMockMux creates a Mux fed by the given fixture, one newline-delimited
// JSON detection at a time, cycling forever. Used by dev mode to exercise
// the full pipeline without radio hardware.
func NewMockMux(fixture []byte, interval time.Duration) *Mux {
	lines := bytes.Split(bytes.TrimSpace(fixture), []byte("\n"))
	r, w := io.Pipe()

	go func() {
		defer w.Close()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		i := 0
		for range ticker.C {
			line := lines[i%len(lines)]
			i++
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			if _, err := w.Write(append(line, '\n')); err != nil {
				monitoring.Logf("mock scanner: stopping replay: %v", err)
				return
			}
		}
	}()

	return NewMux(r)
}
