package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dyluth/tocsin/pkg/broadcast"
)

// OutputFormat selects how Listen renders deliveries
type OutputFormat string

const (
	OutputFormatDefault OutputFormat = "default"
	OutputFormatJSON    OutputFormat = "json"
)

// ParseOutputFormat validates an --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputFormatDefault, OutputFormatJSON:
		return OutputFormat(s), nil
	default:
		return "", fmt.Errorf("unknown output format: %s", s)
	}
}

// Delivery is one observed notification as rendered in JSON output.
type Delivery struct {
	Time       time.Time `json:"time"`
	Name       string    `json:"name"`
	Identifier string    `json:"identifier"`
}

// now is replaced in tests.
var now = time.Now

// Listen registers a handler for every identifier and writes one line per
// delivery to w until ctx is cancelled. Handlers are unregistered on return.
func Listen(ctx context.Context, b *broadcast.Broadcaster, ids []broadcast.Identifier, format OutputFormat, w io.Writer) error {
	if len(ids) == 0 {
		return fmt.Errorf("at least one identifier is required")
	}

	// Handlers may run concurrently on facility goroutines.
	var mu sync.Mutex
	var writeErr error
	ns := b.Namespacer()

	for _, id := range ids {
		b.Register(id, func() {
			d := Delivery{Time: now(), Name: ns.Qualify(id), Identifier: string(id)}

			mu.Lock()
			defer mu.Unlock()
			if err := writeDelivery(w, format, d); err != nil && writeErr == nil {
				writeErr = err
			}
		})
	}
	defer func() {
		for _, id := range ids {
			b.Unregister(id)
		}
	}()

	<-ctx.Done()

	mu.Lock()
	defer mu.Unlock()
	if writeErr != nil {
		return fmt.Errorf("failed to write delivery: %w", writeErr)
	}
	return nil
}

func writeDelivery(w io.Writer, format OutputFormat, d Delivery) error {
	if format == OutputFormatJSON {
		line, err := json.Marshal(d)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "%s\n", line)
		return err
	}

	_, err := fmt.Fprintf(w, "[%s] 🔔 %s (%s)\n", d.Time.Format("15:04:05.000"), d.Identifier, d.Name)
	return err
}

// WaitFor blocks until id is delivered to b, ctx is cancelled, or timeout
// elapses. A non-positive timeout waits on ctx alone.
func WaitFor(ctx context.Context, b *broadcast.Broadcaster, id broadcast.Identifier, timeout time.Duration) error {
	delivered := make(chan struct{})
	var once sync.Once

	b.Register(id, func() {
		once.Do(func() { close(delivered) })
	})
	defer b.Unregister(id)

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case <-delivered:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timeoutCh:
		return fmt.Errorf("timeout waiting for %s after %v", b.Namespacer().Qualify(id), timeout)
	}
}
