// Package input holds what the broker inputs share.
package input

import (
	"context"

	"github.com/c360/mqtt2influxdb/message"
)

// Handler receives every message an input delivers. It may block; inputs call
// it from the broker client's delivery goroutine, so blocking applies
// backpressure to the broker.
type Handler func(ctx context.Context, msg message.Message)
