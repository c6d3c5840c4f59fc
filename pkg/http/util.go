package http

import (
	"time"

	xutil "InsiderSignals/pkg/util"
)

// ParseDate accepts ISO dates and RFC3339 timestamps, truncated to the UTC day.
func ParseDate(s string) (time.Time, bool) { return xutil.ParseDate(s) }
