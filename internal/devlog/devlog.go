// Package devlog prints timestamped trace lines for stream and loop
// debugging. It sits outside the leveled logger so tracing stays
// visible even when logging is disabled.
package devlog

import (
	"fmt"
	"os"
	"time"
)

const stamp = "15:04:05.000"

// Printf writes one trace line to stdout, prefixed with a wall-clock
// stamp down to the millisecond.
func Printf(format string, args ...any) {
	fmt.Fprintf(os.Stdout, "%s %s", time.Now().Format(stamp), fmt.Sprintf(format, args...))
}
