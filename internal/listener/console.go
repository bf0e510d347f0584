// Package listener provides transfer listeners: human-readable console
// output, prometheus metrics and a fan-out combinator.
package listener

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/cbout22/repofetch/internal/transport"
)

// Console prints transfer progress for people. Completed transfers are
// always reported; starts and debug messages only when verbose.
type Console struct {
	mu      sync.Mutex
	out     io.Writer
	verbose bool
	started map[string]time.Time
	now     func() time.Time
}

var _ transport.Listener = (*Console)(nil)

// NewConsole returns a Console writing to out.
func NewConsole(out io.Writer, verbose bool) *Console {
	return &Console{
		out:     out,
		verbose: verbose,
		started: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (c *Console) TransferEvent(ev transport.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch ev.Type {
	case transport.TransferStarted:
		c.started[transferKey(ev)] = c.now()
		if c.verbose {
			size := "unknown size"
			if ev.Length >= 0 {
				size = humanize.Bytes(uint64(ev.Length))
			}
			fmt.Fprintf(c.out, "  ⬇️  %s (%s)\n", ev.Resource, size)
		}
	case transport.TransferCompleted:
		line := fmt.Sprintf("  📥 %s — %s", ev.Resource, humanize.Bytes(uint64(ev.Transferred)))
		if start, ok := c.started[transferKey(ev)]; ok {
			line += " in " + c.now().Sub(start).Round(time.Millisecond).String()
			delete(c.started, transferKey(ev))
		}
		fmt.Fprintln(c.out, line)
	case transport.TransferFailed:
		delete(c.started, transferKey(ev))
		if c.verbose && ev.Err != nil {
			fmt.Fprintf(c.out, "  ❌ %s: %s\n", ev.Resource, ev.Err)
		}
	}
}

func (c *Console) Debug(message string) {
	if !c.verbose {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "  🔍 %s\n", message)
}
