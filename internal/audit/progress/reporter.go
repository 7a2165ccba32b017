// Package progress renders the live status line of an audit run.
package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"

	"github.com/JoeanSteinbock/address-approval-checker/internal/metrics"
)

const (
	DefaultThrottle = 500 * time.Millisecond
	DefaultTick     = time.Second

	etaComputing = "计算中..."
)

type Options struct {
	// Throttle is the minimum gap between unforced lines; 0 disables throttling.
	Throttle time.Duration
	// Tick forces a line periodically between Start and Stop; 0 disables it.
	Tick time.Duration
	// InPlace rewrites a single terminal line instead of printing one line per update.
	InPlace bool
	Now     func() time.Time
}

// Reporter tracks completed/total for one run. completed never decreases and
// never exceeds total. All methods are safe for concurrent use.
type Reporter struct {
	out      io.Writer
	throttle time.Duration
	tick     time.Duration
	inPlace  bool
	nowFn    func() time.Time

	mu          sync.Mutex
	total       int
	completed   int
	action      string
	start       time.Time
	lastEmit    time.Time
	lastPercent int
	emitted     bool
	finished    bool

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
	started  bool
}

func New(out io.Writer, total int, opts Options) *Reporter {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Throttle < 0 {
		opts.Throttle = DefaultThrottle
	}
	if total < 0 {
		total = 0
	}
	return &Reporter{
		out:         out,
		throttle:    opts.Throttle,
		tick:        opts.Tick,
		inPlace:     opts.InPlace,
		nowFn:       opts.Now,
		total:       total,
		start:       opts.Now(),
		lastPercent: -1,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// Start launches the background tick. It is a no-op when Tick is 0.
func (r *Reporter) Start() {
	r.mu.Lock()
	if r.started || r.tick <= 0 {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.mu.Unlock()

	go func() {
		defer close(r.doneCh)
		ticker := time.NewTicker(r.tick)
		defer ticker.Stop()
		for {
			select {
			case <-r.stopCh:
				return
			case <-ticker.C:
				r.Report(true)
			}
		}
	}()
}

// Stop halts the background tick and waits for it to exit. Safe to call more
// than once.
func (r *Reporter) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.mu.Lock()
	started := r.started
	r.mu.Unlock()
	if started {
		<-r.doneCh
	}
}

// Advance records one finished unit of work and reports.
func (r *Reporter) Advance(action string) {
	r.mu.Lock()
	if r.completed < r.total {
		r.completed++
	}
	if action != "" {
		r.action = action
	}
	r.emitLocked(false)
	r.mu.Unlock()
}

// SetAction changes the action shown on the next line without advancing.
func (r *Reporter) SetAction(action string) {
	r.mu.Lock()
	r.action = action
	r.mu.Unlock()
}

// Report emits a line if forced, if the throttle window has passed, or if the
// integer percentage went up since the last line.
func (r *Reporter) Report(force bool) {
	r.mu.Lock()
	r.emitLocked(force)
	r.mu.Unlock()
}

// Finish stops the tick and prints a final line unconditionally.
func (r *Reporter) Finish(action string) {
	r.Stop()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return
	}
	if action != "" {
		r.action = action
	}
	r.emitLocked(true)
	r.finished = true
	if r.inPlace {
		fmt.Fprint(r.out, "\n")
	}
}

// Snapshot returns the current counters.
func (r *Reporter) Snapshot() (completed, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completed, r.total
}

func (r *Reporter) emitLocked(force bool) {
	if r.finished {
		return
	}
	now := r.nowFn()
	pct := Percent(r.completed, r.total)
	due := !r.emitted || now.Sub(r.lastEmit) >= r.throttle
	if !force && !due && pct <= r.lastPercent {
		return
	}

	line := Line(r.completed, r.total, now.Sub(r.start), r.action)
	if r.inPlace {
		fmt.Fprintf(r.out, "\r\x1b[2K%s", line)
	} else {
		fmt.Fprintln(r.out, line)
	}

	r.emitted = true
	r.lastEmit = now
	r.lastPercent = pct
	metrics.ProgressPercent.Set(float64(pct))
}

// Percent is the integer completion percentage; an empty run is complete.
func Percent(completed, total int) int {
	if total <= 0 {
		return 100
	}
	return completed * 100 / total
}

// ETA estimates the remaining time as elapsed/completed * remaining. ok is
// false when nothing has completed yet.
func ETA(completed, total int, elapsed time.Duration) (eta time.Duration, ok bool) {
	if completed <= 0 {
		return 0, false
	}
	remaining := total - completed
	if remaining <= 0 {
		return 0, true
	}
	return time.Duration(float64(elapsed) / float64(completed) * float64(remaining)), true
}

// FormatETA renders d in seconds, minutes or hours with one decimal.
func FormatETA(d time.Duration) string {
	secs := d.Seconds()
	switch {
	case secs < 60:
		return fmt.Sprintf("%.1f秒", secs)
	case secs < 3600:
		return fmt.Sprintf("%.1f分钟", secs/60)
	default:
		return fmt.Sprintf("%.1f小时", secs/3600)
	}
}

// Line formats one status line.
func Line(completed, total int, elapsed time.Duration, action string) string {
	eta := etaComputing
	if d, ok := ETA(completed, total, elapsed); ok {
		eta = FormatETA(d)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "进度: [%d/%d] %d%% 完成 | 预计剩余时间: %s", completed, total, Percent(completed, total), eta)
	if action != "" {
		b.WriteString(" | ")
		b.WriteString(action)
	}
	return b.String()
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}
