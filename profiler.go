package ripple

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Profiler accumulates per-stage timings for one frame. In profiling mode
// the device's timing hook feeds it after every dispatch; without profiling
// the pipeline runs with no waits and nothing is recorded.
type Profiler struct {
	mu     sync.Mutex
	Scopes map[string]time.Duration
	Counts map[string]int
	Order  []string
}

func NewProfiler() *Profiler {
	return &Profiler{
		Scopes: make(map[string]time.Duration),
		Counts: make(map[string]int),
		Order:  make([]string, 0),
	}
}

func (p *Profiler) Add(name string, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.Scopes[name]; !ok {
		p.Order = append(p.Order, name)
	}
	p.Scopes[name] += d
}

func (p *Profiler) SetCount(name string, count int) {
	p.mu.Lock()
	p.Counts[name] = count
	p.mu.Unlock()
}

// Reset zeroes the timings while keeping scope order stable across frames.
func (p *Profiler) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for k := range p.Scopes {
		p.Scopes[k] = 0
	}
}

func (p *Profiler) GetStatsString() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	var sb strings.Builder
	sb.WriteString("Timings (CPU):\n")
	for _, name := range p.Order {
		dur := p.Scopes[name]
		us := dur.Microseconds()
		sb.WriteString(fmt.Sprintf("  %-28s: %d us\n", name, us))
	}

	sb.WriteString("\nStats:\n")
	keys := make([]string, 0, len(p.Counts))
	for k := range p.Counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sb.WriteString(fmt.Sprintf("  %-28s: %d\n", k, p.Counts[k]))
	}
	return sb.String()
}
