package staging

import (
	"fmt"
	"sort"
	"strings"
)

// Counters tracks per-entity-kind insert/update counts. They exist for
// operator reporting only; nothing branches on them.
type Counters struct {
	ins map[string]int
	upd map[string]int
}

func NewCounters() *Counters {
	return &Counters{ins: make(map[string]int), upd: make(map[string]int)}
}

func (c *Counters) IncrIns(kind string) { c.ins[kind]++ }
func (c *Counters) IncrUpd(kind string) { c.upd[kind]++ }

func (c *Counters) Ins(kind string) int { return c.ins[kind] }
func (c *Counters) Upd(kind string) int { return c.upd[kind] }

// Line formats one kind's counts for phase-completion reporting.
func (c *Counters) Line(kind string) string {
	return fmt.Sprintf("`%s`: ins:%d, upd:%d", kind, c.ins[kind], c.upd[kind])
}

// Report dumps every kind touched so far, sorted by name.
func (c *Counters) Report() string {
	kinds := make(map[string]bool)
	for k := range c.ins {
		kinds[k] = true
	}
	for k := range c.upd {
		kinds[k] = true
	}
	names := make([]string, 0, len(kinds))
	for k := range kinds {
		names = append(names, k)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("All counters:\n")
	for _, k := range names {
		b.WriteString("  " + c.Line(k) + "\n")
	}
	return b.String()
}
