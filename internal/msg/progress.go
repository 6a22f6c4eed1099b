package msg

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/fatih/color"
)

// Progress counts finished steps out of a known total and prints one line
// per step, prefixed with a right-aligned [n/total] counter.
type Progress struct {
	Total int
	Start time.Time

	mu      sync.Mutex
	current int
}

func NewProgress(total int) *Progress {
	return &Progress{Total: total, Start: time.Now()}
}

// Step advances the counter and prints verb and subject.
func (p *Progress) Step(verb, subject string) {
	p.mu.Lock()
	p.current++
	n := p.current
	p.mu.Unlock()

	width := len(strconv.Itoa(max(p.Total, 1)))
	counter := fmt.Sprintf("[%*d/%d]", width, n, p.Total)

	outMu.Lock()
	defer outMu.Unlock()
	fmt.Fprintf(out, "%s %s %s\n", color.HiBlackString(counter), color.HiGreenString(verb), subject)
}

// Done returns how many steps were taken.
func (p *Progress) Done() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Finish prints the elapsed time.
func (p *Progress) Finish(verb string) {
	Status(verb, "%d step(s) in %s", p.Done(), time.Since(p.Start).Round(time.Millisecond))
}
