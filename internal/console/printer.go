package console

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// printer serializes terminal writes. Turn output goes straight to the base
// writer; asynchronous deliveries go through the readline-aware writer while
// the prompt is live so they do not clobber the line being edited.
type printer struct {
	mu    sync.Mutex
	base  io.Writer
	async io.Writer
}

func newPrinter(w io.Writer) *printer {
	if w == nil {
		w = os.Stdout
	}
	return &printer{base: w}
}

// attach installs the prompt-aware writer for async deliveries.
func (p *printer) attach(w io.Writer) {
	p.mu.Lock()
	p.async = w
	p.mu.Unlock()
}

func (p *printer) detach() {
	p.mu.Lock()
	p.async = nil
	p.mu.Unlock()
}

func (p *printer) print(s string) {
	p.mu.Lock()
	io.WriteString(p.base, s)
	p.mu.Unlock()
}

func (p *printer) println(s string) { p.print(s + "\n") }

func (p *printer) printf(format string, args ...any) {
	p.print(fmt.Sprintf(format, args...))
}

// deliver writes an out-of-band block, preferring the prompt-aware writer.
func (p *printer) deliver(s string) {
	p.mu.Lock()
	w := p.async
	if w == nil {
		w = p.base
	}
	io.WriteString(w, s)
	p.mu.Unlock()
}
