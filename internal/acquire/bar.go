package acquire

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/bubbles/progress"
	"golang.org/x/term"
)

// Bar renders download progress. On a terminal the line is redrawn in
// place; otherwise a line is printed every 10%.
type Bar struct {
	out         io.Writer
	interactive bool
	model       progress.Model

	lastStep int64
}

// NewBar writes progress to out.
func NewBar(out io.Writer) *Bar {
	interactive := false
	if f, ok := out.(*os.File); ok {
		interactive = term.IsTerminal(int(f.Fd()))
	}
	m := progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage())
	m.Width = 40
	return &Bar{
		out:         out,
		interactive: interactive,
		model:       m,
	}
}

// Update matches the Progress signature.
func (b *Bar) Update(name string, done, total int64) {
	if done == 0 {
		b.lastStep = -1
	}
	if b.interactive {
		b.redraw(name, done, total)
		return
	}

	if total <= 0 {
		// Unknown size: only the start is reported, the end is logged by the caller
		if done == 0 {
			fmt.Fprintf(b.out, "%s: downloading (size unknown)\n", name)
		}
		return
	}
	step := done * 10 / total
	if step == b.lastStep {
		return
	}
	b.lastStep = step
	fmt.Fprintf(b.out, "%s: %3d%% (%s / %s)\n", name, step*10, HumanReadable(done), HumanReadable(total))
}

func (b *Bar) redraw(name string, done, total int64) {
	if total <= 0 {
		fmt.Fprintf(b.out, "\r%s %s", name, HumanReadable(done))
		return
	}
	percent := float64(done) / float64(total)
	fmt.Fprintf(b.out, "\r%s %s %3.0f%% %s/%s", name, b.model.ViewAs(percent), percent*100, HumanReadable(done), HumanReadable(total))
	if done >= total {
		fmt.Fprintln(b.out)
	}
}
