// Package report renders the progress of a training run in the terminal: one line per epoch, and a
// summary table of all epochs with the best validation score highlighted.
package report

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"golang.org/x/term"
)

// Epoch holds the metrics of one training epoch.
type Epoch struct {
	Epoch int

	// NumSteps of parameter updates in the epoch.
	NumSteps int

	// Loss is the mean of the training losses of the steps.
	Loss float32

	// DiagnosticLoss and GradNorm are computed over the training nodes with the full graph, after the epoch.
	DiagnosticLoss, GradNorm float32

	ValidationF1, TestF1 float64
	Elapsed              time.Duration
}

// Reporter prints the epochs to a writer, and keeps them for the final Summary.
type Reporter struct {
	w      io.Writer
	color  bool
	epochs []Epoch
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	bestStyle   = cellStyle.
			Background(lipgloss.Color("13")).
			Foreground(lipgloss.Color("0"))
	titleStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("13")).
			Foreground(lipgloss.Color("0")).
			Padding(0, 2)
)

// New creates a Reporter that writes to w. If color is false, no styles are used.
func New(w io.Writer, color bool) *Reporter {
	return &Reporter{w: w, color: color}
}

// Epochs reported so far.
func (r *Reporter) Epochs() []Epoch {
	return r.epochs
}

// Add an epoch and print its line.
func (r *Reporter) Add(e Epoch) {
	r.epochs = append(r.epochs, e)
	_, _ = fmt.Fprintln(r.w, r.epochLine(e))
}

func (r *Reporter) epochLine(e Epoch) string {
	return fmt.Sprintf("Epoch %3d: steps=%d, loss=%.4f, diagnostic_loss=%.4f, grad_norm=%.4f, val_f1=%.4f, test_f1=%.4f (%s)",
		e.Epoch, e.NumSteps, e.Loss, e.DiagnosticLoss, e.GradNorm, e.ValidationF1, e.TestF1,
		e.Elapsed.Round(time.Millisecond))
}

// Best returns the index of the epoch with the highest validation F1, or -1 if there are no epochs.
// Ties are resolved in favor of the earliest epoch.
func (r *Reporter) Best() int {
	best := -1
	for ii, e := range r.epochs {
		if best < 0 || e.ValidationF1 > r.epochs[best].ValidationF1 {
			best = ii
		}
	}
	return best
}

// Summary renders the table of all epochs, centered in the terminal (if writing to one).
func (r *Reporter) Summary(title string) {
	if len(r.epochs) == 0 {
		_, _ = fmt.Fprintln(r.w, "No epochs to report.")
		return
	}
	best := r.Best()
	rows := make([][]string, 0, len(r.epochs))
	for _, e := range r.epochs {
		rows = append(rows, []string{
			fmt.Sprintf("%d", e.Epoch),
			fmt.Sprintf("%.4f", e.Loss),
			fmt.Sprintf("%.4f", e.GradNorm),
			fmt.Sprintf("%.4f", e.ValidationF1),
			fmt.Sprintf("%.4f", e.TestF1),
		})
	}
	tbl := table.New().
		Headers("Epoch", "Loss", "Grad Norm", "Validation F1", "Test F1").
		Rows(rows...)
	if r.color {
		tbl = tbl.Border(lipgloss.RoundedBorder()).
			StyleFunc(func(row, col int) lipgloss.Style {
				switch {
				case row == table.HeaderRow:
					return headerStyle
				case row == best:
					return bestStyle
				}
				return cellStyle
			})
		title = titleStyle.Render(title)
	} else {
		tbl = tbl.Border(lipgloss.ASCIIBorder()).
			StyleFunc(func(row, col int) lipgloss.Style { return cellStyle })
	}
	bestEpoch := r.epochs[best]
	footer := fmt.Sprintf("Best validation F1 %.4f at epoch %d (test F1 %.4f)",
		bestEpoch.ValidationF1, bestEpoch.Epoch, bestEpoch.TestF1)
	block := strings.Join([]string{title, tbl.Render(), footer}, "\n")
	_, _ = fmt.Fprintln(r.w)
	_, _ = io.WriteString(r.w, centered(block, terminalWidth(r.w)))
}

// terminalWidth returns the width of the terminal w is writing to, or 0 if it is not a terminal.
func terminalWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return 0
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0
	}
	return width
}

// centered indents every line of block so that the block is centered on width.
// Colors and control sequences don't count in the width of a line.
func centered(block string, width int) string {
	lines := strings.Split(block, "\n")
	blockWidth := 0
	for _, line := range lines {
		blockWidth = max(blockWidth, lipgloss.Width(line))
	}
	indent := strings.Repeat(" ", max(0, (width-blockWidth)/2))
	var sb strings.Builder
	for _, line := range lines {
		if len(line) > 0 {
			sb.WriteString(indent)
			sb.WriteString(line)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
