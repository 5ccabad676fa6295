package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/starford/luzzle/internal/models"
)

var (
	addedColor   = color.New(color.FgGreen)
	updatedColor = color.New(color.FgCyan)
	prunedColor  = color.New(color.FgYellow)
	skippedColor = color.New(color.Faint)
	errorColor   = color.New(color.FgRed, color.Bold)
)

// tally counts outcomes of a bulk run.
type tally map[models.Action]int

// printer renders sync outcomes one per line.
type printer struct {
	w       io.Writer
	verbose bool
	counts  tally
	failed  int
}

func newPrinter(w io.Writer, verbose bool) *printer {
	return &printer{w: w, verbose: verbose, counts: tally{}}
}

func (p *printer) result(r models.Result) {
	if r.Failed() {
		p.failed++
		errorColor.Fprintf(p.w, "%-8s", "error")
		fmt.Fprintf(p.w, " %s: %s\n", r.File, r.Message())
		return
	}
	p.counts[r.Action]++
	c := skippedColor
	switch r.Action {
	case models.ActionAdded:
		c = addedColor
	case models.ActionUpdated:
		c = updatedColor
	case models.ActionPruned:
		c = prunedColor
	case models.ActionSkipped:
		if !p.verbose {
			return
		}
	}
	c.Fprintf(p.w, "%-8s", r.Action)
	fmt.Fprintf(p.w, " %s\n", r.File)
}

func (p *printer) summary() {
	fmt.Fprintf(p.w, "%d added, %d updated, %d skipped, %d pruned",
		p.counts[models.ActionAdded], p.counts[models.ActionUpdated],
		p.counts[models.ActionSkipped], p.counts[models.ActionPruned])
	if p.failed > 0 {
		errorColor.Fprintf(p.w, ", %d failed", p.failed)
	}
	fmt.Fprintln(p.w)
}

// err reports the failures of the run as the command error.
func (p *printer) err() error {
	if p.failed == 0 {
		return nil
	}
	return fmt.Errorf("%d item(s) failed", p.failed)
}
