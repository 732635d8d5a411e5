package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/srg/podpair/internal/btctl"
)

var headerColor = color.New(color.FgCyan, color.Bold)

// displayCandidates renders the discovered devices as an indexed table the
// selection prompt refers to.
func displayCandidates(out io.Writer, devices []btctl.Device) {
	headerColor.Fprintf(out, "Discovered %d matching device(s):\n", len(devices))

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  #\tNAME\tADDRESS")
	for i, d := range devices {
		name := d.Name
		if name == "" {
			name = "(unnamed)"
		}
		fmt.Fprintf(w, "  %d\t%s\t%s\n", i+1, name, d.Address)
	}
	_ = w.Flush()
}
