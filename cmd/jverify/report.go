package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/logrusorgru/aurora"
	"github.com/olekukonko/tablewriter"

	"github.com/daimatz/jverify/pkg/verifier"
)

func statusText(au aurora.Aurora, s verifier.Status) string {
	switch s {
	case verifier.OK:
		return au.Green(s.String()).String()
	case verifier.NotYet:
		return au.Yellow(s.String()).String()
	}
	return au.Red(s.String()).Bold().String()
}

func detail(r verifier.Result) string {
	if r.Status == verifier.Rejected {
		return r.Message
	}
	return ""
}

// rows flattens reports into one table row per pass result.
func rows(au aurora.Aurora, reports []*verifier.Report) [][]string {
	var out [][]string
	for _, rep := range reports {
		out = append(out,
			[]string{rep.Class, "1", "", statusText(au, rep.Pass1.Status), detail(rep.Pass1)},
			[]string{rep.Class, "2", "", statusText(au, rep.Pass2.Status), detail(rep.Pass2)},
		)
		for _, m := range rep.Methods {
			out = append(out, []string{rep.Class, "3a", m.Name, statusText(au, m.Result.Status), detail(m.Result)})
		}
	}
	return out
}

// render writes the result table, then notes and a summary line.
func render(w io.Writer, au aurora.Aurora, reports []*verifier.Report) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Class", "Pass", "Method", "Result", "Detail"})
	table.SetAutoWrapText(false)
	table.SetAutoMergeCells(true)
	table.AppendBulk(rows(au, reports))
	table.Render()

	rejected := 0
	for _, rep := range reports {
		if rep.Rejected() {
			rejected++
		}
		for _, msg := range rep.Messages {
			kind := au.Cyan("note")
			if strings.HasPrefix(msg, "warning:") {
				kind = au.Yellow("warn")
				msg = strings.TrimSpace(strings.TrimPrefix(msg, "warning:"))
			}
			fmt.Fprintf(w, "%s %s: %s\n", kind, rep.Class, msg)
		}
	}
	summary := fmt.Sprintf("%d classes verified, %d rejected", len(reports), rejected)
	if rejected > 0 {
		fmt.Fprintln(w, au.Red(summary).Bold())
	} else {
		fmt.Fprintln(w, au.Green(summary))
	}
}
