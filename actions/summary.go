/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package actions

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"chainguard.dev/buildledger/ledger"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
)

// BuildSummary describes one run for the job summary.
type BuildSummary struct {
	Identifier  string
	BuildNumber int
	Incremented bool
	Branch      string
	Commit      string
	Ledger      ledger.Ledger
}

// Markdown renders the summary: a headline for the identifier followed by
// every counter on the branch.
func (s BuildSummary) Markdown() (string, error) {
	var sb strings.Builder
	sb.WriteString("## Build number\n\n")
	if s.Incremented {
		fmt.Fprintf(&sb, "`%s` was assigned build number **%d**", s.Identifier, s.BuildNumber)
	} else {
		fmt.Fprintf(&sb, "`%s` is at build number **%d**", s.Identifier, s.BuildNumber)
	}
	if s.Commit != "" {
		fmt.Fprintf(&sb, " in `%s`", shortHash(s.Commit))
	}
	if s.Branch != "" {
		fmt.Fprintf(&sb, " on `%s`", s.Branch)
	}
	sb.WriteString(".\n\n")

	if len(s.Ledger) > 0 {
		if err := writeLedgerTable(&sb, s.Ledger, s.Identifier); err != nil {
			return "", err
		}
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

// writeLedgerTable renders l as a markdown table, marking current.
func writeLedgerTable(w io.Writer, l ledger.Ledger, current string) error {
	table := newMarkdownTable([]string{"Identifier", "Build number"}, w)
	for _, id := range l.Identifiers() {
		name := "`" + id + "`"
		if id == current {
			name = "**" + name + "**"
		}
		_ = table.Append([]string{name, strconv.Itoa(l.Get(id))})
	}
	return table.Render()
}

func newMarkdownTable(headers []string, w io.Writer) *tablewriter.Table {
	cfg := tablewriter.Config{
		Header: tw.CellConfig{
			Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			Formatting: tw.CellFormatting{AutoFormat: tw.Off},
		},
		Row: tw.CellConfig{
			Alignment: tw.CellAlignment{Global: tw.AlignLeft},
		},
		Behavior: tw.Behavior{TrimSpace: tw.Off},
	}
	return tablewriter.NewTable(w,
		tablewriter.WithConfig(cfg),
		tablewriter.WithHeader(headers),
		tablewriter.WithRenderer(renderer.NewBlueprint()),
		tablewriter.WithRendition(tw.Rendition{
			Symbols: tw.NewSymbols(tw.StyleMarkdown),
			Borders: tw.Border{
				Left:   tw.On,
				Top:    tw.Off,
				Right:  tw.On,
				Bottom: tw.Off,
			},
		}),
		tablewriter.WithRowAutoWrap(tw.WrapNone),
	)
}

func shortHash(h string) string {
	if len(h) > 7 {
		return h[:7]
	}
	return h
}
