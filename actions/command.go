/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package actions

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// Workflow command names.
const (
	CommandDebug   = "debug"
	CommandNotice  = "notice"
	CommandWarning = "warning"
	CommandError   = "error"
)

// dataEscaper escapes a workflow command message.
var dataEscaper = strings.NewReplacer("%", "%25", "\r", "%0D", "\n", "%0A")

// propertyEscaper escapes a workflow command property value.
var propertyEscaper = strings.NewReplacer("%", "%25", "\r", "%0D", "\n", "%0A", ":", "%3A", ",", "%2C")

// EscapeData escapes s for use as a workflow command message.
func EscapeData(s string) string { return dataEscaper.Replace(s) }

// EscapeProperty escapes s for use as a workflow command property value.
func EscapeProperty(s string) string { return propertyEscaper.Replace(s) }

// FormatCommand renders a workflow command, e.g.
//
//	::warning file=app.go,line=1::something happened
//
// Properties are emitted in key order; empty values are skipped.
func FormatCommand(name string, props map[string]string, message string) string {
	var sb strings.Builder
	sb.WriteString("::")
	sb.WriteString(name)

	keys := make([]string, 0, len(props))
	for k, v := range props {
		if v != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for i, k := range keys {
		if i == 0 {
			sb.WriteByte(' ')
		} else {
			sb.WriteByte(',')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(EscapeProperty(props[k]))
	}

	sb.WriteString("::")
	sb.WriteString(EscapeData(message))
	return sb.String()
}

// IssueCommand writes a workflow command line to w.
func IssueCommand(w io.Writer, name string, props map[string]string, message string) error {
	_, err := fmt.Fprintln(w, FormatCommand(name, props, message))
	return err
}
