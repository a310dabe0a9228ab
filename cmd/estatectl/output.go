package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"estatecore/internal/core"
)

const (
	outputText = "text"
	outputJSON = "json"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func ago(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}

func formatParams(params map[string]string) string {
	if len(params) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+params[k])
	}
	return strings.Join(parts, " ")
}

func formatFields(fields core.Fields) string {
	if len(fields) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(fields))
	for _, k := range fields.Keys() {
		parts = append(parts, fmt.Sprintf("%s=%s", k, fields.String(k)))
	}
	return strings.Join(parts, " ")
}

func printDispatch(w io.Writer, format string, res core.DispatchResult) error {
	if format == outputJSON {
		return writeJSON(w, map[string]any{
			"txn_id":        res.TxnID,
			"status":        res.Status,
			"output_params": res.OutputParams,
			"replayed":      res.Replayed,
		})
	}
	tw := newTable(w)
	fmt.Fprintf(tw, "txn\t%s\n", res.TxnID)
	fmt.Fprintf(tw, "status\t%s\n", res.Status)
	fmt.Fprintf(tw, "outputs\t%s\n", formatParams(res.OutputParams))
	if res.Replayed {
		fmt.Fprintf(tw, "replayed\ttrue\n")
	}
	return tw.Flush()
}

func printTransaction(w io.Writer, format string, txn core.BusinessTransaction, staged []core.StagedRecord) error {
	if format == outputJSON {
		return writeJSON(w, map[string]any{"transaction": txn, "staged": staged})
	}
	tw := newTable(w)
	fmt.Fprintf(tw, "txn\t%s\n", txn.ID)
	fmt.Fprintf(tw, "service\t%s\n", txn.ServiceCode)
	fmt.Fprintf(tw, "status\t%s\n", txn.Status)
	fmt.Fprintf(tw, "outputs\t%s\n", formatParams(txn.OutputParams))
	fmt.Fprintf(tw, "updated\t%s\n", ago(txn.UpdatedAt))
	if txn.Error != "" {
		fmt.Fprintf(tw, "error\t%s\n", txn.Error)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(txn.Listeners) > 0 {
		fmt.Fprintln(w)
		tw = newTable(w)
		fmt.Fprintln(tw, "ORDER\tLISTENER\tPHASE")
		for _, st := range txn.Listeners {
			fmt.Fprintf(tw, "%d\t%s\t%s\n", st.Order, st.Name, st.Phase)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	if len(staged) > 0 {
		fmt.Fprintln(w)
		tw = newTable(w)
		fmt.Fprintf(tw, "SEQ\tOP\tENTITY\tID\tSECTION\tBEFORE\tFIELDS\n")
		for _, rec := range staged {
			before := "-"
			if rec.HasSnapshot() {
				before = statusLabel(rec.BeforeStatus)
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n", rec.Seq, rec.Operation, rec.Entity, rec.EntityID, rec.Section, before, formatFields(rec.Fields))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func printLive(w io.Writer, format string, rows []core.LiveEntity) error {
	if format == outputJSON {
		return writeJSON(w, rows)
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "ENTITY\tID\tSTATUS\tTXN\tUPDATED\tFIELDS")
	for _, row := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", row.Entity, row.ID, statusLabel(row.Status), row.TxnID, ago(row.UpdatedAt), formatFields(row.Fields))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%s rows\n", humanize.Comma(int64(len(rows))))
	return err
}

func statusLabel(status core.StatusCode) string {
	switch status {
	case core.StatusValid:
		return "valid"
	case core.StatusInvalid:
		return "invalid"
	case core.StatusNew:
		return "new"
	}
	return string(status)
}

func joinOrDash(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, " ")
}
