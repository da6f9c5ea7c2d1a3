package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/jmerrifield20/verichain/pkg/client"
	"github.com/pterm/pterm"
	"gopkg.in/yaml.v3"
)

func validateFormat(format string) error {
	switch format {
	case "text", "json", "yaml":
		return nil
	default:
		return fmt.Errorf("unknown output format %q (want text, json or yaml)", format)
	}
}

// render writes v as JSON or YAML, or calls text for the human format.
func render(w io.Writer, format string, v any, text func() error) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return text()
	}
}

func printAnalysis(w io.Writer, a *client.Analysis) error {
	fmt.Fprintf(w, "Product:     %s\n", a.ProductName)
	fmt.Fprintf(w, "Confidence:  %s\n", a.Confidence)
	fmt.Fprintf(w, "Product ID:  %s\n", a.ProductID)
	fmt.Fprintf(w, "Analysed at: %s\n", a.Timestamp.Format(time.RFC3339))
	return nil
}

func printCertification(w io.Writer, c *client.Certification) error {
	fmt.Fprintf(w, "Product:     %s (%s)\n", c.ProductName, c.ProductID)
	fmt.Fprintf(w, "Confidence:  %s\n", c.Confidence)
	fmt.Fprintf(w, "Tx Hash:     %s\n", c.TxHash)
	fmt.Fprintf(w, "Block:       %d\n", c.BlockNumber)
	fmt.Fprintf(w, "Status:      %s\n", c.Status)
	fmt.Fprintf(w, "Issued at:   %s\n", c.Timestamp.Format(time.RFC3339))
	return nil
}

func printHistory(w io.Writer, recs []client.Certification) error {
	if len(recs) == 0 {
		fmt.Fprintln(w, "No certifications yet.")
		return nil
	}
	data := pterm.TableData{{"BLOCK", "PRODUCT", "ID", "CONFIDENCE", "TX HASH", "ISSUED"}}
	for _, r := range recs {
		data = append(data, []string{
			strconv.FormatInt(r.BlockNumber, 10),
			r.ProductName,
			r.ProductID,
			r.Confidence,
			shortHash(r.TxHash),
			r.Timestamp.Format(time.RFC3339),
		})
	}
	return printTable(w, data)
}

func printHealth(w io.Writer, h *client.Health) error {
	data := pterm.TableData{
		{"FIELD", "VALUE"},
		{"status", h.Status},
		{"model loaded", strconv.FormatBool(h.ModelLoaded)},
		{"certifications retained", strconv.Itoa(h.TotalCertifications)},
		{"certifications issued", strconv.FormatUint(h.LifetimeCertifications, 10)},
		{"timestamp", h.Timestamp.Format(time.RFC3339)},
	}
	return printTable(w, data)
}

func printScanResults(w io.Writer, results []scanResult) error {
	data := pterm.TableData{{"FILE", "PRODUCT", "CONFIDENCE", "BLOCK", "TX HASH", "ERROR"}}
	for _, r := range results {
		row := []string{r.File, "", "", "", "", r.Error}
		if r.Analysis != nil {
			row[1] = r.Analysis.ProductName
			row[2] = r.Analysis.Confidence
		}
		if r.Certification != nil {
			row[3] = strconv.FormatInt(r.Certification.BlockNumber, 10)
			row[4] = shortHash(r.Certification.TxHash)
		}
		data = append(data, row)
	}
	return printTable(w, data)
}

func printTable(w io.Writer, data pterm.TableData) error {
	out, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, out)
	return err
}

// shortHash abbreviates a transaction hash for table display.
func shortHash(h string) string {
	if len(h) <= 18 {
		return h
	}
	return h[:10] + "…" + h[len(h)-6:]
}
