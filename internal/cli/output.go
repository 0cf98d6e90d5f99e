package cli

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
	"github.com/AntonStoeckl/library-circulation-go/circulation/oteladapters"
	"github.com/AntonStoeckl/library-circulation-go/circulation/reminders"
	"github.com/AntonStoeckl/library-circulation-go/internal/loadgen"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// formatter writes results as JSON or as text.
type formatter struct {
	format string
	out    io.Writer
	errOut io.Writer
}

func newFormatter(opts *RootOptions, out, errOut io.Writer) *formatter {
	return &formatter{format: opts.Format, out: out, errOut: errOut}
}

func (f *formatter) isJSON() bool {
	return f.format == "json"
}

func (f *formatter) writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	return encoder.Encode(v)
}

type loanOutput struct {
	PatronID   string `json:"patron_id"`
	ItemID     int64  `json:"item_id"`
	ItemType   string `json:"item_type"`
	BorrowDate string `json:"borrow_date"`
	DueDate    string `json:"due_date"`
}

func (f *formatter) loan(loan circulation.Loan) error {
	if f.isJSON() {
		return f.writeJSON(f.out, loanOutput{
			PatronID:   loan.PatronID,
			ItemID:     loan.ItemID,
			ItemType:   loan.ItemType.String(),
			BorrowDate: loan.BorrowDate.Format(time.DateOnly),
			DueDate:    loan.DueDate.Format(time.DateOnly),
		})
	}

	_, err := fmt.Fprintf(f.out, "%s borrowed %s %d, due %s\n",
		loan.PatronID, loan.ItemType, loan.ItemID, loan.DueDate.Format(time.DateOnly))

	return err
}

type returnOutput struct {
	BorrowID    int64  `json:"borrow_id"`
	PatronID    string `json:"patron_id"`
	ItemID      int64  `json:"item_id"`
	OverdueDays int    `json:"overdue_days"`
	Fine        int64  `json:"fine"`
	Restocked   bool   `json:"restocked"`
}

func (f *formatter) returned(r circulation.Return) error {
	if f.isJSON() {
		return f.writeJSON(f.out, returnOutput(r))
	}

	if r.Fine == 0 {
		_, err := fmt.Fprintf(f.out, "%s returned %d on time\n", r.PatronID, r.ItemID)
		return err
	}

	_, err := fmt.Fprintf(f.out, "%s returned %d %d day(s) late, fine %d\n", r.PatronID, r.ItemID, r.OverdueDays, r.Fine)

	return err
}

type paymentOutput struct {
	ID          string                   `json:"id"`
	PatronID    string                   `json:"patron_id"`
	Amount      int64                    `json:"amount"`
	Applied     int64                    `json:"applied"`
	Unapplied   int64                    `json:"unapplied"`
	Adjustments []adjustmentOutputRecord `json:"adjustments"`
}

type adjustmentOutputRecord struct {
	BorrowID int64 `json:"borrow_id"`
	OldFine  int64 `json:"old_fine"`
	NewFine  int64 `json:"new_fine"`
}

func (f *formatter) payment(p circulation.Payment) error {
	if f.isJSON() {
		adjustments := make([]adjustmentOutputRecord, 0, len(p.Adjustments))
		for _, a := range p.Adjustments {
			adjustments = append(adjustments, adjustmentOutputRecord{BorrowID: a.BorrowID, OldFine: a.OldFine, NewFine: a.NewFine})
		}

		return f.writeJSON(f.out, paymentOutput{
			ID:          p.ID.String(),
			PatronID:    p.PatronID,
			Amount:      p.Amount,
			Applied:     p.Applied,
			Unapplied:   p.Unapplied,
			Adjustments: adjustments,
		})
	}

	_, err := fmt.Fprintf(f.out, "payment %s: %d applied, %d unapplied\n", p.ID, p.Applied, p.Unapplied)

	return err
}

type fineOutput struct {
	PatronID      string `json:"patron_id"`
	TotalFine     int64  `json:"total_fine"`
	HasUnpaidFine bool   `json:"has_unpaid_fine"`
}

func (f *formatter) fine(patronID string, total int64) error {
	if f.isJSON() {
		return f.writeJSON(f.out, fineOutput{PatronID: patronID, TotalFine: total, HasUnpaidFine: total > 0})
	}

	_, err := fmt.Fprintf(f.out, "%s owes %d\n", patronID, total)

	return err
}

type borrowRecordOutput struct {
	ID         int64  `json:"id"`
	PatronID   string `json:"patron_id"`
	ItemID     int64  `json:"item_id"`
	BorrowDate string `json:"borrow_date"`
	DueDate    string `json:"due_date"`
}

func (f *formatter) overdue(records []circulation.BorrowRecord) error {
	if f.isJSON() {
		output := make([]borrowRecordOutput, 0, len(records))
		for _, r := range records {
			output = append(output, borrowRecordOutput{
				ID:         r.ID,
				PatronID:   r.PatronID,
				ItemID:     r.ItemID,
				BorrowDate: r.BorrowDate.Format(time.DateOnly),
				DueDate:    r.DueDate.Format(time.DateOnly),
			})
		}

		return f.writeJSON(f.out, output)
	}

	if len(records) == 0 {
		_, err := fmt.Fprintln(f.out, "no overdue loans")
		return err
	}

	tw := tabwriter.NewWriter(f.out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "PATRON\tITEM\tBORROWED\tDUE")

	for _, r := range records {
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n",
			r.PatronID, r.ItemID, r.BorrowDate.Format(time.DateOnly), r.DueDate.Format(time.DateOnly))
	}

	return tw.Flush()
}

func (f *formatter) notices(notices []reminders.Notice) error {
	if f.isJSON() {
		return reminders.WriteJSON(f.out, notices)
	}

	if len(notices) == 0 {
		_, err := fmt.Fprintln(f.out, "no patrons with unpaid fines")
		return err
	}

	for _, n := range notices {
		if _, err := fmt.Fprintf(f.out, "To: %s\nSubject: %s\n\n%s\n%s\n", n.PatronID, n.Subject, n.Body, strings.Repeat("-", 40)); err != nil {
			return err
		}
	}

	return nil
}

func (f *formatter) loadStats(stats loadgen.Stats) error {
	if f.isJSON() {
		return f.writeJSON(f.out, stats)
	}

	_, err := fmt.Fprintf(f.out,
		"%d requests in %s (%.1f req/s): %d succeeded, %d rejected, %d failed\nborrow %d, return %d, pay %d\n",
		stats.Requests, stats.Duration.Truncate(time.Millisecond), stats.RequestsPerSecond(),
		stats.Succeeded, stats.Rejected, stats.Failed,
		stats.ByScenario[loadgen.ScenarioBorrow], stats.ByScenario[loadgen.ScenarioReturn], stats.ByScenario[loadgen.ScenarioPay],
	)

	return err
}

func (f *formatter) message(msg string) error {
	if f.isJSON() {
		return f.writeJSON(f.out, map[string]string{"result": msg})
	}

	_, err := fmt.Fprintln(f.out, msg)

	return err
}

// metrics goes to errOut, so it never mixes with the command's result.
func (f *formatter) metrics(points []oteladapters.MetricPoint) {
	if f.isJSON() {
		_ = f.writeJSON(f.errOut, points)
		return
	}

	tw := tabwriter.NewWriter(f.errOut, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "METRIC\tKIND\tATTRIBUTES\tCOUNT\tSUM\tVALUE")

	for _, p := range points {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%.6f\t%.3f\n", p.Name, p.Kind, attributeKey(p.Attributes), p.Count, p.Sum, p.Value)
	}

	_ = tw.Flush()
}

func attributeKey(attrs map[string]string) string {
	pairs := make([]string, 0, len(attrs))
	for k, v := range attrs {
		pairs = append(pairs, k+"="+v)
	}

	slices.Sort(pairs)

	return strings.Join(pairs, ",")
}
