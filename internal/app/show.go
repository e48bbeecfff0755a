package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"
)

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// Show prints recent notification audit rows.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	pg, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if pg == nil {
		return errors.New("database not configured; cannot show notifications")
	}
	if closeStore != nil {
		defer closeStore()
	}

	records, err := pg.ListRecentNotifications(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(os.Stdout, "no notifications found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Cycle (UTC)\tAsset\tPrice\tStatus\tRule\tMessage")

	for _, rec := range records {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\n",
			rec.CycleTS.UTC().Format(time.RFC3339),
			rec.Asset,
			rec.ObservedPrice.StringFixed(2),
			rec.Status,
			shortID(rec.RuleID.Hex()),
			sanitizeInline(rec.Message),
		)
	}

	writer.Flush()
	return nil
}

func shortID(hex string) string {
	if len(hex) <= 12 {
		return hex
	}
	return hex[:10] + ".."
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
