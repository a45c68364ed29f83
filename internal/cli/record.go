package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/akarpov87/mealkeep/internal/models"
	"github.com/akarpov87/mealkeep/internal/timex"
)

func (a *App) add(ctx context.Context) {

	name, err := GetSimpleText(a.reader, "Meal name", os.Stdout)
	if err != nil || name == "" {
		fmt.Println("Cancelled")
		return
	}

	when, err := GetSimpleText(a.reader, "When? (YYYY-MM-DD HH:MM, empty for now)", os.Stdout)
	if err != nil {
		fmt.Println("Cancelled")
		return
	}
	occurredAt, err := parseWhen(when)
	if err != nil {
		fmt.Println("Invalid date:", err)
		return
	}

	rawTags, err := GetSimpleText(a.reader, "Tags (comma-separated, optional)", os.Stdout)
	if err != nil {
		fmt.Println("Cancelled")
		return
	}

	rec, err := a.records.Add(ctx, name, occurredAt, parseTags(rawTags))
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	fmt.Printf("Added %s (%s)\n", rec.Name, rec.Id)
}

func (a *App) list(ctx context.Context) {
	rows, err := a.records.List(ctx)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	printRecords(rows)
}

func (a *App) find(ctx context.Context, name string) {
	rows, err := a.records.ListByName(ctx, name)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	printRecords(rows)
}

func (a *App) setHidden(ctx context.Context, id string, hidden bool) {
	if err := a.records.SetHidden(ctx, id, hidden); err != nil {
		fmt.Println("Error:", err)
		return
	}
	fmt.Println("OK")
}

func (a *App) delete(ctx context.Context, id string) {
	if err := a.records.Delete(ctx, id); err != nil {
		fmt.Println("Error:", err)
		return
	}
	fmt.Println("Deleted")
}

func (a *App) hideAll(ctx context.Context, name string) {
	n, err := a.records.HideByName(ctx, name)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	fmt.Printf("Hidden %d record(s)\n", n)
}

func (a *App) deleteAll(ctx context.Context, name string) {
	n, err := a.records.DeleteByName(ctx, name)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	fmt.Printf("Deleted %d record(s)\n", n)
}

func (a *App) renameTag(ctx context.Context, from, to string) {
	n, err := a.records.RenameTag(ctx, from, to)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	fmt.Printf("Retagged %d record(s)\n", n)
}

func (a *App) count(ctx context.Context) {
	n, err := a.records.Count(ctx)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	fmt.Println("Records:", n)
}

func parseWhen(s string) (timex.Timestamp, error) {
	if s == "" || s == "now" {
		return timex.Now(), nil
	}
	for _, layout := range []string{"2006-01-02 15:04", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return timex.TimestampOf(t), nil
		}
	}
	return timex.Timestamp{}, fmt.Errorf("unrecognized date %q", s)
}

func parseTags(s string) []string {
	if s == "" {
		return nil
	}
	var tags []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

func printRecords(rows []models.Record) {
	if len(rows) == 0 {
		fmt.Println("No records")
		return
	}
	for _, r := range rows {
		marker := " "
		if r.Hidden {
			marker = "H"
		}
		tags := ""
		if len(r.Tags) > 0 {
			tags = " [" + strings.Join(r.Tags, ",") + "]"
		}
		fmt.Printf("%s %-36s %-19s %s%s (%s)\n",
			marker, r.Id, r.OccurredAt.Time().Local().Format("2006-01-02 15:04"),
			r.Name, tags, r.SyncState)
	}
}
