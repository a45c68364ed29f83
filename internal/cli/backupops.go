package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/akarpov87/mealkeep/internal/backup"
	"github.com/akarpov87/mealkeep/internal/conflict"
)

func (a *App) export(ctx context.Context, path string) {
	f, err := os.Create(path)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	defer f.Close()

	if err := a.pipeline.Export(ctx, f); err != nil {
		fmt.Println("Export failed:", err)
		return
	}
	fmt.Println("Exported to", path)
}

func (a *App) preview(ctx context.Context, path string) {
	content, err := os.ReadFile(path)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}

	p, err := a.pipeline.Preview(ctx, content)
	if err != nil {
		fmt.Println("Preview failed:", err)
		return
	}
	if !p.Valid {
		fmt.Println("Backup file is not valid:")
		for _, e := range p.Errors {
			fmt.Println("  -", e)
		}
		return
	}
	fmt.Println("Total:    ", p.TotalRecords)
	fmt.Println("New:      ", p.NewRecords)
	fmt.Println("Existing: ", p.ExistingRecords)
	fmt.Println("Conflicts:", len(p.Conflicts))
	for _, w := range p.Warnings {
		fmt.Println("Warning:", w)
	}
}

func (a *App) importBackup(ctx context.Context, path string) {
	content, err := os.ReadFile(path)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}

	raw, err := GetSimpleText(a.reader, "Conflict strategy (skip/overwrite/merge/ask)", os.Stdout)
	if err != nil {
		fmt.Println("Cancelled")
		return
	}
	strategy, err := parseStrategy(raw)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}

	result, err := a.pipeline.Apply(ctx, content, backup.Options{
		Strategy:                strategy,
		CreateSafetyBackupFirst: true,
		Ask:                     a.askConflict,
	})
	if err != nil {
		fmt.Println("Import failed:", err)
		return
	}
	printResult(result)
}

func (a *App) askConflict(item conflict.Item) conflict.Decision {
	prompt := fmt.Sprintf("Record %s differs in %v (local %d, incoming %d). Overwrite? (y/N)",
		item.RecordId, item.Fields, item.LocalFresh, item.IncomingFresh)
	answer, err := GetSimpleText(a.reader, prompt, os.Stdout)
	if err != nil {
		return conflict.DecisionSkip
	}
	if answer == "y" || answer == "Y" {
		return conflict.DecisionOverwrite
	}
	return conflict.DecisionSkip
}

func parseStrategy(s string) (conflict.Strategy, error) {
	switch s {
	case "", "skip":
		return conflict.StrategySkip, nil
	case "overwrite":
		return conflict.StrategyOverwrite, nil
	case "merge":
		return conflict.StrategyMerge, nil
	case "ask":
		return conflict.StrategyAsk, nil
	}
	return "", fmt.Errorf("unknown strategy %q", s)
}

func printResult(r *backup.Result) {
	fmt.Println("Processed:", r.Processed)
	fmt.Println("Imported: ", r.Imported)
	fmt.Println("Updated:  ", r.Updated)
	fmt.Println("Skipped:  ", r.Skipped)
	fmt.Println("Conflicts:", len(r.Conflicts))
	for _, e := range r.Errors {
		fmt.Println("Error:", e)
	}
	for _, w := range r.Warnings {
		fmt.Println("Warning:", w)
	}
	if r.Success {
		fmt.Println("Import complete")
	} else {
		fmt.Println("Import finished with errors")
	}
}
