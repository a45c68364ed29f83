package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
)

func (a *App) getStatus() string {
	id := a.session.Current()
	if id.IsAnonymous {
		return "(anonymous)"
	}
	if id.Email != "" {
		return fmt.Sprintf("(%s)", id.Email)
	}
	return fmt.Sprintf("(%s)", id.ID)
}

func (a *App) Root(ctx context.Context) {

	fmt.Println("Welcome to MealKeep CLI (type 'help' for commands)")
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Printf("mealkeep %s> ", a.getStatus())
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}

		cmd := parts[0]
		args := parts[1:]

		switch cmd {
		case "help":
			fmt.Println("Records:  add, list, find <name>, hide <id>, unhide <id>, delete <id>")
			fmt.Println("Bulk:     hideall <name>, deleteall <name>, renametag <from> <to>")
			fmt.Println("Sync:     sync, listen, status")
			fmt.Println("Backup:   export <file>, preview <file>, import <file>")
			fmt.Println("Account:  signin, signout")
			fmt.Println("Other:    count, exit")

		case "add":
			a.add(ctx)
		case "list", "l":
			a.list(ctx)
		case "find":
			if len(args) == 0 {
				fmt.Println("Usage: find <name>")
				continue
			}
			a.find(ctx, strings.Join(args, " "))
		case "hide":
			if len(args) == 0 {
				fmt.Println("Usage: hide <id>")
				continue
			}
			a.setHidden(ctx, args[0], true)
		case "unhide":
			if len(args) == 0 {
				fmt.Println("Usage: unhide <id>")
				continue
			}
			a.setHidden(ctx, args[0], false)
		case "delete":
			if len(args) == 0 {
				fmt.Println("Usage: delete <id>")
				continue
			}
			a.delete(ctx, args[0])
		case "hideall":
			if len(args) == 0 {
				fmt.Println("Usage: hideall <name>")
				continue
			}
			a.hideAll(ctx, strings.Join(args, " "))
		case "deleteall":
			if len(args) == 0 {
				fmt.Println("Usage: deleteall <name>")
				continue
			}
			a.deleteAll(ctx, strings.Join(args, " "))
		case "renametag":
			if len(args) != 2 {
				fmt.Println("Usage: renametag <from> <to>")
				continue
			}
			a.renameTag(ctx, args[0], args[1])
		case "count":
			a.count(ctx)

		case "sync":
			a.sync(ctx)
		case "listen":
			a.listen(ctx)
		case "status":
			a.status(ctx)

		case "export":
			if len(args) == 0 {
				fmt.Println("Usage: export <file>")
				continue
			}
			a.export(ctx, args[0])
		case "preview":
			if len(args) == 0 {
				fmt.Println("Usage: preview <file>")
				continue
			}
			a.preview(ctx, args[0])
		case "import":
			if len(args) == 0 {
				fmt.Println("Usage: import <file>")
				continue
			}
			a.importBackup(ctx, args[0])

		case "signin":
			a.signIn(ctx)
		case "signout":
			a.signOut(ctx)

		case "exit", "quit":
			fmt.Println("Bye!")
			return

		default:
			fmt.Println("Unknown command:", cmd)
		}
	}
}
