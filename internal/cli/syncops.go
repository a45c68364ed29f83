package cli

import (
	"context"
	"fmt"
)

func (a *App) sync(ctx context.Context) {
	if err := a.engine.Reconcile(ctx); err != nil {
		fmt.Println("Sync failed:", err)
		return
	}
	a.status(ctx)
}

func (a *App) listen(ctx context.Context) {
	if err := a.engine.Listen(ctx); err != nil {
		fmt.Println("Realtime updates unavailable:", err)
		return
	}
	fmt.Println("Listening for remote changes")
}

func (a *App) status(ctx context.Context) {
	st := a.engine.Status(ctx)
	fmt.Println("State:     ", st.State)
	fmt.Println("Pending:   ", st.PendingCount)
	if st.LastSyncAt != nil {
		fmt.Println("Last sync: ", st.LastSyncAt.Local().Format("2006-01-02 15:04:05"))
	} else {
		fmt.Println("Last sync:  never")
	}
	if st.LastError != "" {
		fmt.Println("Last error:", st.LastError)
	}
	fmt.Println("Realtime:  ", st.RealtimeConnected)
}
