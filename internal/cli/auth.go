package cli

import (
	"context"
	"fmt"
	"os"
)

// signIn accepts a session token issued by the backend. Setting a valid
// token fires the link hook, which migrates anonymous data to the
// account and kicks off a reconcile.
func (a *App) signIn(ctx context.Context) {
	if a.isSignedIn() {
		fmt.Println("Already signed in as", a.session.Current().ID)
		return
	}

	token, err := GetSecret("Session token", os.Stdout)
	if err != nil {
		fmt.Println("Cancelled")
		return
	}

	id, err := a.tokens.SetToken(string(token))
	if err != nil {
		fmt.Println("Sign-in failed:", err)
		return
	}
	fmt.Println("Signed in as", id.ID)

	if err := a.engine.Listen(ctx); err != nil {
		a.log.Debug(ctx, "realtime updates unavailable", "error", err)
	}
}

func (a *App) signOut(ctx context.Context) {
	a.engine.StopListening()
	if err := a.tokens.SignOut(ctx); err != nil {
		fmt.Println("Error:", err)
		return
	}
	fmt.Println("Signed out")
}
