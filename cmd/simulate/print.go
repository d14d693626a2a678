package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/papertrade/session-engine/internal/model"
)

func printLeaderboard(w io.Writer, r result) {
	fmt.Fprintf(w, "\n%s (%s) %s after %d/%d ticks\n", r.Group.Name, r.Group.ID, r.Group.State, r.Group.ActiveDuration, r.Group.Duration)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tUSER\tNAME\tMTM\tCOINS\tTRADES")
	for i, e := range r.Board {
		acct := r.Group.Accounts[e.UserID]
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%d\n", i+1, e.UserID, e.UserName, e.MTM.StringFixed(2), acct.AvailableCoins.StringFixed(2), len(acct.Trades))
	}
	tw.Flush()
}

func printGroups(w io.Writer, groups []model.Session) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "GROUP\tNAME\tSTATE\tSTOCKS\tCOINS\tDURATION\tMEMBERS")
	for _, g := range groups {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d\n", g.ID, g.Name, g.State, strings.Join(g.Symbols, ","), g.PerUserCoins.String(), g.Duration, len(g.Members))
	}
	tw.Flush()
}

func printWarn(msg string) {
	fmt.Fprintf(os.Stderr, "warning: %s\n", msg)
}
