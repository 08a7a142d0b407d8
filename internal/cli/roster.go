package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ashureev/chatqueue/internal/roster"
	"github.com/ashureev/chatqueue/internal/shift"
)

func newRosterCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "roster",
		Short: "Validate a roster and print team capacities and queue limits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := roster.Load(path)
			if err != nil {
				return err
			}
			return printRoster(cmd.OutOrStdout(), r)
		},
	}
	cmd.Flags().StringVar(&path, "path", os.Getenv("ROSTER_PATH"), "Roster YAML file (default: built-in roster, env: ROSTER_PATH)")
	return cmd
}

func printRoster(w io.Writer, r *roster.Roster) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TEAM\tHOURS (UTC)\tMEMBERS\tCAPACITY\tMAX QUEUE\tDEACTIVATE BELOW")
	for _, t := range r.Teams {
		capacity := r.Capacity(t.Members)
		maxQueue := shift.MaxQueueSize(capacity)
		fmt.Fprintf(tw, "%s\t%02d:00-%02d:00\t%s\t%d\t%d\t%d\n",
			t.Name, t.StartHour, t.EndHour, memberList(r, t.Members),
			capacity, maxQueue, shift.DeactivationThreshold(maxQueue))
	}
	overflowCap := r.Capacity(r.Overflow.Members)
	fmt.Fprintf(tw, "overflow\t%02d:00-%02d:00 %s\t%s\t%d\t+%d\t\n",
		r.OfficeHours.StartHour, r.OfficeHours.EndHour, strings.Join(r.OfficeHours.Days, ","),
		memberList(r, r.Overflow.Members), overflowCap, shift.MaxQueueSize(overflowCap))
	return tw.Flush()
}

func memberList(r *roster.Roster, ids []string) string {
	if len(ids) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		a, _ := r.Agent(id)
		parts = append(parts, fmt.Sprintf("%s(%s)", id, a.Seniority))
	}
	return strings.Join(parts, " ")
}
