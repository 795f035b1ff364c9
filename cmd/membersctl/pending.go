package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/warp/membership-engine/generic"
)

var pendingType string

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List pending approval requests",
	Args:  cobra.NoArgs,
	RunE:  runPending,
}

func init() {
	pendingCmd.Flags().StringVarP(&pendingType, "type", "t", "", "entity type (INSTITUTION, MEMBER_CREATE, MEMBER_UPDATE, MEMBER_DELETE)")
}

func runPending(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	approvals, err := e.services.Approvals.ListPending(cmd.Context(), generic.EntityType(pendingType))
	if err != nil {
		return err
	}
	if len(approvals) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No pending approvals")
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tENTITY\tREQUESTED BY\tREQUESTED AT")
	for _, a := range approvals {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			a.ID, a.EntityType, a.EntityID, a.RequestedBy, a.RequestedAt.Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}
