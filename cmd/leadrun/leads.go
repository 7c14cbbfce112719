package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"leadscout/internal/app"
	"leadscout/internal/models"
)

func newLeadCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lead",
		Short: "Inspect and move leads through review",
	}

	var status string
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List a tenant's leads by confidence",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireTenant(g); err != nil {
				return err
			}
			st := models.LeadStatus(status)
			if status != "" && !st.Valid() {
				return fmt.Errorf("unknown status %q", status)
			}
			return withApp(cmd, g, func(ctx context.Context, a *app.App) error {
				leads, err := a.Store.ListLeads(ctx, g.tenant, st, limit)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), leads)
			})
		},
	}
	list.Flags().StringVar(&status, "status", "", "filter by status (new, reviewed, contacted, dismissed)")
	list.Flags().IntVar(&limit, "limit", 50, "maximum leads to print")

	transition := &cobra.Command{
		Use:   "transition <lead-id> <status>",
		Short: "Move a lead to a new review status",
		Long: `Moves a lead along new -> reviewed -> contacted, or to dismissed.
Contacted and dismissed leads are final.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireTenant(g); err != nil {
				return err
			}
			to := models.LeadStatus(args[1])
			if !to.Valid() {
				return fmt.Errorf("unknown status %q", args[1])
			}
			return withApp(cmd, g, func(ctx context.Context, a *app.App) error {
				lead, err := a.Store.Transition(ctx, g.tenant, args[0], to)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), lead)
			})
		},
	}

	brief := &cobra.Command{
		Use:   "brief <lead-id>",
		Short: "Print the stored brief for a lead",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireTenant(g); err != nil {
				return err
			}
			return withApp(cmd, g, func(ctx context.Context, a *app.App) error {
				b, err := a.Store.GetBrief(ctx, g.tenant, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), b)
			})
		},
	}

	cmd.AddCommand(list, transition, brief)
	return cmd
}

func newFeedbackCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feedback",
		Short: "Record and summarize reviewer feedback",
	}

	var user, note string
	add := &cobra.Command{
		Use:   "add <lead-id> <useful|not_useful>",
		Short: "Append a feedback entry for a lead",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireTenant(g); err != nil {
				return err
			}
			label := models.FeedbackLabel(args[1])
			if !label.Valid() {
				return fmt.Errorf("label must be %q or %q", models.FeedbackUseful, models.FeedbackNotUseful)
			}
			return withApp(cmd, g, func(ctx context.Context, a *app.App) error {
				f, err := a.Store.AddFeedback(ctx, models.Feedback{
					TenantID: g.tenant,
					LeadID:   args[0],
					UserID:   user,
					Label:    label,
					Note:     note,
				})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), f)
			})
		},
	}
	add.Flags().StringVar(&user, "user", "", "reviewer id")
	add.Flags().StringVar(&note, "note", "", "free-text note")
	_ = add.MarkFlagRequired("user")

	summary := &cobra.Command{
		Use:   "summary",
		Short: "Useful and not-useful counts per practice area",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireTenant(g); err != nil {
				return err
			}
			return withApp(cmd, g, func(ctx context.Context, a *app.App) error {
				rows, err := a.Store.FeedbackSummary(ctx, g.tenant)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), rows)
			})
		},
	}

	cmd.AddCommand(add, summary)
	return cmd
}

func newTenantCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Tenant maintenance",
	}
	var yes bool
	purge := &cobra.Command{
		Use:   "purge",
		Short: "Delete all stored data of a tenant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireTenant(g); err != nil {
				return err
			}
			if !yes {
				return fmt.Errorf("refusing to purge tenant %q without --yes", g.tenant)
			}
			return withApp(cmd, g, func(ctx context.Context, a *app.App) error {
				if err := a.Store.DeleteTenantData(ctx, g.tenant); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "tenant %s purged\n", g.tenant)
				return nil
			})
		},
	}
	purge.Flags().BoolVar(&yes, "yes", false, "confirm the purge")
	cmd.AddCommand(purge)
	return cmd
}
