package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ticketline/internal/domain"
	"ticketline/internal/engine"
	"ticketline/internal/repo"
)

func ticketCmd() *cobra.Command {
	tk := &cobra.Command{
		Use:   "ticket",
		Short: "Create tickets and drive their lifecycle",
	}
	tk.AddCommand(ticketCreateCmd())
	tk.AddCommand(ticketShowCmd())
	tk.AddCommand(ticketListCmd())
	tk.AddCommand(ticketMineCmd())
	tk.AddCommand(ticketEscrowCmd())
	tk.AddCommand(ticketWithdrawCmd())

	tk.AddCommand(ticketActionCmd("assign <id> <freelancer>", "Assign a freelancer (client only)", 2,
		func(ctx context.Context, e engine.Engine, call engine.Call, id uint64, args []string) (domain.Ticket, error) {
			return e.AssignTicket(ctx, call, id, args[1])
		}))
	tk.AddCommand(ticketActionCmd("start <id>", "Start work (freelancer only, before the deadline)", 1,
		func(ctx context.Context, e engine.Engine, call engine.Call, id uint64, _ []string) (domain.Ticket, error) {
			return e.StartWork(ctx, call, id)
		}))
	tk.AddCommand(ticketActionCmd("submit <id> <uri>", "Submit work (freelancer only)", 2,
		func(ctx context.Context, e engine.Engine, call engine.Call, id uint64, args []string) (domain.Ticket, error) {
			return e.SubmitWork(ctx, call, id, args[1])
		}))
	tk.AddCommand(ticketActionCmd("approve <id>", "Approve submitted work (client only)", 1,
		func(ctx context.Context, e engine.Engine, call engine.Call, id uint64, _ []string) (domain.Ticket, error) {
			return e.ApproveWork(ctx, call, id)
		}))
	tk.AddCommand(ticketCancelCmd())
	tk.AddCommand(ticketReasonCmd("reject", "Reject submitted work (client only)",
		func(ctx context.Context, e engine.Engine, call engine.Call, id uint64, reason string) (domain.Ticket, error) {
			return e.RejectWork(ctx, call, id, reason)
		}))
	tk.AddCommand(ticketReasonCmd("dispute", "Raise a dispute (client or freelancer)",
		func(ctx context.Context, e engine.Engine, call engine.Call, id uint64, reason string) (domain.Ticket, error) {
			return e.DisputeTicket(ctx, call, id, reason)
		}))
	tk.AddCommand(ticketResolveCmd())
	return tk
}

type ticketAction func(ctx context.Context, e engine.Engine, call engine.Call, id uint64, args []string) (domain.Ticket, error)

// ticketActionCmd builds a lifecycle subcommand whose first argument is the ticket id.
func ticketActionCmd(use, short string, nargs int, run ticketAction) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(nargs),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTicketID(args[0])
			if err != nil {
				return err
			}
			call, err := currentCall()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := run(ctx, e, call, id, args)
				if err != nil {
					return err
				}
				return printTicket(t)
			})
		},
	}
}

func ticketCancelCmd() *cobra.Command {
	return ticketActionCmd("cancel <id>", "Cancel an open or assigned ticket (client only)", 1,
		func(ctx context.Context, e engine.Engine, call engine.Call, id uint64, _ []string) (domain.Ticket, error) {
			return e.CancelTicket(ctx, call, id)
		})
}

func ticketReasonCmd(name, short string, run func(context.Context, engine.Engine, engine.Call, uint64, string) (domain.Ticket, error)) *cobra.Command {
	var reason string
	cmd := ticketActionCmd(name+" <id>", short, 1,
		func(ctx context.Context, e engine.Engine, call engine.Call, id uint64, _ []string) (domain.Ticket, error) {
			return run(ctx, e, call, id, reason)
		})
	cmd.Flags().StringVar(&reason, "reason", "", "free-text reason")
	return cmd
}

func ticketResolveCmd() *cobra.Command {
	var note string
	cmd := ticketActionCmd("resolve <id> <0|1>", "Resolve a dispute (resolver or admin): 0 favors the client, 1 the freelancer", 2,
		func(ctx context.Context, e engine.Engine, call engine.Call, id uint64, args []string) (domain.Ticket, error) {
			code, err := strconv.Atoi(args[1])
			if err != nil {
				return domain.Ticket{}, fmt.Errorf("resolution must be 0 or 1, got %q", args[1])
			}
			return e.ResolveDispute(ctx, call, id, code, note)
		})
	cmd.Flags().StringVar(&note, "note", "", "resolution note")
	return cmd
}

func ticketCreateCmd() *cobra.Command {
	var title, description, amount, deadline string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a ticket and escrow its payment",
		RunE: func(cmd *cobra.Command, args []string) error {
			call, err := currentCall()
			if err != nil {
				return err
			}
			value, err := domain.ParseAmount(amount)
			if err != nil {
				return err
			}
			due, err := parseDeadline(deadline, call.Now)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.CreateTicket(ctx, call, engine.TicketCreateOptions{
					Title:       title,
					Description: description,
					Amount:      value,
					Deadline:    due,
				})
				if err != nil {
					return err
				}
				return printTicket(t)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "ticket title")
	cmd.Flags().StringVar(&description, "description", "", "ticket description")
	cmd.Flags().StringVar(&amount, "amount", "", "payment amount (base-10 integer)")
	cmd.Flags().StringVar(&deadline, "deadline", "", "RFC 3339 time or a duration from now such as 72h")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("deadline")
	return cmd
}

func ticketShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a ticket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTicketID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.GetTicket(ctx, id)
				if err != nil {
					return err
				}
				return printTicket(t)
			})
		},
	}
}

func ticketListCmd() *cobra.Command {
	var f repo.TicketFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tickets, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				tickets, err := e.ListTickets(ctx, f)
				if err != nil {
					return err
				}
				return printTickets(tickets)
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.Client, "client", "", "client filter")
	cmd.Flags().StringVar(&f.Freelancer, "freelancer", "", "freelancer filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "maximum tickets")
	cmd.Flags().Uint64Var(&f.Cursor, "before", 0, "only tickets with ids below this one")
	return cmd
}

func ticketMineCmd() *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "mine",
		Short: "List the ticket ids of the --as actor in creation order",
		RunE: func(cmd *cobra.Command, args []string) error {
			call, err := currentCall()
			if err != nil {
				return err
			}
			idxRole, err := domain.ParseIndexRole(role)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ids, err := e.TicketsFor(ctx, call.Caller, idxRole)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"actor_id": call.Caller, "role": role, "ticket_ids": ids})
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Amount"})
				for _, id := range ids {
					t, err := e.GetTicket(ctx, id)
					if err != nil {
						return err
					}
					tw.AppendRow(table.Row{t.ID, t.Title, t.Status, t.PaymentAmount})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", "client", "client or freelancer")
	return cmd
}

func ticketEscrowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "escrow <id>",
		Short: "Show the escrow held against a ticket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTicketID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				esc, err := e.GetEscrow(ctx, id)
				if err != nil {
					return err
				}
				return printEscrow(esc)
			})
		},
	}
}

func ticketWithdrawCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "withdraw <id>",
		Short: "Withdraw the escrowed payment of a finished ticket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTicketID(args[0])
			if err != nil {
				return err
			}
			call, err := currentCall()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				esc, err := e.WithdrawPayment(ctx, call, id)
				if err != nil {
					return err
				}
				return printEscrow(esc)
			})
		},
	}
}

func parseTicketID(v string) (uint64, error) {
	id, err := strconv.ParseUint(v, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid ticket id %q", v)
	}
	return id, nil
}

// parseDeadline accepts an RFC 3339 time or a Go duration added to now.
func parseDeadline(v string, now time.Time) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return time.Time{}, fmt.Errorf("deadline must be RFC 3339 or a duration, got %q", v)
	}
	return now.Add(d).UTC(), nil
}

func printTicket(t domain.Ticket) error {
	if viper.GetBool("json") {
		return printJSON(t)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendRows([]table.Row{
		{"ID", t.ID},
		{"Title", t.Title},
		{"Status", t.Status},
		{"Client", t.Client},
		{"Freelancer", strPtrValue(t.Freelancer)},
		{"Amount", t.PaymentAmount},
		{"Deadline", t.Deadline.Format(time.RFC3339)},
	})
	if t.SubmissionURI != nil {
		tw.AppendRow(table.Row{"Submission", *t.SubmissionURI})
	}
	if t.RejectionReason != nil {
		tw.AppendRow(table.Row{"Rejected", *t.RejectionReason})
	}
	if d := t.Dispute; d != nil {
		tw.AppendRow(table.Row{"Disputed by", d.RaisedBy})
		if d.Reason != "" {
			tw.AppendRow(table.Row{"Dispute", d.Reason})
		}
		if d.Winner != nil {
			tw.AppendRow(table.Row{"Winner", *d.Winner})
		}
	}
	tw.Render()
	return nil
}

func printTickets(tickets []domain.Ticket) error {
	if viper.GetBool("json") {
		return printJSON(tickets)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Title", "Status", "Client", "Freelancer", "Amount", "Deadline"})
	for _, t := range tickets {
		tw.AppendRow(table.Row{t.ID, t.Title, t.Status, t.Client, strPtrValue(t.Freelancer), t.PaymentAmount, t.Deadline.Format(time.RFC3339)})
	}
	tw.Render()
	return nil
}

func printEscrow(esc domain.Escrow) error {
	if viper.GetBool("json") {
		return printJSON(esc)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendRows([]table.Row{
		{"Ticket", esc.TicketID},
		{"Amount", esc.Amount},
		{"Balance", esc.Balance},
		{"Status", esc.Status},
		{"Beneficiary", strPtrValue(esc.Beneficiary)},
	})
	tw.Render()
	return nil
}
