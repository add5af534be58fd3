package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/carehub/pharmacy-portal/internal/domain/medicine"
	"github.com/carehub/pharmacy-portal/internal/domain/order"
	"github.com/carehub/pharmacy-portal/internal/domain/patient"
	"github.com/carehub/pharmacy-portal/internal/domain/pharmacyservice"
	"github.com/carehub/pharmacy-portal/internal/domain/requestorder"
	"github.com/carehub/pharmacy-portal/internal/domain/support"
	"github.com/carehub/pharmacy-portal/internal/domain/wallet"
	"github.com/carehub/pharmacy-portal/internal/listing"
)

// ---------------------------------------------------------------------------
// medicines
// ---------------------------------------------------------------------------

func medicinesCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "medicines", Short: "Manage the medicine inventory"}

	list := &cobra.Command{
		Use:   "list",
		Short: "List medicines",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCLI(cmd, func(ctx context.Context, a *app, s *services) error {
				opts := listOptions(cmd, a)
				if v, _ := cmd.Flags().GetString("category"); v != "" {
					opts = append(opts, listing.WithFilter("category", v))
				}
				if v, _ := cmd.Flags().GetBool("low-stock"); v {
					opts = append(opts, listing.WithFilter("lowStock", "true"))
				}
				return runList(ctx, cmd, s.medicines.List, opts, medicineRow)
			})
		},
	}
	addListFlags(list)
	list.Flags().String("category", "", "Category filter")
	list.Flags().Bool("low-stock", false, "Only medicines running low")

	create := &cobra.Command{
		Use:   "create",
		Short: "Add a medicine",
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := medicineInput(cmd)
			if err != nil {
				return err
			}
			return runCLI(cmd, func(ctx context.Context, a *app, s *services) error {
				m, err := s.medicines.Create(ctx, in)
				if err != nil {
					return err
				}
				return printResult(cmd, m, func(w io.Writer) { medicineRow(w, *m) })
			})
		},
	}
	create.Flags().String("name", "", "Medicine name")
	create.Flags().String("dosage", "", "Dosage, e.g. 500mg")
	create.Flags().Int("quantity", 0, "Units in stock")
	create.Flags().String("price", "0", "Unit price")
	create.Flags().String("manufacturer", "", "Manufacturer")
	create.Flags().String("category", "", "Category")
	create.Flags().String("expiry", "", "Expiry date (YYYY-MM-DD)")

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Remove a medicine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCLI(cmd, func(ctx context.Context, a *app, s *services) error {
				if err := s.medicines.Delete(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted medicine %s\n", args[0])
				return nil
			})
		},
	}

	upload := &cobra.Command{
		Use:   "upload-image <id> <file>",
		Short: "Upload a product image",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCLI(cmd, func(ctx context.Context, a *app, s *services) error {
				f, err := os.Open(args[1])
				if err != nil {
					return err
				}
				defer f.Close()
				m, err := s.medicines.UploadImage(ctx, args[0], f.Name(), f)
				if err != nil {
					return err
				}
				return printResult(cmd, m, func(w io.Writer) { fmt.Fprintf(w, "Image for %s: %s\n", m.Name, orDash(m.ImageURL)) })
			})
		},
	}

	cmd.AddCommand(list, create, del, upload)
	return cmd
}

func medicineInput(cmd *cobra.Command) (medicine.Input, error) {
	var in medicine.Input
	in.Name, _ = cmd.Flags().GetString("name")
	in.Dosage, _ = cmd.Flags().GetString("dosage")
	in.Quantity, _ = cmd.Flags().GetInt("quantity")
	in.Manufacturer, _ = cmd.Flags().GetString("manufacturer")
	in.Category, _ = cmd.Flags().GetString("category")
	in.ExpiryDate, _ = cmd.Flags().GetString("expiry")
	price, _ := cmd.Flags().GetString("price")
	p, err := decimal.NewFromString(price)
	if err != nil {
		return in, fmt.Errorf("invalid --price %q", price)
	}
	in.Price = p
	return in, in.Validate()
}

func medicineRow(w io.Writer, m medicine.Medicine) {
	fmt.Fprintf(w, "%-24s %-28s %-10s %6d %10s %10s", m.ID, m.Name, orDash(m.Dosage), m.Quantity, m.Price.StringFixed(2), m.Total().StringFixed(2))
	if m.LowStock() {
		fmt.Fprint(w, "  LOW STOCK")
	}
	fmt.Fprintln(w)
}

// printResult prints v as JSON or through text.
func printResult(cmd *cobra.Command, v any, text func(io.Writer)) error {
	if wantData(cmd) {
		return printData(cmd, cmd.OutOrStdout(), v)
	}
	text(cmd.OutOrStdout())
	return nil
}

// ---------------------------------------------------------------------------
// orders
// ---------------------------------------------------------------------------

func ordersCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "orders", Short: "Work the order queue"}

	list := &cobra.Command{
		Use:   "list",
		Short: "List orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCLI(cmd, func(ctx context.Context, a *app, s *services) error {
				opts := listOptions(cmd, a)
				if v, _ := cmd.Flags().GetString("delivery-type"); v != "" {
					opts = append(opts, listing.WithFilter("deliveryType", v))
				}
				return runList(ctx, cmd, s.orders.List, opts, orderRow)
			})
		},
	}
	addListFlags(list)
	list.Flags().String("delivery-type", "", "home or pickup")

	advance := &cobra.Command{
		Use:   "advance <id>",
		Short: "Move an order to its next status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCLI(cmd, func(ctx context.Context, a *app, s *services) error {
				o, err := s.orders.Get(ctx, args[0])
				if err != nil {
					return err
				}
				s.withPharmacyName(ctx, a)
				updated, err := s.advancer.Advance(ctx, *o, nil)
				if err != nil {
					return err
				}
				return printResult(cmd, updated, func(w io.Writer) {
					fmt.Fprintf(w, "Order %s: %s -> %s\n", updated.Ref, o.Status.Label(), updated.Status.Label())
				})
			})
		},
	}

	reject := &cobra.Command{
		Use:   "reject <id>",
		Short: "Reject an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reason, _ := cmd.Flags().GetString("reason")
			return runCLI(cmd, func(ctx context.Context, a *app, s *services) error {
				o, err := s.orders.Get(ctx, args[0])
				if err != nil {
					return err
				}
				s.withPharmacyName(ctx, a)
				updated, err := s.advancer.Reject(ctx, *o, reason, nil)
				if err != nil {
					return err
				}
				return printResult(cmd, updated, func(w io.Writer) {
					fmt.Fprintf(w, "Order %s rejected\n", updated.Ref)
				})
			})
		},
	}
	reject.Flags().String("reason", "", "Reason shown to the patient")

	cmd.AddCommand(list, advance, reject)
	return cmd
}

func orderRow(w io.Writer, o order.Order) {
	next := "-"
	if n, ok := o.NextStatus(); ok {
		next = n.Label()
	}
	fmt.Fprintf(w, "%-8s %-22s %-22s %-8s %10s  next: %s\n", o.Ref, o.PatientName, o.Status.Label(), o.DeliveryType, o.TotalAmount.StringFixed(2), next)
}

// ---------------------------------------------------------------------------
// request-orders
// ---------------------------------------------------------------------------

func requestOrdersCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "request-orders", Short: "Handle prescription requests"}

	list := &cobra.Command{
		Use:   "list",
		Short: "List prescription requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCLI(cmd, func(ctx context.Context, a *app, s *services) error {
				p, err := s.profiles.Get(ctx)
				if err != nil {
					return err
				}
				return runList(ctx, cmd, s.requests.Fetcher(p.ID), listOptions(cmd, a), requestOrderRow)
			})
		},
	}
	addListFlags(list)

	watch := &cobra.Command{
		Use:   "watch",
		Short: "Poll prescription requests until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			interval, _ := cmd.Flags().GetDuration("interval")
			return runCLI(cmd, func(ctx context.Context, a *app, s *services) error {
				if interval <= 0 {
					interval = a.cfg.PollInterval
				}
				ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
				defer stop()
				return watchRequests(ctx, cmd, a, s, interval)
			})
		},
	}
	watch.Flags().Duration("interval", 0, "Poll interval (defaults to POLL_INTERVAL)")

	action := func(use, short string, fn func(ctx context.Context, s *services, ro requestorder.RequestOrder, reason string) (requestorder.RequestOrder, error)) *cobra.Command {
		c := &cobra.Command{
			Use:   use + " <id>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				reason, _ := cmd.Flags().GetString("reason")
				return runCLI(cmd, func(ctx context.Context, a *app, s *services) error {
					ro, err := s.requests.Get(ctx, args[0])
					if err != nil {
						return err
					}
					s.withPharmacyName(ctx, a)
					updated, err := fn(ctx, s, *ro, reason)
					if err != nil {
						return err
					}
					return printResult(cmd, updated, func(w io.Writer) { requestOrderRow(w, updated) })
				})
			},
		}
		return c
	}

	accept := action("accept", "Accept a request", func(ctx context.Context, s *services, ro requestorder.RequestOrder, _ string) (requestorder.RequestOrder, error) {
		return s.processor.Accept(ctx, ro, nil)
	})
	reject := action("reject", "Reject a request", func(ctx context.Context, s *services, ro requestorder.RequestOrder, reason string) (requestorder.RequestOrder, error) {
		return s.processor.Reject(ctx, ro, reason, nil)
	})
	reject.Flags().String("reason", "", "Reason shown to the patient")
	advance := action("advance", "Move an accepted request to its next delivery step", func(ctx context.Context, s *services, ro requestorder.RequestOrder, _ string) (requestorder.RequestOrder, error) {
		return s.processor.Advance(ctx, ro, nil)
	})
	pay := action("confirm-payment", "Confirm the patient's payment", func(ctx context.Context, s *services, ro requestorder.RequestOrder, _ string) (requestorder.RequestOrder, error) {
		return s.processor.ConfirmPayment(ctx, ro, nil)
	})

	prescription := &cobra.Command{
		Use:   "prescription <id>",
		Short: "Write the prescription document for a request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output, _ := cmd.Flags().GetString("output")
			return runCLI(cmd, func(ctx context.Context, a *app, s *services) error {
				ro, err := s.requests.Get(ctx, args[0])
				if err != nil {
					return err
				}
				p, err := s.profiles.Get(ctx)
				if err != nil {
					a.logger.Warn().Err(err).Msg("pharmacy profile unavailable, document header left blank")
					p = nil
				}
				doc := requestorder.BuildPrescriptionDocument(*ro, p, time.Now())
				if wantData(cmd) {
					return printData(cmd, cmd.OutOrStdout(), doc)
				}
				r := requestorder.NewTextRenderer()
				if output == "" || output == "-" {
					return r.Render(cmd.OutOrStdout(), doc)
				}
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				if err := r.Render(f, doc); err != nil {
					f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s\n", output)
				return nil
			})
		},
	}
	prescription.Flags().StringP("output", "o", "", "File to write (default stdout)")

	cmd.AddCommand(list, watch, accept, reject, advance, pay, prescription)
	return cmd
}

// watchRequests runs a Watcher and reprints the list after every poll.
func watchRequests(ctx context.Context, cmd *cobra.Command, a *app, s *services, interval time.Duration) error {
	out := cmd.OutOrStdout()
	w := requestorder.NewWatcher(s.profiles, s.requests, a.logger,
		requestorder.WithInterval(interval),
		requestorder.WithPollObserver(a.metrics),
		requestorder.WithAlerter(listing.AlertFunc(func(_ context.Context, msg string) {
			fmt.Fprintf(cmd.ErrOrStderr(), "! %s\n", msg)
		})),
		requestorder.WithOnChange(func(st listing.State[requestorder.RequestOrder]) {
			if wantData(cmd) {
				_ = printData(cmd, out, st)
				return
			}
			fmt.Fprintf(out, "== %s\n", time.Now().Format("15:04:05"))
			printState(out, st, requestOrderRow)
		}),
	)
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Stop()
	if p := w.Pharmacy(); p != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Watching requests for %s every %s (Ctrl-C to stop)\n", p.Name, interval)
	}
	<-ctx.Done()
	return nil
}

func requestOrderRow(w io.Writer, ro requestorder.RequestOrder) {
	state := string(ro.Decision)
	if ro.Decision == requestorder.DecisionAccepted {
		state = ro.DeliveryStatus.Label()
	}
	actions := make([]string, 0, 4)
	for _, act := range ro.Actions() {
		actions = append(actions, string(act))
	}
	paid := "unpaid"
	if ro.PaymentConfirmed {
		paid = "paid"
	}
	fmt.Fprintf(w, "%-8s %-22s %-18s %-6s %10s  [%s]\n", ro.Ref, ro.PatientName, state, paid, ro.TotalAmount.StringFixed(2), strings.Join(actions, " "))
}

// ---------------------------------------------------------------------------
// patients
// ---------------------------------------------------------------------------

func patientsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "patients", Short: "Browse the pharmacy's patients"}

	list := &cobra.Command{
		Use:   "list",
		Short: "List patients",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCLI(cmd, func(ctx context.Context, a *app, s *services) error {
				return runList(ctx, cmd, s.patients.List, listOptions(cmd, a), patientRow)
			})
		},
	}
	addListFlags(list)

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show patient statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCLI(cmd, func(ctx context.Context, a *app, s *services) error {
				st, err := s.patients.Statistics(ctx)
				if err != nil {
					return err
				}
				return printResult(cmd, st, func(w io.Writer) {
					fmt.Fprintf(w, "Patients:        %d (%d new this month, %d active)\n", st.TotalPatients, st.NewThisMonth, st.ActivePatients)
					fmt.Fprintf(w, "Orders:          %d\n", st.TotalOrders)
					fmt.Fprintf(w, "Revenue:         %s\n", st.TotalRevenue.StringFixed(2))
					fmt.Fprintf(w, "Avg order value: %s\n", st.AverageOrderValue.StringFixed(2))
					if len(st.TopPatients) > 0 {
						fmt.Fprintln(w, "Top patients:")
						for _, p := range st.TopPatients {
							patientRow(w, p)
						}
					}
				})
			})
		},
	}

	cmd.AddCommand(list, stats)
	return cmd
}

func patientRow(w io.Writer, p patient.Patient) {
	age := "-"
	if p.Age > 0 {
		age = strconv.Itoa(p.Age)
	}
	fmt.Fprintf(w, "%-24s %-24s %-4s %-16s %5d %10s\n", p.ID, p.Name, age, orDash(p.Phone), p.OrderCount, p.TotalSpent.StringFixed(2))
}

// ---------------------------------------------------------------------------
// services
// ---------------------------------------------------------------------------

func servicesCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "services", Short: "Manage offered services"}

	list := &cobra.Command{
		Use:   "list",
		Short: "List services",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCLI(cmd, func(ctx context.Context, a *app, s *services) error {
				return runList(ctx, cmd, s.catalog.List, listOptions(cmd, a), serviceRow)
			})
		},
	}
	addListFlags(list)

	toggle := &cobra.Command{
		Use:   "toggle <id>",
		Short: "Switch a service between available and unavailable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCLI(cmd, func(ctx context.Context, a *app, s *services) error {
				cur, err := s.catalog.Get(ctx, args[0])
				if err != nil {
					return err
				}
				updated, err := s.catalog.Toggle(ctx, *cur)
				if err != nil {
					return err
				}
				return printResult(cmd, updated, func(w io.Writer) { serviceRow(w, *updated) })
			})
		},
	}

	cmd.AddCommand(list, toggle)
	return cmd
}

func serviceRow(w io.Writer, s pharmacyservice.Service) {
	avail := "off"
	if s.Available {
		avail = "on"
	}
	fmt.Fprintf(w, "%-24s %-24s %-13s %-3s %10s %4dmin %s\n", s.ID, s.Name, s.Category, avail, s.Price.StringFixed(2), s.Duration, strings.Join(s.DeliveryOptions, ","))
}

// ---------------------------------------------------------------------------
// support
// ---------------------------------------------------------------------------

func supportCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "support", Short: "Support tickets"}

	open := &cobra.Command{
		Use:   "open",
		Short: "Open a support ticket",
		RunE: func(cmd *cobra.Command, args []string) error {
			var n support.NewTicket
			n.Subject, _ = cmd.Flags().GetString("subject")
			n.Message, _ = cmd.Flags().GetString("message")
			n.Priority, _ = cmd.Flags().GetString("priority")
			if err := n.Validate(); err != nil {
				return err
			}
			return runCLI(cmd, func(ctx context.Context, a *app, s *services) error {
				t, err := s.support.Open(ctx, n)
				if err != nil {
					return err
				}
				return printResult(cmd, t, func(w io.Writer) { ticketRow(w, *t) })
			})
		},
	}
	open.Flags().String("subject", "", "Ticket subject")
	open.Flags().String("message", "", "Describe the problem")
	open.Flags().String("priority", "", "low, medium, high or urgent")

	history := &cobra.Command{
		Use:   "history",
		Short: "List past tickets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCLI(cmd, func(ctx context.Context, a *app, s *services) error {
				return runList(ctx, cmd, s.support.History, listOptions(cmd, a), ticketRow)
			})
		},
	}
	addListFlags(history)

	reply := &cobra.Command{
		Use:   "reply <id>",
		Short: "Reply to a ticket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, _ := cmd.Flags().GetString("message")
			return runCLI(cmd, func(ctx context.Context, a *app, s *services) error {
				t, err := s.support.Reply(ctx, args[0], msg)
				if err != nil {
					return err
				}
				return printResult(cmd, t, func(w io.Writer) {
					ticketRow(w, *t)
					for _, r := range t.Responses {
						fmt.Fprintf(w, "  %s %-8s %s\n", fmtTime(r.CreatedAt), r.From, r.Message)
					}
				})
			})
		},
	}
	reply.Flags().String("message", "", "Reply text")

	cmd.AddCommand(open, history, reply)
	return cmd
}

func ticketRow(w io.Writer, t support.Ticket) {
	fmt.Fprintf(w, "%-8s %-36s %-12s %-7s %3d repl. %s\n", t.Ref, t.Subject, t.Status, t.Priority, len(t.Responses), fmtTime(t.CreatedAt))
}

// ---------------------------------------------------------------------------
// wallet
// ---------------------------------------------------------------------------

func walletCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "wallet", Short: "Balance, earnings and withdrawals"}

	summary := &cobra.Command{
		Use:   "summary",
		Short: "Show balance and recent earnings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCLI(cmd, func(ctx context.Context, a *app, s *services) error {
				b, err := s.wallet.Balance(ctx)
				if err != nil {
					return err
				}
				earnings := listing.NewController(s.wallet.Earnings, listing.WithLogger(a.logger))
				_ = earnings.Load(ctx)
				withdrawals := listing.NewController(s.wallet.Withdrawals, listing.WithLogger(a.logger))
				_ = withdrawals.Load(ctx)

				recent := wallet.Summarize(earnings.State().Items)
				if wantData(cmd) {
					return printData(cmd, cmd.OutOrStdout(), map[string]any{
						"balance":     b,
						"earnings":    earnings.State(),
						"recent":      recent,
						"withdrawals": withdrawals.State(),
					})
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Available: %s %s\n", b.Available.StringFixed(2), b.Currency)
				fmt.Fprintf(out, "Pending:   %s %s\n", b.Pending.StringFixed(2), b.Currency)
				fmt.Fprintf(out, "Total:     %s %s\n", b.Total.StringFixed(2), b.Currency)
				fmt.Fprintln(out, "\nRecent earnings:")
				printState(out, earnings.State(), transactionRow)
				fmt.Fprintf(out, "settled %s, awaiting %s %s\n", recent.Settled.StringFixed(2), recent.Unsettled.StringFixed(2), b.Currency)
				fmt.Fprintln(out, "\nWithdrawals:")
				printState(out, withdrawals.State(), transactionRow)
				return nil
			})
		},
	}

	withdraw := &cobra.Command{
		Use:   "withdraw",
		Short: "Request a payout",
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, _ := cmd.Flags().GetString("amount")
			method, _ := cmd.Flags().GetString("method")
			amt, err := decimal.NewFromString(amount)
			if err != nil {
				return fmt.Errorf("invalid --amount %q", amount)
			}
			return runCLI(cmd, func(ctx context.Context, a *app, s *services) error {
				b, err := s.wallet.Balance(ctx)
				if err != nil {
					a.logger.Warn().Err(err).Msg("balance unavailable, withdrawal not checked locally")
					b = nil
				}
				t, err := s.wallet.Withdraw(ctx, wallet.Request{Amount: amt, Method: method}, b)
				if err != nil {
					return err
				}
				return printResult(cmd, t, func(w io.Writer) { transactionRow(w, *t) })
			})
		},
	}
	withdraw.Flags().String("amount", "", "Amount to withdraw")
	withdraw.Flags().String("method", wallet.DefaultMethod, "Payout method")

	cmd.AddCommand(summary, withdraw)
	return cmd
}

func transactionRow(w io.Writer, t wallet.Transaction) {
	fmt.Fprintf(w, "%s %-10s %10s %-9s %s", fmtTime(t.CreatedAt), t.Kind, t.Amount.StringFixed(2), t.Status, t.Description)
	if t.Detail != "" {
		fmt.Fprintf(w, " (%s)", t.Detail)
	}
	fmt.Fprintln(w)
}
