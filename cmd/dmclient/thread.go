package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"dmclient/internal/domain"
	"dmclient/internal/service"
	"dmclient/internal/thread"
	"dmclient/internal/tui"
)

var (
	sendFiles    []string
	sendPrice    string
	payMethodID  string
	payCardToken string
	tailHistory  bool
)

func init() {
	tailCmd.Flags().BoolVar(&tailHistory, "history", true, "print the most recent page before following")

	sendCmd.Flags().StringArrayVar(&sendFiles, "file", nil, "attach a media file (repeatable)")
	sendCmd.Flags().StringVar(&sendPrice, "price", "", "price to unlock the attached media, e.g. 4.99")

	for _, c := range []*cobra.Command{purchaseCmd, openCmd} {
		c.Flags().StringVar(&payMethodID, "method", "", "stored payment method id")
		c.Flags().StringVar(&payCardToken, "card-token", "", "token of a newly entered card")
	}
	purchaseCmd.MarkFlagsOneRequired("method", "card-token")
	purchaseCmd.MarkFlagsMutuallyExclusive("method", "card-token")

	rootCmd.AddCommand(tailCmd, sendCmd, purchaseCmd, deleteCmd, openCmd)
}

// withThread opens the conversation with peerID for the duration of fn.
func withThread(ctx context.Context, peerID string, fn func(*service.ThreadService) error) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	svc := a.thread()
	defer svc.Close()
	if err := svc.Open(ctx, peerID); err != nil {
		return err
	}
	return fn(svc)
}

var tailCmd = &cobra.Command{
	Use:   "tail [user-id]",
	Short: "Print a thread and follow new messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		svc := a.thread()
		defer svc.Close()

		updates := make(chan service.Update, 64)
		svc.OnUpdate(func(u service.Update) {
			select {
			case updates <- u:
			case <-ctx.Done():
			}
		})
		if err := svc.Open(ctx, args[0]); err != nil {
			return err
		}
		svc.MarkRead(ctx)

		msgs := svc.Messages()
		if tailHistory {
			for _, m := range msgs {
				printMessage(out, m, svc.ViewerID(), svc)
			}
		}
		printed := len(msgs)
		if !svc.Live() {
			a.log.Warn().Msg("tail: live feed is not connected, nothing to follow")
			return nil
		}

		for {
			select {
			case <-ctx.Done():
				return nil
			case u := <-updates:
				switch u.Kind {
				case service.UpdateAppend:
					msgs = svc.Messages()
					for _, m := range msgs[min(printed, len(msgs)):] {
						printMessage(out, m, svc.ViewerID(), svc)
					}
					printed = len(msgs)
				case service.UpdateChange:
					fmt.Fprintln(out, "· thread updated (deletion or unlock)")
				}
			}
		}
	},
}

func printMessage(w io.Writer, m domain.Message, viewerID string, svc *service.ThreadService) {
	author := m.FromUserID
	if author == viewerID {
		author = "you"
	}
	ts := thread.FormatTimestamp(m.CreatedAt, time.Now())
	if m.Deleted {
		fmt.Fprintf(w, "[%s] %s (%s): message deleted\n", ts, author, m.ID)
		return
	}
	fmt.Fprintf(w, "[%s] %s (%s): %s\n", ts, author, m.ID, m.Text)
	if len(m.MediaItems) == 0 {
		return
	}
	if state, _ := svc.MediaState(m.ID); state == thread.MediaLocked {
		fmt.Fprintf(w, "    %d locked item(s): %s\n", len(m.MediaItems), thread.PurchaseLabel(m.Price))
		return
	}
	for _, it := range m.MediaItems {
		fmt.Fprintf(w, "    %s %s\n", it.MediaType, it.MediaKey)
	}
}

var sendCmd = &cobra.Command{
	Use:   "send [user-id] [text]",
	Short: "Send a message, optionally with priced media",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var text string
		if len(args) == 2 {
			text = args[1]
		}

		in := domain.SendInput{Text: text}
		if sendPrice != "" {
			p, err := decimal.NewFromString(strings.TrimPrefix(sendPrice, "$"))
			if err != nil {
				return fmt.Errorf("%w: price %q", domain.ErrInvalidInput, sendPrice)
			}
			in.Price = &p
		}
		for _, path := range sendFiles {
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			st, err := f.Stat()
			if err != nil {
				return err
			}
			in.Attachments = append(in.Attachments, domain.Attachment{Name: path, Size: st.Size(), Body: f})
		}

		return withThread(cmd.Context(), args[0], func(svc *service.ThreadService) error {
			if len(in.Attachments) == 0 && in.Price == nil {
				return svc.SendText(cmd.Context(), text)
			}
			var total int64
			for _, at := range in.Attachments {
				total += at.Size
			}
			if err := svc.SendMedia(cmd.Context(), in); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent %d file(s), %s\n", len(in.Attachments), humanize.Bytes(uint64(total)))
			return nil
		})
	},
}

func paymentMethod() domain.PaymentMethod {
	return domain.PaymentMethod{StoredID: payMethodID, NewCardToken: payCardToken}
}

var purchaseCmd = &cobra.Command{
	Use:   "purchase [user-id] [message-id]",
	Short: "Pay for the locked media of a message",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withThread(cmd.Context(), args[0], func(svc *service.ThreadService) error {
			m, ok := svc.Message(args[1])
			if !ok {
				return fmt.Errorf("message %s is not in the most recent page: %w", args[1], domain.ErrNotFound)
			}
			if err := svc.Purchase(cmd.Context(), m.ID, paymentMethod()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "unlocked %d item(s) of %s\n", len(m.MediaItems), m.ID)
			return nil
		})
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete [user-id] [message-id]",
	Short: "Delete one of your messages",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withThread(cmd.Context(), args[0], func(svc *service.ThreadService) error {
			return svc.Delete(cmd.Context(), args[1])
		})
	},
}

var openCmd = &cobra.Command{
	Use:   "open [user-id]",
	Short: "Open a thread in the terminal view",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		// the view owns the terminal
		if logLevel == "" {
			logLevel = "disabled"
		}
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		svc := a.thread()
		defer svc.Close()

		return tui.Run(cmd.Context(), tui.Options{
			Thread:  svc,
			PeerID:  args[0],
			Payment: paymentMethod(),
		})
	},
}
