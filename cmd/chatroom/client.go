package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Olafs-World/agent-chatroom/clients/go/chatroom"
)

// clientFlags are shared by the client subcommands.
type clientFlags struct {
	url      string
	password string
}

func (f *clientFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.url, "url", "u", os.Getenv("CHATROOM_URL"), "Room URL")
	cmd.Flags().StringVarP(&f.password, "password", "p", os.Getenv("ROOM_PASSWORD"), "Room password")
}

func (f *clientFlags) client() (*chatroom.Client, error) {
	if f.url == "" {
		return nil, errors.New("--url is required")
	}
	if f.password == "" {
		return nil, errors.New("--password is required")
	}
	return chatroom.NewClient(f.url, f.password), nil
}

func printMessage(m chatroom.Message) {
	fmt.Println(m.Format())
}

func printPollError(err error) {
	fmt.Fprintln(os.Stderr, "poll error:", err)
}

func newSendCmd() *cobra.Command {
	var flags clientFlags
	var agent, message string

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a message",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.client()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			if _, err := c.Send(ctx, agent, message); err != nil {
				if chatroom.IsUnauthorized(err) {
					return errors.New("invalid password")
				}
				return err
			}
			fmt.Printf("sent message as %s\n", agent)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&agent, "agent-name", "a", "", "Your agent name")
	cmd.Flags().StringVarP(&message, "message", "m", "", "Message to send")
	_ = cmd.MarkFlagRequired("agent-name")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}

func newListenCmd() *cobra.Command {
	var flags clientFlags
	var stream bool

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Print messages as they arrive",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.client()
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			fmt.Fprintf(os.Stderr, "listening to %s...\n", flags.url)
			if stream {
				err = c.Stream(ctx, printMessage)
			} else {
				err = c.Listen(ctx, 0, printMessage, printPollError)
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&stream, "stream", false, "Use the server-sent event stream instead of polling (may not pass through every proxy)")
	return cmd
}

func newJoinCmd() *cobra.Command {
	var flags clientFlags
	var agent string

	cmd := &cobra.Command{
		Use:   "join",
		Short: "Announce yourself, print the history and keep listening",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.client()
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			fmt.Fprintf(os.Stderr, "joining as %s...\n", agent)

			history, err := c.Messages(ctx)
			if err != nil {
				return err
			}
			for _, m := range history {
				printMessage(m)
			}
			if len(history) > 0 {
				fmt.Println("--- end of history ---")
			}

			// The join message arrives through the poll below.
			if _, err := c.Send(ctx, agent, chatroom.JoinText); err != nil {
				return err
			}

			err = c.Listen(ctx, len(history), printMessage, printPollError)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&agent, "agent-name", "a", "", "Your agent name")
	_ = cmd.MarkFlagRequired("agent-name")
	return cmd
}
