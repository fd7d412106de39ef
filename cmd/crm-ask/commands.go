package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/thebtf/crm-assistant/pkg/client"
)

// options holds the persistent flags.
type options struct {
	server string
	user   string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "crm-ask",
		Short: "Ask questions about your CRM contacts and notes",
		Long: `crm-ask talks to a running CRM assistant service.

Available subcommands:
  ask    - Ask a question and print the full answer
  stream - Ask a question and print the answer as it is generated
  clear  - Forget the conversation so far
  data   - Show the contacts and notes the assistant sees
  health - Check the service, its database and its model`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.server, "server", client.ServerURL(), "assistant service URL")
	root.PersistentFlags().StringVar(&opts.user, "user", os.Getenv("CRM_ASSISTANT_USER"), "user id (defaults to $CRM_ASSISTANT_USER)")

	root.AddCommand(
		newAskCmd(opts),
		newStreamCmd(opts),
		newClearCmd(opts),
		newDataCmd(opts),
		newHealthCmd(opts),
	)
	return root
}

func (o *options) requireUser() error {
	if o.user == "" {
		return errors.New("a user id is required: pass --user or set CRM_ASSISTANT_USER")
	}
	return nil
}

func newAskCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question and print the full answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.requireUser(); err != nil {
				return err
			}
			answer, err := client.New(opts.server, nil).Ask(cmd.Context(), opts.user, strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), answer.Response)
			if answer.DataSummary != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "(%d contacts, %d notes)\n", answer.DataSummary.ContactsCount, answer.DataSummary.NotesCount)
			}
			return nil
		},
	}
}

func newStreamCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stream <question>",
		Short: "Ask a question and print the answer as it is generated",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.requireUser(); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for ev, err := range client.New(opts.server, nil).Stream(cmd.Context(), opts.user, strings.Join(args, " ")) {
				if err != nil {
					return err
				}
				switch ev.Type {
				case "status":
					if ev.Message != "" {
						fmt.Fprintln(cmd.ErrOrStderr(), ev.Message)
					}
				case "token":
					fmt.Fprint(out, ev.Token)
				case "complete":
					fmt.Fprintln(out)
				case "error":
					return errors.New(ev.Error)
				}
			}
			return nil
		},
	}
}

func newClearCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Forget the conversation so far",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.requireUser(); err != nil {
				return err
			}
			msg, err := client.New(opts.server, nil).ClearMemory(cmd.Context(), opts.user)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}
}

func newDataCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "data",
		Short: "Show the contacts and notes the assistant sees",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.requireUser(); err != nil {
				return err
			}
			d, err := client.New(opts.server, nil).UserData(cmd.Context(), opts.user)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Contacts (%d):\n", d.Summary.TotalContacts)
			for _, c := range d.Contacts {
				line := "  " + c.Name
				if c.Company != nil {
					line += " (" + *c.Company + ")"
				}
				fmt.Fprintln(out, line)
			}
			fmt.Fprintf(out, "Notes (%d):\n", d.Summary.TotalNotes)
			for _, n := range d.Notes {
				line := "  " + n.Title
				if len(n.RelatedContacts) > 0 {
					line += " [" + strings.Join(n.RelatedContacts, ", ") + "]"
				}
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
}

func newHealthCmd(opts *options) *cobra.Command {
	var probeModel bool
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check the service, its database and its model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(opts.server, nil)
			h, err := c.Health(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "service: %s (database %s, version %s)\n", h.Status, h.Database, h.Version)
			if !probeModel {
				return nil
			}
			reply, err := c.TestModel(cmd.Context())
			if err != nil {
				return fmt.Errorf("model: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "model: ok (%s)\n", reply)
			return nil
		},
	}
	cmd.Flags().BoolVar(&probeModel, "model", false, "also send a test prompt to the model")
	return cmd
}
