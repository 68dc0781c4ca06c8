package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/benaskins/lox/internal/keyring"
)

// openStore is swapped out by tests.
var openStore = keyring.Open

// open returns the platform store for service, audited when an audit log
// is configured.
func open(service string) (keyring.Store, error) {
	store, err := openStore(service)
	if err != nil {
		return nil, fmt.Errorf("unable to open the secure store: %w", err)
	}
	if auditLog != nil {
		return keyring.NewAuditedStore(store, service, auditLog, "cli"), nil
	}
	return store, nil
}

var getCmd = &cobra.Command{
	Use:   "get <service> [id]",
	Short: "Retrieve a secret",
	Long:  "Retrieve the secret stored under id and write its raw bytes to stdout. If id is omitted or '-', it is read from stdin.",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := readID(args, 1, true)
		if err != nil {
			return err
		}
		store, err := open(args[0])
		if err != nil {
			return err
		}
		defer store.Close()
		return runGet(cmd.OutOrStdout(), store, id)
	},
}

var setCmd = &cobra.Command{
	Use:   "set <service> <id> [secret]",
	Short: "Store a secret",
	Long: `Store a secret under id, replacing any previous value.

If secret names a file, the file's contents are stored. If secret is omitted
or '-', it is read from stdin (useful for piping) or prompted for.`,
	Args: cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := readSecret(args, 2)
		if err != nil {
			return err
		}
		defer value.Destroy()

		store, err := open(args[0])
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Set(args[1], value.Bytes()); err != nil {
			return fmt.Errorf("failed: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), out.success.Render(fmt.Sprintf("Secret %q stored", args[1])))
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:     "delete <service> [id]",
	Short:   "Remove a secret",
	Long:    "Remove the secret stored under id. If id is omitted or '-', it is read from stdin.",
	Aliases: []string{"rm"},
	Args:    cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := readID(args, 1, true)
		if err != nil {
			return err
		}
		store, err := open(args[0])
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Delete(id); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out.success.Render(fmt.Sprintf("Secret %q deleted", id)))
		return nil
	},
}

var peekCmd = &cobra.Command{
	Use:   "peek [criteria]",
	Short: "Look up secrets lox does not manage",
	Long: `Search every secret the store exposes to the current user.

Criteria are comma separated name=value pairs, e.g. service=lox,account=api.
On macOS, kind=generic or kind=internet selects the item type; without it the
type is inferred from the other attributes. On Windows a bare target name
(without '=') is matched exactly. With no criteria every readable secret is
printed. If criteria is '-' it is read from stdin.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		criteria, err := readID(args, 0, false)
		if err != nil {
			return err
		}
		store, err := open("")
		if err != nil {
			return err
		}
		defer store.Close()
		return runPeek(cmd.OutOrStdout(), store, criteria)
	},
}

var listCmd = &cobra.Command{
	Use:     "list",
	Short:   "List the metadata of every secret in the store",
	Aliases: []string{"ls"},
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := open("")
		if err != nil {
			return err
		}
		defer store.Close()
		return runList(cmd.OutOrStdout(), cmd.ErrOrStderr(), store)
	},
}

func runGet(w io.Writer, store keyring.Store, id string) error {
	h, err := store.Get(id)
	if err != nil {
		return err
	}
	defer h.Destroy()

	_, err = w.Write(h.Bytes())
	return err
}

// runPeek prints the bare value when specific criteria found exactly one
// secret, and "label -> value" lines otherwise.
func runPeek(w io.Writer, store keyring.Store, criteria string) error {
	matches, err := store.Peek(criteria)
	if err != nil {
		return err
	}
	defer keyring.DestroyMatches(matches)

	if len(matches) == 1 && criteria != "" {
		return writeLine(w, matches[0].Secret.Bytes())
	}
	for _, m := range matches {
		fmt.Fprintf(w, "%s -> ", out.label.Render(m.Label))
		if err := writeLine(w, m.Secret.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

func runList(w, errw io.Writer, store keyring.Store) error {
	records, err := store.List()
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(errw, "No secrets found")
		return nil
	}
	for _, r := range records {
		fmt.Fprintln(w, r.String())
	}
	return nil
}

// writeLine writes b and a newline without copying b.
func writeLine(w io.Writer, b []byte) error {
	if _, err := w.Write(b); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

func init() {
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(peekCmd)
	rootCmd.AddCommand(listCmd)
}
