package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	bolt "go.etcd.io/bbolt"

	"github.com/foxzi/pagesend/internal/app"
	"github.com/foxzi/pagesend/internal/mail"
)

var (
	sandboxListLimit  int
	sandboxShowFormat string
	sandboxClearDays  int
)

var sandboxCmd = &cobra.Command{
	Use:   "sandbox",
	Short: "Inspect messages captured in sandbox mode",
}

var sandboxListCmd = &cobra.Command{
	Use:   "list",
	Short: "List captured messages",
	RunE:  runSandboxList,
}

var sandboxShowCmd = &cobra.Command{
	Use:   "show <message_id>",
	Short: "Show captured message details",
	Args:  cobra.ExactArgs(1),
	RunE:  runSandboxShow,
}

var sandboxClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear captured messages",
	RunE:  runSandboxClear,
}

func init() {
	sandboxListCmd.Flags().IntVar(&sandboxListLimit, "limit", 50, "Maximum number of messages")
	sandboxShowCmd.Flags().StringVar(&sandboxShowFormat, "format", "text", "Output format (text, raw)")
	sandboxClearCmd.Flags().IntVar(&sandboxClearDays, "older-than", 0, "Clear messages older than N days")

	sandboxCmd.AddCommand(sandboxListCmd, sandboxShowCmd, sandboxClearCmd)
	rootCmd.AddCommand(sandboxCmd)
}

func openSandboxStore() (*mail.SandboxStore, *bolt.DB, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	db, err := app.OpenState(cfg)
	if err != nil {
		return nil, nil, err
	}

	store, err := mail.NewSandboxStore(db)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to create sandbox storage: %w", err)
	}

	return store, db, nil
}

func runSandboxList(cmd *cobra.Command, args []string) error {
	store, db, err := openSandboxStore()
	if err != nil {
		return err
	}
	defer db.Close()

	messages, err := store.List(context.Background(), sandboxListLimit)
	if err != nil {
		return fmt.Errorf("failed to list messages: %w", err)
	}

	if len(messages) == 0 {
		fmt.Println("No messages in sandbox")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTO\tSUBJECT\tATTACHMENTS\tCAPTURED")
	fmt.Fprintln(w, "--\t--\t-------\t-----------\t--------")

	for _, msg := range messages {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			msg.ID,
			truncate(msg.To, 30),
			truncate(msg.Subject, 30),
			strings.Join(msg.Attachments, ", "),
			msg.CapturedAt.Local().Format("2006-01-02 15:04"),
		)
	}

	w.Flush()
	fmt.Printf("\nTotal: %d messages\n", len(messages))
	return nil
}

func runSandboxShow(cmd *cobra.Command, args []string) error {
	store, db, err := openSandboxStore()
	if err != nil {
		return err
	}
	defer db.Close()

	id := args[0]
	msg, err := store.Get(context.Background(), id)
	if err != nil {
		return fmt.Errorf("failed to get message: %w", err)
	}
	if msg == nil {
		return fmt.Errorf("message not found: %s", id)
	}

	if sandboxShowFormat == "raw" {
		fmt.Println(string(msg.Data))
		return nil
	}

	env, err := msg.Envelope()
	if err != nil {
		return fmt.Errorf("failed to parse message: %w", err)
	}

	fmt.Printf("Message: %s\n\n", msg.ID)
	fmt.Printf("From:     %s\n", msg.From)
	fmt.Printf("To:       %s\n", msg.To)
	fmt.Printf("Reply-To: %s\n", msg.ReplyTo)
	fmt.Printf("Subject:  %s\n", msg.Subject)
	fmt.Printf("Captured: %s\n", msg.CapturedAt.Local().Format(time.RFC1123))
	fmt.Printf("Size:     %d bytes\n", msg.Size)

	if len(env.Attachments) > 0 {
		fmt.Printf("\nAttachments:\n")
		for _, a := range env.Attachments {
			fmt.Printf("  %s (%s, %d bytes)\n", a.FileName, a.ContentType, len(a.Content))
		}
	}

	fmt.Printf("\n%s\n", env.Text)
	return nil
}

func runSandboxClear(cmd *cobra.Command, args []string) error {
	store, db, err := openSandboxStore()
	if err != nil {
		return err
	}
	defer db.Close()

	olderThan := time.Duration(sandboxClearDays) * 24 * time.Hour
	n, err := store.Clear(context.Background(), olderThan)
	if err != nil {
		return fmt.Errorf("failed to clear messages: %w", err)
	}

	fmt.Printf("Deleted %d messages\n", n)
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
