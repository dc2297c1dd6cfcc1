package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

var (
	initOutput   string
	initDataDir  string
	initMode     string
	initFrom     string
	initSMTPHost string
	initSMTPPort int
	initSeedFile string
	initForce    bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter configuration file",
	Long: `Write a starter pagesend configuration file.

Examples:
  # Relay through an SMTP server
  pagesend init --from facturas@example.com --smtp-host smtp.example.com

  # Try it out without sending anything
  pagesend init --mode sandbox --data-dir ./data -o dev.yaml`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVarP(&initOutput, "output", "o", "config.yaml", "Output configuration file path")
	initCmd.Flags().StringVar(&initDataDir, "data-dir", "/var/lib/pagesend", "Data directory for databases")
	initCmd.Flags().StringVar(&initMode, "mode", "smtp", "Mail mode: smtp, sandbox")
	initCmd.Flags().StringVar(&initFrom, "from", "", "Sender address of outgoing mail")
	initCmd.Flags().StringVar(&initSMTPHost, "smtp-host", "", "SMTP relay host")
	initCmd.Flags().IntVar(&initSMTPPort, "smtp-port", 587, "SMTP relay port")
	initCmd.Flags().StringVar(&initSeedFile, "seed-file", "data/terceros.xlsx", "Recipient spreadsheet imported at startup")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing config file")

	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	if initMode != "smtp" && initMode != "sandbox" {
		return fmt.Errorf("--mode must be smtp or sandbox")
	}
	if initFrom == "" {
		if initMode == "smtp" {
			return fmt.Errorf("--from is required in smtp mode")
		}
		initFrom = "no-reply@example.com"
	}
	if initMode == "smtp" && initSMTPHost == "" {
		return fmt.Errorf("--smtp-host is required in smtp mode")
	}

	if _, err := os.Stat(initOutput); err == nil && !initForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", initOutput)
	}

	if dir := filepath.Dir(initOutput); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	// May carry relay credentials later
	if err := os.WriteFile(initOutput, []byte(generateConfig()), 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Printf("Configuration written to %s\n\n", initOutput)
	fmt.Println("Next steps:")
	if initMode == "smtp" {
		fmt.Printf("  1. export %s=... %s=...\n", "PAGESEND_SMTP_USER", "PAGESEND_SMTP_PASSWORD")
	} else {
		fmt.Println("  1. Captured messages: pagesend sandbox list -c " + initOutput)
	}
	fmt.Printf("  2. pagesend config validate -c %s\n", initOutput)
	fmt.Printf("  3. pagesend serve -c %s\n", initOutput)
	return nil
}

func generateConfig() string {
	var b strings.Builder

	b.WriteString("# pagesend configuration\n\n")
	b.WriteString("server:\n")
	b.WriteString("  listen_addr: \":3000\"\n")
	b.WriteString("  max_upload_bytes: 33554432\n\n")

	b.WriteString("database:\n")
	fmt.Fprintf(&b, "  path: %q\n\n", filepath.Join(initDataDir, "pagesend.db"))

	b.WriteString("directory:\n")
	fmt.Fprintf(&b, "  seed_file: %q\n", initSeedFile)
	b.WriteString("  import_on_start: true\n\n")

	b.WriteString("uploads:\n")
	b.WriteString("  max_sessions: 64\n")
	b.WriteString("  ttl: 1h\n\n")

	b.WriteString("mail:\n")
	fmt.Fprintf(&b, "  mode: %s\n", initMode)
	fmt.Fprintf(&b, "  from: %q\n", initFrom)
	if initMode == "smtp" {
		fmt.Fprintf(&b, "  host: %q\n", initSMTPHost)
		fmt.Fprintf(&b, "  port: %d\n", initSMTPPort)
		if initSMTPPort == 465 {
			b.WriteString("  tls: implicit\n")
		} else {
			b.WriteString("  tls: starttls\n")
		}
		b.WriteString("  # username and password are read from PAGESEND_SMTP_USER and PAGESEND_SMTP_PASSWORD\n")
	}
	b.WriteString("\n")

	b.WriteString("dispatch:\n")
	b.WriteString("  item_timeout: 60s\n")
	b.WriteString("  default_subject: \"Documento\"\n")
	b.WriteString("  default_body: \"Adjuntamos su documento.\"\n\n")

	b.WriteString("sandbox:\n")
	fmt.Fprintf(&b, "  path: %q\n\n", filepath.Join(initDataDir, "sandbox.db"))

	b.WriteString("metrics:\n")
	b.WriteString("  enabled: false\n")
	b.WriteString("  path: /metrics\n\n")

	b.WriteString("logging:\n")
	b.WriteString("  level: info\n")
	b.WriteString("  format: json\n")

	return b.String()
}
