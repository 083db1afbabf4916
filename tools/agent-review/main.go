/**
 * @description
 * Operator tool to decide an agent application from a terminal when the admin
 * console is unavailable. It shows the application, asks for confirmation and
 * then approves or rejects it through the agent-service.
 *
 * Usage:
 *   go run ./tools/agent-review approve <application-id> <commission-rate>
 *   go run ./tools/agent-review reject <application-id> <reason...>
 *
 * Example:
 *   go run ./tools/agent-review approve 3f0c0d4e-8d0b-4a43-9a57-5d1f1f0b2c11 12.5
 *
 * @dependencies
 * - Environment variables: AGENT_SERVICE_URL, AGENT_SERVICE_TOKEN (an admin session token)
 */
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/multimart/marketplace/internal/domain"
	"github.com/multimart/marketplace/internal/session"
	"github.com/multimart/marketplace/storefront-service/pkg/agentclient"
	"github.com/shopspring/decimal"
)

const usage = `Usage:
  agent-review approve <application-id> <commission-rate>
  agent-review reject <application-id> <reason...>`

// reviewClient is the part of the agent-service client the tool uses.
type reviewClient interface {
	GetApplication(ctx context.Context, creds session.Credentials, id string) (*domain.AgentApplication, error)
	ApproveApplication(ctx context.Context, creds session.Credentials, id string, rate decimal.Decimal) (*domain.AgentApplication, error)
	RejectApplication(ctx context.Context, creds session.Credentials, id, reason string) (*domain.AgentApplication, error)
}

func main() {
	_ = godotenv.Load("../.env")
	_ = godotenv.Load(".env")

	baseURL := os.Getenv("AGENT_SERVICE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8091"
		fmt.Println("Using default agent-service URL:", baseURL)
	}
	token := strings.TrimSpace(os.Getenv("AGENT_SERVICE_TOKEN"))
	if token == "" {
		fmt.Fprintln(os.Stderr, "AGENT_SERVICE_TOKEN environment variable is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client := agentclient.NewClient(baseURL, 15*time.Second)
	creds := session.Credentials{Token: token}
	if err := run(ctx, os.Args[1:], client, creds, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, client reviewClient, creds session.Credentials, in io.Reader, out io.Writer) error {
	if len(args) < 3 {
		return errors.New(usage)
	}
	action, id := args[0], args[1]

	var (
		rate   decimal.Decimal
		reason string
	)
	switch action {
	case "approve":
		if len(args) != 3 {
			return errors.New(usage)
		}
		parsed, err := decimal.NewFromString(args[2])
		if err != nil {
			return fmt.Errorf("invalid commission rate %q: %w", args[2], err)
		}
		if err := domain.ValidateCommissionRate(parsed); err != nil {
			return err
		}
		rate = parsed
	case "reject":
		reason = strings.TrimSpace(strings.Join(args[2:], " "))
		if err := domain.ValidateRejectionReason(reason); err != nil {
			return err
		}
	default:
		return errors.New(usage)
	}

	fmt.Fprintf(out, "Fetching application %s\n", id)
	application, err := client.GetApplication(ctx, creds, id)
	if err != nil {
		return fmt.Errorf("failed to fetch application: %w", err)
	}

	fmt.Fprintf(out, "Application Details:\n")
	fmt.Fprintf(out, "  ID: %s\n", application.ID)
	fmt.Fprintf(out, "  Applicant: %s (%s)\n", application.FullName, application.ApplicantEmail)
	fmt.Fprintf(out, "  Product: %s %s\n", application.ProductID, application.ProductName)
	fmt.Fprintf(out, "  Payout: %s\n", application.PayoutMethod)
	fmt.Fprintf(out, "  Status: %s\n", application.Status)
	if application.Status != domain.StatusPending {
		return fmt.Errorf("application %s is %s and can no longer be decided", id, application.Status)
	}

	fmt.Fprintf(out, "\nAre you sure you want to %s this application? (yes/no): ", action)
	confirmation, _ := bufio.NewReader(in).ReadString('\n')
	if strings.TrimSpace(confirmation) != "yes" {
		fmt.Fprintln(out, "Cancelled.")
		return nil
	}

	var decided *domain.AgentApplication
	if action == "approve" {
		decided, err = client.ApproveApplication(ctx, creds, id, rate)
	} else {
		decided, err = client.RejectApplication(ctx, creds, id, reason)
	}
	if err != nil {
		return fmt.Errorf("failed to %s application: %w", action, err)
	}

	fmt.Fprintf(out, "Application %s is now %s\n", decided.ID, decided.Status)
	if decided.AgentCode != nil {
		fmt.Fprintf(out, "Agent code: %s\n", *decided.AgentCode)
	}
	return nil
}
