package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/tailingsiq/tailingsiq/internal/aws"
	"github.com/tailingsiq/tailingsiq/internal/config"
	"github.com/tailingsiq/tailingsiq/internal/queue"
)

// localStackMessage is one entry of LocalStack's /_aws/ses inbox.
type localStackMessage struct {
	ID          string         `json:"Id"`
	Timestamp   string         `json:"Timestamp"`
	Subject     string         `json:"Subject"`
	Source      string         `json:"Source"`
	Body        localStackBody `json:"Body"`
	Destination localStackDest `json:"Destination"`
}

type localStackBody struct {
	Text string `json:"text_part"`
}

type localStackDest struct {
	ToAddresses []string `json:"ToAddresses"`
}

var (
	toPtr      = flag.String("to", "test@example.com", "Recipient")
	enqueuePtr = flag.Bool("enqueue", false, "Enqueue the email task for the worker instead of sending directly")
	viewPtr    = flag.Bool("view", false, "List the messages LocalStack has captured")
	testPtr    = flag.Bool("test", false, "Send a test email through SES")
)

func main() {
	flag.Parse()

	cfg := config.Load()
	ctx := context.Background()

	subject := "TailingsIQ test email"
	body := "This is a test message from the TailingsIQ mail pipeline."

	switch {
	case *enqueuePtr:
		q, err := queue.NewQueue(&cfg.Redis)
		if err != nil {
			log.Fatalf("Failed to connect to queue: %v", err)
		}
		defer q.Close()

		info, err := q.Enqueue(queue.TypeEmailDelivery, queue.EmailDeliveryPayload{
			To:      *toPtr,
			Subject: subject,
			Body:    body,
		})
		if err != nil {
			log.Fatalf("Failed to enqueue task: %v", err)
		}
		log.Printf("Task enqueued on %s: %s", info.Queue, info.ID)

	case *viewPtr:
		if err := viewEmails(cfg.AWS.EndpointURL); err != nil {
			log.Fatal(err)
		}

	case *testPtr:
		svc, err := aws.NewSESService(ctx, cfg.AWS)
		if err != nil {
			log.Fatalf("Failed to create SES service: %v", err)
		}
		if cfg.AWS.EndpointURL != "" {
			if err := svc.VerifySender(ctx); err != nil {
				log.Fatalf("Failed to verify sender: %v", err)
			}
		}

		log.Printf("Sending email from %s to %s...", svc.FromEmail(), *toPtr)
		if err := svc.SendEmail(ctx, *toPtr, subject, body); err != nil {
			log.Fatalf("Failed to send email: %v", err)
		}
		log.Println("Email sent")

		if cfg.AWS.EndpointURL != "" {
			if err := viewEmails(cfg.AWS.EndpointURL); err != nil {
				log.Print(err)
			}
		}

	default:
		flag.Usage()
	}
}

func viewEmails(endpoint string) error {
	if endpoint == "" {
		return fmt.Errorf("AWS_ENDPOINT_URL is not set; the inbox is only available on LocalStack")
	}

	resp, err := http.Get(strings.TrimRight(endpoint, "/") + "/_aws/ses")
	if err != nil {
		return fmt.Errorf("failed to fetch LocalStack messages: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read LocalStack response: %w", err)
	}

	var inbox struct {
		Messages []localStackMessage `json:"messages"`
	}
	if err := json.Unmarshal(raw, &inbox); err != nil {
		return fmt.Errorf("failed to parse LocalStack response: %w", err)
	}

	if len(inbox.Messages) == 0 {
		fmt.Println("No messages found in LocalStack.")
		return nil
	}

	fmt.Printf("Found %d message(s):\n", len(inbox.Messages))
	for i, msg := range inbox.Messages {
		fmt.Printf("\n[%d] %s\n", i+1, msg.Timestamp)
		fmt.Printf("From: %s\n", msg.Source)
		fmt.Printf("To: %s\n", strings.Join(msg.Destination.ToAddresses, ", "))
		fmt.Printf("Subject: %s\n", msg.Subject)
		fmt.Printf("Body: %s\n", msg.Body.Text)
	}
	return nil
}
