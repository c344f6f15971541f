package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dvloznov/finko-backend/internal/app"
	"github.com/dvloznov/finko-backend/internal/archive"
	"github.com/dvloznov/finko-backend/internal/auth"
	"github.com/dvloznov/finko-backend/internal/bankprofile"
	"github.com/dvloznov/finko-backend/internal/cloudevent"
	"github.com/dvloznov/finko-backend/internal/config"
	"github.com/dvloznov/finko-backend/internal/domain"
	"github.com/dvloznov/finko-backend/internal/extraction"
	"github.com/dvloznov/finko-backend/internal/gmail"
	"github.com/dvloznov/finko-backend/internal/logger"
	"github.com/rs/zerolog"
)

func main() {
	log := logger.New()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "parse-event":
		runParseEvent(log)
	case "process-gmail":
		runProcessGmail(log)
	case "renew":
		runRenew(log)
	case "token":
		runToken(log)
	case "encode-push":
		runEncodePush(log)
	case "extract-archived":
		runExtractArchived(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Finko CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  parse-event       Parse a banking CloudEvent file and print the transaction")
	fmt.Println("  process-gmail     Run the Gmail history walk for one mailbox")
	fmt.Println("  renew             Renew the Gmail watch of every connected mailbox")
	fmt.Println("  token             Issue an API bearer token")
	fmt.Println("  encode-push       Print a Pub/Sub push body for a Gmail notification")
	fmt.Println("  extract-archived  Re-run extraction on an archived email body")
	fmt.Println("  help              Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

func loadApp(ctx context.Context, log zerolog.Logger) *app.App {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}
	return a
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func runParseEvent(log zerolog.Logger) {
	fs := flag.NewFlagSet("parse-event", flag.ExitOnError)
	file := fs.String("file", "", "Path to a CloudEvent JSON file (- for stdin)")
	fs.Parse(os.Args[2:])

	if *file == "" {
		log.Fatal().Msg("Usage: cli parse-event -file PATH")
	}

	var r io.Reader = os.Stdin
	if *file != "-" {
		f, err := os.Open(*file)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open event file")
		}
		defer f.Close()
		r = f
	}

	ev, err := cloudevent.Decode(r)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to decode event")
	}
	if err := ev.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid event")
	}

	tx, ok := cloudevent.NewParser().Parse(ev)
	if !ok {
		log.Fatal().Msg("No transaction could be parsed from the event")
	}

	printJSON(map[string]string{
		"amount":    tx.Amount.String(),
		"merchant":  tx.Merchant,
		"date":      tx.Date.String(),
		"direction": string(tx.Direction),
	})
}

func runProcessGmail(log zerolog.Logger) {
	fs := flag.NewFlagSet("process-gmail", flag.ExitOnError)
	email := fs.String("email", "", "Connected Gmail address")
	historyID := fs.Uint64("history-id", 0, "History id from the notification (used on the first run)")
	fs.Parse(os.Args[2:])

	if *email == "" {
		log.Fatal().Msg("Error: --email is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	a := loadApp(ctx, log)
	defer a.Close()

	result, err := a.Ingest.HandleGmailNotification(ctx, *email, *historyID)
	if err != nil {
		log.Fatal().Err(err).Msg("Gmail processing failed")
	}
	printJSON(result)
}

func runRenew(log zerolog.Logger) {
	fs := flag.NewFlagSet("renew", flag.ExitOnError)
	fs.Parse(os.Args[2:])

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	a := loadApp(ctx, log)
	defer a.Close()

	result, err := a.Mailboxes.RenewWatches(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Watch renewal failed")
	}
	printJSON(result)
}

func runToken(log zerolog.Logger) {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	userID := fs.String("user", "", "User id")
	email := fs.String("email", "", "User email")
	role := fs.String("role", domain.RoleUser, "Role: user, admin or root")
	ttl := fs.Duration("ttl", 0, "Token lifetime (defaults to JWT_EXPIRES_IN)")
	fs.Parse(os.Args[2:])

	if *userID == "" {
		log.Fatal().Msg("Usage: cli token -user ID [-email EMAIL] [-role ROLE]")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	expires := cfg.JWTExpiresIn
	if *ttl > 0 {
		expires = *ttl
	}

	token, err := auth.NewTokenService(cfg.JWTSecret, expires).Generate(*userID, *email, *role)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to sign token")
	}
	fmt.Println(token)
}

func runEncodePush(log zerolog.Logger) {
	fs := flag.NewFlagSet("encode-push", flag.ExitOnError)
	email := fs.String("email", "", "Gmail address")
	historyID := fs.Uint64("history-id", 0, "History id")
	fs.Parse(os.Args[2:])

	if *email == "" || *historyID == 0 {
		log.Fatal().Msg("Usage: cli encode-push -email ADDRESS -history-id N")
	}

	body, err := gmail.EncodePush(gmail.Notification{
		EmailAddress: *email,
		HistoryID:    *historyID,
		MessageID:    fmt.Sprintf("cli-%d", time.Now().UnixNano()),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to encode push body")
	}
	fmt.Println(string(body))
}

func runExtractArchived(log zerolog.Logger) {
	fs := flag.NewFlagSet("extract-archived", flag.ExitOnError)
	uri := fs.String("uri", "", "gs:// URI of an archived email body")
	bank := fs.String("bank", "", "Bank profile name (defaults to the first profile)")
	from := fs.String("from", "", "Sender address; selects the profile by sender pattern")
	emailDate := fs.String("date", "", "Email date hint, YYYY-MM-DD")
	fs.Parse(os.Args[2:])

	if *uri == "" {
		log.Fatal().Msg("Usage: cli extract-archived -uri gs://BUCKET/OBJECT [-bank NAME | -from SENDER]")
	}
	bucket, _, err := archive.ParseURI(*uri)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid archive URI")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	a := loadApp(ctx, log)
	defer a.Close()

	store, err := archive.NewGCSArchiver(ctx, bucket)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create storage client")
	}
	defer store.Close()

	body, err := store.Fetch(ctx, *uri)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to fetch archived email")
	}

	profiles, err := a.Store.ListProfiles(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list bank profiles")
	}
	profile := pickProfile(profiles, *bank, *from)
	if profile == nil {
		log.Fatal().Str("bank", *bank).Str("from", *from).Msg("No matching bank profile")
	}

	extractor, err := app.NewExtractor(ctx, a.Config, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create extractor")
	}

	txs, err := extractor.Extract(ctx, extraction.Request{
		Body:         string(body),
		EmailDate:    *emailDate,
		BankName:     profile.BankName,
		Instructions: profile.ExtractionInstructions,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Extraction failed")
	}

	out := make([]map[string]string, 0, len(txs))
	for _, tx := range txs {
		out = append(out, map[string]string{
			"amount":    tx.Amount.String(),
			"merchant":  tx.Merchant,
			"date":      tx.Date.String(),
			"direction": string(tx.Direction),
			"category":  tx.Category,
		})
	}
	printJSON(out)
}

func pickProfile(profiles []domain.BankEmailProfile, bank, from string) *domain.BankEmailProfile {
	if from != "" {
		p, _ := bankprofile.Match(from, profiles)
		return p
	}
	for i := range profiles {
		if bank == "" || strings.EqualFold(profiles[i].BankName, bank) {
			return &profiles[i]
		}
	}
	return nil
}
