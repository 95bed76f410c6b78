// Command coordinatorctl runs and administers the marketplace coordinator,
// in the style of the teacher's cmd/appserver: flag-parsed subcommands over
// a shared config/database/service wiring, ending in a signal-driven
// graceful shutdown of a system.Manager.
package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"flag"
	"fmt"
	"net/smtp"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"

	"github.com/aethermarket/coordinator/internal/config"
	coordcrypto "github.com/aethermarket/coordinator/internal/crypto"
	"github.com/aethermarket/coordinator/internal/httpapi"
	"github.com/aethermarket/coordinator/internal/logging"
	"github.com/aethermarket/coordinator/internal/platform/database"
	"github.com/aethermarket/coordinator/internal/platform/migrations"
	"github.com/aethermarket/coordinator/internal/services/accounts"
	"github.com/aethermarket/coordinator/internal/services/agents"
	"github.com/aethermarket/coordinator/internal/services/contracts"
	"github.com/aethermarket/coordinator/internal/services/emailqueue"
	"github.com/aethermarket/coordinator/internal/services/ledger"
	"github.com/aethermarket/coordinator/internal/services/locks"
	"github.com/aethermarket/coordinator/internal/services/notify"
	"github.com/aethermarket/coordinator/internal/services/offerings"
	"github.com/aethermarket/coordinator/internal/services/payment"
	"github.com/aethermarket/coordinator/internal/storage/postgres"
	"github.com/aethermarket/coordinator/internal/system"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: coordinatorctl <serve|migrate|keygen> [flags]")
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "serve":
		runServe(args)
	case "migrate":
		runMigrate(args)
	case "keygen":
		runKeygen(args)
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", cmd)
		os.Exit(1)
	}
}

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addrFlag := fs.String("addr", "", "HTTP listen address (overrides config)")
	fs.Parse(args)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(rootCtx, cfg.Database.DSN, database.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		log.WithError(err).Fatal("connect to postgres")
	}
	defer db.Close()

	if cfg.Database.MigrateOnStart {
		if err := migrations.Apply(rootCtx, db); err != nil {
			log.WithError(err).Fatal("apply migrations")
		}
	}

	mgr := buildServices(cfg, log, db)

	addr := cfg.HTTP.Addr
	if *addrFlag != "" {
		addr = *addrFlag
	}
	log.WithField("addr", addr).Info("coordinator starting")

	if err := mgr.StartAll(rootCtx); err != nil {
		log.WithError(err).Fatal("start services")
	}

	<-rootCtx.Done()
	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := mgr.StopAll(shutdownCtx); err != nil {
		log.WithError(err).Fatal("shutdown")
	}
}

// buildServices wires every storage-backed service and registers the
// long-running ones (HTTP server, email dispatcher, notify sweeper) with a
// system.Manager, following the teacher's cmd/appserver "stores -> app ->
// attach services -> start" sequence.
func buildServices(cfg *config.Config, log *logging.Logger, db *sql.DB) *system.Manager {
	accountStore := postgres.NewAccountStore(db)
	agentStore := postgres.NewAgentStore(db)
	auditStore := postgres.NewAuditStore(db)
	contractStore := postgres.NewContractStore(db)
	emailStore := postgres.NewEmailStore(db)
	ledgerStore := postgres.NewLedgerStore(db)
	lockStore := postgres.NewLockStore(db)
	notifyStore := postgres.NewNotifyStore(db)
	offeringStore := postgres.NewOfferingStore(db)
	providerStore := postgres.NewProviderStore(db)

	accountsSvc := accounts.NewService(accountStore, log)
	agentsSvc := agents.NewService(agentStore, offeringStore, contractStore)
	offeringsSvc := offerings.NewService(offeringStore, providerStore)
	ledgerProjector := ledger.NewProjector(ledgerStore)
	lockManager := locks.NewManager(lockStore, cfg.Lock.TTL)

	gateways := map[string]payment.Gateway{
		"token": payment.NewTokenGateway(ledgerProjector),
	}
	if cfg.Payment.StripeBaseURL != "" {
		gateways["stripe"] = payment.NewHTTPGateway("stripe", cfg.Payment.StripeBaseURL)
	}
	if cfg.Payment.ICPayBaseURL != "" {
		gateways["icpay"] = payment.NewHTTPGateway("icpay", cfg.Payment.ICPayBaseURL)
	}

	contractsSvc := contracts.NewService(
		contractStore, offeringStore, providerStore, emailStore,
		gateways, cfg.Contracts.CancellationRefundFraction, log,
	)

	emailSender := emailqueue.NewSMTPSender(emailAddr(), cfg.Email.FromAddr, smtpAuth())
	dispatcher := emailqueue.NewDispatcher(
		emailStore, accountStore, emailSender, cfg.Email.BatchSize, cfg.Email.RetryWindow,
		cfg.Email.DispatchCron, cfg.Email.SweepCron, cfg.Email.FromAddr, log,
	)

	var quota notify.QuotaLimiter
	if cfg.Redis.Addr != "" {
		quota = notify.NewRedisQuota(redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr}))
	} else {
		quota = notify.NewPostgresQuota(notifyStore)
	}
	limits := map[string]int{"telegram": cfg.Notify.TelegramDailyQuota, "sms": cfg.Notify.SMSDailyQuota}

	var channels []notify.Channel
	channels = append(channels, notify.NewEmailChannel(dispatcher, cfg.Email.FromAddr))
	if cfg.Notify.TelegramBotToken != "" {
		channels = append(channels, notify.NewTelegramChannel(cfg.Notify.TelegramBotToken))
	}
	if cfg.Notify.SMSBaseURL != "" {
		channels = append(channels, notify.NewSMSChannel(cfg.Notify.SMSBaseURL))
	}
	notifySvc := notify.NewService(quota, limits, channels...)

	slaChecker := notify.NewSLAChecker(notifyStore, accountStore, dispatcher, cfg.Email.FromAddr, log)
	slaSweeper := notify.NewSweeper(slaChecker, cfg.Notify.SLASweepCron, cfg.Notify.OperatorRecipient, log)

	trustAggregator := postgres.NewTrustAggregator(sqlx.NewDb(db, "postgres"))

	httpSvc := httpapi.NewHTTPService(cfg.HTTP.Addr, httpapi.Deps{
		Accounts:        accountsSvc,
		Providers:       providerStore,
		Offerings:       offeringsSvc,
		Agents:          agentsSvc,
		Contracts:       contractsSvc,
		ContractStore:   contractStore,
		Locks:           lockManager,
		Notify:          notifySvc,
		Audit:           auditStore,
		Log:             log,
		TrustAggregator: trustAggregator,
		ClockSkew:       cfg.Auth.ClockSkew,
		ReplayWindow:    cfg.Auth.ReplayWindow,
	})

	mgr := system.NewManager(log)
	mgr.Register(httpSvc)
	mgr.Register(dispatcher)
	mgr.Register(slaSweeper)
	return mgr
}

func emailAddr() string {
	if addr := os.Getenv("SMTP_ADDR"); addr != "" {
		return addr
	}
	return "localhost:25"
}

func smtpAuth() smtp.Auth {
	user := os.Getenv("SMTP_USERNAME")
	pass := os.Getenv("SMTP_PASSWORD")
	host := os.Getenv("SMTP_HOST")
	if user == "" || pass == "" || host == "" {
		return nil
	}
	return smtp.PlainAuth("", user, pass, host)
}

func runMigrate(args []string) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	fs.Parse(args)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := database.Open(ctx, cfg.Database.DSN, database.Options{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect to postgres: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := migrations.Apply(ctx, db); err != nil {
		fmt.Fprintf(os.Stderr, "apply migrations: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("migrations applied")
}

// runKeygen prints an ed25519 keypair, the identity scheme every
// account/agent/contract signature in this system is verified against:
// derived deterministically via coordcrypto.GenerateKeypair when -mnemonic
// is given, freshly random otherwise.
func runKeygen(args []string) {
	fs := flag.NewFlagSet("keygen", flag.ExitOnError)
	mnemonic := fs.String("mnemonic", "", "derive the keypair deterministically from this mnemonic phrase")
	fs.Parse(args)

	var (
		pub  ed25519.PublicKey
		priv ed25519.PrivateKey
		err  error
	)
	if *mnemonic != "" {
		pub, priv, err = coordcrypto.GenerateKeypair(*mnemonic)
	} else {
		pub, priv, err = ed25519.GenerateKey(rand.Reader)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "generate keypair: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("public_key:  %s\n", hex.EncodeToString(pub))
	fmt.Printf("private_key: %s\n", hex.EncodeToString(priv))
}
