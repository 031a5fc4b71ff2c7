// Package main is a terminal viewer: it checks access to an event, obtains a playback capability,
// reports watch time, and follows the event chat until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aura-webinar/livecore/config"
	"github.com/aura-webinar/livecore/internal/apiclient"
	"github.com/aura-webinar/livecore/internal/chatsync"
	"github.com/aura-webinar/livecore/internal/entitlement"
	"github.com/aura-webinar/livecore/internal/models"
	"github.com/aura-webinar/livecore/internal/reminder"
	"github.com/aura-webinar/livecore/internal/streaming"
	"github.com/aura-webinar/livecore/internal/viewer"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	apiURL := flag.String("api", cfg.Client.APIBaseURL, "backend base URL")
	email := flag.String("email", os.Getenv("VIEWER_EMAIL"), "login email")
	password := flag.String("password", os.Getenv("VIEWER_PASSWORD"), "login password")
	eventFlag := flag.String("event", "", "event id to join")
	say := flag.String("say", "", "send this chat message after joining")
	remind := flag.Bool("remind", true, "schedule a local reminder when the event has not started")
	flag.Parse()

	eventID, err := uuid.Parse(*eventFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, "usage: viewer -event <uuid> -email <email> -password <password>")
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := apiclient.New(*apiURL, &http.Client{Timeout: cfg.Client.RequestTimeout}, logger)

	var identity *entitlement.Identity
	if *email != "" {
		login, err := client.Login(ctx, *email, *password)
		if err != nil {
			logger.Fatal("login", zap.Error(err))
		}
		identity = &entitlement.Identity{UserID: login.User.ID}
		logger.Info("logged in", zap.String("username", login.User.Username))
	}

	event, err := client.GetEvent(ctx, eventID)
	if err != nil {
		logger.Fatal("load event", zap.Error(err))
	}
	store := entitlement.NewStore(client)
	store.PutEvent(event)

	// Access
	resolver := entitlement.NewResolver(store, logger)
	decision := resolver.CheckAccess(ctx, &event, identity)
	if !decision.Granted {
		logger.Fatal("access denied",
			zap.Error(decision.Error()),
			zap.String("access_type", string(decision.AccessType)),
			zap.String("remedy", string(decision.Remedy)))
	}
	logger.Info("access granted", zap.String("access_type", string(decision.AccessType)))

	// Reminder
	if *remind && event.StartsAt.After(time.Now()) {
		notifier := reminder.NewLocalNotifier(func(job models.ReminderJob) {
			logger.Info("event starting soon", zap.String("title", job.Title), zap.Time("starts_at", job.StartsAt))
		})
		defer notifier.Stop()
		job, err := reminder.NewScheduler(notifier, logger).Schedule(ctx, event.ID, event.Title, event.StartsAt, cfg.Client.ReminderLead)
		if err != nil {
			logger.Warn("schedule reminder", zap.Error(err))
		} else if job.Booked {
			logger.Info("reminder scheduled", zap.Time("fire_at", job.FireAt))
		}
	}

	// Playback capability and watch tracking need a ticket
	ticket := decision.Ticket
	if ticket == nil && identity != nil {
		if list, err := store.TicketsFor(ctx, event.ID, identity.UserID); err == nil {
			ticket = entitlement.MatchTicket(list, &event, identity.UserID, time.Now())
		}
	}
	var tracker *viewer.Tracker
	if ticket != nil {
		issuer := streaming.NewIssuer(client, streaming.SnapshotReplaySource{Events: store, TTL: streaming.DefaultReplayTTL}, logger)
		access, err := issuer.RequestLink(ctx, *ticket)
		if err != nil {
			logger.Fatal("request stream", zap.Error(err))
		}
		logger.Info("stream ready",
			zap.String("source", string(access.Source)),
			zap.String("room_id", access.RoomID),
			zap.Any("urls", access.URLs),
			zap.Time("expires_at", access.ExpiresAt))

		tracker = viewer.NewTracker(client, cfg.Client.WatchReportInterval, logger)
		if err := tracker.Join(ctx, ticket.ID, event.ID); err != nil {
			logger.Fatal("join session", zap.Error(err))
		}
	} else {
		logger.Info("no ticket for event, chat only")
	}

	// Chat
	engine := chatsync.NewEngine(event.ID, client, chatsync.Config{
		PollInterval:   cfg.Client.ChatPollInterval,
		HistoryLimit:   cfg.Client.ChatHistoryLimit,
		MaxLength:      cfg.Client.MaxMessageLength,
		ForbiddenWords: cfg.Client.ForbiddenWords,
	}, logger)
	feed := engine.Subscribe()
	if err := engine.Join(ctx); err != nil {
		logger.Fatal("join chat", zap.Error(err))
	}
	go func() {
		for batch := range feed {
			for _, m := range batch {
				printMessage(m)
			}
		}
	}()
	if *say != "" {
		if _, err := engine.SendMessage(ctx, *say, models.MessageTypeText, nil); err != nil {
			logger.Warn("send message", zap.Error(err))
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := engine.Leave(shutdownCtx); err != nil {
		logger.Warn("leave chat", zap.Error(err))
	}
	if tracker != nil {
		if err := tracker.Leave(shutdownCtx); err != nil {
			logger.Warn("leave session", zap.Error(err))
		}
		logger.Info("session ended", zap.Duration("watch_time", tracker.WatchTime()))
	}
	cancel()
}

func printMessage(m models.ChatMessage) {
	fmt.Printf("[%s] %s: %s\n", m.CreatedAt.Local().Format("15:04:05"), m.Username, m.Body)
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
