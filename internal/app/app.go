// Package app assembles repositories and services from configuration. The
// HTTP server, the trigger worker and the maintain command share it.
package app

import (
	"github.com/jmoiron/sqlx"
	"github.com/mathemusician/church-volunteers/internal/config"
	"github.com/mathemusician/church-volunteers/internal/gateway"
	"github.com/mathemusician/church-volunteers/internal/repository"
	"github.com/mathemusician/church-volunteers/internal/service/instancing"
	"github.com/mathemusician/church-volunteers/internal/service/notify"
	"github.com/mathemusician/church-volunteers/internal/service/registry"
	"github.com/mathemusician/church-volunteers/internal/service/replies"
	"github.com/mathemusician/church-volunteers/internal/service/selfservice"
	"github.com/mathemusician/church-volunteers/internal/service/tokens"
	"go.uber.org/zap"
)

type Repos struct {
	Organizations repository.OrganizationsRepository
	Events        repository.EventsRepository
	Lists         repository.ListsRepository
	Signups       repository.SignupsRepository
	Messages      repository.MessagesRepository
	Replies       repository.RepliesRepository
	Tokens        repository.TokensRepository
	Reports       repository.CHMessagesRepository // nil when ClickHouse is not configured
}

// MySQLRepos binds every repository to MySQL; reports come from ClickHouse
// when ch is non-nil.
func MySQLRepos(db, ch *sqlx.DB) Repos {
	r := Repos{
		Organizations: repository.NewOrganizationsRepository(db),
		Events:        repository.NewEventsRepository(db),
		Lists:         repository.NewListsRepository(db),
		Signups:       repository.NewSignupsRepository(db),
		Messages:      repository.NewMessagesRepository(db),
		Replies:       repository.NewRepliesRepository(db),
		Tokens:        repository.NewTokensRepository(db),
	}
	if ch != nil {
		r.Reports = repository.NewCHMessagesRepository(ch)
	}
	return r
}

type Services struct {
	Repos Repos

	Generator   *instancing.Generator
	Registry    *registry.Registry
	Sender      *notify.Sender
	Dispatcher  *notify.Dispatcher
	Issuer      *tokens.Issuer
	Ingestor    *replies.Ingestor
	Inbox       *replies.Inbox
	SelfService *selfservice.Session
}

// NewGateway picks the outbound transport.
func NewGateway(cfg config.GatewayConfig, log *zap.Logger) gateway.Gateway {
	if cfg.DisableNet {
		return gateway.LogGateway{Log: log}
	}
	return gateway.NewHTTPGateway(gateway.Options{
		Name:            cfg.Name,
		BaseURL:         cfg.BaseURL,
		SendPath:        cfg.SendPath,
		APIKey:          cfg.APIKey,
		ReplyWebhookURL: cfg.ReplyHook,
		TimeoutMs:       cfg.TimeoutMs,
		FailThreshold:   cfg.Breaker.FailThreshold,
		OpenForMs:       cfg.Breaker.OpenForMs,
	})
}

func Build(cfg config.Config, r Repos, gw gateway.Gateway, log *zap.Logger) *Services {
	if log == nil {
		log = zap.NewNop()
	}

	gen := instancing.NewGenerator(r.Events, r.Lists, log.Named("instancing"))
	if cfg.Instancing.Horizon > 0 {
		gen.Horizon = cfg.Instancing.Horizon
	}
	if cfg.Instancing.SlugAttempts > 0 {
		gen.SlugAttempts = cfg.Instancing.SlugAttempts
	}

	reg := registry.New(r.Events, r.Lists, r.Signups, log.Named("registry"))
	if cfg.Instancing.SiblingWindow > 0 {
		reg.SiblingWindow = cfg.Instancing.SiblingWindow
	}

	sender := notify.NewSender(r.Messages, gw, log.Named("sender"))
	if cfg.Notify.DedupWindow > 0 {
		sender.DedupWindow = cfg.Notify.DedupWindow
	}

	issuer := tokens.NewIssuer(r.Tokens, cfg.Tokens.TTL, cfg.App.PublicBaseURL)

	disp := notify.NewDispatcher(r.Signups, r.Events, r.Messages, sender, issuer, notify.Templates{
		Reminder:     cfg.Notify.DefaultReminderTemplate,
		Confirmation: cfg.Notify.ConfirmationTemplate,
	}, log.Named("dispatcher"))
	disp.SendDelay = cfg.Notify.SendDelay
	disp.DedupWindow = sender.DedupWindow

	ing := replies.NewIngestor(r.Messages, r.Replies, r.Signups, sender, issuer, replies.Verifier{
		Secret:        cfg.Webhook.Secret,
		MaxAge:        cfg.Webhook.MaxAge,
		AllowUnsigned: cfg.App.Development(),
	}, log.Named("replies"))

	return &Services{
		Repos:       r,
		Generator:   gen,
		Registry:    reg,
		Sender:      sender,
		Dispatcher:  disp,
		Issuer:      issuer,
		Ingestor:    ing,
		Inbox:       replies.NewInbox(r.Replies),
		SelfService: selfservice.New(r.Tokens, r.Signups, r.Events, r.Lists, sender, log.Named("selfservice")),
	}
}
