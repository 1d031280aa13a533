package main

import (
	"flag"
	"log/slog"
	"os"
	"strings"

	"github.com/OliverSchlueter/goutils/sloki"
	"github.com/wanderplan/mailer/internal/config"
	"github.com/wanderplan/mailer/internal/smtp"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to config.toml (optional)")
		to         = flag.String("to", "", "recipient address(es), comma-separated")
		subject    = flag.String("subject", "", "message subject")
		text       = flag.String("text", "", "plain-text body")
		html       = flag.String("html", "", "HTML body")
	)
	flag.Parse()

	lokiService := sloki.NewService(sloki.Configuration{
		URL:          "http://localhost:3100/loki/api/v1/push",
		Service:      "mailer",
		ConsoleLevel: slog.LevelDebug,
		LokiLevel:    slog.LevelInfo,
		EnableLoki:   false,
	})
	slog.SetDefault(slog.New(lokiService))

	if *to == "" {
		slog.Error("No recipient given, use -to")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", sloki.WrapError(err))
		os.Exit(1)
	}

	if cfg.DKIMKeyFile != "" {
		if err := smtp.LoadDKIMPrivateKey(cfg.DKIMKeyFile); err != nil {
			slog.Error("Failed to load DKIM private key", sloki.WrapError(err))
			os.Exit(1)
		}
	}

	err = smtp.Send(cfg.SendConfig(), smtp.Mail{
		From:     cfg.From,
		FromName: cfg.FromName,
		To:       strings.Split(*to, ","),
		Subject:  *subject,
		TextBody: *text,
		HTMLBody: *html,
	})
	if err != nil {
		slog.Error("Failed to send email", sloki.WrapError(err))
		os.Exit(1)
	}
}
