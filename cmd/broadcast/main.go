package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"marketplace-chat/config"
	"marketplace-chat/internal/observability"
	"marketplace-chat/internal/push"
	"marketplace-chat/internal/repository"
	"marketplace-chat/pkg/database"
	"marketplace-chat/pkg/logger"
)

const usage = `
Marketplace Chat - Push Broadcast Tool

Sends one push notification to every registered device.

Usage:
  broadcast -title "..." -body "..." [-exclude 1,2,3] [-data key=value,...]
`

func main() {
	title := flag.String("title", "", "Notification title")
	body := flag.String("body", "", "Notification body")
	exclude := flag.String("exclude", "", "Comma separated user ids to skip")
	data := flag.String("data", "", "Comma separated key=value pairs sent as data")

	flag.Usage = func() {
		fmt.Print(usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if *title == "" || *body == "" {
		flag.Usage()
		os.Exit(1)
	}

	excluded, err := parseIDs(*exclude)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}

	cfg := config.LoadConfig()
	l := logger.New(cfg.App.LogMode)
	defer l.Sync()

	if !cfg.Firebase.Enabled() {
		log.Fatal("❌ Firebase credentials are not configured")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := database.Connect(cfg.Database, false)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	defer database.Close(db)

	client, err := push.NewFirebaseMessenger(ctx, cfg.Firebase)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}

	dispatcher := push.NewDispatcher(client, repository.NewUserTokenRepository(db), l, observability.NewMetrics())
	result := dispatcher.SendToAllUsers(ctx, push.Message{
		Title: *title,
		Body:  *body,
		Data:  parseData(*data),
	}, excluded)

	log.Printf("📊 Broadcast: %d delivered, %d failed, %d stale tokens removed",
		result.SuccessCount, result.FailureCount, len(result.InvalidTokens))
}

func parseIDs(raw string) ([]uint, error) {
	var ids []uint
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseUint(part, 10, 64)
		if err != nil || id == 0 {
			return nil, fmt.Errorf("invalid user id %q", part)
		}
		ids = append(ids, uint(id))
	}
	return ids, nil
}

func parseData(raw string) map[string]interface{} {
	data := map[string]interface{}{}
	for _, pair := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(pair, "=")
		if key = strings.TrimSpace(key); ok && key != "" {
			data[key] = strings.TrimSpace(value)
		}
	}
	return data
}
