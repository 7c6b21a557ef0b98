package main

import (
	"context"
	"time"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/charmbracelet/log"
	"github.com/techagentng/citizenchat/config"
	"github.com/techagentng/citizenchat/db"
	"github.com/techagentng/citizenchat/realtime"
	"github.com/techagentng/citizenchat/server"
	"github.com/techagentng/citizenchat/services"
)

func main() {
	conf, err := config.Load()
	if err != nil {
		log.Fatal("unable to load config", "err", err)
	}
	if conf.Debug {
		log.SetLevel(log.DebugLevel)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gormDB := db.GetDB(conf)
	defer gormDB.Close()

	hub := realtime.NewHub()
	var notifier services.Notifier = hub
	var limitStore ratelimit.Store
	if conf.RedisURL != "" {
		rdb, err := realtime.NewRedisClient(ctx, conf.RedisURL)
		if err != nil {
			log.Fatal("unable to connect to redis", "err", err)
		}
		defer rdb.Close()
		broadcaster := realtime.NewRedisBroadcaster(rdb, hub, realtime.DefaultChannel)
		go broadcaster.Run(ctx)
		notifier = broadcaster
		limitStore = ratelimit.RedisStore(&ratelimit.RedisOptions{
			RedisClient: rdb,
			Rate:        time.Second,
			Limit:       conf.RateLimitPerSecond,
		})
		log.Info("fanning realtime events out through redis", "channel", realtime.DefaultChannel)
	}

	convRepo := db.NewConversationRepo(gormDB)
	msgRepo := db.NewMessageRepo(gormDB)
	presenceRepo := db.NewPresenceRepo(gormDB)

	conversationService := services.NewConversationService(convRepo, conf, notifier)
	messageService := services.NewMessageService(convRepo, msgRepo, conf, notifier)
	presenceService := services.NewPresenceService(presenceRepo, conf, notifier)

	hub.Presence = presenceService
	go hub.Run(ctx)
	go presenceService.RunReaper(ctx)

	s := &server.Server{
		Config:              conf,
		DB:                  gormDB,
		ConversationService: conversationService,
		MessageService:      messageService,
		PresenceService:     presenceService,
		Hub:                 hub,
		RateLimitStore:      limitStore,
	}
	s.Start()
}
