package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/config"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/logger"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/notify"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// notifier consumes confirmed orders from Kafka and emails the client.
func main() {
	config.LoadDotEnv()
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.IsProduction(), cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	log.Info("order notifier starting...")
	var wg sync.WaitGroup

	var mailer notify.Mailer
	if cfg.SendGridAPIKey != "" {
		mailer, err = notify.NewSendGridMailer(cfg.SendGridAPIKey, cfg.MailFrom, cfg.MailFromName, log.Named("sendgrid"))
		if err != nil {
			log.Fatal("failed to create sendgrid mailer", zap.Error(err))
		}
	} else {
		log.Warn("SENDGRID_API_KEY not set, confirmation emails are only logged")
		mailer = notify.NewLogMailer(log.Named("mail"))
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPass})
	defer redisClient.Close()
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		pingCancel()
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	pingCancel()

	consumer := notify.NewConsumer(mailer, notify.NewRedisDeduper(redisClient, 0), log.Named("consumer"), cfg.KafkaBrokers...)
	consumerCtx, consumerCancel := context.WithCancel(context.Background())
	wg.Add(1)
	go func() {
		defer wg.Done()
		consumer.Run(consumerCtx)
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down order notifier...")
	consumerCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	doneChan := make(chan struct{})
	go func() {
		wg.Wait()
		close(doneChan)
	}()

	select {
	case <-doneChan:
		log.Info("consumer stopped cleanly")
	case <-shutdownCtx.Done():
		log.Warn("consumer didn't stop in time")
	}

	consumer.Close()
	log.Info("order notifier stopped")
}
