package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/imrishuroy/go-order-saga/internal/awsx"
	"github.com/imrishuroy/go-order-saga/internal/catalog"
	"github.com/imrishuroy/go-order-saga/internal/metrics"
	"github.com/imrishuroy/go-order-saga/internal/orders"
	"github.com/imrishuroy/go-order-saga/internal/payment"
	"github.com/imrishuroy/go-order-saga/internal/queue"
	"github.com/imrishuroy/go-order-saga/internal/workflow"
)

func main() {
	ctx := context.Background()

	clients, err := awsx.NewAWSClients(ctx)
	if err != nil {
		log.Fatalf("failed to init aws clients: %v", err)
	}

	orderStore := orders.NewStore(clients.DynamoDB, os.Getenv("ORDERS_TABLE"))
	catalogStore := catalog.NewStore(clients.DynamoDB, os.Getenv("PRODUCTS_TABLE"))
	jobs := queue.New(clients.SQS, clients.DynamoDB, os.Getenv("ORDERS_QUEUE_URL"), os.Getenv("JOBS_TABLE"))

	gateway := payment.NewSimulatedGateway(envFloat("PAYMENT_FAILURE_RATE", 0.5))
	gateway.MaxLatency = 500 * time.Millisecond

	engine := workflow.NewEngine(orderStore, catalogStore, jobs, gateway)
	engine.SetOutcomePublisher(metrics.NewPublisher(clients.CloudWatch))

	// if RUN_LOCAL=true, poll the queue directly instead of waiting on Lambda events.
	if os.Getenv("RUN_LOCAL") == "true" {
		workers := envInt("WORKER_COUNT", 4)
		engine.Start(ctx, workers)

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		log.Printf("[worker] shutting down")
		engine.Stop()
		return
	}

	lambda.Start(func(ctx context.Context, event events.SQSEvent) error {
		for _, rec := range event.Records {
			var msg queue.Message
			if err := json.Unmarshal([]byte(rec.Body), &msg); err != nil {
				log.Printf("[worker] invalid message body: %v, body: %s", err, rec.Body)
				continue
			}
			if err := engine.HandleMessage(ctx, msg); err != nil {
				return err
			}
		}
		return nil
	})
}

func envFloat(name string, fallback float64) float64 {
	if v := os.Getenv(name); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envInt(name string, fallback int) int {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
