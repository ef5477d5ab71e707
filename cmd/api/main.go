package main

import (
	"context"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/imrishuroy/go-order-saga/internal/awsx"
	"github.com/imrishuroy/go-order-saga/internal/catalog"
	"github.com/imrishuroy/go-order-saga/internal/handlers"
	"github.com/imrishuroy/go-order-saga/internal/idempotency"
	"github.com/imrishuroy/go-order-saga/internal/metrics"
	"github.com/imrishuroy/go-order-saga/internal/orders"
	"github.com/imrishuroy/go-order-saga/internal/queue"
)

func main() {
	ctx := context.Background()

	clients, err := awsx.NewAWSClients(ctx)
	if err != nil {
		log.Fatalf("failed to init aws clients: %v", err)
	}

	orderStore := orders.NewStore(clients.DynamoDB, os.Getenv("ORDERS_TABLE"))
	catalogStore := catalog.NewStore(clients.DynamoDB, os.Getenv("PRODUCTS_TABLE"))
	idempStore := idempotency.NewStore(clients.DynamoDB, os.Getenv("IDEMPOTENCY_TABLE"))
	jobs := queue.New(clients.SQS, clients.DynamoDB, os.Getenv("ORDERS_QUEUE_URL"), os.Getenv("JOBS_TABLE"))

	if err := catalogStore.SeedIfEmpty(ctx); err != nil {
		log.Fatalf("failed to seed catalog: %v", err)
	}

	r := handlers.NewRouter(handlers.HandlerConfig{
		OrderStore:       orderStore,
		CatalogStore:     catalogStore,
		IdempotencyStore: idempStore,
		Jobs:             jobs,
		Metrics:          metrics.NewService(jobs, orderStore, catalogStore, idempStore),
	})

	// if environment variable RUN_LOCAL is set to "true", run local HTTP server for development.
	if os.Getenv("RUN_LOCAL") == "true" {
		addr := ":8080"
		log.Printf("[api] running local server on %s", addr)
		if err := r.Run(addr); err != nil {
			log.Fatalf("failed to run local server: %v", err)
		}
		return
	}

	// lambda adapter
	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (interface{}, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
