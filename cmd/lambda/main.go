// Command lambda serves the todo API behind API Gateway (REST, proxy
// integration).
package main

import (
	"context"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"go.uber.org/zap"

	"todo-backend/internal/app"
	"todo-backend/internal/config"
	"todo-backend/pkg/logger"
)

func main() {
	log := logger.NewLogger()
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config", zap.Error(err))
	}

	// 冷启动时初始化一次，之后的调用复用同一组客户端
	a, err := app.New(context.Background(), cfg, log)
	if err != nil {
		log.Fatal("Failed to init app", zap.Error(err))
	}
	defer a.Close()

	adapter := ginadapter.New(a.Router())
	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
