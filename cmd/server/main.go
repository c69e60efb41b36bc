package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"

	"github.com/dmitrijs2005/classfiles/internal/server"
	"github.com/dmitrijs2005/classfiles/internal/server/config"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	gin.SetMode(gin.ReleaseMode)

	app, err := server.NewApp(ctx, cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}

	app.Run(ctx)

}
