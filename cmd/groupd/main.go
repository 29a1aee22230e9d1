package main

import (
	"context"
	"log"
	"os"

	"github.com/nymstr/nymstr-groupd/internal/groupd"
	"github.com/nymstr/nymstr-groupd/internal/groupd/config"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()

	app, err := groupd.NewApp(ctx, cfg)
	if err != nil {
		log.Printf("%v", err)
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil {
		os.Exit(1)
	}
}
