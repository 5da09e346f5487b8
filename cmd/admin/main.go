package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"

	"github.com/dmitrijs2005/authkeeper/internal/admin"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
)

func main() {
	ctx := context.Background()
	args := os.Args[1:]

	cfg, err := config.LoadConfig(args)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	opts, err := admin.ParseOptions(args)
	if err != nil {
		log.Fatalf("%v", err)
	}

	accounts, closeFn, err := server.OpenAccounts(ctx, cfg, logging.NewJSONLogger(os.Stderr, cfg.LogLevel))
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer closeFn()

	u, err := admin.CreateIdentity(ctx, accounts, opts, bufio.NewReader(os.Stdin), os.Stdout)
	if err != nil {
		log.Printf("create identity: %v", err)
		return
	}
	fmt.Printf("created %s (%s)\n", u.ID, u.Email)
}
