package main

import (
	"fmt"
	"os"

	"tripplanner/internal/cli"
	"tripplanner/internal/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	config.LoadDotEnv()
	cfg, err := config.Load("")
	if err != nil {
		return err
	}
	app, err := cli.NewApp(cfg)
	if err != nil {
		return err
	}
	return cli.NewRootCmd(app).Execute()
}
