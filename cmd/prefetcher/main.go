package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "prefetcher",
		Usage: "Prefetch record batches from a Kafka partition ahead of consumption",
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Run the prefetching consumer",
				Flags:  runFlags(),
				Action: run,
			},
			{
				Name:   "produce",
				Usage:  "Seed a topic partition with random records",
				Flags:  produceFlags(),
				Action: produce,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
