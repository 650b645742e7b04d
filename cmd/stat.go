// cmd/stat.go

package main

import (
	"encoding/json"
	"fmt"

	"AveStream/pkg/stream"

	"github.com/urfave/cli/v2"
)

func printJson(v interface{}) {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		logger.Fatalf("json: %s", err)
	}
	fmt.Println(string(output))
}

func stat(c *cli.Context) error {
	if c.Args().Len() < 1 {
		return fmt.Errorf("STREAM is needed")
	}
	s, conf, err := openStore(c)
	if err != nil {
		return err
	}
	defer s.Close()
	for i := 0; i < c.Args().Len(); i++ {
		key, err := parseStream(c.Args().Get(i), conf.Kind)
		if err != nil {
			return err
		}
		tx, err := s.Begin(c.Context)
		if err != nil {
			return err
		}
		info, err := stream.Stat(c.Context, tx, key)
		if rerr := tx.Rollback(c.Context); rerr != nil {
			logger.Debugf("rollback stat of %s: %s", key, rerr)
		}
		if err != nil {
			return err
		}
		if !c.Bool("chunks") {
			info.Chunks = nil
		}
		printJson(info)
	}
	return nil
}

func statFlags() *cli.Command {
	return &cli.Command{
		Name:      "stat",
		Usage:     "show length and chunks of streams",
		ArgsUsage: "STREAM ...",
		Action:    stat,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "kind",
				Usage: "kind of the stream keys given by name (default from $AVESTREAM_KIND)",
			},
			&cli.BoolFlag{
				Name:    "chunks",
				Aliases: []string{"c"},
				Usage:   "list every chunk with its size",
			},
		},
	}
}
