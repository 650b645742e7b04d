// cmd/rm.go

package main

import (
	"fmt"

	"AveStream/pkg/stream"

	"github.com/urfave/cli/v2"
)

func rmFlags() *cli.Command {
	return &cli.Command{
		Name:      "rm",
		Usage:     "remove streams",
		ArgsUsage: "STREAM ...",
		Action:    rm,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "kind",
				Usage: "kind of the stream keys given by name (default from $AVESTREAM_KIND)",
			},
		},
	}
}

func rm(c *cli.Context) error {
	if c.Args().Len() < 1 {
		return fmt.Errorf("STREAM is needed")
	}
	s, conf, err := openStore(c)
	if err != nil {
		return err
	}
	defer s.Close()
	var failed int
	for i := 0; i < c.Args().Len(); i++ {
		key, err := parseStream(c.Args().Get(i), conf.Kind)
		if err != nil {
			logger.Errorf("%s", err)
			failed++
			continue
		}
		n, err := stream.Remove(c.Context, s, key)
		if err != nil {
			logger.Errorf("remove %s: %s", key, err)
			failed++
			continue
		}
		if n == 0 {
			logger.Warnf("stream %s does not exist", key)
		} else {
			logger.Infof("removed %s: %d chunks", key, n)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d streams could not be removed", failed)
	}
	return nil
}
