// cmd/get.go

package main

import (
	"fmt"
	"io"
	"os"

	"AveStream/pkg/stream"
	"AveStream/pkg/utils"

	"github.com/urfave/cli/v2"
)

func getFlags() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "read a stream into a file",
		ArgsUsage: "STREAM [FILE]",
		Description: `The stream goes to stdout when FILE is missing or "-". A stream that was
never written is an error.`,
		Action: get,
		Flags:  streamFlags(),
	}
}

func get(c *cli.Context) error {
	if c.Args().Len() < 1 {
		return fmt.Errorf("STREAM is needed")
	}
	s, conf, err := openStore(c)
	if err != nil {
		return err
	}
	defer s.Close()
	key, err := parseStream(c.Args().Get(0), conf.Kind)
	if err != nil {
		return err
	}

	info, err := stream.Stat(c.Context, s, key)
	if err != nil {
		return err
	}
	if len(info.Chunks) == 0 {
		return fmt.Errorf("stream %s does not exist", key)
	}

	var dst io.Writer = os.Stdout
	if path := c.Args().Get(1); path != "" && path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		dst = f
	}

	chunkSize := c.Int("chunk-size")
	r, err := stream.NewReader(c.Context, s, key, stream.WithChunkSize(chunkSize))
	if err != nil {
		return err
	}
	defer r.Close()
	progress, bar := utils.NewByteProgressBar("get "+c.Args().Get(0)+":", info.Length, c.Bool("quiet"))
	start := utils.GetUsage()
	n, err := stream.Copy(utils.LimitWriter(dst, bwlimit(c)), bar.ProxyReader(r), chunkSize)
	if err != nil {
		bar.Abort(false)
		progress.Wait()
		return fmt.Errorf("get %s: %s", key, err)
	}
	bar.SetTotal(-1, true)
	progress.Wait()
	if n != info.Length {
		return fmt.Errorf("get %s: got %d bytes, expected %d (changed while reading?)", key, n, info.Length)
	}
	logger.Debugf("got %d bytes in %s", n, utils.GetUsage().Sub(start))
	return nil
}
