// cmd/put.go

package main

import (
	"fmt"
	"io"
	"os"

	"AveStream/pkg/stream"
	"AveStream/pkg/utils"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
)

func putFlags() *cli.Command {
	return &cli.Command{
		Name:      "put",
		Usage:     "store a file as a stream, replacing any previous content",
		ArgsUsage: "FILE [STREAM]",
		Description: `FILE is read from stdin when it is "-". Without STREAM a random name is
generated and printed.`,
		Action: put,
		Flags:  streamFlags(),
	}
}

func put(c *cli.Context) error {
	if c.Args().Len() < 1 {
		return fmt.Errorf("FILE is needed")
	}
	path := c.Args().Get(0)
	var src io.Reader = os.Stdin
	var size int64
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		if fi, err := f.Stat(); err == nil {
			size = fi.Size()
		}
		src = f
	}

	s, conf, err := openStore(c)
	if err != nil {
		return err
	}
	defer s.Close()
	name := c.Args().Get(1)
	if name == "" {
		name = uuid.New().String()
	}
	key, err := parseStream(name, conf.Kind)
	if err != nil {
		return err
	}

	chunkSize := c.Int("chunk-size")
	w, err := stream.NewWriter(c.Context, s, key, stream.WithChunkSize(chunkSize))
	if err != nil {
		return err
	}
	progress, bar := utils.NewByteProgressBar("put "+name+":", size, c.Bool("quiet"))
	start := utils.GetUsage()
	n, err := stream.Copy(w, bar.ProxyReader(utils.LimitReader(src, bwlimit(c))), chunkSize)
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		bar.Abort(false)
		progress.Wait()
		return fmt.Errorf("put %s: %s", key, err)
	}
	bar.SetTotal(-1, true)
	progress.Wait()
	logger.Debugf("put %d bytes in %s", n, utils.GetUsage().Sub(start))
	fmt.Println(key)
	return nil
}
