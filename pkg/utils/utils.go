// pkg/utils/utils.go

package utils

import (
	"net/url"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// RemovePassword hides the password of a store URL, for logging.
func RemovePassword(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.User == nil {
		return uri
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "****")
	}
	return u.String()
}

// NewByteProgressBar init a progress bar counting bytes, the title will appears at
// the head of the progress bar. A total of 0 means the size is unknown.
func NewByteProgressBar(title string, total int64, quiet bool) (*mpb.Progress, *mpb.Bar) {
	var progress *mpb.Progress
	if !quiet && isatty.IsTerminal(os.Stderr.Fd()) {
		progress = mpb.New(mpb.WithWidth(64), mpb.WithOutput(os.Stderr))
	} else {
		progress = mpb.New(mpb.WithWidth(64), mpb.WithOutput(nil))
	}
	bar := progress.AddBar(total,
		mpb.PrependDecorators(
			decor.Name(title, decor.WCSyncWidth),
			decor.CountersKibiByte("% .1f / % .1f"),
		),
		mpb.AppendDecorators(
			decor.OnComplete(decor.AverageSpeed(decor.SizeB1024(0), "% .1f", decor.WC{W: 12}), "done"),
		),
	)
	return progress, bar
}
