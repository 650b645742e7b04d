// pkg/utils/usage.go

package utils

import (
	"fmt"
	"syscall"
	"time"
)

var started = time.Now()

var logger = GetLogger("avestream")

// Clock returns the time elapsed since the process started.
func Clock() time.Duration {
	return time.Since(started)
}

// Usage is the resources the process consumed so far.
type Usage struct {
	Elapsed time.Duration
	User    time.Duration
	System  time.Duration
}

func tvDuration(tv syscall.Timeval) time.Duration {
	return time.Duration(tv.Sec)*time.Second + time.Duration(tv.Usec)*time.Microsecond
}

func GetUsage() Usage {
	var ru syscall.Rusage
	if err := syscall.Getrusage(syscall.RUSAGE_SELF, &ru); err != nil {
		logger.Debugf("getrusage: %s", err)
	}
	return Usage{Elapsed: Clock(), User: tvDuration(ru.Utime), System: tvDuration(ru.Stime)}
}

// Sub returns the resources consumed since u0.
func (u Usage) Sub(u0 Usage) Usage {
	return Usage{Elapsed: u.Elapsed - u0.Elapsed, User: u.User - u0.User, System: u.System - u0.System}
}

func (u Usage) String() string {
	return fmt.Sprintf("%.3fs (user %.3fs, sys %.3fs)", u.Elapsed.Seconds(), u.User.Seconds(), u.System.Seconds())
}
