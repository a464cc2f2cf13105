// Package ioutil implements deadline-aware byte I/O against a raw file
// descriptor (spec.md §4.1, "C1"): read_exact/write_all looped against a
// readiness-polled descriptor until the requested byte count is satisfied
// or the absolute deadline expires.
//
// Grounded on original_source/mtfcgi.cpp's is_fd_ready_/read_data_/
// write_data_, reimplemented over golang.org/x/sys/unix.Poll since the
// teacher repo (gaxiaowei-fast-php) only ever drove net.Conn and never
// touched a bare fd.
package ioutil

import (
	"errors"
	"time"

	"golang.org/x/sys/unix"
)

var (
	// ErrTimeout is returned when the deadline elapses before the
	// requested transfer completes.
	ErrTimeout = errors.New("ioutil: i/o timeout")

	// ErrClosed is returned when poll reports the descriptor hung up or
	// errored before any transfer attempt could run.
	ErrClosed = errors.New("ioutil: descriptor closed or errored")

	// ErrReadZero is returned when a read() call returns 0 or a negative
	// count without an OS-level error (spec.md "READ_ERROR").
	ErrReadZero = errors.New("ioutil: read returned no data")

	// ErrWriteZero is returned when a write() call returns 0 or a
	// negative count without an OS-level error (spec.md "WRITE_ERROR").
	ErrWriteZero = errors.New("ioutil: write accepted no data")
)

// timeRemainingMs returns the whole milliseconds remaining until deadline,
// clamped so that anything already past due is reported as exactly -1 (the
// "negative means timeout" sentinel spec.md §4.1 asks for), never 0 masking
// a negative duration.
func timeRemainingMs(deadline time.Time) int {
	remaining := time.Until(deadline)
	if remaining < 0 {
		return -1
	}
	ms := remaining.Milliseconds()
	if ms > int64(^uint32(0)>>1) {
		ms = int64(^uint32(0) >> 1)
	}
	return int(ms)
}

// waitReady polls fd for the requested events (POLLIN or POLLOUT), always
// also watching POLLERR/POLLHUP, until deadline. EINTR is retried without
// consuming the deadline budget beyond the recomputed remaining time.
func waitReady(fd int, events int16, deadline time.Time) error {
	pfd := []unix.PollFd{{Fd: int32(fd), Events: events | unix.POLLERR | unix.POLLHUP}}

	for {
		timeoutMs := timeRemainingMs(deadline)
		if timeoutMs < 0 {
			return ErrTimeout
		}

		n, err := unix.Poll(pfd, timeoutMs)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return err
		}
		if n == 0 {
			return ErrTimeout
		}
		if pfd[0].Revents&(unix.POLLERR|unix.POLLHUP) != 0 && pfd[0].Revents&events == 0 {
			return ErrClosed
		}
		return nil
	}
}

// ReadFull reads exactly len(buf) bytes from fd, blocking (via readiness
// poll) until satisfied or deadline expires. Returns the number of bytes
// transferred (== len(buf) on success); otherwise the count so far and
// ErrTimeout, ErrClosed, ErrReadZero or the OS error.
func ReadFull(fd int, buf []byte, deadline time.Time) (int, error) {
	total := 0
	for total < len(buf) {
		if err := waitReady(fd, unix.POLLIN, deadline); err != nil {
			return total, err
		}
		n, err := unix.Read(fd, buf[total:])
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return total, err
		}
		if n <= 0 {
			return total, ErrReadZero
		}
		total += n
	}
	return total, nil
}

// WriteAll writes exactly len(buf) bytes to fd, blocking (via readiness
// poll) until satisfied or deadline expires. Same return convention as
// ReadFull.
func WriteAll(fd int, buf []byte, deadline time.Time) (int, error) {
	total := 0
	for total < len(buf) {
		if err := waitReady(fd, unix.POLLOUT, deadline); err != nil {
			return total, err
		}
		n, err := unix.Write(fd, buf[total:])
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return total, err
		}
		if n <= 0 {
			return total, ErrWriteZero
		}
		total += n
	}
	return total, nil
}
