package fastcgi

import (
	"testing"

	"golang.org/x/sys/unix"
)

// socketpair returns two connected, blocking AF_UNIX SOCK_STREAM fds for
// driving Handle against one end while the test plays client on the other.
// Handle needs a raw fd (spec.md §4.1), so net.Pipe() (which has no
// descriptor) can't stand in here.
func socketpair(t *testing.T) (server, client int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}
