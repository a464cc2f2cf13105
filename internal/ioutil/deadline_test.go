package ioutil

import (
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

// socketpair returns two connected fds, closed automatically at test end.
func socketpair(t *testing.T) (a, b int) {
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

func TestReadFullWriteAllRoundTrip(t *testing.T) {
	a, b := socketpair(t)
	want := []byte("hello, fastcgi")

	done := make(chan error, 1)
	go func() {
		_, err := WriteAll(a, want, time.Now().Add(time.Second))
		done <- err
	}()

	got := make([]byte, len(want))
	n, err := ReadFull(b, got, time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("ReadFull: %v", err)
	}
	if n != len(want) {
		t.Fatalf("ReadFull returned %d bytes, want %d", n, len(want))
	}
	if string(got) != string(want) {
		t.Fatalf("got %q, want %q", got, want)
	}
	if err := <-done; err != nil {
		t.Fatalf("WriteAll: %v", err)
	}
}

func TestReadFullZeroLength(t *testing.T) {
	a, _ := socketpair(t)
	n, err := ReadFull(a, nil, time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("ReadFull(nil) = %v, want nil error", err)
	}
	if n != 0 {
		t.Fatalf("ReadFull(nil) = %d bytes, want 0", n)
	}
}

func TestReadFullTimeout(t *testing.T) {
	a, _ := socketpair(t)
	buf := make([]byte, 4)
	_, err := ReadFull(a, buf, time.Now().Add(20*time.Millisecond))
	if err != ErrTimeout {
		t.Fatalf("ReadFull = %v, want ErrTimeout", err)
	}
}

func TestReadFullDeadlineAlreadyPast(t *testing.T) {
	a, _ := socketpair(t)
	buf := make([]byte, 4)
	_, err := ReadFull(a, buf, time.Now().Add(-time.Second))
	if err != ErrTimeout {
		t.Fatalf("ReadFull = %v, want ErrTimeout", err)
	}
}

func TestReadFullClosedPeer(t *testing.T) {
	a, b := socketpair(t)
	unix.Close(b)

	buf := make([]byte, 4)
	_, err := ReadFull(a, buf, time.Now().Add(time.Second))
	if err == nil {
		t.Fatal("expected an error reading from a closed peer")
	}
}

func TestWriteAllPartialThenComplete(t *testing.T) {
	a, b := socketpair(t)
	// Large enough to force more than one underlying write() on most
	// systems' default socket buffer sizes, exercising the retry loop.
	want := make([]byte, 1<<20)
	for i := range want {
		want[i] = byte(i)
	}

	readDone := make(chan []byte, 1)
	go func() {
		got := make([]byte, len(want))
		if _, err := ReadFull(b, got, time.Now().Add(5*time.Second)); err != nil {
			t.Errorf("ReadFull: %v", err)
		}
		readDone <- got
	}()

	if _, err := WriteAll(a, want, time.Now().Add(5*time.Second)); err != nil {
		t.Fatalf("WriteAll: %v", err)
	}

	got := <-readDone
	if string(got) != string(want) {
		t.Fatal("round-tripped bytes do not match")
	}
}

func TestTimeRemainingMsClampsPastDeadline(t *testing.T) {
	if got := timeRemainingMs(time.Now().Add(-time.Hour)); got != -1 {
		t.Fatalf("timeRemainingMs(past) = %d, want -1", got)
	}
}
