package originaldst

import (
	"net"
	"testing"
)

func TestGetUnsupportedForNonTCPConn(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	_, err := Get(c1)
	if err != ErrUnsupported {
		t.Fatalf("got %v, want ErrUnsupported", err)
	}
}
