package ports

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/prometheus/procfs"
)

// tcpListen is the kernel's TCP_LISTEN state as shown in /proc/net/tcp.
const tcpListen = 0x0A

// SocketTableProber reads the kernel's socket tables under /proc/net. A port is
// in use when a TCP socket listens on it or a UDP socket is bound to it.
type SocketTableProber struct {
	fs procfs.FS
}

func NewSocketTableProber() (*SocketTableProber, error) {
	procFS, err := procfs.NewDefaultFS()
	if err != nil {
		return nil, fmt.Errorf("failed to open procfs: %w", err)
	}
	return &SocketTableProber{fs: procFS}, nil
}

func (p *SocketTableProber) InUse(port int) (bool, error) {
	want := uint64(port)

	for _, read := range []func() (procfs.NetTCP, error){p.fs.NetTCP, p.fs.NetTCP6} {
		sockets, err := read()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return false, fmt.Errorf("failed to read tcp socket table: %w", err)
		}
		for _, s := range sockets {
			if s.LocalPort == want && s.St == tcpListen {
				return true, nil
			}
		}
	}

	for _, read := range []func() (procfs.NetUDP, error){p.fs.NetUDP, p.fs.NetUDP6} {
		sockets, err := read()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return false, fmt.Errorf("failed to read udp socket table: %w", err)
		}
		for _, s := range sockets {
			if s.LocalPort == want {
				return true, nil
			}
		}
	}

	return false, nil
}
