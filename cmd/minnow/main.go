// Command minnow runs a minimal two-host demo of the netstack package: a
// client and a server Stack, bridged over an in-memory Ethernet segment,
// exchange one TCP connection's worth of data. It exists to give
// netstack.Stack somewhere to be constructed outside of tests, wiring its
// one package's entry point by hand with stdlib flag rather than a config
// framework.
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/tinyrange/minnow/internal/netstack"
	"github.com/tinyrange/minnow/internal/pcap"
	"github.com/tinyrange/minnow/internal/wire"
)

// bridge simulates the Ethernet segment between two Stacks. Frames must not
// be delivered synchronously from within OnTransmit: that callback fires
// while the sending Stack's mutex is held, and a reply generated by
// DeliverFrame on the other side would try to re-enter it. A buffered
// channel drained by a dedicated goroutine keeps delivery one level removed
// from transmission.
func bridge(client, server *netstack.Stack) {
	toServer := make(chan []byte, 256)
	toClient := make(chan []byte, 256)

	client.OnTransmit = func(ifaceIdx int, frame []byte) {
		toServer <- append([]byte(nil), frame...)
	}
	server.OnTransmit = func(ifaceIdx int, frame []byte) {
		toClient <- append([]byte(nil), frame...)
	}

	go func() {
		for {
			select {
			case f := <-toServer:
				server.DeliverFrame(0, f)
			case f := <-toClient:
				client.DeliverFrame(0, f)
			}
		}
	}()
}

func run() error {
	message := flag.String("message", "hello from minnow\n", "payload the client sends to the server")
	pcapPath := flag.String("pcap", "", "if set, write every exchanged frame to this libpcap file")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	var pcapW *pcap.Writer
	if *pcapPath != "" {
		f, err := os.Create(*pcapPath)
		if err != nil {
			return fmt.Errorf("create pcap file: %w", err)
		}
		defer f.Close()
		pcapW = pcap.NewWriter(f)
		if err := pcapW.WriteFileHeader(65535, pcap.LinkTypeEthernet); err != nil {
			return fmt.Errorf("write pcap header: %w", err)
		}
	}

	clientIP := [4]byte{10, 0, 0, 1}
	serverIP := [4]byte{10, 0, 0, 2}

	client := netstack.New(netstack.Config{Log: log.With("side", "client"), PCAPWriter: pcapW})
	idx := client.AddInterface("eth0", wire.MACAddr{0x02, 0, 0, 0, 0, 1}, clientIP)
	client.AddRoute([4]byte{10, 0, 0, 0}, 24, nil, idx)

	server := netstack.New(netstack.Config{Log: log.With("side", "server"), PCAPWriter: pcapW})
	idx = server.AddInterface("eth0", wire.MACAddr{0x02, 0, 0, 0, 0, 2}, serverIP)
	server.AddRoute([4]byte{10, 0, 0, 0}, 24, nil, idx)

	bridge(client, server)

	lst, err := server.ListenTCP([4]byte{}, 7)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	acceptErr := make(chan error, 1)
	go func() {
		conn, err := lst.Accept()
		if err != nil {
			acceptErr <- err
			return
		}
		buf := make([]byte, 4096)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				os.Stdout.Write(buf[:n])
			}
			if err == io.EOF {
				break
			}
			if err != nil {
				acceptErr <- err
				return
			}
		}
		acceptErr <- conn.Close()
	}()

	conn, err := client.DialTCP(clientIP, 0, serverIP, 7)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	if _, err := conn.Write([]byte(*message)); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := conn.Close(); err != nil {
		return fmt.Errorf("close: %w", err)
	}

	select {
	case err := <-acceptErr:
		if err != nil {
			return fmt.Errorf("server side: %w", err)
		}
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timed out waiting for server to finish")
	}
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "minnow: %v\n", err)
		os.Exit(1)
	}
}
