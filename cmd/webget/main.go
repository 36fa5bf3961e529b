// Command webget fetches one path from one host over a plain TCP
// connection and writes the HTTP response to stdout. It dials with the
// real OS network stack rather than netstack.Stack, giving the rest of
// this module a known-good baseline to compare interop behavior against.
package main

import (
	"fmt"
	"io"
	"net"
	"os"
)

func getURL(host, path string) error {
	conn, err := net.Dial("tcp", net.JoinHostPort(host, "http"))
	if err != nil {
		return fmt.Errorf("connect to %s: %w", host, err)
	}
	defer conn.Close()

	req := "GET " + path + " HTTP/1.1\r\n" +
		"Host: " + host + "\r\n" +
		"Connection: close\r\n" +
		"\r\n"
	if _, err := io.WriteString(conn, req); err != nil {
		return fmt.Errorf("write request: %w", err)
	}

	if _, err := io.Copy(os.Stdout, conn); err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	return nil
}

func run() error {
	if len(os.Args) != 3 {
		fmt.Fprintf(os.Stderr, "Usage: %s HOST PATH\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\tExample: %s stanford.edu /class/cs144\n", os.Args[0])
		os.Exit(1)
	}
	return getURL(os.Args[1], os.Args[2])
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "webget: %v\n", err)
		os.Exit(1)
	}
}
