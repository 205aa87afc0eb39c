// cmd/bench is the host-side bench harness: it opens a real USB-serial
// link to a running cmd/trickler or cmd/bootloader image, optionally
// writes one command line, and prints the timestamp-prefixed log lines
// the image emits.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.bug.st/serial"
)

func main() {
	portName := flag.String("port", "/dev/ttyACM0", "serial port the image's USB-CDC console is attached to")
	baud := flag.Int("baud", 115200, "baud rate")
	send := flag.String("send", "", "optional line to write before watching output")
	watch := flag.Duration("watch", 5*time.Second, "how long to read and print log lines")
	flag.Parse()

	port, err := serial.Open(*portName, &serial.Mode{BaudRate: *baud})
	if err != nil {
		fmt.Fprintln(os.Stderr, "opening serial connection:", err)
		os.Exit(1)
	}
	defer port.Close()

	if *send != "" {
		if _, err := port.Write([]byte(*send + "\r\n")); err != nil {
			fmt.Fprintln(os.Stderr, "writing serial:", err)
			os.Exit(1)
		}
		time.Sleep(100 * time.Millisecond)
	}

	port.SetReadTimeout(500 * time.Millisecond)
	deadline := time.Now().Add(*watch)

	var pending strings.Builder
	buf := make([]byte, 256)
	for time.Now().Before(deadline) {
		n, err := port.Read(buf)
		if err != nil {
			fmt.Fprintln(os.Stderr, "reading serial:", err)
			os.Exit(1)
		}
		if n == 0 {
			continue
		}
		pending.Write(buf[:n])
		flushLines(&pending)
	}
	flushRemainder(&pending)
}

// flushLines prints every complete CRLF-terminated line buffered so far,
// leaving a trailing partial line (if any) for the next read.
func flushLines(buf *strings.Builder) {
	s := buf.String()
	for {
		idx := strings.Index(s, "\r\n")
		if idx < 0 {
			break
		}
		fmt.Println(s[:idx])
		s = s[idx+2:]
	}
	buf.Reset()
	buf.WriteString(s)
}

func flushRemainder(buf *strings.Builder) {
	if s := strings.TrimRight(buf.String(), "\x00"); s != "" {
		fmt.Println(s)
	}
}
