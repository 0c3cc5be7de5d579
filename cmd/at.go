/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/allbin/go-cellcomm"
)

// atCmd represents the at command
var atCmd = &cobra.Command{
	Use:   "at [command]",
	Short: "Send an AT command and print the modem's reply",
	Long: `Send an AT command (default "AT") terminated by CR LF, wait for the
receive callback to signal that the modem answered, then read until a final
result code (OK or ERROR) or the timeout.

Example usage:
  cellcomm at
  cellcomm at "AT+CSQ"
  cellcomm at ATI --repeat 5 --sim`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		command := "AT"
		if len(args) == 1 {
			command = args[0]
		}
		repeat, _ := cmd.Flags().GetInt("repeat")
		timeout, _ := cmd.Flags().GetDuration("timeout")
		interval, _ := cmd.Flags().GetDuration("interval")

		s, label, ready, err := openSession()
		if err != nil {
			fmt.Println(statusLine(err))
			return err
		}
		defer s.Close()

		fmt.Printf("%s Session open on %s\n", successStyle.Render("✓"), label)

		for i := 0; i < repeat; i++ {
			if i > 0 {
				time.Sleep(interval)
			}
			reply, err := exchange(s, ready, command, timeout)
			if err != nil {
				fmt.Println(statusLine(err))
				return err
			}
			fmt.Printf("%s %s\n", infoStyle.Render("→"), command)
			for _, line := range strings.Split(strings.TrimSpace(string(reply)), "\n") {
				if line = strings.TrimSpace(line); line != "" {
					fmt.Printf("%s %s\n", successStyle.Render("←"), line)
				}
			}
		}

		stats := s.Stats()
		fmt.Println(faintStyle.Render(printer.Sprintf("tx %d bytes, rx %d bytes, %d callbacks",
			stats.TxBytes, stats.RxBytes, stats.Callbacks)))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(atCmd)

	atCmd.Flags().IntP("repeat", "r", 1, "Number of times to send the command")
	atCmd.Flags().DurationP("timeout", "t", 2*time.Second, "Time to wait for a final result code")
	atCmd.Flags().Duration("interval", time.Second, "Pause between repeats")
}

// exchange sends one command and collects the reply up to a final result code
func exchange(s *cellcomm.Session, ready <-chan struct{}, command string, timeout time.Duration) ([]byte, error) {
	// Drop wake-ups left over from an earlier reply
	select {
	case <-ready:
	default:
	}

	if _, err := s.Send([]byte(command+"\r\n"), timeout); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(timeout)
	select {
	case <-ready:
	case <-time.After(timeout):
		return nil, fmt.Errorf("no reply within %s: %w", timeout, cellcomm.ErrTimeout)
	}

	var reply []byte
	buf := make([]byte, 256)
	for !finalResult(reply) {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return reply, fmt.Errorf("no final result code: %w", cellcomm.ErrTimeout)
		}
		n, err := s.Receive(buf, remaining)
		reply = append(reply, buf[:n]...)
		if err != nil {
			return reply, err
		}
	}
	return reply, nil
}

// finalResult reports whether reply ends with a final result code
func finalResult(reply []byte) bool {
	trimmed := bytes.TrimRight(reply, "\r\n")
	for _, code := range []string{"OK", "ERROR", "NO CARRIER", "+CME ERROR", "+CMS ERROR"} {
		lineStart := bytes.LastIndexByte(trimmed, '\n') + 1
		if bytes.HasPrefix(trimmed[lineStart:], []byte(code)) {
			return len(trimmed) < len(reply)
		}
	}
	return false
}
