/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send [data]",
	Short: "Send data to the modem",
	Long: `Send data to the modem through a session.

Data can be provided as:
- Command line argument: cellcomm send "AT+CSQ" --newline
- From stdin (pipe): echo "AT" | cellcomm send
- Interactive mode: cellcomm send (prompts for input)

The send fails with a timeout if the device stays busy or the modem holds
CTS for longer than --timeout. A partial transfer reports how many bytes
made it out.

Example usage:
  cellcomm send "AT" --newline
  cellcomm send --hex "41 54 0D 0A"
  cellcomm send --sim "ATI" --newline`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var data string
		if len(args) == 1 {
			data = args[0]
		} else {
			stat, err := os.Stdin.Stat()
			if err != nil || (stat.Mode()&os.ModeCharDevice) != 0 {
				data = promptForData()
			} else {
				stdinData, err := io.ReadAll(os.Stdin)
				if err != nil {
					return fmt.Errorf("reading stdin: %w", err)
				}
				data = strings.TrimRight(string(stdinData), "\r\n")
			}
		}

		addNewline, _ := cmd.Flags().GetBool("newline")
		hexMode, _ := cmd.Flags().GetBool("hex")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		payload := []byte(data)
		if hexMode {
			var err error
			if payload, err = parseHex(data); err != nil {
				return fmt.Errorf("invalid hex data: %w", err)
			}
		} else if addNewline {
			payload = append(payload, '\r', '\n')
		}

		return sendData(payload, timeout)
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().BoolP("newline", "n", false, "Terminate data with CR LF")
	sendCmd.Flags().BoolP("hex", "x", false, "Interpret data as hexadecimal (e.g., '41540D0A' for \"AT\\r\\n\")")
	sendCmd.Flags().DurationP("timeout", "t", 5*time.Second, "Timeout for sending data")
}

func promptForData() string {
	fmt.Print(infoStyle.Render("Enter data to send: "))

	scanner := bufio.NewScanner(os.Stdin)
	if scanner.Scan() {
		return scanner.Text()
	}
	return ""
}

func sendData(payload []byte, timeout time.Duration) error {
	if len(payload) == 0 {
		return fmt.Errorf("nothing to send")
	}

	s, label, _, err := openSession()
	if err != nil {
		fmt.Println(statusLine(err))
		return err
	}
	defer s.Close()

	fmt.Printf("%s Session open on %s\n", successStyle.Render("✓"), label)
	fmt.Printf("%s Sending %s bytes...\n", infoStyle.Render("📤"), printer.Sprint(len(payload)))

	start := time.Now()
	n, err := s.Send(payload, timeout)
	if err != nil {
		fmt.Println(statusLine(err))
		if n > 0 {
			fmt.Printf("%s %d of %d bytes reached the wire\n", faintStyle.Render("·"), n, len(payload))
		}
		return err
	}

	fmt.Printf("%s Sent %s bytes in %s\n", successStyle.Render("✓"), printer.Sprint(n), formatDuration(time.Since(start)))

	preview := payload
	if len(preview) > 50 {
		preview = preview[:50]
	}
	fmt.Printf("%s Data: %s\n", infoStyle.Render("📋"), printable(preview))
	return nil
}
