/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/allbin/go-cellcomm"
)

// recvCmd represents the recv command
var recvCmd = &cobra.Command{
	Use:   "recv",
	Short: "Receive data from the modem",
	Long: `Receive up to --max bytes from the modem within --timeout and print
them as hex and ASCII.

Receive returns as soon as the line goes quiet after some data arrived, so
the command keeps reading until --max bytes are in or the timeout passes.

Example usage:
  cellcomm recv --max 64 --timeout 2s
  cellcomm recv --port /dev/ttyUSB2`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		max, _ := cmd.Flags().GetInt("max")
		timeout, _ := cmd.Flags().GetDuration("timeout")
		if max <= 0 {
			return fmt.Errorf("--max must be positive")
		}

		s, label, _, err := openSession()
		if err != nil {
			fmt.Println(statusLine(err))
			return err
		}
		defer s.Close()

		fmt.Printf("%s Listening on %s for %s...\n", infoStyle.Render("⚡"), label, timeout)

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		buf := make([]byte, max)
		n, err := cellcomm.ReceiveFull(ctx, s, buf, timeout)
		if n == 0 && err != nil {
			fmt.Println(statusLine(err))
			return err
		}
		if err != nil && !errors.Is(err, cellcomm.ErrTimeout) && !errors.Is(err, context.DeadlineExceeded) {
			fmt.Println(statusLine(err))
		}

		fmt.Printf("%s Received %s bytes\n", successStyle.Render("✓"), printer.Sprint(n))
		dumpHex(buf[:n])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(recvCmd)

	recvCmd.Flags().IntP("max", "m", 256, "Maximum number of bytes to receive")
	recvCmd.Flags().DurationP("timeout", "t", 5*time.Second, "How long to wait for data")
}

// dumpHex prints data 16 bytes per row with an ASCII column
func dumpHex(data []byte) {
	for off := 0; off < len(data); off += 16 {
		end := off + 16
		if end > len(data) {
			end = len(data)
		}
		row := data[off:end]
		ascii := make([]byte, len(row))
		for i, b := range row {
			if b >= 32 && b <= 126 {
				ascii[i] = b
			} else {
				ascii[i] = '.'
			}
		}
		fmt.Printf("%s  %-47s  %s\n", faintStyle.Render(fmt.Sprintf("%04x", off)), fmt.Sprintf("% X", row), ascii)
	}
}
