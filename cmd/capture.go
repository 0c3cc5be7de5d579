/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/allbin/go-cellcomm"
)

// captureCmd represents the capture command
var captureCmd = &cobra.Command{
	Use:   "capture <output-file>",
	Short: "Capture modem output to a file",
	Long: `Capture everything the modem sends, such as unsolicited result codes,
to a file for later parsing.

The capture drains the session each time the receive callback fires and
runs until interrupted (Ctrl+C) or until --duration passes. The output file
is opened in append mode, allowing you to resume captures without
overwriting existing data.

Example usage:
  cellcomm capture urc.log
  cellcomm capture urc.log --port /dev/ttyACM2 --console
  cellcomm capture urc.log --duration 10m`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bufferSize, _ := cmd.Flags().GetInt("buffer")
		showConsole, _ := cmd.Flags().GetBool("console")
		duration, _ := cmd.Flags().GetDuration("duration")
		if bufferSize <= 0 {
			return fmt.Errorf("--buffer must be positive")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if duration > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, duration)
			defer cancel()
		}

		return runCapture(ctx, args[0], bufferSize, showConsole)
	},
}

func init() {
	rootCmd.AddCommand(captureCmd)

	captureCmd.Flags().Int("buffer", 4096, "Receive buffer size")
	captureCmd.Flags().BoolP("console", "c", false, "Display incoming data on console while capturing")
	captureCmd.Flags().Duration("duration", 0, "Stop after this long (0 runs until interrupted)")
}

func runCapture(ctx context.Context, outputPath string, bufferSize int, showConsole bool) error {
	file, err := os.OpenFile(outputPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open output file: %w", err)
	}
	defer file.Close()

	s, label, ready, err := openSession()
	if err != nil {
		fmt.Fprintln(os.Stderr, statusLine(err))
		return err
	}
	defer s.Close()

	fmt.Fprintf(os.Stderr, "%s Capturing from %s to %s\n", infoStyle.Render("⚡"), label, outputPath)
	fmt.Fprintln(os.Stderr, faintStyle.Render("Press Ctrl+C to stop"))

	buffer := make([]byte, bufferSize)
	var written int64
	start := time.Now()
	poll := time.NewTicker(readPoll)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintf(os.Stderr, "\n%s Capture complete: %s bytes written in %s\n",
				successStyle.Render("✓"), printer.Sprint(written), formatDuration(time.Since(start)))
			return nil
		case <-ready:
		case <-poll.C:
		}

		for ctx.Err() == nil {
			n, err := s.Receive(buffer, readSlice)
			if n == 0 {
				if err != nil && !errors.Is(err, cellcomm.ErrTimeout) {
					fmt.Fprintln(os.Stderr, statusLine(err))
				}
				break
			}
			if _, err := file.Write(buffer[:n]); err != nil {
				return fmt.Errorf("write error: %w", err)
			}
			written += int64(n)
			if showConsole {
				os.Stdout.Write(buffer[:n])
			}
		}
	}
}
