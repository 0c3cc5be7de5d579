/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/evertras/bubble-table/table"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/allbin/go-cellcomm"
	"github.com/allbin/go-cellcomm/hal/sim"
)

// loopbackCmd represents the loopback command
var loopbackCmd = &cobra.Command{
	Use:   "loopback",
	Short: "Push data through a simulated looped-back UART",
	Long: `Run a session against a simulated UART whose transmit line is wired to
its receive line. Random frames are sent while a reader drains the session,
and the received stream is compared with what was sent.

Bytes arrive at the configured baud rate, so this exercises the receive
path the same way a modem streaming at line rate would.

Example usage:
  cellcomm loopback --bytes 20000 --frame 128
  cellcomm loopback --baud 921600 --ring-capacity 256`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		total, _ := cmd.Flags().GetInt("bytes")
		frame, _ := cmd.Flags().GetInt("frame")
		if total <= 0 || frame <= 0 {
			return fmt.Errorf("--bytes and --frame must be positive")
		}

		line, err := lineConfig()
		if err != nil {
			return err
		}
		interval := sim.ByteInterval(line.BaudRate)
		dev := sim.New(
			sim.WithLoopback(),
			sim.WithTransmitDelay(interval),
			sim.WithByteInterval(interval),
		)

		s, err := newSession(dev, line)
		if err != nil {
			return err
		}
		if err := s.Open(notify, make(chan struct{}, 1)); err != nil {
			fmt.Println(statusLine(err))
			return err
		}
		defer s.Close()

		payload := make([]byte, total)
		rand.New(rand.NewSource(time.Now().UnixNano())).Read(payload)

		fmt.Printf("%s Looping %s bytes at %s baud in %d byte frames...\n",
			infoStyle.Render("⚡"), printer.Sprint(total), printer.Sprint(line.BaudRate), frame)

		// Wire time for the whole payload plus slack
		budget := time.Duration(total)*interval*2 + 5*time.Second
		ctx, cancel := context.WithTimeout(cmd.Context(), budget)
		defer cancel()

		received := make([]byte, total)
		start := time.Now()

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			for off := 0; off < total; off += frame {
				end := min(off+frame, total)
				if _, err := s.Send(payload[off:end], time.Second); err != nil {
					return fmt.Errorf("send at offset %d: %w", off, err)
				}
				if gctx.Err() != nil {
					return gctx.Err()
				}
			}
			return nil
		})
		g.Go(func() error {
			n, err := cellcomm.ReceiveFull(gctx, s, received, time.Second)
			if n < total {
				return fmt.Errorf("received %d of %d bytes: %w", n, total, err)
			}
			return nil
		})

		err = g.Wait()
		elapsed := time.Since(start)

		fmt.Println(statsTable(s.Stats()).View())

		if err != nil {
			fmt.Println(statusLine(err))
			return err
		}
		if !bytes.Equal(payload, received) {
			err := fmt.Errorf("received stream differs from sent stream")
			fmt.Println(statusLine(err))
			return err
		}

		rate := float64(total) / elapsed.Seconds()
		fmt.Printf("%s %s bytes verified in %s (%s B/s)\n", successStyle.Render("✓"),
			printer.Sprint(total), formatDuration(elapsed), printer.Sprintf("%.0f", rate))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loopbackCmd)

	loopbackCmd.Flags().Int("bytes", 10000, "Total number of bytes to loop")
	loopbackCmd.Flags().Int("frame", 64, "Bytes per Send call")
}

// statsTable renders session counters as a two column table
func statsTable(st cellcomm.Stats) table.Model {
	rows := []table.Row{
		statsRow("Bytes received", printer.Sprint(st.RxBytes)),
		statsRow("Bytes sent", printer.Sprint(st.TxBytes)),
		statsRow("Callbacks", printer.Sprint(st.Callbacks)),
		statsRow("Receive wake-ups", printer.Sprint(st.RxSignals)),
		statsRow("Line errors", printer.Sprint(st.LineErrors)),
		statsRow("Rearm failures", printer.Sprint(st.RearmFailures)),
		statsRow("Busy retries", printer.Sprint(st.BusyRetries)),
		statsRow("Ring peak", printer.Sprintf("%d / %d", st.RingPeak, st.RingCapacity)),
	}
	return table.New([]table.Column{
		table.NewColumn("name", "Counter", 20),
		table.NewColumn("value", "Value", 16),
	}).WithRows(rows).BorderRounded()
}

func statsRow(name, value string) table.Row {
	return table.NewRow(table.RowData{"name": name, "value": value})
}
