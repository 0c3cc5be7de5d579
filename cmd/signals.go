/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/allbin/go-cellcomm/hal/tty"
)

// signalsCmd represents the signals command
var signalsCmd = &cobra.Command{
	Use:   "signals [port]",
	Short: "Display current modem signal states",
	Long: `Open a session on the port and display the state of all modem control
signals.

Examples:
  cellcomm signals /dev/ttyACM0
  cellcomm signals --port /dev/ttyUSB2

Signal meanings:
  CTS - Clear To Send (input), the modem is ready for data
  DSR - Data Set Ready (input)
  RI  - Ring Indicator (input), incoming call or URC
  DCD - Data Carrier Detect (input)
  RTS - Request To Send (output)
  DTR - Data Terminal Ready (output)`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		portPath := portArg(args)

		line, err := lineConfig()
		if err != nil {
			return err
		}
		port := tty.New(portPath)
		s, err := newSession(port, line)
		if err != nil {
			return err
		}
		if err := s.Open(notify, make(chan struct{}, 1)); err != nil {
			fmt.Println(statusLine(err))
			return fmt.Errorf("open %s: %w", portPath, err)
		}
		defer s.Close()

		signals, err := port.Signals()
		if err != nil {
			return fmt.Errorf("reading modem signals: %w", err)
		}

		fmt.Printf("%s %s\n\n", infoStyle.Render("Modem Signals for"), portPath)
		fmt.Printf("  CTS (Clear To Send):       %s\n", formatSignalState(signals.CTS))
		fmt.Printf("  DSR (Data Set Ready):      %s\n", formatSignalState(signals.DSR))
		fmt.Printf("  RI  (Ring Indicator):      %s\n", formatSignalState(signals.RI))
		fmt.Printf("  DCD (Data Carrier Detect): %s\n", formatSignalState(signals.DCD))
		fmt.Printf("  RTS (Request To Send):     %s\n", formatSignalState(signals.RTS))
		fmt.Printf("  DTR (Data Terminal Ready): %s\n", formatSignalState(signals.DTR))
		return nil
	},
}

func formatSignalState(state bool) string {
	if state {
		return successStyle.Render("HIGH")
	}
	return faintStyle.Render("LOW")
}

func init() {
	rootCmd.AddCommand(signalsCmd)
}
