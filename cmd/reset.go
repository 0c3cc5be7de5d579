/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/allbin/go-cellcomm/hal/tty"
)

// resetCmd represents the reset command
var resetCmd = &cobra.Command{
	Use:   "reset [port]",
	Short: "Reset a USB modem that stopped answering",
	Long: `Perform a USB-level reset on a modem. This recovers modems that hang
without physically unplugging them or cycling their power.

The modem re-enumerates after the reset, so the port path may change
(e.g. /dev/ttyACM0 might become /dev/ttyACM3). Use --serial to pick the
modem by its USB serial number instead.

Requirements:
- usbreset utility must be installed (from usbutils package)
- Root/sudo permissions required for USB operations

Examples:
  sudo cellcomm reset /dev/ttyACM0
  sudo cellcomm reset --serial 0123456789`,
	Args: func(cmd *cobra.Command, args []string) error {
		serialFlag, _ := cmd.Flags().GetString("serial")
		if serialFlag != "" && len(args) > 0 {
			return errors.New("cannot specify both port path and --serial flag")
		}
		return cobra.MaximumNArgs(1)(cmd, args)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if !tty.USBResetAvailable() {
			fmt.Println(errorStyle.Render("✗") + " usbreset utility not available")
			fmt.Println(faintStyle.Render("Install with: sudo apt-get install usbutils"))
			return tty.ErrUSBResetNotAvailable
		}

		var err error
		if serialFlag, _ := cmd.Flags().GetString("serial"); serialFlag != "" {
			fmt.Printf("%s Resetting USB device with serial %s\n", infoStyle.Render("⟳"), serialFlag)
			err = tty.ResetUSBBySerial(serialFlag)
		} else {
			portPath := portArg(args)
			fmt.Printf("%s Resetting USB device %s\n", infoStyle.Render("⟳"), portPath)
			err = tty.ResetUSB(portPath)
		}
		if err != nil {
			if errors.Is(err, tty.ErrNotUSB) {
				fmt.Println(faintStyle.Render("This device does not appear to be a USB device"))
			}
			return err
		}

		fmt.Printf("%s USB device reset, it will re-enumerate (port path may change)\n", successStyle.Render("✓"))
		fmt.Println(faintStyle.Render("Use 'cellcomm list --table' to see the updated device list"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resetCmd)

	resetCmd.Flags().StringP("serial", "s", "", "Reset device by USB serial number")
}
