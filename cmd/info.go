/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/allbin/go-cellcomm/hal/tty"
)

// infoCmd represents the info command
var infoCmd = &cobra.Command{
	Use:   "info [port]",
	Short: "Display detailed information about a serial port",
	Long: `Display detailed information about a serial port including USB metadata.

Examples:
  cellcomm info /dev/ttyACM0
  cellcomm info --port /dev/ttyUSB2

For USB devices, this displays vendor/product IDs, the serial number and
the manufacturer strings read from sysfs.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		portPath := portArg(args)

		info, err := tty.PortInfoFor(portPath)
		if err != nil {
			return fmt.Errorf("getting port info: %w", err)
		}

		fmt.Printf("%s %s\n\n", infoStyle.Render("Port Information:"), info.Path)
		fmt.Printf("  Name:        %s\n", info.Name)
		fmt.Printf("  Description: %s\n", info.Description)

		if info.VendorID != "" || info.ProductID != "" {
			fmt.Println("\n" + infoStyle.Render("USB Device Information:"))
			printField("Vendor ID", info.VendorID)
			printField("Product ID", info.ProductID)
			printField("Serial", info.SerialNumber)
			printField("Manufacturer", info.Manufacturer)
			printField("Product", info.Product)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func printField(name, value string) {
	if value != "" {
		fmt.Printf("  %-13s %s\n", name+":", value)
	}
}
