/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"strings"

	"github.com/evertras/bubble-table/table"
	"github.com/spf13/cobra"

	"github.com/allbin/go-cellcomm/hal/tty"
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List serial ports a modem may be attached to",
	Long: `List serial ports a modem may be attached to.

This command scans for communication-capable serial devices including:
- USB CDC/ACM devices (ttyACM*), where most cellular modems show up
- USB serial adapters (ttyUSB*)
- Standard serial ports (ttyS*)
- ARM/Raspberry Pi ports (ttyAMA*)

Virtual terminals and pseudo-terminals are excluded from the listing.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ports, err := tty.ListPorts()
		if err != nil {
			return fmt.Errorf("listing ports: %w", err)
		}

		filterType, _ := cmd.Flags().GetString("filter")
		tableFormat, _ := cmd.Flags().GetBool("table")

		filtered := filterPorts(ports, filterType)
		if len(filtered) == 0 {
			if filterType != "" {
				fmt.Printf("No serial ports found matching filter: %s\n", filterType)
			} else {
				fmt.Println("No serial ports found")
			}
			return nil
		}

		if tableFormat {
			renderTable(filtered)
		} else {
			for _, p := range filtered {
				fmt.Println(p.Path)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().String("filter", "", "Filter by port type: usb, standard, arm, all")
	listCmd.Flags().BoolP("table", "t", false, "Display output in a styled table format")
}

// filterPorts filters the port list based on the specified filter type
func filterPorts(ports []tty.PortInfo, filterType string) []tty.PortInfo {
	filterType = strings.ToLower(filterType)
	if filterType == "" || filterType == "all" {
		return ports
	}

	var filtered []tty.PortInfo
	for _, p := range ports {
		name := strings.ToLower(p.Name)
		switch filterType {
		case "usb":
			if strings.HasPrefix(name, "ttyusb") || strings.HasPrefix(name, "ttyacm") || strings.HasPrefix(name, "cu.usb") {
				filtered = append(filtered, p)
			}
		case "standard":
			if strings.HasPrefix(name, "ttys") {
				filtered = append(filtered, p)
			}
		case "arm":
			if strings.HasPrefix(name, "ttyama") {
				filtered = append(filtered, p)
			}
		}
	}
	return filtered
}

const (
	columnKeyPort    = "port"
	columnKeyType    = "type"
	columnKeyDesc    = "desc"
	columnKeyUSBID   = "usbid"
	columnKeyProduct = "product"
)

// renderTable renders the port list as a static table
func renderTable(ports []tty.PortInfo) {
	fmt.Printf("Found %d serial port(s):\n\n", len(ports))

	rows := make([]table.Row, 0, len(ports))
	for _, p := range ports {
		usbID := ""
		if p.VendorID != "" {
			usbID = p.VendorID + ":" + p.ProductID
		}
		rows = append(rows, table.NewRow(table.RowData{
			columnKeyPort:    p.Name,
			columnKeyType:    portType(p.Name),
			columnKeyDesc:    p.Description,
			columnKeyUSBID:   usbID,
			columnKeyProduct: strings.TrimSpace(p.Manufacturer + " " + p.Product),
		}))
	}

	t := table.New([]table.Column{
		table.NewColumn(columnKeyPort, "Port", 14),
		table.NewColumn(columnKeyType, "Type", 16),
		table.NewColumn(columnKeyDesc, "Description", 26),
		table.NewColumn(columnKeyUSBID, "USB ID", 11),
		table.NewColumn(columnKeyProduct, "Product", 30),
	}).WithRows(rows).BorderRounded()

	fmt.Println(t.View())
}

// portType returns a more specific type classification for the port
func portType(name string) string {
	name = strings.ToLower(name)
	switch {
	case strings.HasPrefix(name, "ttyusb"):
		return "USB Serial"
	case strings.HasPrefix(name, "ttyacm"):
		return "USB CDC/ACM"
	case strings.HasPrefix(name, "cu.usb"):
		return "USB Serial"
	case strings.HasPrefix(name, "ttyama"):
		return "ARM Serial"
	case strings.HasPrefix(name, "ttymxc"):
		return "i.MX Serial"
	case strings.HasPrefix(name, "ttyths"):
		return "Tegra Serial"
	case strings.HasPrefix(name, "ttys"):
		return "Standard Serial"
	default:
		return "Serial Port"
	}
}
