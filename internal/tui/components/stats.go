package components

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/evertras/bubble-table/table"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/allbin/go-cellcomm"
	"github.com/allbin/go-cellcomm/internal/tui/styles"
)

const (
	statsKeyName  = "name"
	statsKeyValue = "value"

	// StatsWidth is the width the panel takes next to the terminal
	StatsWidth = 36
)

// StatsPanel shows the session counters in a table
type StatsPanel struct {
	table   table.Model
	printer *message.Printer
	visible bool
}

func NewStatsPanel() *StatsPanel {
	p := &StatsPanel{
		printer: message.NewPrinter(language.English),
		visible: true,
		table: table.New([]table.Column{
			table.NewColumn(statsKeyName, "Counter", 16),
			table.NewColumn(statsKeyValue, "Value", 14),
		}).BorderRounded(),
	}
	p.Update(cellcomm.Stats{})
	return p
}

func (p *StatsPanel) Visible() bool {
	return p.visible
}

func (p *StatsPanel) Toggle() {
	p.visible = !p.visible
}

func (p *StatsPanel) row(name, value string) table.Row {
	return table.NewRow(table.RowData{statsKeyName: name, statsKeyValue: value})
}

// Update replaces the table rows with st
func (p *StatsPanel) Update(st cellcomm.Stats) {
	open := "no"
	if st.Open {
		open = "yes"
	}
	busy := "no"
	if st.Busy {
		busy = "rearming"
	}
	p.table = p.table.WithRows([]table.Row{
		p.row("Open", open),
		p.row("Receive", busy),
		p.row("RX bytes", p.printer.Sprint(st.RxBytes)),
		p.row("TX bytes", p.printer.Sprint(st.TxBytes)),
		p.row("Callbacks", p.printer.Sprint(st.Callbacks)),
		p.row("Wake-ups", p.printer.Sprint(st.RxSignals)),
		p.row("Line errors", p.printer.Sprint(st.LineErrors)),
		p.row("Rearm fails", p.printer.Sprint(st.RearmFailures)),
		p.row("Busy retries", p.printer.Sprint(st.BusyRetries)),
		p.row("Ring peak", p.printer.Sprintf("%d/%d", st.RingPeak, st.RingCapacity)),
	})
}

func (p *StatsPanel) View() string {
	if !p.visible {
		return ""
	}
	return styles.PanelStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		styles.PanelTitleStyle.Render("Session"),
		p.table.View(),
	))
}
