package picker

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/companyzero/audioroute/client"
	"github.com/companyzero/audioroute/route"
)

// Run displays the dialog as a standalone terminal program and blocks until
// the user chooses or dismisses. It satisfies client.PickerFunc.
func Run(ctx context.Context, opts client.PickerOpts) (route.Device, bool, error) {
	m := New(opts.Devices, opts.SelectedID,
		WithTitle(opts.Title),
		WithDisplayNames(opts.DisplayNames))

	p := tea.NewProgram(m, tea.WithContext(ctx))
	res, err := p.Run()
	if err != nil {
		return route.Device{}, false, err
	}
	final, ok := res.(Model)
	if !ok {
		return route.Device{}, false, fmt.Errorf("unexpected final model %T", res)
	}
	dev, chosen := final.Choice()
	return dev, chosen, nil
}
