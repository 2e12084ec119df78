package dashboard

import tea "github.com/charmbracelet/bubbletea"

const (
	KeyQuit             = "q"
	KeyQuitAlt          = "ctrl+c"
	KeyRefresh          = "r"
	KeyToggleCkpts      = "c"
	KeyToggleValidation = "v"
	KeyToggleHelp       = "?"
	KeyClose            = "esc"
)

// HandleKeyMsg applies a key press. It reports whether the key was handled.
func (m *Model) HandleKeyMsg(msg tea.KeyMsg) (bool, tea.Cmd) {
	key := msg.String()

	if key == KeyToggleHelp {
		m.showHelp = !m.showHelp
		return true, nil
	}
	if m.showHelp && key == KeyClose {
		m.showHelp = false
		return true, nil
	}

	switch key {
	case KeyQuit, KeyQuitAlt:
		m.quitting = true
		return true, tea.Quit
	case KeyRefresh:
		return true, m.fetchCmd()
	case KeyToggleCkpts:
		m.showCheckpoints = !m.showCheckpoints
		return true, nil
	case KeyToggleValidation:
		m.showValidation = !m.showValidation
		return true, nil
	}
	return false, nil
}
