// Package theme resolves the terminal color schemes (green, amber, cyan,
// white) into typed, immutable style bundles.
//
// Integration example:
//
//	bundle, err := theme.Resolve(theme.VariantGreen, os.Getenv("TERM"))
//	if err != nil {
//		return err
//	}
//	prompt := bundle.Prompt.Lipgloss(renderer)
//	errLine := bundle.Error.Lipgloss(renderer)
package theme
