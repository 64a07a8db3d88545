package theme

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"termfolio/internal/logging"
)

// Variant identifies the terminal color scheme.
type Variant string

const (
	VariantGreen Variant = "green"
	VariantAmber Variant = "amber"
	VariantCyan  Variant = "cyan"
	VariantWhite Variant = "white"
)

// Default is the scheme new sessions start with.
const Default = VariantGreen

// SemanticRoles defines stable semantic color slots used across the UI.
//
// Components should generally depend on these semantic roles rather than
// variant-specific color literals.
type SemanticRoles struct {
	Primary string
	Accent  string
	Muted   string
	Danger  string
	Success string
	Border  string
}

// Style describes presentational attributes for a UI element.
type Style struct {
	Foreground string
	Background string
	Bold       bool
}

// StyleSet provides strongly-typed styles for the primary runtime UI surfaces.
type StyleSet struct {
	Header   Style
	Viewport Style
	Prompt   Style
	Input    Style
	Error    Style
	Success  Style
	ASCII    Style
}

// Bundle contains all display styles needed by the runtime UI surface.
type Bundle struct {
	StyleSet
	Roles SemanticRoles
}

// TermProfile describes terminal rendering capabilities derived from TERM.
type TermProfile struct {
	Colors    int
	TrueColor bool
	IsTTY     bool
}

// TermProfileDetector maps a TERM value to a terminal capability profile.
type TermProfileDetector func(term string) TermProfile

// ErrUnknownVariant is returned when a requested variant is not known.
var ErrUnknownVariant = errors.New("unknown theme variant")

var (
	termProfileCache sync.Map
	knownProfiles    = map[string]TermProfile{
		"dumb":           {Colors: 0, TrueColor: false, IsTTY: false},
		"ansi":           {Colors: 8, TrueColor: false, IsTTY: true},
		"linux":          {Colors: 16, TrueColor: false, IsTTY: true},
		"xterm":          {Colors: 16, TrueColor: false, IsTTY: true},
		"xterm-256color": {Colors: 256, TrueColor: false, IsTTY: true},
		"screen":         {Colors: 8, TrueColor: false, IsTTY: true},
		"tmux":           {Colors: 256, TrueColor: false, IsTTY: true},
		"vt100":          {Colors: 8, TrueColor: false, IsTTY: true},
		"xterm-kitty":    {Colors: 1 << 24, TrueColor: true, IsTTY: true},
		"wezterm":        {Colors: 1 << 24, TrueColor: true, IsTTY: true},
	}
)

var palettes = map[Variant]Bundle{
	VariantGreen: phosphor("#00FF41", "#00B82E", "#0A3D14", "#0D0208"),
	VariantAmber: phosphor("#FFB000", "#CC8C00", "#3D2A00", "#0F0A00"),
	VariantCyan:  phosphor("#00FFFF", "#00B8B8", "#003D3D", "#00080F"),
	VariantWhite: phosphor("#E0E0E0", "#A8A8A8", "#333333", "#0A0A0A"),
}

var variants = [...]Variant{VariantGreen, VariantAmber, VariantCyan, VariantWhite}

// Variants lists the known schemes in display order.
func Variants() []Variant {
	out := make([]Variant, len(variants))
	copy(out, variants[:])
	return out
}

// Names lists the known schemes as strings in display order.
func Names() []string {
	out := make([]string, 0, len(variants))
	for _, v := range variants {
		out = append(out, string(v))
	}
	return out
}

// Parse maps user input to a Variant.
func Parse(name string) (Variant, error) {
	v := Variant(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := palettes[v]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownVariant, name)
	}
	return v, nil
}

// Valid reports whether v names a known scheme.
func (v Variant) Valid() bool {
	_, ok := palettes[v]
	return ok
}

// Resolve resolves a concrete style bundle for a variant and TERM value.
//
// Terminals with fewer than 16 colors, or that are not TTYs, receive a
// monochrome bundle unless color is explicitly forced.
//
// Example:
//
//	bundle, err := theme.Resolve(theme.VariantAmber, os.Getenv("TERM"))
//	if err != nil {
//		return err
//	}
//	header := bundle.Header.Lipgloss(renderer)
func Resolve(variant Variant, term string) (Bundle, error) {
	return resolveWith(variant, ResolveOptions{Term: term}, detectTermProfile)
}

// ResolveFromEnv resolves the theme using runtime overrides:
//   - THEME_FORCE_COLOR (boolean)
//   - THEME_FORCE_MONO (boolean)
//
// When THEME_DEBUG is true, the resolved profile and decisions are logged.
func ResolveFromEnv(variant Variant, term string) (Bundle, error) {
	forceColor := parseBoolEnv("THEME_FORCE_COLOR")
	forceMono := parseBoolEnv("THEME_FORCE_MONO")

	bundle, profile, err := resolveWithProfile(variant, ResolveOptions{
		Term:       term,
		ForceColor: forceColor,
		ForceMono:  forceMono,
	}, detectTermProfile)
	if err != nil {
		return Bundle{}, err
	}

	if parseBoolEnv("THEME_DEBUG") {
		logging.For("theme").Debug("resolved", "variant", variant, "term", term, "colors", profile.Colors,
			"truecolor", profile.TrueColor, "tty", profile.IsTTY, "force_color", forceColor, "force_mono", forceMono)
	}

	return bundle, nil
}

// ResolveOptions controls how a bundle is selected once a TERM profile exists.
type ResolveOptions struct {
	Term       string
	ForceColor bool
	ForceMono  bool
}

// Lipgloss converts s into a lipgloss style bound to r. A nil renderer uses
// the lipgloss default renderer.
func (s Style) Lipgloss(r *lipgloss.Renderer) lipgloss.Style {
	var out lipgloss.Style
	if r != nil {
		out = r.NewStyle()
	} else {
		out = lipgloss.NewStyle()
	}
	if s.Foreground != "" {
		out = out.Foreground(lipgloss.Color(s.Foreground))
	}
	if s.Background != "" {
		out = out.Background(lipgloss.Color(s.Background))
	}
	return out.Bold(s.Bold)
}

func resolveWith(variant Variant, opts ResolveOptions, detector TermProfileDetector) (Bundle, error) {
	bundle, _, err := resolveWithProfile(variant, opts, detector)
	return bundle, err
}

func resolveWithProfile(variant Variant, opts ResolveOptions, detector TermProfileDetector) (Bundle, TermProfile, error) {
	base, ok := palettes[variant]
	if !ok {
		return Bundle{}, TermProfile{}, fmt.Errorf("%w: %s", ErrUnknownVariant, variant)
	}

	term := strings.TrimSpace(opts.Term)
	if term == "" {
		term = os.Getenv("TERM")
	}

	profile := detector(term)
	if shouldUseMonochrome(profile, opts) {
		return monochromeBundle(), profile, nil
	}

	return base, profile, nil
}

func parseBoolEnv(key string) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

func shouldUseMonochrome(profile TermProfile, opts ResolveOptions) bool {
	if opts.ForceMono {
		return true
	}
	if opts.ForceColor {
		return false
	}
	if !profile.IsTTY {
		return true
	}
	return !profile.TrueColor && profile.Colors < 16
}

func detectTermProfile(term string) TermProfile {
	norm := strings.ToLower(strings.TrimSpace(term))
	if cached, ok := termProfileCache.Load(norm); ok {
		return cached.(TermProfile)
	}

	profile := detectTermProfileUncached(norm)
	termProfileCache.Store(norm, profile)
	return profile
}

func detectTermProfileUncached(norm string) TermProfile {
	if norm == "" {
		return TermProfile{Colors: 0, TrueColor: false, IsTTY: false}
	}

	if p, ok := knownProfiles[norm]; ok {
		return p
	}

	profile := TermProfile{Colors: 16, TrueColor: false, IsTTY: true}
	if strings.Contains(norm, "truecolor") || strings.Contains(norm, "24bit") || strings.Contains(norm, "kitty") || strings.Contains(norm, "wezterm") {
		profile.TrueColor = true
		profile.Colors = 1 << 24
	}
	if strings.Contains(norm, "256") {
		profile.Colors = 256
	}
	if strings.Contains(norm, "dumb") {
		profile = TermProfile{Colors: 0, TrueColor: false, IsTTY: false}
	}
	if strings.Contains(norm, "screen") {
		profile.Colors = 8
	}

	return profile
}

// phosphor builds a CRT-style bundle from a bright foreground, a dimmed
// foreground, a muted border tone and the screen background.
func phosphor(bright, dim, muted, screen string) Bundle {
	return Bundle{
		StyleSet: StyleSet{
			Header:   Style{Foreground: screen, Background: bright, Bold: true},
			Viewport: Style{Foreground: bright},
			Prompt:   Style{Foreground: bright, Bold: true},
			Input:    Style{Foreground: dim},
			Error:    Style{Foreground: "#FF3B3B", Bold: true},
			Success:  Style{Foreground: bright, Bold: true},
			ASCII:    Style{Foreground: dim},
		},
		Roles: SemanticRoles{Primary: bright, Accent: dim, Muted: muted, Danger: "#FF3B3B", Success: bright, Border: muted},
	}
}

func monochromeBundle() Bundle {
	return Bundle{
		StyleSet: StyleSet{
			Header:  Style{Bold: true},
			Prompt:  Style{Bold: true},
			Error:   Style{Bold: true},
			Success: Style{Bold: true},
		},
	}
}
