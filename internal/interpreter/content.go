package interpreter

import (
	"encoding/json"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"termfolio/internal/portfolio"
	"termfolio/internal/theme"
)

// Sections are the page sections cd and the content commands navigate to.
var Sections = []string{"home", "about", "experience", "projects", "skills", "achievements", "contact"}

const frameWidth = 63

var fortunes = []string{
	`"Any fool can write code that a computer can understand. Good programmers write code that humans can understand." - Martin Fowler`,
	`"First, solve the problem. Then, write the code." - John Johnson`,
	`"Code is like humor. When you have to explain it, it's bad." - Cory House`,
	`"Simplicity is the soul of efficiency." - Austin Freeman`,
	`"Make it work, make it right, make it fast." - Kent Beck`,
	`"The best error message is the one that never shows up." - Thomas Fuchs`,
	`"Programming isn't about what you know; it's about what you can figure out." - Chris Pine`,
	`"The only way to learn a new programming language is by writing programs in it." - Dennis Ritchie`,
	`"Debugging is twice as hard as writing the code in the first place." - Brian Kernighan`,
	`"Talk is cheap. Show me the code." - Linus Torvalds`,
}

var manPages = map[string]string{
	"cat": `
NAME
    cat - concatenate and print files

SYNOPSIS
    cat [file]

DESCRIPTION
    Display the contents of a file.

EXAMPLES
    cat ./about.md       Read about me
    cat ./skills.json    View skills
`,
	"theme": `
NAME
    theme - change terminal color theme

SYNOPSIS
    theme <color>

DESCRIPTION
    Changes the terminal color scheme.
    Available themes: green, amber, cyan, white

EXAMPLES
    theme amber     Switch to amber/orange theme
    theme cyan      Switch to cyan/blue theme
`,
	"alias": `
NAME
    alias - create command shortcuts

SYNOPSIS
    alias [name=command]

DESCRIPTION
    Create or list command aliases.
    Aliases are saved with your preferences.

EXAMPLES
    alias               List all aliases
    alias h=help        Create alias 'h' for 'help'
    alias p='ls -la ./projects/'
`,
}

const sudoUsage = `
Available sudo commands:
  sudo login              - Authenticate as admin
  sudo logout             - Sign out
  sudo status             - Show auth status
  sudo init               - Initialize the store with defaults
  sudo edit <path> <val>  - Edit a field
  sudo add <path> <json>  - Add to an array
  sudo remove <path> <i>  - Remove from array by index

Examples:
  sudo edit profile.name "John Doe"
  sudo edit profile.roles '["Dev","Designer"]'
  sudo add projects '{"name":"New Project"}'
  sudo remove experiences 0
`

const exitText = `
🎵 You can check out any time you like,
   But you can never leave... 🎵

(Use Escape to exit fullscreen mode)
`

const rmText = `
🚨 DANGER ZONE 🚨
rm: cannot remove '/': Permission denied
(Nice try though 😈)
`

const hackTemplate = `
[*] Initializing hack sequence...
[*] Target: %s
[*] Scanning ports... 22, 80, 443, 8080
[*] Exploiting vulnerabilities...
[████████████████████] 100%%
[!] ACCESS DENIED
[!] Nice try, but I'm a portfolio, not a hacking tool 😎
`

const neofetchArt = `⠀⠀⠀⠀⠀⠀⠀⠀⠀⣀⣤⣤⣤⣤⣤⣤⣤⣀⠀⠀⠀⠀⠀⠀⠀⠀⠀⠀
⠀⠀⠀⠀⠀⠀⣠⣴⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣦⣄⠀⠀⠀⠀⠀⠀
⠀⠀⠀⠀⣠⣾⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣷⣄⠀⠀⠀⠀
⠀⠀⠀⣴⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣦⠀⠀⠀
⠀⠀⣼⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣧⠀⠀
⠀⢸⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⡇⠀
⠀⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⠀
⠀⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⠀
⠀⢸⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⡇⠀
⠀⠀⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⠀⠀
⠀⠀⠸⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⠇⠀⠀
⠀⠀⠀⠹⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⠏⠀⠀⠀
⠀⠀⠀⠀⠙⢿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⣿⡿⠋⠀⠀⠀⠀
⠀⠀⠀⠀⠀⠀⠙⠻⢿⣿⣿⣿⣿⣿⣿⣿⣿⣿⡿⠟⠋⠀⠀⠀⠀⠀⠀
⠀⠀⠀⠀⠀⠀⠀⠀⠀⠀⠉⠉⠛⠛⠛⠉⠉⠀⠀⠀⠀⠀⠀⠀⠀⠀⠀`

var themeTitles = map[theme.Variant]string{
	theme.VariantGreen: "Matrix Green",
	theme.VariantAmber: "Phosphor Amber",
	theme.VariantCyan:  "Ice Cyan",
	theme.VariantWhite: "Paper White",
}

type helpRow struct{ cmd, desc string }

type helpGroup struct {
	title string
	rows  []helpRow
}

var helpGroups = []helpGroup{
	{"NAVIGATION", []helpRow{
		{"cat ./identity.txt", "Show my identity"},
		{"cat ./about.md", "Read about me"},
		{"cat ./skills.json", "Display skills"},
		{"cat ./achievements.log", "View achievements"},
		{"ls -la ./projects/", "List all projects"},
		{"history --work", "Show work experience"},
		{"./send_message.sh", "Open contact options"},
		{"cd <section>", "Jump to a section"},
		{"tree", "Show portfolio structure"},
	}},
	{"SYSTEM", []helpRow{
		{"neofetch", "Display system info"},
		{"fortune", "Random programming quote"},
		{"theme <color>", "Change theme (green/amber/cyan/white)"},
		{"fullscreen / fs", "Enter fullscreen terminal"},
		{"clear", "Clear terminal"},
		{"mute / unmute", "Toggle typing sounds"},
		{"history", "Show command history"},
	}},
	{"ALIASES", []helpRow{
		{"alias", "List all aliases"},
		{"alias name=command", "Create alias"},
		{"unalias name", "Remove alias"},
	}},
	{"EASTER EGGS", []helpRow{
		{"matrix", "???"},
		{"hack <target>", "???"},
	}},
	{"KEYS", []helpRow{
		{"Tab", "Complete the command"},
		{"Up / Down", "Browse history"},
		{"Ctrl+L", "Clear terminal"},
		{"Escape", "Exit fullscreen / cancel login"},
	}},
}

// frame draws a double-line box. Rows wider than the frame widen it.
func frame(title string, groups ...[]string) string {
	width := frameWidth
	for _, g := range groups {
		for _, row := range g {
			if w := lipgloss.Width(row) + 2; w > width {
				width = w
			}
		}
	}
	pad := func(s string) string {
		return "║ " + s + strings.Repeat(" ", max(0, width-lipgloss.Width(s)-1)) + "║"
	}
	center := func(s string) string {
		left := max(0, (width-lipgloss.Width(s))/2)
		right := max(0, width-lipgloss.Width(s)-left)
		return "║" + strings.Repeat(" ", left) + s + strings.Repeat(" ", right) + "║"
	}
	rule := strings.Repeat("═", width)

	var b strings.Builder
	b.WriteString("\n╔" + rule + "╗\n")
	b.WriteString(center(title) + "\n")
	for _, g := range groups {
		b.WriteString("╠" + rule + "╣\n")
		for _, row := range g {
			b.WriteString(pad(row) + "\n")
		}
	}
	b.WriteString("╚" + rule + "╝\n")
	return b.String()
}

func renderHelp() string {
	groups := make([][]string, 0, len(helpGroups))
	for _, g := range helpGroups {
		rows := []string{g.title}
		for _, r := range g.rows {
			rows = append(rows, fmt.Sprintf("  %-22s│ %s", r.cmd, r.desc))
		}
		groups = append(groups, rows)
	}
	return frame("AVAILABLE COMMANDS", groups...)
}

func renderIdentity(doc portfolio.Document) string {
	rows := []string{
		"  Name:     " + doc.Profile.Name,
		"  Role:     " + strings.Join(doc.Profile.Roles, " | "),
		"  Location: " + doc.Profile.Location,
	}
	if doc.Profile.Tagline != "" {
		rows = append(rows, "  "+quoted(doc.Profile.Tagline))
	}
	return frame("./identity.txt", rows)
}

func quoted(s string) string {
	if strings.HasPrefix(s, `"`) {
		return s
	}
	return `"` + s + `"`
}

func renderAbout(doc portfolio.Document) string {
	a := doc.About
	var b strings.Builder
	b.WriteString("\n# ./about.md\n\n## 👨‍💻 About Me\n\n")
	fmt.Fprintf(&b, "%s student at **%s** (Class of %s)\n", a.Degree, a.University, a.GraduationYear)
	if a.GPA != "" {
		fmt.Fprintf(&b, "**GPA:** %s\n", a.GPA)
	}
	if len(a.CurrentRoles) > 0 {
		b.WriteString("\n### Currently\n")
		for _, r := range a.CurrentRoles {
			b.WriteString("- " + r + "\n")
		}
	}
	if len(a.Interests) > 0 || a.Bio != "" {
		b.WriteString("\n### Interests\n")
		if len(a.Interests) > 0 {
			b.WriteString(strings.Join(a.Interests, ", ") + ".\n")
		}
		if a.Bio != "" {
			b.WriteString(a.Bio + "\n")
		}
	}
	return b.String()
}

func handle(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), "-")
}

func renderSkills(doc portfolio.Document) string {
	role := ""
	if len(doc.Profile.Roles) > 0 {
		role = doc.Profile.Roles[0]
	}
	entries := []string{
		fmt.Sprintf("  %s: %s", jsonString("user"), jsonString(handle(doc.Profile.Name))),
		fmt.Sprintf("  %s: %s", jsonString("role"), jsonString(role)),
	}
	for _, s := range doc.Skills {
		items := make([]string, len(s.Items))
		for i, it := range s.Items {
			items[i] = jsonString(it)
		}
		entries = append(entries, fmt.Sprintf("  %s: [%s]", jsonString(strings.ToLower(s.Category)), strings.Join(items, ", ")))
	}
	return "{\n" + strings.Join(entries, ",\n") + "\n}"
}

func jsonString(s string) string {
	data, _ := json.Marshal(s)
	return string(data)
}

func updatedAt(doc portfolio.Document) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02"} {
		if t, err := time.Parse(layout, doc.LastUpdated); err == nil {
			return t
		}
	}
	return time.Time{}
}

func renderAchievements(doc portfolio.Document) string {
	var b strings.Builder
	day := "----------"
	if t := updatedAt(doc); !t.IsZero() {
		day = t.Format("2006-01-02")
	}
	fmt.Fprintf(&b, "\n[%s] INFO: Loading achievements...\n\n", day)
	for _, a := range doc.Achievements {
		fmt.Fprintf(&b, "✅ %s\n   └─ %s\n\n", a.Title, a.Description)
	}
	b.WriteString("[EOF] achievements.log\n")
	return b.String()
}

func renderProjects(doc portfolio.Document) string {
	user := "guest"
	if f := strings.Fields(strings.ToLower(doc.Profile.Name)); len(f) > 0 {
		user = f[0]
	}
	stamp := "Jan 01"
	if t := updatedAt(doc); !t.IsZero() {
		stamp = t.Format("Jan 02")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "\ntotal %d\n", len(doc.Projects))
	fmt.Fprintf(&b, "drwxr-xr-x  2 %s %s 4096 %s ./\n", user, user, stamp)
	fmt.Fprintf(&b, "drwxr-xr-x 10 %s %s 4096 %s ../\n", user, user, stamp)
	for _, p := range doc.Projects {
		fmt.Fprintf(&b, "drwxr-xr-x  1 %s %s 4096 %s %s/\n", user, user, stamp, p.ID)
	}
	b.WriteString("\n")
	for _, p := range doc.Projects {
		label := p.Description
		if len(p.Technologies) > 0 {
			label = strings.Join(p.Technologies, "/") + "  " + label
		}
		fmt.Fprintf(&b, "📁 %-20s %s\n", p.ID+"/", label)
	}
	return b.String()
}

func year(date string) string {
	if len(date) >= 4 {
		return date[:4]
	}
	return date
}

const heavyRule = "══════════════════════════════════════════════════════════════"

func renderWork(doc portfolio.Document) string {
	var b strings.Builder
	b.WriteString("\n📋 Work Experience History\n" + heavyRule + "\n\n")
	for _, e := range doc.Experiences {
		end := "Present"
		if e.EndDate != nil && *e.EndDate != "" {
			end = year(*e.EndDate)
		}
		fmt.Fprintf(&b, "[%s - %s] %s\n", year(e.StartDate), end, e.Title)
		fmt.Fprintf(&b, "├── Company: %s\n", e.Company)
		if e.Location != "" {
			fmt.Fprintf(&b, "├── Location: %s\n", e.Location)
		}
		if len(e.Skills) > 0 {
			fmt.Fprintf(&b, "├── Stack: %s\n", strings.Join(e.Skills, ", "))
		}
		fmt.Fprintf(&b, "└── Tasks: %s\n\n", e.Description)
	}
	b.WriteString(heavyRule + "\n")
	return b.String()
}

var socialLabels = map[string]string{
	"email":    "📧 Email:   ",
	"linkedin": "💼 LinkedIn:",
	"github":   "🐙 GitHub:  ",
	"whatsapp": "💬 WhatsApp:",
}

func renderContact(doc portfolio.Document) string {
	var b strings.Builder
	b.WriteString("\n📬 Contact Options\n" + heavyRule + "\n\n")
	for i, s := range doc.Profile.Socials {
		label, ok := socialLabels[strings.ToLower(s.Platform)]
		if !ok {
			label = "🔗 " + s.Platform + ":"
		}
		fmt.Fprintf(&b, "  [%d] %s %s\n", i+1, label, s.Label)
	}
	b.WriteString("\nType 'mail' to open email client directly.\n" + heavyRule + "\n")
	return b.String()
}

func renderTree(doc portfolio.Document) string {
	var b strings.Builder
	b.WriteString("\n~/portfolio/\n")
	for _, f := range []string{"./identity.txt", "./about.md", "./skills.json", "./achievements.log"} {
		b.WriteString("├── " + f + "\n")
	}
	branch := func(name string, children []string, last bool) {
		head, indent := "├── ", "│   "
		if last {
			head, indent = "└── ", "    "
		}
		b.WriteString(head + name + "\n")
		for i, c := range children {
			marker := "├── "
			if i == len(children)-1 {
				marker = "└── "
			}
			b.WriteString(indent + marker + c + "\n")
		}
	}
	projects := make([]string, len(doc.Projects))
	for i, p := range doc.Projects {
		projects[i] = p.ID + "/"
	}
	experience := make([]string, len(doc.Experiences))
	for i, e := range doc.Experiences {
		experience[i] = e.ID + "/"
	}
	contact := make([]string, len(doc.Profile.Socials))
	for i, s := range doc.Profile.Socials {
		contact[i] = strings.ToLower(s.Platform)
	}
	branch("projects/", projects, false)
	branch("experience/", experience, false)
	branch("contact/", contact, true)
	return b.String()
}

func renderNeofetch(doc portfolio.Document, host string, variant theme.Variant) string {
	info := []string{
		"guest@" + host,
		strings.Repeat("─", len("guest@"+host)),
		"OS: TERMFOLIO v1.0.0",
		"Host: Portfolio Terminal",
		"Kernel: " + runtime.Version(),
		"Shell: termfolio",
		fmt.Sprintf("Projects: %d", len(doc.Projects)),
		fmt.Sprintf("Skills: %d", countSkills(doc)),
		"Theme: " + themeTitles[variant],
		"Coffee: ☕ Unlimited",
	}
	art := strings.Split(neofetchArt, "\n")
	var b strings.Builder
	b.WriteString("\n")
	for i, line := range art {
		b.WriteString("    " + line)
		if j := i - 2; j >= 0 && j < len(info) {
			b.WriteString("    " + info[j])
		}
		b.WriteString("\n")
	}
	return b.String()
}

func countSkills(doc portfolio.Document) int {
	n := 0
	for _, s := range doc.Skills {
		n += len(s.Items)
	}
	return n
}
