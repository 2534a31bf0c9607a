package cli

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"flowwatch/models"

	"github.com/chzyer/readline"
)

// REPL is the interactive flowwatch console. It talks to a running server
// over HTTP.
type REPL struct {
	rl       *readline.Instance
	running  bool
	client   *Client
	profiles *Config
	server   string // profile name, empty when connected by URL
}

// NewREPL connects to serverURL and prepares the console. profiles may be nil.
func NewREPL(serverURL, profileName string, profiles *Config) (*REPL, error) {
	client := NewClient(serverURL)
	if err := client.HealthCheck(); err != nil {
		return nil, fmt.Errorf("cannot connect to server: %w", err)
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "> ",
		HistoryFile:     historyFile(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	return &REPL{
		rl:       rl,
		running:  true,
		client:   client,
		profiles: profiles,
		server:   profileName,
	}, nil
}

func historyFile() string {
	path, err := getConfigPath()
	if err != nil {
		return ""
	}
	return strings.TrimSuffix(path, "config.yaml") + "history"
}

// Start runs the console loop until exit or EOF.
func (c *REPL) Start() {
	defer c.rl.Close()
	c.printWelcome()

	for c.running {
		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				fmt.Println("\n⚠ Ctrl+C detected. Use 'exit' or 'quit' to leave.")
				continue
			}
			break
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		c.handleCommand(input)
	}
}

func (c *REPL) printWelcome() {
	PrintBanner("flowwatch - n8n error console")
	fmt.Printf("\nConnected to: %s\n", c.client.BaseURL())
	fmt.Println("Type 'help' for available commands")
}

func (c *REPL) handleCommand(input string) {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return
	}

	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "h", "?":
		c.showHelp()
	case "list", "ls":
		c.listErrors(args)
	case "fixed":
		c.listErrors(append([]string{"--fixed"}, args...))
	case "open":
		c.listErrors(append([]string{"--open"}, args...))
	case "show", "get":
		c.withID(args, "show", c.showError)
	case "resolve", "fix":
		c.withID(args, "resolve", func(id string) { c.setResolved(id, true) })
	case "unresolve", "reopen":
		c.withID(args, "unresolve", func(id string) { c.setResolved(id, false) })
	case "delete", "del", "rm":
		c.withID(args, "delete", c.deleteError)
	case "analytics", "stats":
		c.showAnalytics()
	case "workflows", "wf":
		c.listWorkflows()
	case "ingest":
		c.ingestFile(args)
	case "diag", "diagnostics":
		c.showDiagnostics()
	case "login":
		c.login(args)
	case "server":
		c.handleServerCommand(args)
	case "clear":
		fmt.Print("\033[H\033[2J")
	case "exit", "quit", "q":
		fmt.Println("\nGoodbye!")
		c.running = false
	default:
		fmt.Printf("Unknown command: %s. Type 'help' for available commands.\n", cmd)
	}
}

func (c *REPL) showHelp() {
	fmt.Println()
	PrintBanner("Available Commands")
	fmt.Println()

	commands := [][]string{
		{"help, h, ?", "Show this help message"},
		{"", ""},
		{"ERRORS:", ""},
		{"list [filters] [text] [page]", "List errors, newest first"},
		{"  --severity <level>", "critical, high, medium or low"},
		{"  --type <type>", "timeout, connection, validation, runtime or other"},
		{"  --range <window>", "1h, 24h, 7d or 30d"},
		{"  --fixed / --open", "Only resolved or unresolved errors"},
		{"fixed [page]", "List resolved errors"},
		{"open [page]", "List unresolved errors"},
		{"show <id>", "Show error details"},
		{"resolve <id>", "Mark an error as fixed"},
		{"unresolve <id>", "Mark an error as open again"},
		{"delete <id>", "Delete an error"},
		{"analytics", "Show the dashboard summary"},
		{"ingest <file.json>", "Post a webhook payload from a file"},
		{"", ""},
		{"N8N:", ""},
		{"workflows", "List n8n workflows"},
		{"", ""},
		{"SYSTEM:", ""},
		{"login [email]", "Sign in as an operator"},
		{"diag", "Show recent server-side failures"},
		{"server list|add|use|remove", "Manage saved servers"},
		{"clear", "Clear screen"},
		{"exit, quit, q", "Exit the program"},
	}

	for _, cmd := range commands {
		if cmd[0] != "" {
			fmt.Printf("  %-32s %s\n", cmd[0], cmd[1])
		} else {
			fmt.Println()
		}
	}
}

func (c *REPL) withID(args []string, verb string, fn func(id string)) {
	if len(args) < 1 {
		fmt.Printf("Usage: %s <id>\n", verb)
		return
	}
	fn(args[0])
}

func (c *REPL) listErrors(args []string) {
	page, values, err := parseListArgs(args)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	result, err := c.client.ListErrors(values)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if result.Total == 0 {
		fmt.Println("No errors found.")
		return
	}

	totalPages := (result.Total + listPageSize - 1) / listPageSize

	fmt.Println()
	PrintBanner(fmt.Sprintf("Errors (Page %d/%d, Total: %d)", page, totalPages, result.Total))
	fmt.Println()
	printErrorTable(result.Errors)
	fmt.Printf("\nUse 'show <id>' to view details\n")
}

func printErrorTable(records []models.ErrorRecord) {
	fmt.Printf("%-28s %-20s %-16s %-10s %-8s %-5s %s\n", "ID", "Workflow", "Node", "Type", "Severity", "Fixed", "Time")
	fmt.Println(strings.Repeat("-", 110))

	for _, r := range records {
		fixed := "no"
		if r.Resolved {
			fixed = "yes"
		}
		fmt.Printf("%-28s %-20s %-16s %-10s %-8s %-5s %s\n",
			truncate(r.ID, 28),
			truncate(r.WorkflowName, 20),
			truncate(r.NodeName, 16),
			r.ErrorType,
			r.Severity,
			fixed,
			r.Timestamp.Local().Format("01-02 15:04:05"),
		)
	}
}

func (c *REPL) findError(id string) (*models.ErrorRecord, error) {
	page, err := c.client.ListErrors(url.Values{"q": {id}})
	if err != nil {
		return nil, err
	}
	for i := range page.Errors {
		if page.Errors[i].ID == id {
			return &page.Errors[i], nil
		}
	}
	return nil, fmt.Errorf("error not found: %s", id)
}

func (c *REPL) showError(id string) {
	r, err := c.findError(id)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	fmt.Println()
	PrintBanner("Error " + truncate(r.ID, 48))
	fmt.Println()

	fmt.Printf("Time:        %s\n", r.Timestamp.Local().Format("2006-01-02 15:04:05"))
	fmt.Printf("Workflow:    %s (%s)\n", r.WorkflowName, r.WorkflowID)
	fmt.Printf("Node:        %s\n", r.NodeName)
	if r.NodeType != "" {
		fmt.Printf("Node type:   %s\n", r.NodeType)
	}
	fmt.Printf("Type:        %s\n", r.ErrorType)
	fmt.Printf("Severity:    %s\n", r.Severity)
	fmt.Printf("Execution:   %s\n", r.ExecutionID)
	if r.ExecutionURL != "" {
		fmt.Printf("URL:         %s\n", r.ExecutionURL)
	}
	fmt.Printf("Retries:     %d\n", r.RetryCount)
	fmt.Printf("Resolved:    %t\n", r.Resolved)
	if r.ResolvedAt != nil {
		fmt.Printf("Resolved at: %s\n", r.ResolvedAt.Local().Format("2006-01-02 15:04:05"))
	}
	fmt.Printf("\nMessage:\n%s\n", r.ErrorMessage)
	if r.StackTrace != "" {
		fmt.Printf("\nStack:\n%s\n", truncate(r.StackTrace, 1000))
	}
}

func (c *REPL) setResolved(id string, resolved bool) {
	if err := c.client.SetResolved(id, resolved); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if resolved {
		fmt.Printf("✓ %s marked as fixed\n", id)
	} else {
		fmt.Printf("✓ %s reopened\n", id)
	}
}

func (c *REPL) deleteError(id string) {
	confirm := c.readInput(fmt.Sprintf("Delete %s? (yes/no)", id), "no")
	if !isYes(confirm) {
		fmt.Println("Cancelled.")
		return
	}
	if err := c.client.DeleteError(id); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Println("✓ Error deleted")
}

func (c *REPL) showAnalytics() {
	a, err := c.client.Analytics()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	fmt.Println()
	PrintBanner("Analytics")
	fmt.Println()

	trend := "up"
	if a.ErrorTrend.IsPositive {
		trend = "down"
	}
	fmt.Printf("Total errors:        %d\n", a.TotalErrors)
	fmt.Printf("Unresolved:          %d\n", a.UnresolvedErrors)
	fmt.Printf("Last 24h:            %d (%s %.1f%%)\n", a.ErrorsLast24h, trend, a.ErrorTrend.Value)
	fmt.Printf("Errors per hour:     %.1f\n", a.ErrorRate)
	fmt.Printf("Most affected:       %s\n", a.MostAffectedWorkflow)
	fmt.Printf("Avg resolution time: %s\n", formatSeconds(a.AvgResolutionTime))

	if len(a.ErrorsByType) > 0 {
		fmt.Println("\nBy type:")
		for _, t := range a.ErrorsByType {
			fmt.Printf("  %-12s %d\n", t.Type, t.Count)
		}
	}
	fmt.Println("\nBy severity:")
	for _, s := range a.ErrorsBySeverity {
		fmt.Printf("  %-12s %d\n", s.Severity, s.Count)
	}
	if len(a.TopWorkflows) > 0 {
		fmt.Println("\nTop workflows:")
		for _, w := range a.TopWorkflows {
			fmt.Printf("  %-30s %4d errors, ~%.0f%% success\n", truncate(w.WorkflowName, 30), w.ErrorCount, w.SuccessRate)
		}
	}
	fmt.Println("\nLast 7 days:")
	for _, p := range a.Trends {
		fmt.Printf("  %s %s %d\n", p.Timestamp.Local().Format("Mon 01-02"), strings.Repeat("█", min(p.Count, 40)), p.Count)
	}
}

func (c *REPL) listWorkflows() {
	workflows, err := c.client.Workflows()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if len(workflows) == 0 {
		fmt.Println("No workflows (is the n8n API configured?).")
		return
	}

	fmt.Println()
	PrintBanner(fmt.Sprintf("Total Workflows: %d", len(workflows)))
	fmt.Println()
	fmt.Printf("%-20s %-45s %s\n", "ID", "Name", "Active")
	fmt.Println(strings.Repeat("-", 75))
	for _, w := range workflows {
		fmt.Printf("%-20s %-45s %t\n", truncate(w.ID, 20), truncate(w.Name, 45), w.Active)
	}
}

func (c *REPL) ingestFile(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: ingest <file.json>")
		return
	}
	body, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	reply, err := c.client.Ingest(body)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Printf("✓ %s (received %d, rejected %d)\n", reply.Message, reply.Received, reply.Rejected)
	if reply.Warning != "" {
		fmt.Printf("⚠ %s\n", reply.Warning)
	}
	if reply.PersistFailed > 0 {
		fmt.Printf("⚠ %d error(s) could not be stored, see 'diag'\n", reply.PersistFailed)
	}
}

func (c *REPL) showDiagnostics() {
	entries, err := c.client.Diagnostics()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if len(entries) == 0 {
		fmt.Println("No diagnostics recorded.")
		return
	}

	fmt.Printf("%-5s %-8s %-6s %-10s %s\n", "ID", "Time", "Level", "Source", "Message")
	fmt.Println(strings.Repeat("-", 90))
	for _, d := range entries {
		fmt.Printf("%-5d %-8s %-6s %-10s %s\n",
			d.ID,
			d.Timestamp.Local().Format("15:04:05"),
			d.Level,
			truncate(d.Source, 10),
			truncate(d.Message+": "+d.Detail, 60),
		)
	}
}

func (c *REPL) login(args []string) {
	email := ""
	if len(args) > 0 {
		email = args[0]
	} else if c.profiles != nil && c.server != "" {
		if s, err := c.profiles.GetServer(c.server); err == nil {
			email = s.Email
		}
	}

	email, cancelled := c.readInputWithCancel("Email", email)
	if cancelled || email == "" {
		fmt.Println("Cancelled.")
		return
	}
	password, cancelled := c.readPasswordWithCancel("Password")
	if cancelled {
		fmt.Println("Cancelled.")
		return
	}

	if err := c.client.Login(email, password); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Printf("✓ Signed in as %s\n", email)

	if c.profiles != nil && c.server != "" {
		_ = c.profiles.SetEmail(c.server, email)
	}
}

func (c *REPL) handleServerCommand(args []string) {
	if c.profiles == nil {
		fmt.Println("Server profiles are not available.")
		return
	}
	if len(args) == 0 {
		args = []string{"list"}
	}

	switch args[0] {
	case "list", "ls":
		for _, name := range c.profiles.ServerNames() {
			s := c.profiles.Servers[name]
			marker := " "
			if name == c.profiles.DefaultServer {
				marker = "*"
			}
			fmt.Printf("%s %-12s %-35s %s\n", marker, name, s.URL, s.Description)
		}
	case "add":
		if len(args) < 3 {
			fmt.Println("Usage: server add <name> <url> [description]")
			return
		}
		if err := c.profiles.AddServer(args[1], args[2], strings.Join(args[3:], " ")); err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		fmt.Printf("✓ Server %s saved\n", args[1])
	case "use":
		if len(args) < 2 {
			fmt.Println("Usage: server use <name>")
			return
		}
		s, err := c.profiles.GetServer(args[1])
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		client := NewClient(s.URL)
		if err := client.HealthCheck(); err != nil {
			fmt.Printf("Error: cannot connect to %s: %v\n", s.URL, err)
			return
		}
		if err := c.profiles.SetDefault(args[1]); err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		c.client = client
		c.server = args[1]
		fmt.Printf("✓ Connected to %s\n", s.URL)
	case "remove", "rm":
		if len(args) < 2 {
			fmt.Println("Usage: server remove <name>")
			return
		}
		if err := c.profiles.RemoveServer(args[1]); err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		fmt.Printf("✓ Server %s removed\n", args[1])
	default:
		fmt.Printf("Unknown server command: %s\n", args[0])
	}
}

func (c *REPL) readInput(prompt, defaultValue string) string {
	input, _ := c.readInputWithCancel(prompt, defaultValue)
	return input
}

func (c *REPL) readInputWithCancel(prompt, defaultValue string) (string, bool) {
	if defaultValue != "" {
		c.rl.SetPrompt(fmt.Sprintf("%s [%s]: ", prompt, defaultValue))
	} else {
		c.rl.SetPrompt(fmt.Sprintf("%s: ", prompt))
	}

	line, err := c.rl.Readline()
	c.rl.SetPrompt("> ")

	if err != nil {
		if err == readline.ErrInterrupt {
			return "", true
		}
		return defaultValue, false
	}

	input := strings.TrimSpace(line)
	if input == "" {
		return defaultValue, false
	}
	return input, false
}

func (c *REPL) readPasswordWithCancel(prompt string) (string, bool) {
	c.rl.SetPrompt(fmt.Sprintf("%s: ", prompt))
	line, err := c.rl.ReadPassword("")
	c.rl.SetPrompt("> ")

	if err != nil {
		if err == readline.ErrInterrupt {
			return "", true
		}
		return "", false
	}
	return string(line), false
}

func isYes(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "yes" || s == "y"
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func formatSeconds(secs int64) string {
	switch {
	case secs <= 0:
		return "n/a"
	case secs < 60:
		return fmt.Sprintf("%ds", secs)
	case secs < 3600:
		return fmt.Sprintf("%dm %ds", secs/60, secs%60)
	default:
		return fmt.Sprintf("%dh %dm", secs/3600, (secs%3600)/60)
	}
}
