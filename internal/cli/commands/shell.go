package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapquery/internal/cli/output"
	"github.com/leapstack-labs/leapquery/internal/descriptor"
	"github.com/leapstack-labs/leapquery/internal/executor"
	"github.com/leapstack-labs/leapquery/pkg/core"
)

const shellPrompt = "leapquery> "

// NewShellCommand creates the shell command.
func NewShellCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "shell [database]",
		Short: "Query tables interactively",
		Long: `Start an interactive session. Queries run in the background: the prompt
stays available while they run and each one reports when it finishes.

A table can only have one query running at a time. Type help for the list
of commands.`,
		Args:              cobra.MaximumNArgs(1),
		ValidArgsFunction: sourceCompletion,
		RunE:              runShell,
	}
}

// shell is the state of one interactive session.
type shell struct {
	cmdCtx *CommandContext
	in     lineReader
	r      *output.Renderer

	current     core.Source
	currentName string

	mu      sync.Mutex
	running map[string]*executor.Handle
}

func newShell(cmdCtx *CommandContext, in lineReader, r *output.Renderer) *shell {
	return &shell{
		cmdCtx:  cmdCtx,
		in:      in,
		r:       r,
		running: make(map[string]*executor.Handle),
	}
}

func runShell(cmd *cobra.Command, args []string) error {
	completions := make(chan core.Completion, 16)
	cmdCtx, cleanup, err := newCommandContext(cmd, core.ChanSink(completions))
	if err != nil {
		return err
	}

	var sh *shell
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          shellPrompt,
		HistoryFile:     shellHistoryFile(cmdCtx.Cfg.StatePath),
		AutoComplete:    newShellCompleter(func() *shell { return sh }),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		cleanup()
		return fmt.Errorf("failed to initialize shell: %w", err)
	}
	defer func() { _ = rl.Close() }()

	r := output.NewRendererWithTTY(rl.Stdout(), rl.Stderr(), output.IsTerminal(os.Stdout), output.Mode(cmdCtx.Cfg.OutputFormat))
	sh = newShell(cmdCtx, rl, r)

	notified := make(chan struct{})
	go func() {
		defer close(notified)
		for c := range completions {
			sh.finished(c)
		}
	}()

	ctx := cmd.Context()
	r.Println(r.Styles().Bold.Render("leapquery shell"))
	r.Println(r.Styles().Muted.Render("Type help for commands, quit to exit"))
	if len(args) == 1 {
		sh.exec(ctx, "open "+args[0])
	}

	for {
		rl.SetPrompt(shellPrompt)
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if err != nil {
			break
		}
		if sh.exec(ctx, line) {
			break
		}
	}

	sh.cancelAll()
	cleanup()
	close(completions)
	<-notified
	return nil
}

func shellHistoryFile(statePath string) string {
	if statePath == "" || statePath == ":memory:" {
		return ""
	}
	return filepath.Join(filepath.Dir(statePath), "shell_history")
}

// exec runs one shell line. It returns true when the shell should exit.
func (s *shell) exec(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	name, args := strings.ToLower(fields[0]), fields[1:]

	var err error
	switch name {
	case "quit", "exit":
		return true
	case "help", "?":
		printShellHelp(s.r.Writer())
	case "open", "use":
		err = s.open(ctx, args)
	case "close":
		err = s.close()
	case "tables":
		err = s.tables(ctx)
	case "fields":
		err = s.withTable(args, func(table string) error {
			return runFields(ctx, s.ctxWithRenderer(), s.current, table)
		})
	case "query", "q":
		err = s.query(ctx, line, args)
	case "results", "ls":
		err = runResultsList(ctx, s.ctxWithRenderer())
	case "show":
		err = s.show(ctx, args)
	case "delete", "rm":
		err = s.delete(ctx, args)
	case "clear":
		err = s.clear(ctx)
	case "history":
		limit := 10
		if len(args) > 0 {
			if limit, err = strconv.Atoi(args[0]); err != nil {
				err = fmt.Errorf("history: %q is not a number", args[0])
				break
			}
		}
		err = runHistory(s.ctxWithRenderer(), limit)
	case "status":
		s.status()
	case "cancel":
		err = s.cancel(args)
	default:
		err = fmt.Errorf("unknown command %q (type help for commands)", name)
	}
	if err != nil && !errors.Is(err, core.ErrCancelled) {
		s.r.Errorf("Error: %v", err)
	}
	return false
}

// ctxWithRenderer returns the command context writing through the shell.
func (s *shell) ctxWithRenderer() *CommandContext {
	c := *s.cmdCtx
	c.Renderer = s.r
	return &c
}

func (s *shell) open(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: open <database>")
	}
	src, err := openSource(ctx, s.cmdCtx, args[0])
	if err != nil {
		return err
	}
	s.current, s.currentName = src, args[0]
	return s.tables(ctx)
}

func (s *shell) close() error {
	if s.current == nil {
		return fmt.Errorf("no database open")
	}
	if s.current == s.cmdCtx.Engine.ResultsSource() {
		s.current, s.currentName = nil, ""
		return nil
	}
	if err := s.cmdCtx.Engine.CloseSource(s.current.Filepath()); err != nil {
		return err
	}
	s.current, s.currentName = nil, ""
	return nil
}

func (s *shell) tables(ctx context.Context) error {
	if s.current == nil {
		return fmt.Errorf("no database open (use: open <database>)")
	}
	infos, err := describeTables(ctx, s.current)
	if err != nil {
		return err
	}
	rows := make([][]any, len(infos))
	for i, info := range infos {
		rows[i] = []any{info.Path, info.Rows, info.Columns, info.Title}
	}
	s.r.Table([]string{"table", "rows", "columns", "title"}, rows)
	return nil
}

func (s *shell) withTable(args []string, fn func(string) error) error {
	if s.current == nil {
		return fmt.Errorf("no database open (use: open <database>)")
	}
	if len(args) < 1 {
		return fmt.Errorf("a table is required")
	}
	return fn(args[0])
}

// query starts a query in the background. Everything after the table is
// the condition; without one the query is prompted for.
func (s *shell) query(ctx context.Context, line string, args []string) error {
	return s.withTable(args, func(table string) error {
		var input core.Input = &PromptInput{rl: s.in, r: s.r}
		if cond := conditionArg(line, table); cond != "" {
			input = descriptor.StaticInput{Condition: cond}
		}

		h, err := s.cmdCtx.Engine.NewQuery(ctx, s.current, table, input)
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.running[h.ID()] = h
		s.mu.Unlock()
		s.r.Println(s.r.Styles().Muted.Render(fmt.Sprintf("query %s running on %s", shortID(h.ID()), table)))
		return nil
	})
}

// conditionArg returns the rest of a query line after the table argument.
func conditionArg(line, table string) string {
	_, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	rest = strings.TrimSpace(rest)
	return strings.TrimSpace(strings.TrimPrefix(rest, table))
}

func (s *shell) show(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: show <result> [limit]")
	}
	limit := int64(10)
	if len(args) > 1 {
		n, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("show: %q is not a number", args[1])
		}
		limit = n
	}
	return runResultsShow(ctx, s.ctxWithRenderer(), args[0], limit)
}

func (s *shell) delete(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: delete <result>...")
	}
	for _, name := range args {
		if err := s.cmdCtx.Engine.DeleteResult(ctx, name); err != nil {
			return err
		}
		s.r.Printf("Deleted %s\n", name)
	}
	return nil
}

func (s *shell) clear(ctx context.Context) error {
	confirm := func() bool {
		s.in.SetPrompt("Delete all result tables? [y/N] ")
		answer, err := s.in.ReadlineWithDefault("")
		if err != nil {
			return false
		}
		answer = strings.ToLower(strings.TrimSpace(answer))
		return answer == "y" || answer == "yes"
	}
	n, err := s.cmdCtx.Engine.DeleteAllResults(ctx, confirm)
	if err != nil {
		return err
	}
	s.r.Printf("Deleted %d result tables\n", n)
	return nil
}

func (s *shell) status() {
	eng := s.cmdCtx.Engine
	styles := s.r.Styles()

	current := "(none)"
	if s.current != nil {
		current = s.currentName
	}
	last := eng.LastQuery()
	s.r.Printf("%s %s\n", styles.Muted.Render("database:"), current)
	s.r.Printf("%s %d\n", styles.Muted.Render("counter: "), eng.Counter())
	if last.Condition != "" {
		s.r.Printf("%s %s on %s\n", styles.Muted.Render("last:    "), last.Condition, last.Source)
	}

	busy := eng.Busy()
	if len(busy) == 0 {
		s.r.Println(styles.Muted.Render("no queries running"))
		return
	}
	var ids []string
	for id := range s.live() {
		ids = append(ids, shortID(id))
	}
	slices.Sort(ids)
	for _, ref := range busy {
		s.r.Printf("%s %s\n", styles.StatusRunning.Render("running:"), ref)
	}
	s.r.Printf("%s %s\n", styles.Muted.Render("ids:     "), strings.Join(ids, ", "))
}

// cancel cancels the queries whose id starts with the argument, or all.
func (s *shell) cancel(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: cancel <id>|all")
	}
	n := 0
	for id, h := range s.live() {
		if args[0] == "all" || strings.HasPrefix(id, args[0]) {
			h.Cancel()
			n++
		}
	}
	if n == 0 {
		return fmt.Errorf("no running query matches %q", args[0])
	}
	return nil
}

func (s *shell) cancelAll() {
	for _, h := range s.live() {
		h.Cancel()
	}
}

// live returns the running queries. A handle can be registered after its
// completion was reported, so finished handles are dropped here too.
func (s *shell) live() map[string]*executor.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*executor.Handle, len(s.running))
	for id, h := range s.running {
		select {
		case <-h.Done():
			delete(s.running, id)
		default:
			out[id] = h
		}
	}
	return out
}

// finished reports a completion and forgets its handle.
func (s *shell) finished(c core.Completion) {
	s.mu.Lock()
	delete(s.running, c.QueryID)
	s.mu.Unlock()
	renderCompletion(s.r, c)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func newShellCompleter(sh func() *shell) *readline.PrefixCompleter {
	tables := func(string) []string {
		s := sh()
		if s == nil || s.current == nil {
			return nil
		}
		paths, err := s.current.Tables(context.Background())
		if err != nil {
			return nil
		}
		return paths
	}
	results := func(string) []string {
		s := sh()
		if s == nil {
			return nil
		}
		return s.cmdCtx.Engine.UsedNames()
	}
	sources := func(string) []string {
		names := []string{"results"}
		for name := range getConfig().Sources {
			names = append(names, name)
		}
		return names
	}
	return readline.NewPrefixCompleter(
		readline.PcItem("open", readline.PcItemDynamic(sources)),
		readline.PcItem("close"),
		readline.PcItem("tables"),
		readline.PcItem("fields", readline.PcItemDynamic(tables)),
		readline.PcItem("query", readline.PcItemDynamic(tables)),
		readline.PcItem("results"),
		readline.PcItem("show", readline.PcItemDynamic(results)),
		readline.PcItem("delete", readline.PcItemDynamic(results)),
		readline.PcItem("clear"),
		readline.PcItem("history"),
		readline.PcItem("status"),
		readline.PcItem("cancel", readline.PcItem("all")),
		readline.PcItem("help"),
		readline.PcItem("quit"),
	)
}

func printShellHelp(w io.Writer) {
	help := `
Commands:
  open <database>          Open a database (path, configured name or "results")
  close                    Close the open database
  tables                   List the tables of the open database
  fields <table>           Show the columns a condition can use
  query <table> [cond]     Run a query in the background (prompts without cond)
  results                  List result tables
  show <result> [limit]    Show a result table
  delete <result>...       Delete result tables
  clear                    Delete every result table
  history [n]              Show recent queries
  status                   Show running queries and session state
  cancel <id>|all          Cancel running queries
  help                     Show this help message
  quit / exit              Leave the shell

Tips:
  - Columns with spaces in their names are used through their alias (col0, ...)
  - A table can only have one query running at a time
`
	_, _ = fmt.Fprint(w, help)
}
