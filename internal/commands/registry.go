package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/haasonsaas/turnstream/pkg/models"
)

// ErrNotFound is returned when no command or alias matches a name.
var ErrNotFound = errors.New("command not found")

var invocationRe = regexp.MustCompile(`(?s)^/?([a-zA-Z][a-zA-Z0-9_:-]*)(?:\s+(.*))?$`)

// Parse splits "/name args" into the lowercase command name and its
// trimmed arguments. The leading slash is optional.
func Parse(text string) (name, args string, ok bool) {
	match := invocationRe.FindStringSubmatch(strings.TrimSpace(text))
	if match == nil {
		return "", "", false
	}
	return strings.ToLower(match[1]), strings.TrimSpace(match[2]), true
}

// Registry manages command registrations and execution.
type Registry struct {
	commands map[string]*Command // name -> command
	aliases  map[string]string   // alias -> name
	logger   *slog.Logger
	mu       sync.RWMutex
}

// NewRegistry creates an empty command registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		commands: make(map[string]*Command),
		aliases:  make(map[string]string),
		logger:   logger.With("component", "commands"),
	}
}

// Register adds a command. Names are case-insensitive; a name already used
// by a command or alias is rejected, a conflicting alias is dropped.
func (r *Registry) Register(cmd *Command) error {
	if cmd == nil {
		return fmt.Errorf("command is nil")
	}
	if cmd.Name == "" {
		return fmt.Errorf("command name is required")
	}
	if cmd.Handler == nil {
		return fmt.Errorf("command handler is required")
	}

	name := strings.ToLower(strings.TrimSpace(cmd.Name))
	cmd.Name = name

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.commands[name]; exists {
		return fmt.Errorf("command %q already registered", name)
	}
	if existingName, exists := r.aliases[name]; exists {
		return fmt.Errorf("command name %q conflicts with alias for %q", name, existingName)
	}
	r.commands[name] = cmd

	for _, alias := range cmd.Aliases {
		aliasLower := strings.ToLower(strings.TrimSpace(alias))
		if aliasLower == "" || aliasLower == name {
			continue
		}
		if _, exists := r.commands[aliasLower]; exists {
			r.logger.Warn("alias conflicts with command", "alias", aliasLower, "command", name)
			continue
		}
		if _, exists := r.aliases[aliasLower]; exists {
			r.logger.Warn("alias already registered", "alias", aliasLower, "command", name)
			continue
		}
		r.aliases[aliasLower] = name
	}

	r.logger.Debug("registered command", "name", name, "kind", cmd.Kind, "source", cmd.Source)
	return nil
}

// Get retrieves a command by name or alias.
func (r *Registry) Get(name string) (*Command, bool) {
	name = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "/"))

	r.mu.RLock()
	defer r.mu.RUnlock()

	if cmd, exists := r.commands[name]; exists {
		return cmd, true
	}
	if realName, exists := r.aliases[name]; exists {
		if cmd, exists := r.commands[realName]; exists {
			return cmd, true
		}
	}
	return nil, false
}

// List returns all registered commands sorted by name.
func (r *Registry) List() []*Command {
	r.mu.RLock()
	defer r.mu.RUnlock()

	commands := make([]*Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		commands = append(commands, cmd)
	}
	sort.Slice(commands, func(i, j int) bool {
		return commands[i].Name < commands[j].Name
	})
	return commands
}

// Execute runs the named command against env. An unknown name returns an
// error wrapping ErrNotFound; failures the user should see are reported in
// Result.Error.
func (r *Registry) Execute(ctx context.Context, name, args string, env Env) (*Result, error) {
	cmd, exists := r.Get(name)
	if !exists {
		return nil, fmt.Errorf("%w: /%s", ErrNotFound, strings.TrimPrefix(strings.TrimSpace(name), "/"))
	}
	args = strings.TrimSpace(args)
	if !cmd.AcceptsArgs && args != "" {
		return &Result{Error: fmt.Sprintf("Command /%s does not accept arguments", cmd.Name)}, nil
	}

	inv := &Invocation{Command: cmd, Name: name, Args: args, Env: env}
	res, err := cmd.Handler(ctx, inv)
	if err != nil {
		return nil, err
	}
	if res == nil {
		res = &Result{}
	}
	if res.Action == "" && res.Error == "" {
		res.Action = models.CommandActionMessage
	}
	return res, nil
}
