package models

import "strings"

// CommandType enumerates the operator commands accepted over WhatsApp.
type CommandType string

const (
	CommandDue     CommandType = "due"
	CommandDone    CommandType = "done"
	CommandHelp    CommandType = "help"
	CommandUnknown CommandType = "unknown"
)

// Command represents a parsed operator instruction extracted from WhatsApp text.
type Command struct {
	Type CommandType
	Raw  string
	Args []string
}

// ParseCommand derives a Command instance from free-form text messages.
func ParseCommand(message string) Command {
	normalized := strings.TrimSpace(message)
	if normalized == "" {
		return Command{Type: CommandUnknown, Raw: message}
	}

	tokens := strings.Fields(normalized)
	cmd := Command{Raw: message}

	head := strings.ToLower(strings.TrimPrefix(tokens[0], "/"))
	switch head {
	case string(CommandDue), "today":
		cmd.Type = CommandDue
	case string(CommandDone), "ok":
		cmd.Type = CommandDone
	case string(CommandHelp), "?":
		cmd.Type = CommandHelp
	default:
		cmd.Type = CommandUnknown
	}

	// reminder ids are case sensitive, keep args as typed
	if len(tokens) > 1 {
		cmd.Args = tokens[1:]
	}

	return cmd
}

// AutomationReply describes the response sent back to an operator command.
type AutomationReply struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}
