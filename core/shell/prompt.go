package shell

import (
	"os"
	"os/user"
	"strings"
)

// DefaultPrompt is used when no prompt is configured.
const DefaultPrompt = `\u@\h:\w\$ `

// ExpandPrompt fills in the escapes of a prompt template: \u is the user, \h
// the host, \w the working directory with home shortened to ~ and \$ is # for
// root and $ for everyone else.
func ExpandPrompt(template, username, host, cwd, home string, root bool) string {
	if template == "" {
		template = DefaultPrompt
	}
	prompt := strings.ReplaceAll(template, `\u`, username)
	prompt = strings.ReplaceAll(prompt, `\h`, host)

	if home != "" && (cwd == home || strings.HasPrefix(cwd, home+"/")) {
		cwd = "~" + strings.TrimPrefix(cwd, home)
	}
	prompt = strings.ReplaceAll(prompt, `\w`, cwd)

	if root {
		prompt = strings.ReplaceAll(prompt, `\$`, "#")
	} else {
		prompt = strings.ReplaceAll(prompt, `\$`, "$")
	}

	return prompt
}

func (s *Session) prompt() string {
	username := os.Getenv("USER")
	if u, err := user.Current(); err == nil {
		username = u.Username
	}
	host, _ := os.Hostname()
	cwd, _ := os.Getwd()

	return ExpandPrompt(s.Prompt, username, host, cwd, os.Getenv("HOME"), os.Geteuid() == 0)
}
