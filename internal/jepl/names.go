package jepl

import (
	"strings"

	petname "github.com/dustinkirkland/golang-petname"
)

// File names are part of the contract with the jenkins-pipeline-library and
// with downstream automation, so they are fixed here.
const (
	ConfigFileName      = ".sqa/config.yml"
	ComposerFileName    = ".sqa/docker-compose.yml"
	JenkinsfileName     = "Jenkinsfile"
	commandsScriptStem  = ".sqa/script"
	commandsScriptExt   = "sh"
	secondaryConfigStem = ".sqa/config"
	secondaryConfigExt  = "yml"
)

// Namer produces the random tokens inserted into secondary file names so
// they stay unique within a pipeline. Injected so tests can pin the tokens.
type Namer interface {
	Token() string
}

// PetNamer is the production Namer. Tokens look like "nicely-fit-tadpole".
type PetNamer struct {
	Words int
}

func (n PetNamer) Token() string {
	words := n.Words
	if words <= 0 {
		words = 3
	}
	return petname.Generate(words, "-")
}

// FixedNamer returns a fixed sequence of tokens, then falls back to the last
// one. Test use only.
type FixedNamer struct {
	Tokens []string
	next   int
}

func (n *FixedNamer) Token() string {
	if len(n.Tokens) == 0 {
		return "fixed"
	}
	if n.next >= len(n.Tokens) {
		return n.Tokens[len(n.Tokens)-1]
	}
	t := n.Tokens[n.next]
	n.next++
	return t
}

func secondaryConfigName(token string) string {
	return strings.Join([]string{secondaryConfigStem, token, secondaryConfigExt}, ".")
}

func commandsScriptName(token string) string {
	return strings.Join([]string{commandsScriptStem, token, commandsScriptExt}, ".")
}
