// Package jepl renders abstract pipeline requests into the JePL file
// structure consumed by the jenkins-pipeline-library: one or more config
// documents, a docker-compose document, a Jenkinsfile and any auxiliary
// shell scripts for criteria that embed raw commands.
package jepl

import "fmt"

// Request is the pipeline description received through the API.
type Request struct {
	Name            string           `json:"name"`
	ConfigData      []map[string]any `json:"config_data"`
	ComposerData    map[string]any   `json:"composer_data"`
	JenkinsfileData map[string]any   `json:"jenkinsfile_data"`
}

// ConfigFile is a rendered JePL config document. DataWhen carries the branch
// filter predicate of the single criterion the document holds, or nil for
// the shared document.
type ConfigFile struct {
	DataJSON map[string]any `json:"data_json"`
	DataYML  string         `json:"data_yml"`
	DataWhen map[string]any `json:"data_when"`
	FileName string         `json:"file_name"`
}

// ComposerFile is the rendered docker-compose document.
type ComposerFile struct {
	DataJSON map[string]any `json:"data_json"`
	DataYML  string         `json:"data_yml"`
	FileName string         `json:"file_name"`
}

// CommandsScript is a generated shell script for a criterion that embeds raw
// commands.
type CommandsScript struct {
	Data     string `json:"data"`
	FileName string `json:"file_name"`
}

// Artifacts is the full set of files rendered from a Request.
type Artifacts struct {
	Config          []ConfigFile     `json:"config"`
	Composer        ComposerFile     `json:"composer"`
	Jenkinsfile     string           `json:"jenkinsfile"`
	CommandsScripts []CommandsScript `json:"commands_scripts"`
}

// FileNames returns every file name in the artifact set, Jenkinsfile
// included.
func (a *Artifacts) FileNames() []string {
	names := make([]string, 0, len(a.Config)+len(a.CommandsScripts)+2)
	for _, c := range a.Config {
		names = append(names, c.FileName)
	}
	names = append(names, a.Composer.FileName)
	for _, s := range a.CommandsScripts {
		names = append(names, s.FileName)
	}
	names = append(names, JenkinsfileName)
	return names
}

// ValidationError marks a malformed or inconsistent request. Rendering does
// no I/O, so every rendering failure is one of these.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func validationErrorf(format string, v ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, v...)}
}
