package jepl

import (
	"fmt"
	"strings"
	"text/template"
)

// The Jenkinsfile drives the v2 series of the jenkins-pipeline-library: one
// stage per config document, each loading its own config file. Documents
// with a branch filter get a guarded stage.
var jenkinsfileTemplate = template.Must(template.New("Jenkinsfile").Parse(`@Library(['github.com/indigo-dc/jenkins-pipeline-library@release/2.1.0']) _

def projectConfig

pipeline {
    agent any

    stages {
{{- range .Stages }}
        stage('{{ .Name }}') {
{{- if .When }}
            when {
                {{ .When }}
            }
{{- end }}
            steps {
                script {
                    projectConfig = pipelineConfig(configFile: '{{ .ConfigFile }}')
                    buildStages(projectConfig)
                }
            }
            post {
                cleanup {
                    cleanWs()
                }
            }
        }
{{- end }}
    }
}
`))

type jenkinsfileStage struct {
	Name       string
	ConfigFile string
	When       string
}

// RenderJenkinsfile renders the declarative job script for the given config
// documents.
func RenderJenkinsfile(configs []ConfigFile) (string, error) {
	stages := make([]jenkinsfileStage, 0, len(configs))
	for _, cfg := range configs {
		when, err := whenExpression(cfg.DataWhen)
		if err != nil {
			return "", err
		}
		stages = append(stages, jenkinsfileStage{
			Name:       stageName(cfg.FileName),
			ConfigFile: cfg.FileName,
			When:       when,
		})
	}

	var sb strings.Builder
	if err := jenkinsfileTemplate.Execute(&sb, struct{ Stages []jenkinsfileStage }{stages}); err != nil {
		return "", validationErrorf("cannot render Jenkinsfile: %v", err)
	}
	return sb.String(), nil
}

func stageName(configFile string) string {
	return fmt.Sprintf("SQA baseline (%s)", configFile)
}

// whenExpression turns a branch filter predicate into the condition used
// inside the stage's when block.
func whenExpression(when map[string]any) (string, error) {
	if len(when) == 0 {
		return "", nil
	}

	if branch, ok := when["branch"]; ok {
		switch b := branch.(type) {
		case string:
			return fmt.Sprintf("branch '%s'", b), nil
		case map[string]any:
			pattern, _ := b["pattern"].(string)
			if pattern == "" {
				return "", validationErrorf("branch filter has no pattern")
			}
			comparator, _ := b["comparator"].(string)
			if comparator == "" {
				return fmt.Sprintf("branch '%s'", pattern), nil
			}
			return fmt.Sprintf("branch pattern: '%s', comparator: '%s'", pattern, comparator), nil
		}
		return "", validationErrorf("unsupported branch filter type")
	}

	if branches := toStringList(when["branches"]); len(branches) > 0 {
		if len(branches) == 1 {
			return fmt.Sprintf("branch '%s'", branches[0]), nil
		}
		conditions := make([]string, len(branches))
		for i, b := range branches {
			conditions[i] = fmt.Sprintf("branch '%s'", b)
		}
		return fmt.Sprintf("anyOf { %s }", strings.Join(conditions, "; ")), nil
	}

	return "", validationErrorf("unsupported branch filter predicate")
}
