package jepl

import (
	"encoding/json"

	"gopkg.in/yaml.v3"
)

// Render transforms the request into the JePL artifact set. Apart from the
// tokens drawn from namer, the result is a pure function of the request.
func Render(req *Request, namer Namer) (*Artifacts, error) {
	if len(req.ConfigData) == 0 {
		return nil, validationErrorf("request carries no config data")
	}

	// Only the first config document is honored. The request may carry
	// more, but the library consumes a single logical config which the
	// `when` splitting below fans out into several documents.
	cfg := deepCopy(req.ConfigData[0])
	composer := deepCopy(req.ComposerData)

	environment, ok := cfg["environment"].(map[string]any)
	if !ok {
		environment = map[string]any{}
	}

	if err := normalizeComposer(composer, environment); err != nil {
		return nil, err
	}
	if len(environment) > 0 {
		cfg["environment"] = environment
	}

	urlToKey, err := keyProjectRepos(cfg)
	if err != nil {
		return nil, err
	}

	scripts, err := rewriteCriteria(cfg, urlToKey, namer)
	if err != nil {
		return nil, err
	}

	docs := splitWhenCriteria(cfg)

	artifacts := &Artifacts{CommandsScripts: scripts}
	for i, doc := range docs {
		dataYML, err := toYAML(doc.data)
		if err != nil {
			return nil, err
		}
		name := ConfigFileName
		if i > 0 {
			name = secondaryConfigName(namer.Token())
		}
		artifacts.Config = append(artifacts.Config, ConfigFile{
			DataJSON: doc.data,
			DataYML:  dataYML,
			DataWhen: doc.when,
			FileName: name,
		})
	}

	composerYML, err := toYAML(composer)
	if err != nil {
		return nil, err
	}
	artifacts.Composer = ComposerFile{
		DataJSON: composer,
		DataYML:  composerYML,
		FileName: ComposerFileName,
	}

	jenkinsfile, err := RenderJenkinsfile(artifacts.Config)
	if err != nil {
		return nil, err
	}
	artifacts.Jenkinsfile = jenkinsfile

	return artifacts, nil
}

// ParseRequest decodes a raw request document.
func ParseRequest(raw []byte) (*Request, error) {
	req := new(Request)
	if err := json.Unmarshal(raw, req); err != nil {
		return nil, validationErrorf("malformed pipeline request: %v", err)
	}
	return req, nil
}

func toYAML(data map[string]any) (string, error) {
	out, err := yaml.Marshal(data)
	if err != nil {
		return "", validationErrorf("cannot serialize document to YAML: %v", err)
	}
	return string(out), nil
}

// deepCopy clones a JSON-shaped document so rendering never mutates the
// request it was built from.
func deepCopy(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		return deepCopy(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = deepCopyValue(item)
		}
		return out
	default:
		return v
	}
}
