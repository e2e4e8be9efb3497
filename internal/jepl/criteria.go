package jepl

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// thisRepoKey is the key used for criterion repos whose URL does not match
// any declared project repo: the pipeline repository itself.
const thisRepoKey = "this_repo"

// RepoKey derives the stable key for a repository URL: host plus path,
// without scheme or trailing slash.
func RepoKey(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", validationErrorf("invalid repository URL <%s>: %v", raw, err)
	}
	key := u.Host + u.Path
	key = strings.TrimSuffix(key, "/")
	if key == "" {
		return "", validationErrorf("repository URL <%s> has no host or path", raw)
	}
	return key, nil
}

// keyProjectRepos rewrites config.project_repos from a sequence into a
// mapping keyed by RepoKey, and returns the URL-to-key index used to resolve
// criterion repos.
func keyProjectRepos(cfg map[string]any) (map[string]string, error) {
	urlToKey := map[string]string{}

	section, ok := cfg["config"].(map[string]any)
	if !ok {
		return urlToKey, nil
	}
	repos, ok := section["project_repos"].([]any)
	if !ok {
		return urlToKey, nil
	}

	keyed := map[string]any{}
	for _, entry := range repos {
		repo, ok := entry.(map[string]any)
		if !ok {
			return nil, validationErrorf("project_repos entries must be objects")
		}
		repoURL, _ := repo["repo"].(string)
		if repoURL == "" {
			return nil, validationErrorf("project_repos entry is missing the repo URL")
		}
		key, err := RepoKey(repoURL)
		if err != nil {
			return nil, err
		}
		keyed[key] = repo
		urlToKey[repoURL] = key
	}
	section["project_repos"] = keyed

	return urlToKey, nil
}

// rewriteCriteria maps every criterion's repos sequence into a mapping and
// generates command scripts for entries embedding raw commands. It mutates
// cfg in place and returns the generated scripts.
func rewriteCriteria(cfg map[string]any, urlToKey map[string]string, namer Namer) ([]CommandsScript, error) {
	criteria, ok := cfg["sqa_criteria"].(map[string]any)
	if !ok {
		return nil, nil
	}

	var scripts []CommandsScript
	for _, name := range sortedKeys(criteria) {
		criterion, ok := criteria[name].(map[string]any)
		if !ok {
			continue
		}
		repos, ok := criterion["repos"].([]any)
		if !ok {
			continue
		}

		mapped := map[string]any{}
		for _, entry := range repos {
			repo, ok := entry.(map[string]any)
			if !ok {
				return nil, validationErrorf("criterion <%s> repos entries must be objects", name)
			}
			repoURL, _ := repo["repo_url"].(string)
			delete(repo, "repo_url")

			key := thisRepoKey
			if k, ok := urlToKey[repoURL]; ok {
				key = k
			}

			if commands := toStringList(repo["commands"]); len(commands) > 0 {
				checkoutDir := "."
				if repoURL != "" {
					dir, err := RepoKey(repoURL)
					if err != nil {
						return nil, err
					}
					checkoutDir = dir
				}
				script := CommandsScript{
					Data:     commandsScriptData(checkoutDir, commands),
					FileName: commandsScriptName(namer.Token()),
				}
				scripts = append(scripts, script)
				repo["commands"] = []any{"./" + script.FileName}
			}

			mapped[key] = repo
		}
		criterion["repos"] = mapped
	}

	return scripts, nil
}

// splitWhenCriteria pulls every criterion carrying a `when` predicate out of
// the shared config document into its own document. The shared document
// keeps the rest and stays first in the returned slice.
func splitWhenCriteria(cfg map[string]any) []configDoc {
	criteria, ok := cfg["sqa_criteria"].(map[string]any)
	if !ok {
		return []configDoc{{data: cfg}}
	}

	var when []configDoc
	for _, name := range sortedKeys(criteria) {
		criterion, ok := criteria[name].(map[string]any)
		if !ok {
			continue
		}
		predicate, ok := criterion["when"].(map[string]any)
		if !ok {
			continue
		}
		delete(criterion, "when")
		delete(criteria, name)

		doc := deepCopy(cfg)
		doc["sqa_criteria"] = map[string]any{name: criterion}
		when = append(when, configDoc{data: doc, when: predicate})
	}

	return append([]configDoc{{data: cfg}}, when...)
}

type configDoc struct {
	data map[string]any
	when map[string]any
}

func commandsScriptData(checkoutDir string, commands []string) string {
	return fmt.Sprintf("#!/bin/sh\ncd %s && %s\n", checkoutDir, strings.Join(commands, " && "))
}

func toStringList(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
