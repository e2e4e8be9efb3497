package jepl

import (
	"sort"
	"strings"
)

// Environment variables understood by the jenkins-pipeline-library when
// pushing images built during the pipeline.
const (
	envDockerPush   = "JPL_DOCKERPUSH"
	envDockerServer = "JPL_DOCKERSERVER"
)

// Default bind volume injected when a service declares none. The target is
// also where the pipeline workspace gets mounted.
const defaultVolumeTarget = "/sqaaas-build"

// normalizeComposer rewrites the composer document in place so it becomes a
// valid docker-compose file, moving registry data into JPL_* environment
// variables on the config document's environment mapping.
func normalizeComposer(composer, environment map[string]any) error {
	services, ok := composer["services"].(map[string]any)
	if !ok {
		return validationErrorf("composer data has no services")
	}

	// Service order decides the JPL_DOCKERPUSH word order, so walk the
	// names sorted.
	names := make([]string, 0, len(services))
	for name := range services {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		service, ok := services[name].(map[string]any)
		if !ok {
			continue
		}

		if err := collapseImage(name, service, environment); err != nil {
			return err
		}

		volumes, ok := service["volumes"].([]any)
		if !ok || len(volumes) == 0 {
			volumes = []any{map[string]any{
				"type":   "bind",
				"source": "./",
				"target": defaultVolumeTarget,
			}}
			service["volumes"] = volumes
		}
		if first, ok := volumes[0].(map[string]any); ok {
			if target, ok := first["target"].(string); ok && target != "" {
				service["working_dir"] = target
			}
		}

		removeEmpty(service)
	}

	removeEmpty(composer)
	return nil
}

// collapseImage reduces the image sub-object to its name string, translating
// any registry block into environment variables on the config document.
func collapseImage(serviceName string, service, environment map[string]any) error {
	image, ok := service["image"].(map[string]any)
	if !ok {
		return nil
	}

	if registry, ok := image["registry"].(map[string]any); ok {
		push, _ := registry["push"].(bool)
		if push {
			credentialID, _ := registry["credential_id"].(string)
			if credentialID == "" {
				return validationErrorf("missing credential_id for pushing image of service <%s>", serviceName)
			}
			environment[envDockerPush] = appendWord(environment[envDockerPush], serviceName)
			// Last registry wins when several services push to
			// different servers.
			if url, _ := registry["url"].(string); url != "" {
				environment[envDockerServer] = url
			}
		}
		delete(image, "registry")
	}

	if name, ok := image["name"].(string); ok {
		service["image"] = name
	}
	return nil
}

// appendWord appends word to a space-separated list unless already present.
func appendWord(value any, word string) string {
	current, _ := value.(string)
	if current == "" {
		return word
	}
	for _, w := range strings.Fields(current) {
		if w == word {
			return current
		}
	}
	return current + " " + word
}

// removeEmpty drops every property whose value is an empty container or
// empty string.
func removeEmpty(m map[string]any) {
	for key, value := range m {
		switch v := value.(type) {
		case string:
			if v == "" {
				delete(m, key)
			}
		case map[string]any:
			removeEmpty(v)
			if len(v) == 0 {
				delete(m, key)
			}
		case []any:
			if len(v) == 0 {
				delete(m, key)
			}
		case nil:
			delete(m, key)
		}
	}
}
