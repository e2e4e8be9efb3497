package jepl

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNormalizeComposerRegistry(t *testing.T) {
	composer := map[string]any{
		"services": map[string]any{
			"builder": map[string]any{
				"image": map[string]any{
					"name": "myorg/builder:2",
					"registry": map[string]any{
						"push":          true,
						"url":           "https://registry.example",
						"credential_id": "dockerhub-creds",
					},
				},
			},
		},
	}
	environment := map[string]any{}

	if err := normalizeComposer(composer, environment); err != nil {
		t.Fatalf("normalizeComposer() error = %v", err)
	}

	service := composer["services"].(map[string]any)["builder"].(map[string]any)
	if got := service["image"]; got != "myorg/builder:2" {
		t.Errorf("image = %v, want collapsed name", got)
	}
	if got := environment[envDockerPush]; got != "builder" {
		t.Errorf("%s = %v, want builder", envDockerPush, got)
	}
	if got := environment[envDockerServer]; got != "https://registry.example" {
		t.Errorf("%s = %v", envDockerServer, got)
	}
}

func TestNormalizeComposerPushWithoutCredentials(t *testing.T) {
	composer := map[string]any{
		"services": map[string]any{
			"builder": map[string]any{
				"image": map[string]any{
					"name":     "myorg/builder:2",
					"registry": map[string]any{"push": true},
				},
			},
		},
	}

	err := normalizeComposer(composer, map[string]any{})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("normalizeComposer() error = %v, want ValidationError", err)
	}
}

func TestNormalizeComposerDefaultVolume(t *testing.T) {
	composer := map[string]any{
		"services": map[string]any{
			"tester": map[string]any{
				"image":    map[string]any{"name": "golang:1"},
				"hostname": "",
			},
		},
	}

	if err := normalizeComposer(composer, map[string]any{}); err != nil {
		t.Fatalf("normalizeComposer() error = %v", err)
	}

	service := composer["services"].(map[string]any)["tester"].(map[string]any)
	wantVolumes := []any{map[string]any{
		"type":   "bind",
		"source": "./",
		"target": "/sqaaas-build",
	}}
	if diff := cmp.Diff(wantVolumes, service["volumes"]); diff != "" {
		t.Errorf("volumes mismatch (-want +got):\n%s", diff)
	}
	if got := service["working_dir"]; got != "/sqaaas-build" {
		t.Errorf("working_dir = %v", got)
	}
	if _, ok := service["hostname"]; ok {
		t.Errorf("empty hostname was not removed")
	}
}

func TestNormalizeComposerKeepsDeclaredVolumes(t *testing.T) {
	composer := map[string]any{
		"services": map[string]any{
			"tester": map[string]any{
				"image": map[string]any{"name": "golang:1"},
				"volumes": []any{map[string]any{
					"type":   "bind",
					"source": "./src",
					"target": "/work",
				}},
			},
		},
	}

	if err := normalizeComposer(composer, map[string]any{}); err != nil {
		t.Fatalf("normalizeComposer() error = %v", err)
	}

	service := composer["services"].(map[string]any)["tester"].(map[string]any)
	if got := service["working_dir"]; got != "/work" {
		t.Errorf("working_dir = %v, want target of first declared volume", got)
	}
}

func TestAppendWord(t *testing.T) {
	for _, tc := range []struct {
		current any
		word    string
		want    string
	}{
		{nil, "a", "a"},
		{"a", "b", "a b"},
		{"a b", "a", "a b"},
	} {
		if got := appendWord(tc.current, tc.word); got != tc.want {
			t.Errorf("appendWord(%v, %q) = %q, want %q", tc.current, tc.word, got, tc.want)
		}
	}
}
