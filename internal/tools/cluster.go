package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/faultline/faultline/internal/evidence"
)

// clusterVerbs is the closed set of kubectl verbs the cluster tool will
// run. Everything mutating is absent on purpose.
var clusterVerbs = map[string]bool{
	"get":      true,
	"describe": true,
	"logs":     true,
	"events":   true,
	"top":      true,
	"version":  true,
}

// ClusterTool inspects Kubernetes state through read-only kubectl verbs.
type ClusterTool struct {
	kubectlPath string
	namespace   string
	recorder    *evidence.Recorder
}

// NewClusterTool creates a cluster inspection tool. kubectlPath defaults to
// "kubectl" when empty; namespace scopes every invocation when set.
func NewClusterTool(kubectlPath, namespace string, rec *evidence.Recorder) *ClusterTool {
	if kubectlPath == "" {
		kubectlPath = "kubectl"
	}
	return &ClusterTool{kubectlPath: kubectlPath, namespace: namespace, recorder: rec}
}

func (t *ClusterTool) Name() string { return "cluster_inspect" }

func (t *ClusterTool) Description() string {
	return "Inspect Kubernetes resources with read-only kubectl verbs (get, describe, logs, events, top)."
}

func (t *ClusterTool) Tier() int { return TierShell }

func (t *ClusterTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"verb": map[string]any{
				"type":        "string",
				"description": "kubectl verb: get, describe, logs, events, top, version",
			},
			"args": map[string]any{
				"type":        "string",
				"description": "Space-separated arguments, e.g. 'pods -l app=checkout' or 'pod/checkout-7d4f'",
			},
		},
		"required": []string{"verb"},
	}
}

func (t *ClusterTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	verb := strings.ToLower(strings.TrimSpace(GetString(params, "verb", "")))
	if !clusterVerbs[verb] {
		return fmt.Sprintf("Error: verb %q is not allowed; use one of get, describe, logs, events, top, version", verb), nil
	}

	argv := []string{t.kubectlPath, verb}
	if t.namespace != "" && verb != "version" {
		argv = append(argv, "-n", t.namespace)
	}
	for _, a := range strings.Fields(GetString(params, "args", "")) {
		argv = append(argv, a)
	}

	if t.recorder != nil {
		t.recorder.Breadcrumb(fmt.Sprintf("kubectl %s %s", verb, GetString(params, "args", "")), "cluster")
	}
	out := runCommand(ctx, "", argv...)
	if isEmptyClusterResult(out) && t.recorder != nil {
		t.recorder.Negative(fmt.Sprintf("kubectl %s results", verb), "cluster", "no resources found")
	}
	return out, nil
}

func isEmptyClusterResult(out string) bool {
	s := strings.ToLower(out)
	return strings.Contains(s, "no resources found") || strings.TrimSpace(out) == "(no output)"
}
