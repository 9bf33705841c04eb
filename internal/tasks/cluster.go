package tasks

import (
	"context"
	"fmt"
	"strings"

	"github.com/faultline/faultline/internal/evidence"
	"github.com/faultline/faultline/internal/tools"
)

const clusterSystemPrompt = `You are a cluster health agent investigating a production incident. Your job is to find pod, node, or scheduling problems affecting the service.

Use the cluster tool to inspect pods, recent events, and resource pressure in the service's namespace. Only read; you cannot mutate the cluster.

When you are done, respond with a single JSON object and nothing else:
{
  "summary": "one-paragraph diagnosis of the cluster state",
  "unhealthy_pods": ["pod names with restarts, OOMKills or pending state"],
  "events": ["notable warning events"],
  "confidence": 0-100
}

Rules:
1. Quote restart counts and event reasons verbatim.
2. An all-healthy namespace is a finding; report it with an empty unhealthy_pods list.`

type clusterTask struct{}

func (clusterTask) Kind() Kind { return KindClusterHealth }

func (clusterTask) Prerequisite(_ Context, src Sources) string {
	if src.KubectlPath == "" {
		return "no cluster access configured"
	}
	return ""
}

func (t clusterTask) Run(ctx context.Context, tc Context, src Sources) Outcome {
	if reason := t.Prerequisite(tc, src); reason != "" {
		return Skip(KindClusterHealth, reason)
	}
	rec := evidence.NewRecorder(tc.SessionID, string(KindClusterHealth))
	reg := tools.NewRegistry()
	reg.Register(tools.NewClusterTool(src.KubectlPath, tc.Namespace, rec))

	res := runLoop(ctx, KindClusterHealth, tc, src, reg, rec, clusterSystemPrompt, clusterPrompt(tc))
	return outcomeFromResult(KindClusterHealth, res, rec, decodeClusterReport)
}

func clusterPrompt(tc Context) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Incident: %s\nService: %s\n", tc.Description, tc.Service)
	if tc.Namespace != "" {
		fmt.Fprintf(&b, "Namespace: %s\n", tc.Namespace)
	}
	b.WriteString("\nInspect the workloads backing the service and report anything unhealthy.")
	return b.String()
}
