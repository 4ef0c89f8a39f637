package bootstrap

import (
	"os"
	"strings"
)

// EnvironmentType represents the broad category of deployment
type EnvironmentType string

const (
	EnvTypeHost          EnvironmentType = "host"
	EnvTypeContainerized EnvironmentType = "containerized"
)

// ContainerRuntime represents specific container runtime
type ContainerRuntime string

const (
	RuntimeDocker     ContainerRuntime = "docker"
	RuntimeKubernetes ContainerRuntime = "kubernetes"
	RuntimePodman     ContainerRuntime = "podman"
)

// Probe locations, replaced in tests
var (
	dockerEnvPath = "/.dockerenv"
	cgroupPath    = "/proc/1/cgroup"
)

// DetectEnvironment gathers evidence about the execution environment
func DetectEnvironment() []Evidence {
	var evidence []Evidence

	if host := os.Getenv("KUBERNETES_SERVICE_HOST"); host != "" {
		evidence = append(evidence, NewEvidence(
			CategoryEnvironment, "container_runtime", string(RuntimeKubernetes),
			0.98, "environment", "KUBERNETES_SERVICE_HOST set",
		).WithRaw(map[string]any{"service_host": host}))
	}
	if os.Getenv("container") == "podman" {
		evidence = append(evidence, NewEvidence(
			CategoryEnvironment, "container_runtime", string(RuntimePodman),
			0.88, "environment", "container=podman env var",
		))
	}
	if _, err := os.Stat(dockerEnvPath); err == nil {
		evidence = append(evidence, NewEvidence(
			CategoryEnvironment, "container_runtime", string(RuntimeDocker),
			0.95, "filesystem", dockerEnvPath+" exists",
		))
	}
	if cgroup := readFileSafe(cgroupPath); cgroup != "" {
		switch {
		case strings.Contains(cgroup, "kubepods"):
			evidence = append(evidence, NewEvidence(
				CategoryEnvironment, "container_runtime", string(RuntimeKubernetes),
				0.92, "procfs", cgroupPath+" contains 'kubepods'",
			))
		case strings.Contains(cgroup, "docker-") || strings.Contains(cgroup, "/docker/"):
			evidence = append(evidence, NewEvidence(
				CategoryEnvironment, "container_runtime", string(RuntimeDocker),
				0.90, "procfs", cgroupPath+" contains 'docker'",
			))
		}
	}

	envType := EnvTypeHost
	confidence := 0.7
	if len(evidence) > 0 {
		envType = EnvTypeContainerized
		confidence = 0.95
	}
	evidence = append(evidence, NewEvidence(
		CategoryEnvironment, "environment_type", string(envType),
		confidence, "inference", "from container runtime evidence",
	))

	return evidence
}

func readFileSafe(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return string(data)
}
