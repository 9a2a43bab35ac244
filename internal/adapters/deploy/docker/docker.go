// Package docker deletes the container workloads backing agents. The labels
// written at provisioning time (fleet.deployment, fleet.namespace) are the
// lookup key; the engine never addresses containers by raw id.
package docker

import (
	"context"
	"fmt"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"

	"github.com/VeriTeknik/pluggedin-app-sub006/internal/core/logger"
)

const (
	labelDeployment = "fleet.deployment"
	labelNamespace  = "fleet.namespace"

	stopTimeoutSeconds = 30
)

type Client struct {
	cli *client.Client
}

func NewClient() (*Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, err
	}
	return &Client{cli: cli}, nil
}

// DeleteDeployment stops and removes every container carrying the deployment
// labels. Missing containers are not an error; the deployment may already be
// gone.
func (c *Client) DeleteDeployment(ctx context.Context, name, namespace string) error {
	args := filters.NewArgs(
		filters.Arg("label", fmt.Sprintf("%s=%s", labelDeployment, name)),
		filters.Arg("label", fmt.Sprintf("%s=%s", labelNamespace, namespace)),
	)

	containers, err := c.cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: args,
	})
	if err != nil {
		return fmt.Errorf("list containers for %s/%s: %w", namespace, name, err)
	}

	if len(containers) == 0 {
		logger.InfoContext(ctx, "no containers found for deployment",
			"deployment", name, "namespace", namespace)
		return nil
	}

	timeout := stopTimeoutSeconds
	var lastErr error
	for _, ctr := range containers {
		if err := c.cli.ContainerStop(ctx, ctr.ID, container.StopOptions{Timeout: &timeout}); err != nil {
			logger.WarnContext(ctx, "container stop failed, forcing removal",
				"container_id", ctr.ID, "error", err)
		}
		if err := c.cli.ContainerRemove(ctx, ctr.ID, container.RemoveOptions{Force: true}); err != nil {
			lastErr = fmt.Errorf("remove container %s: %w", ctr.ID, err)
			logger.WarnContext(ctx, "container removal failed", "container_id", ctr.ID, "error", err)
			continue
		}
		logger.InfoContext(ctx, "container removed",
			"container_id", ctr.ID, "deployment", name, "namespace", namespace)
	}
	return lastErr
}

func (c *Client) Close() error {
	return c.cli.Close()
}
