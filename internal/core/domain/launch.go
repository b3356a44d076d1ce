package domain

import "github.com/docker/docker/api/types/container"

// BuildSpec asks for the instance image to be built from a git repository
// instead of pulled.
type BuildSpec struct {
	Repo       string `json:"Repo"`
	Ref        string `json:"Ref,omitempty"`
	Dockerfile string `json:"Dockerfile,omitempty"`
}

// LaunchSpec is a rendered template: the container configuration, the host
// configuration and an optional build step.
type LaunchSpec struct {
	Config *container.Config
	Host   *container.HostConfig
	Build  *BuildSpec
}
