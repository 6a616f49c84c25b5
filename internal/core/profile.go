package core

import (
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2/hclsimple"
)

// Profile holds the per-destination settings that shape a session:
// extra ssh arguments for the transport, extra companion arguments,
// environment for remote commands, and feature toggles.
type Profile struct {
	Name          string
	SSHArgs       []string
	CompanionArgs []string
	Environment   map[string]string
	ForwardAudio  bool
	TitlePrefix   string
	DebugProtocol bool
}

// HCL parsing structs

type hclProfiles struct {
	Destinations []hclDestination `hcl:"destination,block"`
}

type hclDestination struct {
	Name          string            `hcl:"name,label"`
	SSHArgs       []string          `hcl:"ssh_args,optional"`
	CompanionArgs []string          `hcl:"companion_args,optional"`
	Environment   map[string]string `hcl:"environment,optional"`
	ForwardAudio  *bool             `hcl:"forward_audio,optional"`
	TitlePrefix   string            `hcl:"title_prefix,optional"`
	DebugProtocol bool              `hcl:"debug_protocol,optional"`
}

// LoadProfiles reads the destination profile file. A missing file is
// not an error; it yields an empty profile set.
func LoadProfiles(filename string) (map[string]*Profile, error) {
	profiles := make(map[string]*Profile)

	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return profiles, nil
	}

	var hclCfg hclProfiles
	if err := hclsimple.DecodeFile(filename, nil, &hclCfg); err != nil {
		return nil, fmt.Errorf("failed to parse destination profiles: %w", err)
	}

	for _, dst := range hclCfg.Destinations {
		p := &Profile{
			Name:          dst.Name,
			SSHArgs:       dst.SSHArgs,
			CompanionArgs: dst.CompanionArgs,
			Environment:   dst.Environment,
			ForwardAudio:  true,
			TitlePrefix:   dst.TitlePrefix,
			DebugProtocol: dst.DebugProtocol,
		}
		if p.Environment == nil {
			p.Environment = make(map[string]string)
		}
		if dst.ForwardAudio != nil {
			p.ForwardAudio = *dst.ForwardAudio
		}
		profiles[dst.Name] = p
	}

	return profiles, nil
}
