package registry

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrProjectNotFound is returned when a project name has no match.
var ErrProjectNotFound = errors.New("project not found")

// Project is a named group of contract addresses on one chain.
type Project struct {
	Name              string            `yaml:"name" json:"name"`
	Chain             string            `yaml:"chain" json:"chain"`
	Description       string            `yaml:"description" json:"description"`
	Logo              string            `yaml:"logo" json:"logo"`
	ContractAddresses map[string]string `yaml:"contract_address" json:"contract_address"`
}

// Contract is a single labelled address of a project.
type Contract struct {
	Label   string `json:"label"`
	Address string `json:"address"`
}

// Contracts returns the project's addresses sorted by label.
func (p Project) Contracts() []Contract {
	out := make([]Contract, 0, len(p.ContractAddresses))
	for label, addr := range p.ContractAddresses {
		out = append(out, Contract{Label: label, Address: addr})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

// Bridge describes a liquidity monitor: an address whose balance of Token
// is the bridge's available liquidity.
type Bridge struct {
	Name        string          `yaml:"name" json:"name"`
	Chain       string          `yaml:"chain" json:"chain"`
	Description string          `yaml:"description" json:"description"`
	Logo        string          `yaml:"logo" json:"logo"`
	Addresses   BridgeAddresses `yaml:"contract_address" json:"contract_address"`
}

// BridgeAddresses holds the monitor address and the measured token.
type BridgeAddresses struct {
	LiquidityMonitor string `yaml:"liquidityMonitor" json:"liquidityMonitor"`
	Token            string `yaml:"hskToken" json:"hskToken"`
}

// LiquidityMonitor returns the address holding the bridge liquidity.
func (b Bridge) LiquidityMonitor() string { return b.Addresses.LiquidityMonitor }

// Token returns the ERC-20 contract whose balance is measured.
func (b Bridge) Token() string { return b.Addresses.Token }

// Registry lists the static configuration the aggregation runs over.
type Registry interface {
	Projects() ([]Project, error)
	Bridges() ([]Bridge, error)
}

// Files reads projects and bridges from disk on every call so edits are
// picked up without a restart. JSON and YAML are both accepted.
type Files struct {
	ProjectsPath string
	BridgesPath  string
}

type projectsFile struct {
	Projects []Project `yaml:"projects"`
}

func (f Files) Projects() ([]Project, error) {
	data, err := os.ReadFile(f.ProjectsPath)
	if err != nil {
		return nil, fmt.Errorf("read projects: %w", err)
	}
	return ParseProjects(data)
}

func (f Files) Bridges() ([]Bridge, error) {
	if f.BridgesPath == "" {
		return nil, nil
	}
	data, err := os.ReadFile(f.BridgesPath)
	if err != nil {
		return nil, fmt.Errorf("read bridges: %w", err)
	}
	return ParseBridges(data)
}

// ParseProjects decodes a {"projects": [...]} document and rejects
// duplicate names (compared case-insensitively).
func ParseProjects(data []byte) ([]Project, error) {
	var pf projectsFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("decode projects: %w", err)
	}
	seen := make(map[string]bool, len(pf.Projects))
	for _, p := range pf.Projects {
		if p.Name == "" {
			return nil, errors.New("decode projects: project without name")
		}
		key := strings.ToLower(p.Name)
		if seen[key] {
			return nil, fmt.Errorf("decode projects: duplicate project %q", p.Name)
		}
		seen[key] = true
	}
	return pf.Projects, nil
}

// ParseBridges decodes a top-level list of bridge configs.
func ParseBridges(data []byte) ([]Bridge, error) {
	var bridges []Bridge
	if err := yaml.Unmarshal(data, &bridges); err != nil {
		return nil, fmt.Errorf("decode bridges: %w", err)
	}
	return bridges, nil
}

// Find returns the project whose name matches case-insensitively.
func Find(projects []Project, name string) (Project, error) {
	for _, p := range projects {
		if strings.EqualFold(p.Name, name) {
			return p, nil
		}
	}
	return Project{}, fmt.Errorf("%w: %s", ErrProjectNotFound, name)
}

// ContractCount is the number of configured addresses across projects.
func ContractCount(projects []Project) int {
	n := 0
	for _, p := range projects {
		n += len(p.ContractAddresses)
	}
	return n
}
