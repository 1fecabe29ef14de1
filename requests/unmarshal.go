package requests

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/brettbedarf/memfs/config"
	"github.com/brettbedarf/memfs/internal/util"
)

// NodeRequest holds the fields every node request shares, with defaults
// applied
type NodeRequest struct {
	Path  string
	Type  NodeType
	Perms uint32
	// nil keeps the identity the container stamps on new nodes
	OwnerUID *uint32
	OwnerGID *uint32
}

type FileRequest struct {
	NodeRequest
	Content []byte
}

type DirRequest struct {
	NodeRequest
}

type LinkRequest struct {
	NodeRequest
	Target string
}

// Request is a converted node request ready to be applied to a container
type Request interface {
	Base() *NodeRequest
}

func (r *NodeRequest) Base() *NodeRequest { return r }

// Tree is a parsed and validated tree definition. Requests keeps the
// declared order with every link moved behind the files and directories.
type Tree struct {
	Requests []Request
}

var validate = validator.New()

// Format selects the decoder for a tree definition
type Format int

const (
	YAML Format = iota
	JSON
)

// FormatOf picks the format from a file extension
func FormatOf(name string) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return YAML, nil
	case ".json":
		return JSON, nil
	}
	return 0, fmt.Errorf("unknown tree file extension: %s", name)
}

// LoadFile reads and parses the tree definition at name. Defaults for
// missing permissions come from cfg.
func LoadFile(name string, cfg *config.Config) (*Tree, error) {
	format, err := FormatOf(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, err
	}
	return Unmarshal(data, format, cfg)
}

// Unmarshal decodes, validates and converts a tree definition
func Unmarshal(data []byte, format Format, cfg *config.Config) (*Tree, error) {
	var dto TreeDTO
	var err error
	switch format {
	case YAML:
		err = yaml.Unmarshal(data, &dto)
	case JSON:
		err = json.Unmarshal(data, &dto)
	default:
		err = fmt.Errorf("unknown format %d", format)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal tree: %w", err)
	}
	if err := validate.Struct(&dto); err != nil {
		return nil, formatValidationError(err)
	}

	tree := &Tree{}
	var links []Request
	for i, nodeDTO := range dto.Nodes {
		if err := checkNodeDTO(nodeDTO); err != nil {
			return nil, fmt.Errorf("nodes[%d]: %w", i, err)
		}
		node := convertNodeDTO(nodeDTO, cfg)
		switch nodeDTO.Type {
		case FileNode:
			var content []byte
			if nodeDTO.Content != nil {
				content = []byte(*nodeDTO.Content)
			}
			tree.Requests = append(tree.Requests, &FileRequest{NodeRequest: node, Content: content})
		case DirNode:
			tree.Requests = append(tree.Requests, &DirRequest{NodeRequest: node})
		case LinkNode:
			links = append(links, &LinkRequest{NodeRequest: node, Target: path.Clean(nodeDTO.Target)})
		}
	}
	tree.Requests = append(tree.Requests, links...)
	logger := util.GetLogger("requests.Unmarshal")
	logger.Debug().
		Int("requests", len(tree.Requests)).
		Int("links", len(links)).
		Msg("Parsed tree")
	return tree, nil
}

// checkNodeDTO enforces the per-type rules the struct tags cannot express
func checkNodeDTO(dto NodeRequestDTO) error {
	if path.Clean(dto.Path) == "/" {
		return fmt.Errorf("path %q: the root cannot be requested", dto.Path)
	}
	if dto.Content != nil && dto.Type != FileNode {
		return fmt.Errorf("path %q: content is only valid for files", dto.Path)
	}
	if dto.Type == LinkNode && !strings.HasPrefix(dto.Target, "/") {
		return fmt.Errorf("path %q: link target %q must be absolute", dto.Path, dto.Target)
	}
	if dto.Type != LinkNode && dto.Target != "" {
		return fmt.Errorf("path %q: target is only valid for symlinks", dto.Path)
	}
	return nil
}

func convertNodeDTO(dto NodeRequestDTO, cfg *config.Config) NodeRequest {
	defaultPerms := cfg.FilePerms
	switch dto.Type {
	case DirNode:
		defaultPerms = cfg.DirPerms
	case LinkNode:
		defaultPerms = 0o777
	}
	return NodeRequest{
		Path:     path.Clean(dto.Path),
		Type:     dto.Type,
		Perms:    util.ValueOrDefault(dto.Perms, defaultPerms),
		OwnerUID: dto.OwnerUID,
		OwnerGID: dto.OwnerGID,
	}
}

func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
