package requests

// NodeType selects what a [NodeRequestDTO] creates
type NodeType string

const (
	FileNode NodeType = "file"
	DirNode  NodeType = "dir"
	LinkNode NodeType = "symlink"
)

// TreeDTO is the file representation of a tree to seed a container with.
// Entries are applied in order except links, which are applied last so they
// may point at anything else in the tree.
type TreeDTO struct {
	Nodes []NodeRequestDTO `yaml:"nodes" json:"nodes" validate:"dive"`
}

// NodeRequestDTO is the YAML/JSON representation of a single node request
type NodeRequestDTO struct {
	Path     string   `yaml:"path" json:"path" validate:"required,startswith=/"`
	Type     NodeType `yaml:"type" json:"type" validate:"required,oneof=file dir symlink"`
	Perms    *uint32  `yaml:"perms,omitempty" json:"perms,omitempty" validate:"omitempty,lte=4095"` // i.e. 0644
	OwnerUID *uint32  `yaml:"owner_uid,omitempty" json:"owner_uid,omitempty"`
	OwnerGID *uint32  `yaml:"owner_gid,omitempty" json:"owner_gid,omitempty"`

	// Content is the inline content of a file
	Content *string `yaml:"content,omitempty" json:"content,omitempty"`
	// Target is the absolute path a symlink points at. It must exist once
	// all non-link entries are applied.
	Target string `yaml:"target,omitempty" json:"target,omitempty" validate:"required_if=Type symlink"`
}
