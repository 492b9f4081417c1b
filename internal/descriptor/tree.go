package descriptor

// Item is one tracked file inside a descriptor: Tag is the item type (the
// element name) and Include the path relative to the descriptor directory.
type Item struct {
	Tag     string
	Include string
}

// Tree is the narrow view of a parsed descriptor used by the mutation
// logic. Implementations own formatting: Serialize must reproduce untouched
// input as closely as the backend allows.
type Tree interface {
	Items() []Item
	FindItems(match func(Item) bool) []Item
	AddItem(item Item)
	RemoveItems(match func(Item) bool) int
	Clone() Tree
	Serialize() ([]byte, error)
}

// ParseFunc builds a Tree from raw descriptor bytes.
type ParseFunc func(data []byte) (Tree, error)
