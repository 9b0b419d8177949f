package id

import (
	"sync"

	"github.com/bwmarrin/snowflake"
)

// defaultNode is used when New is called before Init. A single-process batch
// job has no other nodes to collide with.
const defaultNode = 1

var (
	node    *snowflake.Node
	nodeErr error
	once    sync.Once
)

// Init initializes the Snowflake node with the given node ID. Only the first
// call has any effect.
func Init(nodeID int64) error {
	once.Do(func() {
		node, nodeErr = snowflake.NewNode(nodeID)
	})
	return nodeErr
}

// New generates a time-ordered run ID.
func New() int64 {
	if err := Init(defaultNode); err != nil {
		// defaultNode is within the valid node range; NewNode cannot fail for it.
		panic(err)
	}
	return node.Generate().Int64()
}
