package graph

import (
	"fmt"
	"strings"

	"github.com/elata-eeg/daqd/internal/packet"
	"github.com/elata-eeg/daqd/internal/pool"
	"github.com/elata-eeg/daqd/internal/queue"
)

// Node is one stage in the built graph, with its resolved input queues
// (by port name) and output queues (by port name), ready for the
// executor to drive.
type Node struct {
	ID     string
	Type   string
	Params map[string]interface{}

	Inputs  map[string]*queue.Queue
	Outputs map[string]*queue.Queue
}

// Graph is a built, topologically-ordered pipeline: nodes in execution
// order, the pool manager backing every connection, and an index of the
// nodes by stage id.
type Graph struct {
	Config *Config
	Pools  *pool.Manager

	Order []*Node
	byID  map[string]*Node
}

// Node looks up a built node by stage id.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.byID[id]
	return n, ok
}

func splitPortRef(ref PortRef) (stage, port string, err error) {
	s := string(ref)
	i := strings.LastIndex(s, ".")
	if i < 0 {
		return "", "", fmt.Errorf("graph: malformed port reference %q, want \"stage.port\"", s)
	}
	return s[:i], s[i+1:], nil
}

func elementFromName(name string) (packet.Element, error) {
	switch name {
	case "raw_sample":
		return packet.ElementRawSample, nil
	case "voltage":
		return packet.ElementVoltage, nil
	case "filtered":
		return packet.ElementFiltered, nil
	case "psd":
		return packet.ElementPSD, nil
	default:
		return 0, fmt.Errorf("graph: unknown element type %q", name)
	}
}

func policyFromName(name string) (queue.Policy, error) {
	switch name {
	case "", "block":
		return queue.Block, nil
	case "drop_oldest":
		return queue.DropOldest, nil
	case "drop_newest":
		return queue.DropNewest, nil
	case "error":
		return queue.Error, nil
	default:
		return 0, fmt.Errorf("graph: unknown overflow policy %q", name)
	}
}

// Build constructs a Graph from a parsed Config: it declares every memory
// pool, creates one queue per connected input port (connections that fan
// in to the same port share it), wires each node's named input and output
// ports, and orders the nodes topologically so the executor can start
// producers before their consumers.
func Build(cfg *Config) (*Graph, error) {
	pools := pool.NewManager()
	for _, pc := range cfg.MemoryPools {
		elem, err := elementFromName(pc.ElementType)
		if err != nil {
			return nil, err
		}
		if pc.BatchCapacity <= 0 || pc.PoolDepth <= 0 {
			return nil, fmt.Errorf("graph: pool %q needs positive batch_capacity and pool_depth", pc.ID)
		}
		if _, err := pools.Declare(pc.ID, elem, pc.BatchCapacity, pc.PoolDepth); err != nil {
			return nil, err
		}
	}

	byID := make(map[string]*Node, len(cfg.Stages))
	for _, sc := range cfg.Stages {
		byID[sc.ID] = &Node{
			ID:      sc.ID,
			Type:    sc.Type,
			Params:  sc.Params,
			Inputs:  make(map[string]*queue.Queue),
			Outputs: make(map[string]*queue.Queue),
		}
	}

	adjacency := make(map[string][]string, len(byID))
	indegree := make(map[string]int, len(byID))
	for id := range byID {
		indegree[id] = 0
	}

	type parsedConn struct {
		fromStage, fromPort string
		toStage, toPort     string
		policy              queue.Policy
		capacity            int
	}

	parsed := make([]parsedConn, 0, len(cfg.Connections))
	toCount := make(map[string]int, len(cfg.Connections))
	for _, cc := range cfg.Connections {
		fromStage, fromPort, err := splitPortRef(cc.From)
		if err != nil {
			return nil, err
		}
		toStage, toPort, err := splitPortRef(cc.To)
		if err != nil {
			return nil, err
		}
		if _, ok := byID[fromStage]; !ok {
			return nil, fmt.Errorf("graph: connection references unknown stage %q", fromStage)
		}
		if _, ok := byID[toStage]; !ok {
			return nil, fmt.Errorf("graph: connection references unknown stage %q", toStage)
		}
		policy, err := policyFromName(cc.Policy)
		if err != nil {
			return nil, err
		}
		parsed = append(parsed, parsedConn{fromStage, fromPort, toStage, toPort, policy, cc.Capacity})
		toCount[toStage+"."+toPort]++
	}

	// inputQueues keys a built queue by "stage.port" so that every
	// connection targeting the same input port shares one queue: a port
	// fed by more than one producer gets an MPSC queue, everything else
	// gets the default SPSC. The first connection to reach a port decides
	// its capacity and overflow policy.
	inputQueues := make(map[string]*queue.Queue, len(parsed))
	for _, pc := range parsed {
		fromNode := byID[pc.fromStage]
		toNode := byID[pc.toStage]

		if _, exists := fromNode.Outputs[pc.fromPort]; exists {
			return nil, fmt.Errorf("graph: output port %s.%s already has a connection", pc.fromStage, pc.fromPort)
		}

		key := pc.toStage + "." + pc.toPort
		q, ok := inputQueues[key]
		if !ok {
			if toCount[key] > 1 {
				q = queue.NewMPSC(pc.capacity, pc.policy)
			} else {
				q = queue.NewSPSC(pc.capacity, pc.policy)
			}
			inputQueues[key] = q
			toNode.Inputs[pc.toPort] = q
		}
		fromNode.Outputs[pc.fromPort] = q

		adjacency[pc.fromStage] = append(adjacency[pc.fromStage], pc.toStage)
		indegree[pc.toStage]++
	}

	declOrder := make([]string, 0, len(cfg.Stages))
	for _, sc := range cfg.Stages {
		declOrder = append(declOrder, sc.ID)
	}

	order, err := topologicalSort(byID, adjacency, indegree, declOrder)
	if err != nil {
		return nil, err
	}

	return &Graph{Config: cfg, Pools: pools, Order: order, byID: byID}, nil
}

// topologicalSort performs Kahn's algorithm over the stage dependency
// graph, producing a deterministic order (ties broken by declaration
// order, i.e. declOrder's order, which the caller builds from
// cfg.Stages rather than a map) and rejecting any cycle as a
// configuration error.
func topologicalSort(byID map[string]*Node, adjacency map[string][]string, indegree map[string]int, declOrder []string) ([]*Node, error) {
	remaining := make(map[string]int, len(indegree))
	for id, d := range indegree {
		remaining[id] = d
	}

	var ready []string
	for _, id := range declOrder {
		if remaining[id] == 0 {
			ready = append(ready, id)
		}
	}

	var order []*Node
	visited := make(map[string]bool, len(byID))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		if visited[id] {
			continue
		}
		visited[id] = true
		order = append(order, byID[id])
		for _, next := range adjacency[id] {
			remaining[next]--
			if remaining[next] == 0 {
				ready = append(ready, next)
			}
		}
	}

	if len(order) != len(byID) {
		var stuck []string
		for id := range byID {
			if !visited[id] {
				stuck = append(stuck, id)
			}
		}
		return nil, fmt.Errorf("graph: cycle detected among stages %v", stuck)
	}
	return order, nil
}
