// Package scaling tracks cluster membership: node specs, lifecycle state,
// shard assignment, and the rebalance plans that move shards between nodes
// as the cluster grows or shrinks.
package scaling

import (
	"fmt"

	"github.com/marmos91/dittofs/internal/logger"

	claudefserrors "github.com/marmos91/dittofs/pkg/claudefs/errors"
)

// Role describes the responsibilities a cluster node serves.
type Role int

const (
	RoleStorage Role = iota
	RoleMetadata
	RoleStorageAndMetadata
	RoleGateway
	RoleClient
)

// IsStorage reports whether the role participates in data storage.
func (r Role) IsStorage() bool {
	return r == RoleStorage || r == RoleStorageAndMetadata
}

// IsMetadata reports whether the role participates in metadata service.
func (r Role) IsMetadata() bool {
	return r == RoleMetadata || r == RoleStorageAndMetadata
}

// State is a cluster node's lifecycle state.
type State int

const (
	Joining State = iota
	Active
	Draining
	Drained
	Failed
	Decommissioned
)

func (s State) String() string {
	switch s {
	case Joining:
		return "joining"
	case Active:
		return "active"
	case Draining:
		return "draining"
	case Drained:
		return "drained"
	case Failed:
		return "failed"
	case Decommissioned:
		return "decommissioned"
	default:
		return "unknown"
	}
}

// IsServing reports whether the node currently takes client traffic.
func (s State) IsServing() bool {
	return s == Active
}

// CanTransitionTo reports whether target is a legal next state from s.
func (s State) CanTransitionTo(target State) bool {
	switch {
	case s == Joining && target == Active:
		return true
	case s == Joining && target == Failed:
		return true
	case s == Active && target == Draining:
		return true
	case s == Active && target == Failed:
		return true
	case s == Draining && target == Drained:
		return true
	case s == Draining && target == Failed:
		return true
	case s == Drained && target == Decommissioned:
		return true
	case s == Failed && target == Decommissioned:
		return true
	default:
		return false
	}
}

// Spec describes a node's identity and resources at join time.
type Spec struct {
	NodeID            string
	Address           string
	Role              Role
	NVMeCapacityBytes uint64
	RAMBytes          uint64
	CPUCores          uint32
}

// NewSpec creates a node spec.
func NewSpec(nodeID, address string, role Role, nvmeCapacityBytes, ramBytes uint64, cpuCores uint32) Spec {
	return Spec{
		NodeID:            nodeID,
		Address:           address,
		Role:              role,
		NVMeCapacityBytes: nvmeCapacityBytes,
		RAMBytes:          ramBytes,
		CPUCores:          cpuCores,
	}
}

// Node is a tracked cluster member.
type Node struct {
	Spec           Spec
	State          State
	AddedAt        uint64
	StateChangedAt uint64
	DataBytes      uint64
	Shards         []uint32
}

// NewNode creates a node in the Joining state.
func NewNode(spec Spec, now uint64) *Node {
	return &Node{
		Spec:           spec,
		State:          Joining,
		AddedAt:        now,
		StateChangedAt: now,
		Shards:         nil,
	}
}

// Transition moves the node to newState, recording the time of change.
// Callers validate legality via State.CanTransitionTo before calling this.
func (n *Node) Transition(newState State, now uint64) {
	n.State = newState
	n.StateChangedAt = now
}

// IsServing reports whether the node currently takes client traffic.
func (n *Node) IsServing() bool {
	return n.State.IsServing()
}

// FillPercent returns the node's NVMe occupancy as a percentage.
func (n *Node) FillPercent() float64 {
	if n.Spec.NVMeCapacityBytes == 0 {
		return 0.0
	}
	return (float64(n.DataBytes) / float64(n.Spec.NVMeCapacityBytes)) * 100.0
}

// AddShard assigns shardID to the node, idempotently.
func (n *Node) AddShard(shardID uint32) {
	for _, s := range n.Shards {
		if s == shardID {
			return
		}
	}
	n.Shards = append(n.Shards, shardID)
}

// RemoveShard unassigns shardID from the node.
func (n *Node) RemoveShard(shardID uint32) {
	out := n.Shards[:0]
	for _, s := range n.Shards {
		if s != shardID {
			out = append(out, s)
		}
	}
	n.Shards = out
}

// ShardCount returns the number of shards assigned to the node.
func (n *Node) ShardCount() int {
	return len(n.Shards)
}

// RebalanceTask moves one shard from one node to another.
type RebalanceTask struct {
	TaskID      string
	FromNode    string
	ToNode      string
	ShardID     uint32
	BytesTotal  uint64
	BytesMoved  uint64
	StartedAt   uint64
	CompletedAt *uint64
}

// NewRebalanceTask creates a task.
func NewRebalanceTask(from, to string, shardID uint32, bytesTotal, now uint64) RebalanceTask {
	return RebalanceTask{
		TaskID:     fmt.Sprintf("%d-%s->%s-%d", shardID, from, to, now),
		FromNode:   from,
		ToNode:     to,
		ShardID:    shardID,
		BytesTotal: bytesTotal,
		StartedAt:  now,
	}
}

// ProgressPercent returns the task's completion percentage.
func (t *RebalanceTask) ProgressPercent() float64 {
	if t.BytesTotal == 0 {
		return 100.0
	}
	return (float64(t.BytesMoved) / float64(t.BytesTotal)) * 100.0
}

// IsComplete reports whether the task has finished.
func (t *RebalanceTask) IsComplete() bool {
	return t.CompletedAt != nil
}

// Complete marks the task finished at now.
func (t *RebalanceTask) Complete(now uint64) {
	t.CompletedAt = &now
}

// UpdateProgress records bytesMoved, clamped to BytesTotal.
func (t *RebalanceTask) UpdateProgress(bytesMoved uint64) {
	if bytesMoved > t.BytesTotal {
		bytesMoved = t.BytesTotal
	}
	t.BytesMoved = bytesMoved
}

// TriggerKind discriminates what caused a scaling plan to be created.
type TriggerKind int

const (
	TriggerNodeAdded TriggerKind = iota
	TriggerNodeRemoved
	TriggerManual
	TriggerCapacityThreshold
)

// Trigger is a flattened ScalingTrigger: NodeID applies to NodeAdded/NodeRemoved,
// ThresholdPercent applies to CapacityThreshold.
type Trigger struct {
	Kind             TriggerKind
	NodeID           string
	ThresholdPercent float64
}

// Description renders a human-readable summary of the trigger.
func (t Trigger) Description() string {
	switch t.Kind {
	case TriggerNodeAdded:
		return fmt.Sprintf("Node added: %s", t.NodeID)
	case TriggerNodeRemoved:
		return fmt.Sprintf("Node removed: %s", t.NodeID)
	case TriggerManual:
		return "Manual scaling"
	case TriggerCapacityThreshold:
		return fmt.Sprintf("Capacity threshold: %g%%", t.ThresholdPercent)
	default:
		return "unknown trigger"
	}
}

// Plan is a set of rebalance tasks created in response to a Trigger.
type Plan struct {
	PlanID         string
	Trigger        Trigger
	Tasks          []RebalanceTask
	CreatedAt      uint64
	EstimatedBytes uint64
	CompletedTasks int
}

// NewPlan creates a scaling plan, summing task byte estimates.
func NewPlan(planID string, trigger Trigger, tasks []RebalanceTask, now uint64) Plan {
	var estimated uint64
	for _, t := range tasks {
		estimated += t.BytesTotal
	}
	return Plan{
		PlanID:         planID,
		Trigger:        trigger,
		Tasks:          tasks,
		CreatedAt:      now,
		EstimatedBytes: estimated,
	}
}

// TotalTasks returns the number of tasks in the plan.
func (p *Plan) TotalTasks() int {
	return len(p.Tasks)
}

// ProgressPercent returns the plan's completion percentage.
func (p *Plan) ProgressPercent() float64 {
	if len(p.Tasks) == 0 {
		return 0.0
	}
	return (float64(p.CompletedTasks) / float64(len(p.Tasks))) * 100.0
}

// IsComplete reports whether every task in the plan has completed.
func (p *Plan) IsComplete() bool {
	return p.CompletedTasks == len(p.Tasks)
}

// MarkTaskComplete marks the named task complete at now, if not already.
func (p *Plan) MarkTaskComplete(taskID string, now uint64) {
	for i := range p.Tasks {
		if p.Tasks[i].TaskID == taskID && !p.Tasks[i].IsComplete() {
			p.Tasks[i].Complete(now)
			p.CompletedTasks++
			return
		}
	}
}

// Manager tracks cluster nodes and their scaling plans.
type Manager struct {
	nodes map[string]*Node
	plans map[string]*Plan
}

// New creates an empty node scaling manager.
func New() *Manager {
	return &Manager{
		nodes: make(map[string]*Node),
		plans: make(map[string]*Plan),
	}
}

// AddNode registers a new cluster node.
func (m *Manager) AddNode(spec Spec, now uint64) error {
	if _, exists := m.nodes[spec.NodeID]; exists {
		return claudefserrors.New(claudefserrors.KindScaling, claudefserrors.CodeNodeAlreadyExists, "Manager.AddNode")
	}
	m.nodes[spec.NodeID] = NewNode(spec, now)
	logger.Info("scaling: node added", "node_id", spec.NodeID, "role", spec.Role)
	return nil
}

// RemoveNode transitions a node towards removal: Draining nodes finish
// draining, all others are decommissioned directly.
func (m *Manager) RemoveNode(nodeID string, now uint64) error {
	node, ok := m.nodes[nodeID]
	if !ok {
		return claudefserrors.New(claudefserrors.KindScaling, claudefserrors.CodeNodeNotFound, "Manager.RemoveNode")
	}

	if node.State == Draining {
		node.Transition(Drained, now)
	} else {
		node.Transition(Decommissioned, now)
	}
	return nil
}

// TransitionNode moves a node to newState, validating legality.
func (m *Manager) TransitionNode(nodeID string, newState State, now uint64) error {
	node, ok := m.nodes[nodeID]
	if !ok {
		return claudefserrors.New(claudefserrors.KindScaling, claudefserrors.CodeNodeNotFound, "Manager.TransitionNode")
	}

	if !node.State.CanTransitionTo(newState) {
		return claudefserrors.New(claudefserrors.KindScaling, claudefserrors.CodeInvalidTransition, "Manager.TransitionNode")
	}

	node.Transition(newState, now)
	logger.Debug("scaling: node transitioned", "node_id", nodeID, "state", newState.String())
	return nil
}

// GetNode returns the node with nodeID, if registered.
func (m *Manager) GetNode(nodeID string) (*Node, bool) {
	n, ok := m.nodes[nodeID]
	return n, ok
}

// ActiveNodes returns every node currently in the Active state.
func (m *Manager) ActiveNodes() []*Node {
	var out []*Node
	for _, n := range m.nodes {
		if n.State == Active {
			out = append(out, n)
		}
	}
	return out
}

// NodeCount returns the total number of registered nodes.
func (m *Manager) NodeCount() int {
	return len(m.nodes)
}

// ActiveCount returns the number of nodes in the Active state.
func (m *Manager) ActiveCount() int {
	return len(m.ActiveNodes())
}

// AddScalingPlan registers a new scaling plan.
func (m *Manager) AddScalingPlan(plan Plan) {
	m.plans[plan.PlanID] = &plan
}

// GetPlan returns the plan with planID, if registered.
func (m *Manager) GetPlan(planID string) (*Plan, bool) {
	p, ok := m.plans[planID]
	return p, ok
}

// ActivePlans returns every plan that has not yet completed.
func (m *Manager) ActivePlans() []*Plan {
	var out []*Plan
	for _, p := range m.plans {
		if !p.IsComplete() {
			out = append(out, p)
		}
	}
	return out
}

// ClusterFillPercent returns the aggregate NVMe occupancy across active nodes.
func (m *Manager) ClusterFillPercent() float64 {
	active := m.ActiveNodes()
	if len(active) == 0 {
		return 0.0
	}

	var totalCapacity, totalData uint64
	for _, n := range active {
		totalCapacity += n.Spec.NVMeCapacityBytes
		totalData += n.DataBytes
	}

	if totalCapacity == 0 {
		return 0.0
	}

	return (float64(totalData) / float64(totalCapacity)) * 100.0
}

// TotalCapacityBytes sums NVMe capacity across active nodes.
func (m *Manager) TotalCapacityBytes() uint64 {
	var total uint64
	for _, n := range m.ActiveNodes() {
		total += n.Spec.NVMeCapacityBytes
	}
	return total
}

// TotalDataBytes sums stored data bytes across active nodes.
func (m *Manager) TotalDataBytes() uint64 {
	var total uint64
	for _, n := range m.ActiveNodes() {
		total += n.DataBytes
	}
	return total
}

// NodesByState returns every node in the given state.
func (m *Manager) NodesByState(state State) []*Node {
	var out []*Node
	for _, n := range m.nodes {
		if n.State == state {
			out = append(out, n)
		}
	}
	return out
}

// AllNodes returns every registered node.
func (m *Manager) AllNodes() []*Node {
	out := make([]*Node, 0, len(m.nodes))
	for _, n := range m.nodes {
		out = append(out, n)
	}
	return out
}

// PlanCount returns the total number of registered plans.
func (m *Manager) PlanCount() int {
	return len(m.plans)
}

// CompletePlanCount returns the number of plans that have completed.
func (m *Manager) CompletePlanCount() int {
	count := 0
	for _, p := range m.plans {
		if p.IsComplete() {
			count++
		}
	}
	return count
}
