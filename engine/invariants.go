package engine

import "fmt"

// checkInvariants re-validates the handful of cross-cutting invariants
// spec.md §3/§4 requires hold between handler calls: shadow memory never
// exceeds a machine's real capacity, and every attached, non-migrating VM
// with active tasks sits on a machine the fleet believes is running. Cheap
// enough to run after every
// task completion; a violation here means the engine's bookkeeping has
// drifted from the simulator's ground truth and the run should stop
// rather than keep making decisions on bad data.
func (e *Engine) checkInvariants() error {
	for _, id := range e.fleet.Machines() {
		info, ok := e.fleet.Info(id)
		if !ok {
			continue
		}
		if e.shadow.Memory(id) > info.MemoryCap {
			return fmt.Errorf("machine %d shadow memory %d exceeds capacity %d", id, e.shadow.Memory(id), info.MemoryCap)
		}
	}
	for _, vm := range e.vms.All() {
		if !vm.Attached || vm.Migrating {
			continue
		}
		info, ok := e.fleet.Info(vm.Machine)
		if !ok {
			return fmt.Errorf("vm %d attached to unknown machine %d", vm.ID, vm.Machine)
		}
		if !info.SState.Running() && len(vm.ActiveTasks) > 0 {
			return fmt.Errorf("vm %d has active tasks on non-running machine %d", vm.ID, vm.Machine)
		}
	}
	return nil
}
